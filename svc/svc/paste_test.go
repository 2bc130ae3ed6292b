package svc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"snipbin/cfg"
	"snipbin/pkg/domain"
	"snipbin/pkg/ident"
	"snipbin/svc/cache"
	"snipbin/svc/lim"
	"snipbin/svc/store"

	"github.com/pkg/errors"
)

func testCfg() *cfg.Cfg {
	return &cfg.Cfg{
		MaxContentBytes:    65536,
		MinTTL:             60 * time.Second,
		MaxTTL:             604800 * time.Second,
		DefaultTTL:         86400 * time.Second,
		CacheTTL:           30 * time.Second,
		RateLimitPerMinute: 60,
	}
}

type fixture struct {
	svc     *Paste
	repo    *store.Memory
	limiter *lim.Limiter
}

func newFixture(t *testing.T, c *cfg.Cfg) *fixture {
	t.Helper()
	repo := store.NewMemory()
	l, err := cache.NewLRU(100, c.CacheTTL)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	gen, err := ident.NewGenerator(1)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	obf, err := ident.NewObfuscator([]byte("service-test-obfuscation-key"))
	if err != nil {
		t.Fatalf("NewObfuscator: %v", err)
	}
	limiter := lim.New(c.RateLimitPerMinute, nil)
	t.Cleanup(limiter.Stop)
	s := NewPaste(repo, l, nil, limiter, ident.NewIssuer(gen, obf), c)
	return &fixture{svc: s, repo: repo, limiter: limiter}
}

func TestCreateThenReadBackIdentical(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	content := []byte("hello")
	paste, err := f.svc.Create(ctx, domain.CreateParams{
		Content:  content,
		TTL:      3600 * time.Second,
		ClientID: "1.2.3.4",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(paste.Token) != ident.TokenLength {
		t.Errorf("token length = %d, want %d", len(paste.Token), ident.TokenLength)
	}
	if paste.SizeBytes != 5 {
		t.Errorf("size = %d, want 5", paste.SizeBytes)
	}
	wantExpiry := paste.CreatedAt.Add(3600 * time.Second)
	if !paste.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires_at = %v, want %v", paste.ExpiresAt, wantExpiry)
	}
	got, contentType, err := f.svc.GetContent(ctx, paste.Token)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}
	if contentType != domain.DefaultContentType {
		t.Errorf("content type = %q", contentType)
	}
}

func TestCreateValidatesContent(t *testing.T) {
	c := testCfg()
	f := newFixture(t, c)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateParams{Content: nil, TTL: time.Hour, ClientID: "a"})
	if !errors.Is(err, domain.ErrInvalidContent) {
		t.Errorf("empty content = %v, want ErrInvalidContent", err)
	}

	exact := bytes.Repeat([]byte("x"), int(c.MaxContentBytes))
	if _, err := f.svc.Create(ctx, domain.CreateParams{Content: exact, TTL: time.Hour, ClientID: "a"}); err != nil {
		t.Errorf("content of exactly max bytes rejected: %v", err)
	}

	over := bytes.Repeat([]byte("x"), int(c.MaxContentBytes)+1)
	if _, err := f.svc.Create(ctx, domain.CreateParams{Content: over, TTL: time.Hour, ClientID: "a"}); !errors.Is(err, domain.ErrInvalidContent) {
		t.Errorf("oversize content = %v, want ErrInvalidContent", err)
	}
}

func TestCreateValidatesTTL(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	cases := []struct {
		name string
		ttl  time.Duration
		ok   bool
	}{
		{"below min", 59 * time.Second, false},
		{"at min", 60 * time.Second, true},
		{"at max", 604800 * time.Second, true},
		{"above max", 604801 * time.Second, false},
		{"zero", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, domain.CreateParams{
				Content:  []byte("ttl test"),
				TTL:      tc.ttl,
				ClientID: "b",
			})
			if tc.ok && err != nil {
				t.Errorf("ttl %s rejected: %v", tc.ttl, err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrInvalidTTL) {
				t.Errorf("ttl %s = %v, want ErrInvalidTTL", tc.ttl, err)
			}
		})
	}
}

func TestExpiryBoundary(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	created := time.Now()
	f.svc.now = func() time.Time { return created }
	paste, err := f.svc.Create(ctx, domain.CreateParams{
		Content:  []byte("sixty seconds"),
		TTL:      60 * time.Second,
		ClientID: "c",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.svc.now = func() time.Time { return created.Add(59 * time.Second) }
	if _, err := f.svc.GetMetadata(ctx, paste.Token); err != nil {
		t.Errorf("paste at +59s: %v", err)
	}

	f.svc.now = func() time.Time { return created.Add(61 * time.Second) }
	if _, err := f.svc.GetMetadata(ctx, paste.Token); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("paste at +61s = %v, want ErrNotFound", err)
	}
}

func TestExpiredAndUnknownIndistinguishable(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	created := time.Now()
	f.svc.now = func() time.Time { return created }
	paste, err := f.svc.Create(ctx, domain.CreateParams{
		Content:  []byte("will expire"),
		TTL:      time.Minute,
		ClientID: "d",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.svc.now = func() time.Time { return created.Add(time.Hour) }

	_, expiredErr := f.svc.GetMetadata(ctx, paste.Token)
	_, unknownErr := f.svc.GetMetadata(ctx, ident.EncodeToken(123456789))
	if !errors.Is(expiredErr, domain.ErrNotFound) || !errors.Is(unknownErr, domain.ErrNotFound) {
		t.Fatalf("expired=%v unknown=%v, want ErrNotFound for both", expiredErr, unknownErr)
	}
	if domain.ToResp(expiredErr) != domain.ToResp(unknownErr) {
		t.Errorf("responses differ: %+v vs %+v", domain.ToResp(expiredErr), domain.ToResp(unknownErr))
	}
}

func TestMalformedTokenRejectedBeforeStorage(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	for _, tok := range []string{"", "short", "000000000000", "!!!!!!!!!!!"} {
		if _, err := f.svc.GetMetadata(ctx, tok); !errors.Is(err, domain.ErrMalformedToken) {
			t.Errorf("GetMetadata(%q) = %v, want ErrMalformedToken", tok, err)
		}
	}
}

func TestRateLimitedCreateDoesNotStore(t *testing.T) {
	c := testCfg()
	c.RateLimitPerMinute = 2
	f := newFixture(t, c)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Create(ctx, domain.CreateParams{
			Content:  []byte("ok"),
			TTL:      time.Hour,
			ClientID: "same-client",
		}); err != nil {
			t.Fatalf("Create %d: %v", i+1, err)
		}
	}
	_, err := f.svc.Create(ctx, domain.CreateParams{
		Content:  []byte("throttled"),
		TTL:      time.Hour,
		ClientID: "same-client",
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("third create = %v, want ErrRateLimited", err)
	}
	var re *domain.RetryAfterError
	if !errors.As(err, &re) || re.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", err)
	}
	if f.repo.Len() != 2 {
		t.Errorf("repo holds %d rows, throttled create must not store", f.repo.Len())
	}
}

func TestCacheCannotResurrectExpiredPaste(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	created := time.Now()
	f.svc.now = func() time.Time { return created }
	paste, err := f.svc.Create(ctx, domain.CreateParams{
		Content:  []byte("cached then expired"),
		TTL:      time.Minute,
		ClientID: "e",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Warm the LRU with a read while live.
	if _, err := f.svc.GetMetadata(ctx, paste.Token); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	// Now past expiry: the LRU may still hold the entry, but the service
	// must re-verify liveness.
	f.svc.now = func() time.Time { return created.Add(2 * time.Minute) }
	if _, err := f.svc.GetMetadata(ctx, paste.Token); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired paste served from cache: %v", err)
	}
}

func TestCreatorImmediatelySeesOwnWrite(t *testing.T) {
	f := newFixture(t, testCfg())
	ctx := context.Background()
	paste, err := f.svc.Create(ctx, domain.CreateParams{
		Content:  []byte("read your write"),
		TTL:      time.Hour,
		ClientID: "f",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := f.svc.GetMetadata(ctx, paste.Token)
	if err != nil {
		t.Fatalf("immediate read: %v", err)
	}
	if got.ContentHash != paste.ContentHash {
		t.Errorf("hash mismatch on immediate read")
	}
}
