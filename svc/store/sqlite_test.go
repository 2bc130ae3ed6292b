package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"snipbin/pkg/domain"

	"github.com/pkg/errors"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLitePutGetRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	p := testPaste("eeeeeeeeee1", 100, "sqlite body", time.Hour, now)
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.GetIfLive(ctx, p.Token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetIfLive: %v", err)
	}
	if string(got.Content) != "sqlite body" {
		t.Errorf("content = %q", got.Content)
	}
	if got.OrdinalID != 100 {
		t.Errorf("ordinal id = %d, want 100", got.OrdinalID)
	}
	if got.ContentHash != p.ContentHash {
		t.Errorf("hash mismatch")
	}
}

func TestSQLiteDuplicateToken(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.Put(ctx, testPaste("eeeeeeeeee2", 101, "one", time.Hour, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := s.Put(ctx, testPaste("eeeeeeeeee2", 102, "two", time.Hour, now))
	if !errors.Is(err, domain.ErrDuplicateToken) {
		t.Fatalf("Put duplicate = %v, want ErrDuplicateToken", err)
	}
}

func TestSQLiteDuplicateOrdinal(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.Put(ctx, testPaste("eeeeeeeeee3", 103, "one", time.Hour, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// ordinal_id carries its own unique constraint.
	err := s.Put(ctx, testPaste("eeeeeeeeee4", 103, "two", time.Hour, now))
	if !errors.Is(err, domain.ErrDuplicateToken) {
		t.Fatalf("Put duplicate ordinal = %v, want ErrDuplicateToken", err)
	}
}

func TestSQLiteExpiryFilteredInQuery(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	p := testPaste("eeeeeeeeee5", 104, "short lived", 60*time.Second, now)
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.GetIfLive(ctx, p.Token, now.Add(59*time.Second)); err != nil {
		t.Errorf("live paste at +59s: %v", err)
	}
	_, expiredErr := s.GetIfLive(ctx, p.Token, now.Add(61*time.Second))
	_, unknownErr := s.GetIfLive(ctx, "never1ssued", now.Add(61*time.Second))
	if !errors.Is(expiredErr, domain.ErrNotFound) || !errors.Is(unknownErr, domain.ErrNotFound) {
		t.Fatalf("expired=%v unknown=%v, want ErrNotFound for both", expiredErr, unknownErr)
	}
	// The row is still physically present; only the read filter hides it.
	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM pastes WHERE token = ?", p.Token).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestSQLiteCleanupExpired(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.Put(ctx, testPaste("ffffffffff1", 110, "old", time.Minute, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, testPaste("ffffffffff2", 111, "new", time.Hour, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := s.CleanupExpired(ctx, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.GetIfLive(ctx, "ffffffffff2", now.Add(10*time.Minute)); err != nil {
		t.Errorf("live paste removed by cleanup: %v", err)
	}
}

func TestSQLiteBinaryContentPreserved(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	body := []byte{0x00, 0xff, 0x10, '\n', 0x7f}
	p := &domain.Paste{
		Token:       "gggggggggg1",
		OrdinalID:   120,
		Content:     body,
		ContentType: "application/octet-stream",
		SizeBytes:   len(body),
		ContentHash: domain.HashContent(body),
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.GetIfLive(ctx, p.Token, now)
	if err != nil {
		t.Fatalf("GetIfLive: %v", err)
	}
	if string(got.Content) != string(body) {
		t.Errorf("content not byte-identical: %v vs %v", got.Content, body)
	}
}
