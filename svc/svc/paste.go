package svc

import (
	"context"
	"time"

	"snipbin/cfg"
	"snipbin/metrics"
	"snipbin/pkg/domain"
	"snipbin/pkg/ident"
	"snipbin/svc/cache"
	"snipbin/svc/lim"
	"snipbin/svc/store"
	"snipbin/svc/util"

	"github.com/pkg/errors"
)

// Paste wires the identity pipeline, the rate limiter, the repository and
// the cache layers into the two public operations: create and read.
type Paste struct {
	repo    store.Repository
	lru     *cache.LRU
	rdb     *store.Redis
	limiter *lim.Limiter
	issuer  *ident.Issuer
	cfg     *cfg.Cfg
	now     func() time.Time
}

func NewPaste(repo store.Repository, lru *cache.LRU, rdb *store.Redis, limiter *lim.Limiter, issuer *ident.Issuer, c *cfg.Cfg) *Paste {
	if repo == nil || lru == nil || limiter == nil || issuer == nil || c == nil {
		panic("paste service: nil dependency (repo, lru, limiter, issuer, or cfg)")
	}
	return &Paste{
		repo:    repo,
		lru:     lru,
		rdb:     rdb,
		limiter: limiter,
		issuer:  issuer,
		cfg:     c,
		now:     time.Now,
	}
}

// Create validates, issues a token and persists the paste. The limiter
// runs before anything else so throttled clients never burn ID space. A
// request aborted after IssueToken simply wastes that ordinal; a retry
// draws a fresh one.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	res := p.limiter.Allow(ctx, params.ClientID)
	if !res.Allowed {
		metrics.RateLimitHits.Inc()
		return nil, domain.NewRateLimited(res.RetryAfter)
	}
	if len(params.Content) == 0 || int64(len(params.Content)) > p.cfg.MaxContentBytes {
		return nil, errors.Wrapf(domain.ErrInvalidContent, "size %d", len(params.Content))
	}
	if params.TTL < p.cfg.MinTTL || params.TTL > p.cfg.MaxTTL {
		return nil, errors.Wrapf(domain.ErrInvalidTTL, "ttl %s", params.TTL)
	}
	contentType := params.ContentType
	if contentType == "" {
		contentType = domain.DefaultContentType
	}

	tok, err := p.issuer.IssueToken()
	if err != nil {
		if errors.Is(err, domain.ErrClockSkew) {
			metrics.ClockSkewFailures.Inc()
		}
		return nil, errors.Wrap(err, "issue token")
	}
	metrics.TokensIssued.Inc()

	now := p.now()
	paste := &domain.Paste{
		Token:       tok.Value,
		OrdinalID:   tok.OrdinalID,
		Content:     params.Content,
		ContentType: contentType,
		SizeBytes:   len(params.Content),
		ContentHash: domain.HashContent(params.Content),
		CreatedAt:   now,
		ExpiresAt:   now.Add(params.TTL),
	}
	if err := p.repo.Put(ctx, paste); err != nil {
		return nil, errors.Wrap(err, "put paste")
	}
	p.warmCaches(ctx, paste, now)
	metrics.PasteCreated.Inc()
	return paste, nil
}

// GetMetadata returns the paste for a token, or ErrNotFound. Unknown and
// expired tokens are indistinguishable by contract.
func (p *Paste) GetMetadata(ctx context.Context, token string) (*domain.Paste, error) {
	return p.lookup(ctx, token)
}

// GetContent returns the raw bytes and stored content type for a token.
func (p *Paste) GetContent(ctx context.Context, token string) ([]byte, string, error) {
	paste, err := p.lookup(ctx, token)
	if err != nil {
		return nil, "", err
	}
	return paste.Content, paste.ContentType, nil
}

// lookup is the single unified read path: syntactic token check, then
// LRU, then Redis, then the repository. Liveness is re-verified on every
// cache hit; the caches are never the authority on expiry. Cache failures
// degrade to repository reads and are absorbed here.
func (p *Paste) lookup(ctx context.Context, token string) (*domain.Paste, error) {
	if _, err := ident.ParseToken(token); err != nil {
		return nil, err
	}
	now := p.now()

	if paste := p.lru.Get(ctx, token); paste != nil {
		if !paste.Live(now) {
			p.lru.Delete(token)
			return nil, domain.ErrNotFound
		}
		metrics.CacheHits.WithLabelValues("lru").Inc()
		metrics.PasteRetrieved.Inc()
		return paste, nil
	}

	if p.rdb != nil {
		if paste, err := p.rdb.GetPaste(ctx, token); err == nil && paste != nil {
			if !paste.Live(now) {
				p.rdb.Delete(ctx, token)
				return nil, domain.ErrNotFound
			}
			metrics.CacheHits.WithLabelValues("redis").Inc()
			p.lru.Set(ctx, paste, now)
			metrics.PasteRetrieved.Inc()
			return paste, nil
		} else if err != nil {
			util.Warn().Err(err).Msg("redis read failed, falling through to repository")
		}
	}

	paste, err := p.repo.GetIfLive(ctx, token, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "get paste")
	}
	metrics.CacheMisses.Inc()
	p.warmCaches(ctx, paste, now)
	metrics.PasteRetrieved.Inc()
	return paste, nil
}

// warmCaches populates both layers with TTLs clamped to the paste's
// remaining life so neither can ever serve past expires_at.
func (p *Paste) warmCaches(ctx context.Context, paste *domain.Paste, now time.Time) {
	p.lru.Set(ctx, paste, now)
	if p.rdb != nil {
		ttl := p.cfg.CacheTTL
		if remaining := paste.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
		if err := p.rdb.CachePaste(ctx, paste, ttl); err != nil {
			util.Warn().Err(err).Str("token", paste.Token).Msg("failed to cache in Redis")
		}
	}
}
