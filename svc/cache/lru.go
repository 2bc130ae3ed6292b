// Package cache is the in-process read-through layer. It is purely an
// optimization: it never decides liveness on its own, and losing it only
// costs repository reads.
package cache

import (
	"context"
	"sync"
	"time"

	"snipbin/pkg/domain"

	"github.com/pkg/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

type LRU struct {
	c          *lru.Cache[string, item]
	mu         sync.Mutex
	defaultTTL time.Duration
}

type item struct {
	paste *domain.Paste
	exp   time.Time
}

func NewLRU(size int, defaultTTL time.Duration) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	if defaultTTL <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, defaultTTL: defaultTTL}, nil
}

func (l *LRU) Get(ctx context.Context, token string) *domain.Paste {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(token)
	if !ok {
		return nil
	}
	if time.Now().After(it.exp) {
		l.c.Remove(token)
		return nil
	}
	return it.paste
}

// Set stores a paste with TTL = min(default, remaining life at now), so a
// cache entry can never outlive the paste's true expiry.
func (l *LRU) Set(ctx context.Context, p *domain.Paste, now time.Time) {
	ttl := l.defaultTTL
	if remaining := p.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(p.Token, item{
		paste: p,
		exp:   now.Add(ttl),
	})
}

func (l *LRU) Delete(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(token)
}
