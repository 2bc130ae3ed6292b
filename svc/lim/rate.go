// Package lim bounds paste-creation throughput per client identity. The
// limiter is consulted before any ID is issued, so throttled requests
// never consume ID space or storage capacity.
package lim

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"snipbin/svc/store"
	"snipbin/svc/util"

	"golang.org/x/time/rate"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
	window          = time.Minute
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a per-client creation budget: a shared fixed-window counter
// in Redis when available, a local token bucket per client otherwise.
type Limiter struct {
	rdb       *store.Redis
	perMinute int
	mu        sync.Mutex
	local     map[string]*limiterEntry
	quit      chan struct{}
	now       func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func New(perMinute int, rdb *store.Redis) *Limiter {
	l := &Limiter{
		rdb:       rdb,
		perMinute: perMinute,
		local:     make(map[string]*limiterEntry),
		quit:      make(chan struct{}),
		now:       time.Now,
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) Stop() {
	close(l.quit)
}

// Allow reports whether clientID may create a paste now. A deny carries
// the duration after which the next attempt can succeed.
func (l *Limiter) Allow(ctx context.Context, clientID string) Result {
	if l.rdb != nil {
		rctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		key := "ratelimit:create:" + clientID
		usage, err := l.rdb.RateLimit(rctx, key, l.perMinute, window)
		if err == nil {
			remaining := l.perMinute - usage
			if remaining < 0 {
				remaining = 0
			}
			if usage > l.perMinute {
				retry, rerr := l.rdb.RetryAfter(rctx, key)
				if rerr != nil || retry <= 0 {
					retry = window
				}
				return Result{Allowed: false, Limit: l.perMinute, RetryAfter: retry}
			}
			return Result{Allowed: true, Limit: l.perMinute, Remaining: remaining}
		}
		util.Warn().Err(err).Msg("redis rate limit unavailable, using local fallback")
	}
	return l.allowLocal(clientID)
}

func (l *Limiter) allowLocal(clientID string) Result {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.local) >= maxLimiters {
		if _, exists := l.local[clientID]; !exists {
			util.Warn().
				Int("limiters", len(l.local)).
				Msg("rate limiter at capacity, rejecting request")
			return Result{Allowed: false, Limit: l.perMinute, RetryAfter: window}
		}
	}
	entry, exists := l.local[clientID]
	if !exists {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.perMinute)/rate.Limit(window.Seconds()), l.perMinute),
		}
		l.local[clientID] = entry
	}
	entry.lastAccess = now
	res := entry.limiter.ReserveN(now, 1)
	if !res.OK() {
		return Result{Allowed: false, Limit: l.perMinute, RetryAfter: window}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Result{Allowed: false, Limit: l.perMinute, RetryAfter: delay}
	}
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Limit: l.perMinute, Remaining: remaining}
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.quit:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	now := l.now()
	l.mu.Lock()
	evicted := 0
	for key, entry := range l.local {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.local, key)
			evicted++
		}
	}
	remaining := len(l.local)
	l.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate limiter cleanup")
	}
}

// GetRealIP resolves the client identity behind trusted proxies.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 {
		return remoteIP
	}
	if !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	// Walk right to left: the first hop not operated by us is the client.
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(parts[i])
		if ipStr == "" {
			continue
		}
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", ipStr).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") {
			_, subnet, err := net.ParseCIDR(proxy)
			if err == nil {
				parsedIP := net.ParseIP(ip)
				if parsedIP != nil && subnet.Contains(parsedIP) {
					return true
				}
			}
		}
	}
	return false
}

func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
