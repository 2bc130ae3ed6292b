// Package store persists pastes keyed by token and enforces the expiring
// read contract: an expired paste is never returned, whether or not the
// row is still physically present.
package store

import (
	"context"
	"time"

	"snipbin/pkg/domain"
)

// Repository is the storage contract both backends implement. Backend
// swap is transparent to callers: same semantics, same error taxonomy,
// only durability differs.
//
// Put fails with domain.ErrDuplicateToken if the token exists; it never
// silently overwrites. GetIfLive returns domain.ErrNotFound for unknown
// and expired tokens alike, with the liveness filter applied in the same
// branch/query as the existence check. CleanupExpired is housekeeping
// only; read-time filtering is the sole correctness mechanism.
type Repository interface {
	Put(ctx context.Context, p *domain.Paste) error
	GetIfLive(ctx context.Context, token string, now time.Time) (*domain.Paste, error)
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
