package store

import (
	"context"
	"sync"
	"time"

	"snipbin/pkg/domain"

	"github.com/pkg/errors"
)

// Memory is the ephemeral backend: a mutex-guarded map. All data is lost
// on restart, which is an accepted trade-off for this backend.
type Memory struct {
	mu     sync.RWMutex
	pastes map[string]*domain.Paste
}

func NewMemory() *Memory {
	return &Memory{pastes: make(map[string]*domain.Paste)}
}

func (m *Memory) Put(ctx context.Context, p *domain.Paste) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pastes[p.Token]; exists {
		return errors.Wrapf(domain.ErrDuplicateToken, "token %s", p.Token)
	}
	cp := *p
	cp.Content = append([]byte(nil), p.Content...)
	m.pastes[p.Token] = &cp
	return nil
}

func (m *Memory) GetIfLive(ctx context.Context, token string, now time.Time) (*domain.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Existence and liveness are checked in one branch so expired and
	// unknown tokens are indistinguishable to the caller.
	p, ok := m.pastes[token]
	if !ok || !p.Live(now) {
		return nil, domain.ErrNotFound
	}
	cp := *p
	cp.Content = append([]byte(nil), p.Content...)
	return &cp, nil
}

func (m *Memory) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, p := range m.pastes {
		if !p.Live(now) {
			delete(m.pastes, token)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

// Len reports the number of physically held rows, live or expired.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pastes)
}
