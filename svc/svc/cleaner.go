package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"snipbin/metrics"
	"snipbin/svc/store"
	"snipbin/svc/util"

	"github.com/pkg/errors"
)

var (
	cleanerOnce    sync.Once
	cleanerRunning atomic.Bool
)

// StartCleaner purges physically expired rows in the background. This is
// housekeeping only: read-time filtering keeps expired pastes invisible
// whether or not the purge ever runs.
func StartCleaner(ctx context.Context, repo store.Repository, interval time.Duration) error {
	if cleanerRunning.Load() {
		return errors.New("cleaner already running")
	}
	cleanerOnce.Do(func() {
		cleanerRunning.Store(true)
		go runCleaner(ctx, repo, interval)
	})
	return nil
}

func runCleaner(ctx context.Context, repo store.Repository, interval time.Duration) {
	defer cleanerRunning.Store(false)
	cleanupRequestID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, cleanupRequestID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", cleanupRequestID).
		Dur("interval", interval).
		Msg("cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", cleanupRequestID).
				Msg("cleanup worker shutting down")
			return
		case <-ticker.C:
			deleted, err := repo.CleanupExpired(ctx, time.Now())
			metrics.PruneCycles.Inc()
			if err != nil {
				util.Error().
					Err(err).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("cleanup failed")
			} else if deleted > 0 {
				util.Info().
					Int("deleted", deleted).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("cleanup completed")
			}
		}
	}
}
