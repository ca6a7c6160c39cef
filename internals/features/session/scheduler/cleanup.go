package scheduler

import (
	"context"
	"time"

	"edumarket_bff/internals/helpers/logger"
)

// Purger drops expired sessions. Redis expires keys itself, so only the
// in-memory store needs this.
type Purger interface {
	Purge() int
}

func StartSessionCleanupScheduler(ctx context.Context, p Purger, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("[CLEANUP] session cleanup stopped")
				return
			case <-t.C:
				if n := p.Purge(); n > 0 {
					logger.Log.WithField("removed", n).Info("[CLEANUP] expired sessions removed")
				} else {
					logger.Log.Debug("[CLEANUP] no expired sessions")
				}
			}
		}
	}()
}
