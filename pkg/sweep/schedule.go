package sweep

import (
	"context"
	"errors"
	"time"
)

// Schedule fires s.Run every interval until ctx is done. It stands in for the
// host's periodic cleanup trigger; a failed run is simply retried on the next tick.
func Schedule(ctx context.Context, s *Sweeper, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	runOnce := func() {
		report, err := s.Run(ctx)
		switch {
		case errors.Is(err, ErrSweepInProgress):
			s.logger.Info("saved address sweep skipped, previous run still active")
		case err != nil:
			s.logger.Error("saved address sweep failed", "run_id", report.RunID, "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("sweep schedule stopped")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
