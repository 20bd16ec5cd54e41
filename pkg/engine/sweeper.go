package engine

import (
	"context"
	"time"
)

// Sweep removes expectations that expired or were stored with no uses left
// and records a REMOVED_EXPECTATION entry for each. It returns the number
// removed.
func (e *Engine) Sweep() int {
	expired := e.store.SweepExpired()
	for _, exp := range expired {
		e.recordRemoved(exp, "removed expectation:\n\n  %s\n\n with id:\n\n  %s\n\n as it can no longer match")
	}
	if len(expired) > 0 {
		e.log.Debug("swept expired expectations", "count", len(expired))
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done. Expired
// expectations are never selected, so the sweeper only bounds memory.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}
