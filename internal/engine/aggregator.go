package engine

import (
	"context"
	"time"

	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

// runAggregator publishes stats:update on every tick until ctx is done.
func (e *Engine) runAggregator(ctx context.Context) {
	ticker := time.NewTicker(e.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.publish(types.EventStatsUpdate, e.Stats())
		case <-ctx.Done():
			return
		}
	}
}

// Stats counts working agents and active mission documents. It reads the
// filesystem directly, so it converges even when events were missed.
func (e *Engine) Stats() types.Stats {
	all := e.agents.All()
	working := 0
	for _, l := range all {
		if l.Status == types.LivenessWorking {
			working++
		}
	}

	queued := e.active.Len()
	if keys, err := workspace.MissionFiles(e.layout.ActiveDir); err == nil {
		queued = len(keys)
	} else {
		e.log.Warn("failed to count active missions", "error", err)
	}

	return types.Stats{
		ActiveAgents:   working,
		TotalAgents:    len(all),
		QueuedMissions: queued,
		Timestamp:      e.now().UTC(),
	}
}
