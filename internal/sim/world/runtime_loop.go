package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingInputs []InputEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingInputs = append(pendingInputs, env)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingInputs)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInputs = pendingInputs[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inputs []InputEnvelope) (tick uint64, digest string) {
	entry := w.stepInternal(joins, leaves, inputs)
	return entry.Tick, entry.Digest
}

func (w *World) dt() float64 { return 1 / float64(w.cfg.TickRateHz) }

// sendLatest never blocks the loop. It reports whether a frame was lost, in
// which case the client needs a full patch to recover.
func sendLatest(ch chan Frame, f Frame) (dropped bool) {
	if ch == nil {
		return false
	}
	select {
	case ch <- f:
		return false
	default:
	}
	// Drop one.
	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- f:
	default:
		dropped = true
	}
	return dropped
}
