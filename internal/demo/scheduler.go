package demo

import (
	"context"
	"log/slog"
	"time"

	"susmarket/internal/domain"
)

// Dispatcher accepts one event at a time
type Dispatcher interface {
	Dispatch(domain.GameEvent) domain.MatchState
}

// Scheduler plays a script into a dispatcher, waiting each step's delay.
// Cancelling the context stops playback before the next step fires.
type Scheduler struct {
	target Dispatcher
	logger *slog.Logger

	// Scale multiplies every delay; 0 or 1 plays in real time.
	Scale float64
}

// NewScheduler creates a scheduler feeding target
func NewScheduler(target Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{target: target, logger: logger}
}

// Run blocks until the script is played or ctx is done
func (s *Scheduler) Run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		timer := time.NewTimer(s.scaled(step.Delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Debug("demo playback stopped", "step", i, "of", len(steps))
			return ctx.Err()
		case <-timer.C:
		}

		// a cancel racing the timer still wins
		if ctx.Err() != nil {
			return ctx.Err()
		}
		state := s.target.Dispatch(step.Event)
		s.logger.Debug("demo event dispatched", "kind", step.Event.Kind(), "phase", state.Phase)
	}
	return nil
}

func (s *Scheduler) scaled(d time.Duration) time.Duration {
	if s.Scale <= 0 || s.Scale == 1 {
		return d
	}
	return time.Duration(float64(d) * s.Scale)
}
