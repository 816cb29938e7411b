package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
)

// Loop runs a sweep function on a jittered interval until the context is
// cancelled. The jitter keeps multiple loops (and multiple processes) from
// aligning their sweeps. The loops only communicate with the rest of the
// system through the store, never through shared in-memory state.
type Loop struct {
	Name     string
	Interval time.Duration
	Sweep    func(ctx context.Context) error
	Logger   infra.Logger
}

// Run blocks until ctx is done. Sweep errors are logged, never fatal.
func (l Loop) Run(ctx context.Context) error {
	ticker := jitterbug.New(l.Interval, &jitterbug.Norm{Stdev: l.Interval / 10})
	defer ticker.Stop()

	l.Logger.Info().Str("loop", l.Name).Dur("interval", l.Interval).Msg("loop started")
	for {
		select {
		case <-ctx.Done():
			l.Logger.Info().Str("loop", l.Name).Msg("loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		if err := l.Sweep(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			l.Logger.Error().Err(err).Str("loop", l.Name).Msg("sweep failed")
		}
	}
}
