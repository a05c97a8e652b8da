package worker

import (
	"context"
	"sync/atomic"
	"time"

	appForeclosure "github.com/turtacn/ForeclosureWatch/internal/application/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
)

const defaultSweepInterval = time.Hour

// Sweeper runs SweepStale on a fixed interval. Runs never overlap: a tick
// that arrives while a sweep is still running is dropped.
type Sweeper struct {
	svc      appForeclosure.CaseMonitorService
	interval time.Duration
	logger   logging.Logger
	running  atomic.Bool
}

// NewSweeper creates a Sweeper. A non-positive interval means hourly.
func NewSweeper(svc appForeclosure.CaseMonitorService, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger.Named("sweeper")}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Staleness sweeper started", logging.Duration("interval", s.interval))
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Staleness sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps for the service's current date. It returns nil when a
// sweep is already in progress.
func (s *Sweeper) RunOnce(ctx context.Context) *appForeclosure.SweepResult {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous sweep still running; tick skipped")
		return nil
	}
	defer s.running.Store(false)

	res, err := s.svc.SweepStale(ctx, s.svc.Today())
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Staleness sweep failed", logging.Err(err))
	}
	return res
}
