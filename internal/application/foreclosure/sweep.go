package foreclosure

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
)

// SweepResult counts what one sweep run did.
type SweepResult struct {
	Today    time.Time `json:"today"`
	Examined int       `json:"examined"`
	Closed   int       `json:"closed"`
	// Skipped cases were locked by another worker or no longer stale.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type sweepOutcome int

const (
	sweepClosed sweepOutcome = iota
	// sweepContended: another worker holds the lock; the case stays stale.
	sweepContended
	// sweepNotStale: the deadline moved; the case leaves the stale set.
	sweepNotStale
	sweepFailed
)

// SweepStale pages through upset_bid cases whose deadline is before today
// and closes each one as sold. Each case is re-checked under its lock so a
// concurrent refresh that moved the deadline wins.
func (s *caseMonitorServiceImpl) SweepStale(ctx context.Context, today time.Time) (res *SweepResult, err error) {
	start := time.Now()
	today = calendar.Truncate(today)
	res = &SweepResult{Today: today}
	defer func() {
		s.metrics.RecordSweep(res.Examined, res.Closed, res.Skipped, res.Failed, time.Since(start), err)
		s.metrics.ObserveOperation(OpSweep, time.Since(start), err)
	}()

	log := s.logger.With(logging.Date("today", today))
	limit := s.cfg.SweepBatchSize
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := s.cases.ListStaleUpsetBids(ctx, today,
			domainForeclosure.WithLimit(limit), domainForeclosure.WithOffset(offset))
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}

		var closed, contended, notStale, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.SweepConcurrency)
		for _, c := range page {
			caseID := c.ID
			g.Go(func() error {
				switch s.sweepOne(gctx, caseID, today) {
				case sweepClosed:
					closed.Add(1)
				case sweepContended:
					contended.Add(1)
				case sweepNotStale:
					notStale.Add(1)
				default:
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		res.Examined += len(page)
		res.Closed += int(closed.Load())
		res.Skipped += int(contended.Load() + notStale.Load())
		res.Failed += int(failed.Load())

		if len(page) < limit {
			break
		}
		// Closed and no-longer-stale cases drop out of the result set;
		// contended and failed ones remain and shift the next page.
		offset += int(contended.Load() + failed.Load())
	}

	log.Info("Staleness sweep completed",
		logging.Int("examined", res.Examined),
		logging.Int("closed", res.Closed),
		logging.Int("skipped", res.Skipped),
		logging.Int("failed", res.Failed),
		logging.Duration("duration", time.Since(start)))
	return res, nil
}

func (s *caseMonitorServiceImpl) sweepOne(ctx context.Context, caseID string, today time.Time) sweepOutcome {
	log := s.logger.With(logging.CaseID(caseID))

	release, ok, err := s.locker.TryLock(ctx, caseID)
	if err != nil {
		log.Warn("Sweep could not lock case", logging.Err(err))
		return sweepFailed
	}
	if !ok {
		s.metrics.RecordLockContention(OpSweep)
		log.Debug("Case locked by another worker; leaving it for the next sweep")
		return sweepContended
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn("Failed to release case lock", logging.Err(rerr))
		}
	}()

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		log.Error("Sweep failed to load case", logging.Err(err))
		return sweepFailed
	}

	d := s.engine.Load().Guard.Sweep(*c, today)
	if !d.Changed {
		log.Debug("Case no longer stale", logging.String("rule", d.Rule))
		return sweepNotStale
	}
	t, _ := c.Apply(d, domainForeclosure.ReasonDeadlineExpired, domainForeclosure.SourceSweep, s.now())
	if err := s.cases.Save(ctx, c, &t); err != nil {
		log.Error("Sweep failed to save case", logging.Err(err))
		return sweepFailed
	}

	s.metrics.RecordTransition(t)
	log.Info("Closed stale upset-bid case",
		logging.Stringer("from", t.From),
		logging.Stringer("to", t.To))
	if perr := s.publisher.PublishTransition(ctx, c, t); perr != nil {
		log.Error("Failed to publish classification change", logging.Err(perr))
	}
	return sweepClosed
}
