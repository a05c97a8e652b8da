// Package foreclosure orchestrates the classification engine for tracked
// cases: it loads state, runs the pure engine components under the case
// lock, persists the outcome and announces it.
package foreclosure

import (
	"context"
	"time"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	domainDiscrepancy "github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// Operation names used for metrics and logs.
const (
	OpIngest    = "ingest_events"
	OpRefresh   = "refresh_case"
	OpRecommend = "apply_recommendation"
	OpReconcile = "reconcile_extraction"
	OpSweep     = "sweep_stale"
)

// CaseMonitorService is the application boundary of the engine.
type CaseMonitorService interface {
	// EnsureCase returns the tracked case for (county, caseNumber), creating
	// it in needs_review when it is new.
	EnsureCase(ctx context.Context, county, caseNumber string) (*domainForeclosure.Case, error)

	// IngestEvents stores the events and page bid amounts not seen before,
	// records the page's identity fields and re-derives the case from its
	// complete history.
	IngestEvents(ctx context.Context, caseID string, raws []domainForeclosure.RawEvent, details domainForeclosure.CaseDetails) (*RefreshResult, error)

	// RefreshCase re-derives classification and ledger from stored state.
	RefreshCase(ctx context.Context, caseID string) (*RefreshResult, error)

	// ApplyRecommendation runs an AI-sourced classification through the guard.
	ApplyRecommendation(ctx context.Context, caseID string, recommended domainForeclosure.Classification, reason string) (*RecommendationResult, error)

	// ReconcileExtraction compares extracted document fields against the
	// case and queues new disagreements for review.
	ReconcileExtraction(ctx context.Context, caseID string, raw domainDiscrepancy.RawFieldMap, observedOn *time.Time) (*ReconcileResult, error)

	// SweepStale closes upset_bid cases whose deadline passed before today.
	SweepStale(ctx context.Context, today time.Time) (*SweepResult, error)

	// Today is the current civil date in the sweep timezone.
	Today() time.Time
}

// RefreshResult reports one classification pass.
type RefreshResult struct {
	Case       *domainForeclosure.Case        `json:"case"`
	Verdict    domainForeclosure.Verdict      `json:"verdict"`
	Decision   domainForeclosure.Decision     `json:"decision"`
	Transition *domainForeclosure.Transition  `json:"transition,omitempty"`
	Ledger     domainForeclosure.LedgerUpdate `json:"ledger"`
	Resolved   *domainForeclosure.ResolvedBid `json:"resolved_bid,omitempty"`
	NewEvents  int                            `json:"new_events"`
	PageBids   int                            `json:"page_bids,omitempty"`
	Skips      []domainForeclosure.Skip       `json:"skips,omitempty"`
	Saved      bool                           `json:"saved"`
}

// RecommendationResult reports a guarded AI recommendation.
type RecommendationResult struct {
	Case       *domainForeclosure.Case       `json:"case"`
	Decision   domainForeclosure.Decision    `json:"decision"`
	Transition *domainForeclosure.Transition `json:"transition,omitempty"`
}

// ReconcileResult reports one reconciliation pass.
type ReconcileResult struct {
	CaseID      string                             `json:"case_id"`
	Candidates  int                                `json:"candidates"`
	Records     []domainDiscrepancy.Record         `json:"records"`
	Malformed   []domainDiscrepancy.MalformedField `json:"malformed,omitempty"`
	BidRecorded bool                               `json:"bid_recorded"`
	// Refresh is the classification pass run after a bid was recorded.
	Refresh *RefreshResult `json:"refresh,omitempty"`
}

// Dependencies are the collaborators of the service.
type Dependencies struct {
	Cases         domainForeclosure.CaseRepository
	Events        domainForeclosure.EventRepository
	Bids          domainForeclosure.BidObservationRepository
	Discrepancies domainDiscrepancy.Repository
	Locker        Locker
	Publisher     Publisher
	Metrics       Metrics
	Engine        *EngineHolder
	Logger        logging.Logger
}

// ServiceConfig tunes the sweep and the notion of "today".
type ServiceConfig struct {
	SweepConcurrency int
	SweepBatchSize   int
	Location         *time.Location
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

type caseMonitorServiceImpl struct {
	cases         domainForeclosure.CaseRepository
	events        domainForeclosure.EventRepository
	bids          domainForeclosure.BidObservationRepository
	discrepancies domainDiscrepancy.Repository
	locker        Locker
	publisher     Publisher
	metrics       Metrics
	engine        *EngineHolder
	logger        logging.Logger
	cfg           ServiceConfig
}

// NewCaseMonitorService wires the service. Repositories and the locker are
// required; publisher, metrics and engine fall back to no-ops and defaults.
func NewCaseMonitorService(deps Dependencies, cfg ServiceConfig) (CaseMonitorService, error) {
	if deps.Cases == nil || deps.Events == nil || deps.Bids == nil || deps.Discrepancies == nil {
		return nil, errors.InvalidParam("case, event, bid and discrepancy repositories are required")
	}
	if deps.Locker == nil {
		return nil, errors.InvalidParam("locker is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = NopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Engine == nil {
		deps.Engine = NewEngineHolder(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 8
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &caseMonitorServiceImpl{
		cases:         deps.Cases,
		events:        deps.Events,
		bids:          deps.Bids,
		discrepancies: deps.Discrepancies,
		locker:        deps.Locker,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		engine:        deps.Engine,
		logger:        deps.Logger.Named("case-monitor"),
		cfg:           cfg,
	}, nil
}

func (s *caseMonitorServiceImpl) now() time.Time {
	return s.cfg.Now().UTC()
}

func (s *caseMonitorServiceImpl) Today() time.Time {
	return calendar.Today(s.cfg.Now(), s.cfg.Location)
}

// observe records the latency and outcome of op. Use with defer.
func (s *caseMonitorServiceImpl) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, time.Since(start), *err)
}

// withCaseLock runs fn while holding the case lock.
func (s *caseMonitorServiceImpl) withCaseLock(ctx context.Context, op, caseID string, fn func() error) error {
	release, err := s.locker.Lock(ctx, caseID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeLockNotAcquired) {
			s.metrics.RecordLockContention(op)
		}
		return err
	}
	defer func() {
		// The lock expires on its own; a failed release only delays the
		// next worker.
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("Failed to release case lock", logging.CaseID(caseID), logging.Err(rerr))
		}
	}()
	return fn()
}

// ─────────────────────────────────────────────────────────────────────────────
// EnsureCase / IngestEvents
// ─────────────────────────────────────────────────────────────────────────────

func (s *caseMonitorServiceImpl) EnsureCase(ctx context.Context, county, caseNumber string) (*domainForeclosure.Case, error) {
	c, err := s.cases.GetByCaseNumber(ctx, county, caseNumber)
	if err == nil {
		return c, nil
	}
	if !errors.IsCode(err, errors.ErrCodeCaseNotFound) {
		return nil, err
	}

	c, err = domainForeclosure.NewCase(caseNumber, county, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.cases.Create(ctx, c); err != nil {
		// Another worker created it first.
		if errors.IsCode(err, errors.ErrCodeConflict) {
			return s.cases.GetByCaseNumber(ctx, county, caseNumber)
		}
		return nil, err
	}
	s.logger.Info("Tracking new case",
		logging.CaseID(c.ID),
		logging.String("case_number", c.CaseNumber),
		logging.String("county", c.County))
	return c, nil
}

func (s *caseMonitorServiceImpl) IngestEvents(ctx context.Context, caseID string, raws []domainForeclosure.RawEvent, details domainForeclosure.CaseDetails) (res *RefreshResult, err error) {
	defer s.observe(OpIngest, time.Now(), &err)
	log := s.logger.With(logging.CaseID(caseID))

	now := s.now()
	events, skips := domainForeclosure.ParseEvents(caseID, raws, now)
	pageBids, bidSkips := domainForeclosure.PageBids(caseID, raws, now)
	skips = append(skips, bidSkips...)
	for _, sk := range skips {
		s.metrics.RecordMalformed(sk.Field)
		log.Warn("Skipping malformed event value",
			logging.Int("index", sk.Index),
			logging.String("field", sk.Field),
			logging.String("raw", sk.Raw),
			logging.String("reason", sk.Reason))
	}

	added, err := s.events.Append(ctx, events)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to append case events")
	}
	log.Debug("Events appended", logging.Int("received", len(raws)), logging.Int("new", added))

	var recordedBids int
	err = s.withCaseLock(ctx, OpIngest, caseID, func() error {
		var rerr error
		if recordedBids, rerr = s.addNewBids(ctx, caseID, pageBids); rerr != nil {
			return rerr
		}
		res, rerr = s.refresh(ctx, caseID, details)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	res.NewEvents = added
	res.PageBids = recordedBids
	res.Skips = skips
	return res, nil
}

// addNewBids stores the observations not already recorded for the same
// date, source and amount, so replaying a docket adds nothing. It must run
// under the case lock.
func (s *caseMonitorServiceImpl) addNewBids(ctx context.Context, caseID string, obs []domainForeclosure.BidObservation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	existing, err := s.bids.ListByCase(ctx, caseID)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load bid observations")
	}
	seen := make(map[string]struct{}, len(existing))
	key := func(o domainForeclosure.BidObservation) string {
		return calendar.Truncate(o.EventDate).Format("2006-01-02") + "|" + string(o.Source) + "|" + o.Amount.StringFixed(2)
	}
	for _, o := range existing {
		seen[key(o)] = struct{}{}
	}
	added := 0
	for _, o := range obs {
		k := key(o)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if err := s.bids.Add(ctx, o); err != nil {
			return added, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store bid observation")
		}
		added++
	}
	return added, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RefreshCase
// ─────────────────────────────────────────────────────────────────────────────

func (s *caseMonitorServiceImpl) RefreshCase(ctx context.Context, caseID string) (res *RefreshResult, err error) {
	defer s.observe(OpRefresh, time.Now(), &err)
	err = s.withCaseLock(ctx, OpRefresh, caseID, func() error {
		var rerr error
		res, rerr = s.refresh(ctx, caseID, domainForeclosure.CaseDetails{})
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// refresh must run under the case lock. Details from the case page and the
// parties named in filed-against are merged into the recorded identity
// fields before classification.
func (s *caseMonitorServiceImpl) refresh(ctx context.Context, caseID string, details domainForeclosure.CaseDetails) (*RefreshResult, error) {
	log := s.logger.With(logging.CaseID(caseID))
	eng := s.engine.Load()

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByCase(ctx, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load case events")
	}

	before := *c
	res := &RefreshResult{Case: c}

	details.Defendants = append(append([]string(nil), details.Defendants...), domainForeclosure.PartiesFiledAgainst(events)...)
	detailsChanged := c.MergeDetails(details)

	res.Verdict = eng.Classifier.ClassifyEvents(events)
	s.metrics.RecordVerdict(res.Verdict)

	res.Decision, err = eng.Guard.Apply(c.Classification, res.Verdict.Classification, domainForeclosure.SourceRule)
	if err != nil {
		return nil, err
	}
	if res.Decision.Rejected {
		s.metrics.RecordGuardRejection(res.Decision.Rule, domainForeclosure.SourceRule)
		log.Debug("Recompute left case unchanged",
			logging.Stringer("classification", c.Classification),
			logging.String("rule", res.Decision.Rule))
	}
	if t, ok := c.Apply(res.Decision, res.Verdict.Reason, domainForeclosure.SourceRule, s.now()); ok {
		res.Transition = &t
	}

	if err := s.refreshLedger(ctx, eng, c, events, res, log); err != nil {
		return nil, err
	}

	if res.Transition == nil && !res.Ledger.Applied && !detailsChanged && before.ClassificationReason == c.ClassificationReason {
		return res, nil
	}
	if res.Ledger.Applied || detailsChanged {
		c.UpdatedAt = s.now()
	}
	if err := s.cases.Save(ctx, c, res.Transition); err != nil {
		return nil, err
	}
	res.Saved = true

	if res.Transition != nil {
		s.metrics.RecordTransition(*res.Transition)
		log.Info("Classification changed",
			logging.Stringer("from", res.Transition.From),
			logging.Stringer("to", res.Transition.To),
			logging.String("reason", res.Transition.Reason))
		if perr := s.publisher.PublishTransition(ctx, c, *res.Transition); perr != nil {
			log.Error("Failed to publish classification change", logging.Err(perr))
		}
	}
	if res.Ledger.Applied {
		if perr := s.publisher.PublishLedger(ctx, c.ID, res.Ledger); perr != nil {
			log.Error("Failed to publish ledger update", logging.Err(perr))
		}
	}
	return res, nil
}

// refreshLedger syncs the bid ledger with the qualifying event and the best
// bid observation. Terminal cases keep their final ledger.
func (s *caseMonitorServiceImpl) refreshLedger(ctx context.Context, eng *Engine, c *domainForeclosure.Case,
	events []domainForeclosure.CaseEvent, res *RefreshResult, log logging.Logger) error {

	res.Ledger = domainForeclosure.LedgerUpdate{Before: c.Ledger, After: c.Ledger, Reason: domainForeclosure.LedgerNoQualifying}
	if c.Classification.IsTerminal() {
		res.Ledger.Reason = domainForeclosure.LedgerUnchanged
		return nil
	}

	qualifying, ok := domainForeclosure.LatestQualifyingEvent(events, eng.Rules)
	if !ok {
		return nil
	}

	observations, err := s.bids.ListByCase(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load bid observations")
	}
	var resolved *domainForeclosure.ResolvedBid
	if rb, ok := domainForeclosure.ResolveBid(observations); ok {
		resolved = &rb
		res.Resolved = &rb
		if rb.Disagreement() {
			log.Warn("Bid sources disagree; using the document value",
				logging.Date("event_date", rb.EventDate),
				logging.String("chosen", rb.Amount.StringFixed(2)),
				logging.String("source", string(rb.Source)),
				logging.Int("observations", len(rb.Observations)))
		}
	}

	update, err := eng.Ledger.Refresh(c.Ledger, qualifying, resolved)
	s.metrics.RecordLedgerUpdate(update)
	if err != nil {
		// The ledger keeps its prior state; classification still proceeds.
		log.Warn("Ledger update rejected", logging.Err(err))
		res.Ledger = update
		return nil
	}
	res.Ledger = update
	if update.Applied {
		c.Ledger = update.After
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ApplyRecommendation
// ─────────────────────────────────────────────────────────────────────────────

func (s *caseMonitorServiceImpl) ApplyRecommendation(ctx context.Context, caseID string, recommended domainForeclosure.Classification, reason string) (res *RecommendationResult, err error) {
	defer s.observe(OpRecommend, time.Now(), &err)
	if reason == "" {
		reason = domainForeclosure.ReasonAIRecommendation
	}
	log := s.logger.With(logging.CaseID(caseID))

	err = s.withCaseLock(ctx, OpRecommend, caseID, func() error {
		c, err := s.cases.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		d, err := s.engine.Load().Guard.Apply(c.Classification, recommended, domainForeclosure.SourceAI)
		if err != nil {
			return err
		}
		res = &RecommendationResult{Case: c, Decision: d}
		if d.Rejected {
			s.metrics.RecordGuardRejection(d.Rule, domainForeclosure.SourceAI)
			log.Info("Recommendation rejected",
				logging.Stringer("current", c.Classification),
				logging.Stringer("recommended", recommended),
				logging.String("rule", d.Rule))
			return nil
		}
		t, changed := c.Apply(d, reason, domainForeclosure.SourceAI, s.now())
		if !changed {
			return nil
		}
		if err := s.cases.Save(ctx, c, &t); err != nil {
			return err
		}
		res.Transition = &t
		s.metrics.RecordTransition(t)
		log.Info("Classification changed by recommendation",
			logging.Stringer("from", t.From),
			logging.Stringer("to", t.To))
		if perr := s.publisher.PublishTransition(ctx, c, t); perr != nil {
			log.Error("Failed to publish classification change", logging.Err(perr))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ReconcileExtraction
// ─────────────────────────────────────────────────────────────────────────────

func (s *caseMonitorServiceImpl) ReconcileExtraction(ctx context.Context, caseID string, raw domainDiscrepancy.RawFieldMap, observedOn *time.Time) (res *ReconcileResult, err error) {
	defer s.observe(OpReconcile, time.Now(), &err)
	log := s.logger.With(logging.CaseID(caseID))

	extracted, malformed := raw.Parse()
	for _, m := range malformed {
		s.metrics.RecordMalformed(string(m.Field))
		log.Warn("Skipping malformed extracted value",
			logging.String("field", string(m.Field)),
			logging.String("raw", m.Raw),
			logging.Err(m.Err))
	}
	res = &ReconcileResult{CaseID: caseID, Malformed: malformed}

	err = s.withCaseLock(ctx, OpReconcile, caseID, func() error {
		c, err := s.cases.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		recorded := domainDiscrepancy.FieldMap{
			PropertyAddress:  c.PropertyAddress,
			CurrentBidAmount: c.Ledger.CurrentBidAmount,
			MinimumNextBid:   c.Ledger.MinimumNextBid,
			Defendants:       c.Defendants,
		}

		now := s.now()
		candidates := s.engine.Load().Reconciler.Reconcile(extracted, recorded)
		res.Candidates = len(candidates)
		for i := range candidates {
			candidates[i].CaseID = caseID
			candidates[i].DetectedAt = now
		}

		existing, err := s.discrepancies.ListByCase(ctx, caseID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load discrepancies")
		}
		fresh := domainDiscrepancy.Dedup(candidates, existing)
		if len(fresh) > 0 {
			if err := s.discrepancies.Insert(ctx, fresh); err != nil {
				return err
			}
		}
		res.Records = fresh

		if extracted.CurrentBidAmount != nil && extracted.CurrentBidAmount.IsPositive() && observedOn != nil && !observedOn.IsZero() {
			obs := domainForeclosure.BidObservation{
				CaseID:     caseID,
				EventDate:  calendar.Truncate(*observedOn),
				Amount:     *extracted.CurrentBidAmount,
				Source:     domainForeclosure.SourceDocument,
				ObservedAt: now,
			}
			if err := s.bids.Add(ctx, obs); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store bid observation")
			}
			res.BidRecorded = true

			rr, err := s.refresh(ctx, caseID, domainForeclosure.CaseDetails{})
			if err != nil {
				return err
			}
			res.Refresh = rr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.Records) > 0 {
		s.metrics.RecordDiscrepancies(res.Records)
		log.Info("Discrepancies queued for review",
			logging.Int("new", len(res.Records)),
			logging.Int("candidates", res.Candidates))
		if perr := s.publisher.PublishDiscrepancies(ctx, caseID, res.Records); perr != nil {
			log.Error("Failed to publish discrepancies", logging.Err(perr))
		}
	}
	return res, nil
}
