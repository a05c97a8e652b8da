package foreclosure

import (
	"sync/atomic"

	"github.com/turtacn/ForeclosureWatch/internal/config"
	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	domainDiscrepancy "github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// Engine is one immutable snapshot of the five engine components, built
// from a single configuration. An operation loads the snapshot once and
// uses it throughout, so a reload never mixes old and new rules inside one
// classification pass.
type Engine struct {
	Rules      domainForeclosure.RuleSet
	Calendar   calendar.Calendar
	Classifier *domainForeclosure.Classifier
	Guard      domainForeclosure.Guard
	Ledger     *domainForeclosure.BidLedger
	Reconciler *domainDiscrepancy.Reconciler
}

// NewEngine builds a snapshot from cfg.
func NewEngine(cfg config.EngineConfig) (*Engine, error) {
	rules, err := domainForeclosure.NewRuleSet(cfg.Rules)
	if err != nil {
		return nil, err
	}

	recOpts := []domainDiscrepancy.Option{}
	if cfg.DiscrepancyTolerance != "" {
		tol, err := cfg.Tolerance()
		if err != nil {
			return nil, errors.InvariantViolation("discrepancy tolerance is not a number").
				WithDetail("value=" + cfg.DiscrepancyTolerance)
		}
		if tol.IsNegative() {
			return nil, errors.InvariantViolation("discrepancy tolerance must not be negative").
				WithDetail("value=" + cfg.DiscrepancyTolerance)
		}
		recOpts = append(recOpts, domainDiscrepancy.WithTolerance(tol))
	}

	cal := calendar.New(calendar.WithUpsetBidWindow(cfg.UpsetBidWindowDays))
	return &Engine{
		Rules:      rules,
		Calendar:   cal,
		Classifier: domainForeclosure.NewClassifier(rules),
		Ledger:     domainForeclosure.NewBidLedger(cal, rules),
		Reconciler: domainDiscrepancy.NewReconciler(recOpts...),
	}, nil
}

// DefaultEngine is the snapshot with every built-in default.
func DefaultEngine() *Engine {
	e, _ := NewEngine(config.EngineConfig{})
	return e
}

// EngineHolder publishes the current snapshot to concurrent operations.
type EngineHolder struct {
	p atomic.Pointer[Engine]
}

// NewEngineHolder starts with e (the defaults when e is nil).
func NewEngineHolder(e *Engine) *EngineHolder {
	if e == nil {
		e = DefaultEngine()
	}
	h := &EngineHolder{}
	h.p.Store(e)
	return h
}

// Load returns the current snapshot.
func (h *EngineHolder) Load() *Engine {
	return h.p.Load()
}

// Reload replaces the snapshot with one built from cfg. On error the
// current snapshot stays in place.
func (h *EngineHolder) Reload(cfg config.EngineConfig) error {
	e, err := NewEngine(cfg)
	if err != nil {
		return err
	}
	h.p.Store(e)
	return nil
}
