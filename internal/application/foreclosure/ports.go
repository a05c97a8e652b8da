package foreclosure

import (
	"context"
	"time"

	domainDiscrepancy "github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
)

// ReleaseFunc releases a held case lock.
type ReleaseFunc = func(context.Context) error

// Locker serializes work on one case across workers.
type Locker interface {
	// Lock waits for the case lock.
	Lock(ctx context.Context, caseID string) (ReleaseFunc, error)
	// TryLock makes a single attempt; ok is false when the lock is held.
	TryLock(ctx context.Context, caseID string) (release ReleaseFunc, ok bool, err error)
}

// Publisher announces engine outcomes to downstream consumers.
type Publisher interface {
	PublishTransition(ctx context.Context, c *domainForeclosure.Case, t domainForeclosure.Transition) error
	PublishLedger(ctx context.Context, caseID string, u domainForeclosure.LedgerUpdate) error
	PublishDiscrepancies(ctx context.Context, caseID string, records []domainDiscrepancy.Record) error
}

// Metrics receives engine and orchestration measurements.
type Metrics interface {
	RecordVerdict(v domainForeclosure.Verdict)
	RecordTransition(t domainForeclosure.Transition)
	RecordGuardRejection(rule string, src domainForeclosure.Source)
	RecordLedgerUpdate(u domainForeclosure.LedgerUpdate)
	RecordDiscrepancies(records []domainDiscrepancy.Record)
	RecordMalformed(field string)
	RecordLockContention(operation string)
	ObserveOperation(operation string, d time.Duration, err error)
	RecordSweep(examined, closed, skipped, failed int, d time.Duration, err error)
}

// NopPublisher drops every event. Used by offline CLI runs.
type NopPublisher struct{}

func (NopPublisher) PublishTransition(context.Context, *domainForeclosure.Case, domainForeclosure.Transition) error {
	return nil
}

func (NopPublisher) PublishLedger(context.Context, string, domainForeclosure.LedgerUpdate) error {
	return nil
}

func (NopPublisher) PublishDiscrepancies(context.Context, string, []domainDiscrepancy.Record) error {
	return nil
}

// NopMetrics discards measurements.
type NopMetrics struct{}

func (NopMetrics) RecordVerdict(domainForeclosure.Verdict)               {}
func (NopMetrics) RecordTransition(domainForeclosure.Transition)         {}
func (NopMetrics) RecordGuardRejection(string, domainForeclosure.Source) {}
func (NopMetrics) RecordLedgerUpdate(domainForeclosure.LedgerUpdate)     {}
func (NopMetrics) RecordDiscrepancies([]domainDiscrepancy.Record)        {}
func (NopMetrics) RecordMalformed(string)                                {}
func (NopMetrics) RecordLockContention(string)                           {}
func (NopMetrics) ObserveOperation(string, time.Duration, error)         {}
func (NopMetrics) RecordSweep(int, int, int, int, time.Duration, error)  {}
