package foreclosure

import (
	"context"
	"time"
)

// QueryOptions defines pagination for list queries.
type QueryOptions struct {
	Limit  int
	Offset int
}

// QueryOption is a functional option for list queries.
type QueryOption func(*QueryOptions)

// WithLimit sets the page size.
func WithLimit(limit int) QueryOption {
	return func(o *QueryOptions) {
		o.Limit = limit
	}
}

// WithOffset sets the page offset.
func WithOffset(offset int) QueryOption {
	return func(o *QueryOptions) {
		o.Offset = offset
	}
}

// ApplyQueryOptions applies opts over the defaults (limit 100, max 1000).
func ApplyQueryOptions(opts ...QueryOption) QueryOptions {
	options := QueryOptions{Limit: 100}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Limit > 1000 {
		options.Limit = 1000
	}
	if options.Limit <= 0 {
		options.Limit = 100
	}
	if options.Offset < 0 {
		options.Offset = 0
	}
	return options
}

// CaseRepository persists cases and their classification history.
type CaseRepository interface {
	GetByID(ctx context.Context, id string) (*Case, error)
	GetByCaseNumber(ctx context.Context, county, caseNumber string) (*Case, error)

	// Create inserts a new case.
	Create(ctx context.Context, c *Case) error

	// Save updates c when its Version matches the stored one, bumps the
	// version, and records t (when non-nil) in the same transaction.
	Save(ctx context.Context, c *Case, t *Transition) error

	// ListStaleUpsetBids returns upset_bid cases whose deadline is before today.
	ListStaleUpsetBids(ctx context.Context, today time.Time, opts ...QueryOption) ([]*Case, error)
	ListByClassification(ctx context.Context, c Classification, opts ...QueryOption) ([]*Case, error)
	ListTransitions(ctx context.Context, caseID string) ([]Transition, error)
}

// EventRepository stores the append-only docket history.
type EventRepository interface {
	// Append inserts events not already stored (by DedupKey) and returns how
	// many were new.
	Append(ctx context.Context, events []CaseEvent) (int, error)
	// ListByCase returns the full history in arrival order.
	ListByCase(ctx context.Context, caseID string) ([]CaseEvent, error)
}

// BidObservationRepository stores bid sightings from pages and documents.
type BidObservationRepository interface {
	Add(ctx context.Context, obs BidObservation) error
	ListByCase(ctx context.Context, caseID string) ([]BidObservation, error)
}
