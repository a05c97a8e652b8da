package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// BidObservationRepository stores every bid sighting so conflicting
// sources can be resolved later.
type BidObservationRepository struct {
	baseRepo
}

var _ foreclosure.BidObservationRepository = (*BidObservationRepository)(nil)

// NewBidObservationRepository constructs a BidObservationRepository.
func NewBidObservationRepository(pool *pgxpool.Pool) *BidObservationRepository {
	return &BidObservationRepository{baseRepo: baseRepo{pool: pool}}
}

// Add inserts one observation.
func (r *BidObservationRepository) Add(ctx context.Context, obs foreclosure.BidObservation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO bid_observations (id, case_id, event_date, amount, source, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		obs.ID, obs.CaseID, obs.EventDate, obs.Amount, string(obs.Source), obs.ObservedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert bid observation")
	}
	return nil
}

// ListByCase returns all observations for the case, oldest bid first.
func (r *BidObservationRepository) ListByCase(ctx context.Context, caseID string) ([]foreclosure.BidObservation, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, case_id, event_date, amount, source, observed_at
		FROM bid_observations
		WHERE case_id = $1
		ORDER BY event_date ASC, observed_at ASC`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list bid observations")
	}
	defer rows.Close()

	var out []foreclosure.BidObservation
	for rows.Next() {
		var (
			o   foreclosure.BidObservation
			src string
		)
		if err := rows.Scan(&o.ID, &o.CaseID, &o.EventDate, &o.Amount, &src, &o.ObservedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan bid observation")
		}
		o.Source = foreclosure.BidSource(src)
		o.EventDate = *utcDate(&o.EventDate)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return out, nil
}
