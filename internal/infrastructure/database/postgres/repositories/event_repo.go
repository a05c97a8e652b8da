package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/postgres"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// EventRepository stores docket events. Rows are never updated or deleted.
type EventRepository struct {
	baseRepo
	log logging.Logger
}

var _ foreclosure.EventRepository = (*EventRepository)(nil)

// NewEventRepository constructs an EventRepository.
func NewEventRepository(pool *pgxpool.Pool, log logging.Logger) *EventRepository {
	return &EventRepository{baseRepo: baseRepo{pool: pool}, log: log}
}

// Append inserts the events whose dedup key is not yet stored for their
// case and reports how many rows were new.
func (r *EventRepository) Append(ctx context.Context, events []foreclosure.CaseEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	inserted := 0
	err := postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, txCtx context.Context) error {
		batch := &pgx.Batch{}
		for _, e := range events {
			id := e.ID
			if id == "" {
				id = uuid.NewString()
			}
			batch.Queue(`
				INSERT INTO case_events
					(id, case_id, event_date, event_type, description, filed_by, filed_against, dedup_key, recorded_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (case_id, dedup_key) DO NOTHING`,
				id, e.CaseID, e.EventDate, e.EventType, e.Description, e.FiledBy, e.FiledAgainst, e.DedupKey(), e.RecordedAt,
			)
		}
		br := tx.SendBatch(txCtx, batch)
		for range events {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				r.log.Error("EventRepository.Append", logging.Err(err))
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert case event")
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByCase returns the case's events in arrival order.
func (r *EventRepository) ListByCase(ctx context.Context, caseID string) ([]foreclosure.CaseEvent, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, case_id, seq, event_date, event_type, description, filed_by, filed_against, recorded_at
		FROM case_events
		WHERE case_id = $1
		ORDER BY seq ASC`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list case events")
	}
	defer rows.Close()

	var out []foreclosure.CaseEvent
	for rows.Next() {
		var e foreclosure.CaseEvent
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Seq, &e.EventDate, &e.EventType,
			&e.Description, &e.FiledBy, &e.FiledAgainst, &e.RecordedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan case event")
		}
		e.EventDate = utcDate(e.EventDate)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return out, nil
}
