package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/postgres"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

const discrepancyColumns = `id, case_id, field, recorded_value, extracted_value, status, detected_at, resolved_at, resolved_by`

// DiscrepancyRepository is the PostgreSQL implementation of discrepancy.Repository.
type DiscrepancyRepository struct {
	baseRepo
}

var _ discrepancy.Repository = (*DiscrepancyRepository)(nil)

// NewDiscrepancyRepository constructs a DiscrepancyRepository.
func NewDiscrepancyRepository(pool *pgxpool.Pool) *DiscrepancyRepository {
	return &DiscrepancyRepository{baseRepo: baseRepo{pool: pool}}
}

// Insert stores records atomically. Records without an id get one.
func (r *DiscrepancyRepository) Insert(ctx context.Context, records []discrepancy.Record) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return err
		}
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}
	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, txCtx context.Context) error {
		for _, rec := range records {
			if _, err := tx.Exec(txCtx, `
				INSERT INTO discrepancies (`+discrepancyColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				rec.ID, rec.CaseID, string(rec.Field), rec.RecordedValue, rec.ExtractedValue,
				string(rec.Status), rec.DetectedAt, rec.ResolvedAt, rec.ResolvedBy,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert discrepancy")
			}
		}
		return nil
	})
}

// ListByCase returns every record for the case regardless of status.
func (r *DiscrepancyRepository) ListByCase(ctx context.Context, caseID string) ([]discrepancy.Record, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+discrepancyColumns+` FROM discrepancies
		WHERE case_id = $1 ORDER BY detected_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list discrepancies")
	}
	return scanDiscrepancies(rows)
}

// ListPending returns the review queue, oldest first.
func (r *DiscrepancyRepository) ListPending(ctx context.Context, limit int) ([]discrepancy.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+discrepancyColumns+` FROM discrepancies
		WHERE status = $1 ORDER BY detected_at ASC, id ASC LIMIT $2`,
		string(discrepancy.StatusPending), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list pending discrepancies")
	}
	return scanDiscrepancies(rows)
}

func scanDiscrepancies(rows pgx.Rows) ([]discrepancy.Record, error) {
	defer rows.Close()
	var out []discrepancy.Record
	for rows.Next() {
		var (
			rec           discrepancy.Record
			field, status string
		)
		if err := rows.Scan(&rec.ID, &rec.CaseID, &field, &rec.RecordedValue, &rec.ExtractedValue,
			&status, &rec.DetectedAt, &rec.ResolvedAt, &rec.ResolvedBy); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan discrepancy")
		}
		rec.Field = discrepancy.Field(field)
		rec.Status = discrepancy.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return out, nil
}
