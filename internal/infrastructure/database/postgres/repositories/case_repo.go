package repositories

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/postgres"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

const uniqueViolation = "23505"

const caseColumns = `
	id, case_number, county, property_address, defendants,
	classification, classification_reason,
	current_bid_amount, minimum_next_bid, next_bid_deadline, sale_date, last_bid_date, bid_verified,
	created_at, updated_at, version`

// CaseRepository is the PostgreSQL implementation of foreclosure.CaseRepository.
type CaseRepository struct {
	baseRepo
	log logging.Logger
}

var _ foreclosure.CaseRepository = (*CaseRepository)(nil)

// NewCaseRepository constructs a CaseRepository.
func NewCaseRepository(pool *pgxpool.Pool, log logging.Logger) *CaseRepository {
	return &CaseRepository{baseRepo: baseRepo{pool: pool}, log: log}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID loads a case by primary key.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*foreclosure.Case, error) {
	return r.scanCase(r.q(ctx).QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
}

// GetByCaseNumber loads a case by its county docket number.
func (r *CaseRepository) GetByCaseNumber(ctx context.Context, county, caseNumber string) (*foreclosure.Case, error) {
	return r.scanCase(r.q(ctx).QueryRow(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE county = $1 AND case_number = $2`, county, caseNumber))
}

// ListStaleUpsetBids returns upset_bid cases whose deadline is before today,
// oldest deadline first.
func (r *CaseRepository) ListStaleUpsetBids(ctx context.Context, today time.Time, opts ...foreclosure.QueryOption) ([]*foreclosure.Case, error) {
	o := foreclosure.ApplyQueryOptions(opts...)
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE classification = $1 AND next_bid_deadline IS NOT NULL AND next_bid_deadline < $2
		ORDER BY next_bid_deadline ASC, id ASC
		LIMIT $3 OFFSET $4`,
		foreclosure.UpsetBid.String(), today, o.Limit, o.Offset)
	if err != nil {
		r.log.Error("CaseRepository.ListStaleUpsetBids", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list stale upset bid cases")
	}
	defer rows.Close()
	return r.scanCases(rows)
}

// ListByClassification returns cases in the given state, most recently
// updated first.
func (r *CaseRepository) ListByClassification(ctx context.Context, c foreclosure.Classification, opts ...foreclosure.QueryOption) ([]*foreclosure.Case, error) {
	if !c.Valid() {
		return nil, foreclosure.ErrInvalidClassification
	}
	o := foreclosure.ApplyQueryOptions(opts...)
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+caseColumns+`
		FROM cases WHERE classification = $1
		ORDER BY updated_at DESC, id ASC
		LIMIT $2 OFFSET $3`,
		c.String(), o.Limit, o.Offset)
	if err != nil {
		r.log.Error("CaseRepository.ListByClassification", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list cases by classification")
	}
	defer rows.Close()
	return r.scanCases(rows)
}

// ListTransitions returns the classification history of a case, oldest first.
func (r *CaseRepository) ListTransitions(ctx context.Context, caseID string) ([]foreclosure.Transition, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, case_id, from_classification, to_classification, reason, source, changed_at
		FROM case_classification_history
		WHERE case_id = $1
		ORDER BY changed_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list classification history")
	}
	defer rows.Close()

	var out []foreclosure.Transition
	for rows.Next() {
		var (
			t        foreclosure.Transition
			from, to string
			src      string
		)
		if err := rows.Scan(&t.ID, &t.CaseID, &from, &to, &t.Reason, &src, &t.At); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan classification history")
		}
		if t.From, err = foreclosure.ParseClassification(from); err != nil {
			return nil, err
		}
		if t.To, err = foreclosure.ParseClassification(to); err != nil {
			return nil, err
		}
		t.Source = foreclosure.Source(src)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new case. A duplicate (county, case_number) is a conflict.
func (r *CaseRepository) Create(ctx context.Context, c *foreclosure.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Version == 0 {
		c.Version = 1
	}
	l := c.Ledger
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		c.ID, c.CaseNumber, c.County, c.PropertyAddress, defendantsOrEmpty(c.Defendants),
		c.Classification.String(), c.ClassificationReason,
		nullDecimal(l.CurrentBidAmount), nullDecimal(l.MinimumNextBid), l.NextBidDeadline, l.SaleDate, l.LastBidDate, l.Verified,
		c.CreatedAt, c.UpdatedAt, c.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.Conflict("case already exists").WithDetail(c.County + "/" + c.CaseNumber)
		}
		r.log.Error("CaseRepository.Create", logging.CaseID(c.ID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert case")
	}
	return nil
}

// Save writes c when the stored version matches c.Version, then bumps it.
// A non-nil transition is appended to the history in the same transaction.
func (r *CaseRepository) Save(ctx context.Context, c *foreclosure.Case, t *foreclosure.Transition) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, txCtx context.Context) error {
		l := c.Ledger
		tag, err := tx.Exec(txCtx, `
			UPDATE cases SET
				property_address = $2, defendants = $3,
				classification = $4, classification_reason = $5,
				current_bid_amount = $6, minimum_next_bid = $7, next_bid_deadline = $8,
				sale_date = $9, last_bid_date = $10, bid_verified = $11,
				updated_at = $12, version = version + 1
			WHERE id = $1 AND version = $13`,
			c.ID, c.PropertyAddress, defendantsOrEmpty(c.Defendants),
			c.Classification.String(), c.ClassificationReason,
			nullDecimal(l.CurrentBidAmount), nullDecimal(l.MinimumNextBid), l.NextBidDeadline,
			l.SaleDate, l.LastBidDate, l.Verified,
			c.UpdatedAt, c.Version,
		)
		if err != nil {
			r.log.Error("CaseRepository.Save", logging.CaseID(c.ID), logging.Err(err))
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update case")
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(txCtx, tx, c)
		}

		if t != nil {
			if _, err := tx.Exec(txCtx, `
				INSERT INTO case_classification_history
					(id, case_id, from_classification, to_classification, reason, source, changed_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				t.ID, t.CaseID, t.From.String(), t.To.String(), t.Reason, string(t.Source), t.At,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record classification change")
			}
		}
		c.Version++
		return nil
	})
}

func (r *CaseRepository) missingOrStale(ctx context.Context, tx pgx.Tx, c *foreclosure.Case) error {
	var stored int64
	err := tx.QueryRow(ctx, `SELECT version FROM cases WHERE id = $1`, c.ID).Scan(&stored)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return foreclosure.ErrCaseNotFound.WithDetail("id=" + c.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read case version")
	}
	return errors.Conflict("case was modified concurrently").
		WithDetailf("id=%s expected_version=%d stored_version=%d", c.ID, c.Version, stored)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *CaseRepository) scanCase(row pgx.Row) (*foreclosure.Case, error) {
	c, err := scanCaseRow(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, foreclosure.ErrCaseNotFound
		}
		if errors.IsCode(err, errors.ErrCodeInvariantViolation) {
			return nil, err
		}
		r.log.Error("CaseRepository.scanCase", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan case row")
	}
	return c, nil
}

func (r *CaseRepository) scanCases(rows pgx.Rows) ([]*foreclosure.Case, error) {
	var out []*foreclosure.Case
	for rows.Next() {
		c, err := scanCaseRow(rows)
		if err != nil {
			r.log.Error("CaseRepository.scanCases", logging.Err(err))
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan case row")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "row iteration error")
	}
	return out, nil
}

func scanCaseRow(row pgx.Row) (*foreclosure.Case, error) {
	var (
		c              foreclosure.Case
		classification string
		current, minBid decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.County, &c.PropertyAddress, &c.Defendants,
		&classification, &c.ClassificationReason,
		&current, &minBid, &c.Ledger.NextBidDeadline, &c.Ledger.SaleDate, &c.Ledger.LastBidDate, &c.Ledger.Verified,
		&c.CreatedAt, &c.UpdatedAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	if c.Classification, err = foreclosure.ParseClassification(classification); err != nil {
		return nil, err
	}
	c.Ledger.CurrentBidAmount = decimalPtr(current)
	c.Ledger.MinimumNextBid = decimalPtr(minBid)
	c.Ledger.NextBidDeadline = utcDate(c.Ledger.NextBidDeadline)
	c.Ledger.SaleDate = utcDate(c.Ledger.SaleDate)
	c.Ledger.LastBidDate = utcDate(c.Ledger.LastBidDate)
	return &c, nil
}

func defendantsOrEmpty(d []string) []string {
	if d == nil {
		return []string{}
	}
	return d
}
