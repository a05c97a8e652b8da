// Package discrepancy compares machine-extracted case fields against the
// recorded values and produces records for human review.
package discrepancy

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
	"github.com/turtacn/ForeclosureWatch/pkg/normalize"
)

// Field names a reconciled case field.
type Field string

const (
	FieldPropertyAddress  Field = "property_address"
	FieldCurrentBidAmount Field = "current_bid_amount"
	FieldMinimumNextBid   Field = "minimum_next_bid"
	FieldDefendantName    Field = "defendant_name"
)

// Valid reports whether f is a reconciled field.
func (f Field) Valid() bool {
	switch f {
	case FieldPropertyAddress, FieldCurrentBidAmount, FieldMinimumNextBid, FieldDefendantName:
		return true
	}
	return false
}

// Status is the review state of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// ErrNotFound is returned by repositories for unknown record ids.
var ErrNotFound = errors.New(errors.ErrCodeDiscrepancyNotFound, "discrepancy not found")

// Record is one disagreement queued for review. Resolution fields are set
// only by the external review workflow.
type Record struct {
	ID             string     `json:"id,omitempty"`
	CaseID         string     `json:"case_id,omitempty"`
	Field          Field      `json:"field"`
	RecordedValue  string     `json:"recorded_value"`
	ExtractedValue string     `json:"extracted_value"`
	Status         Status     `json:"status"`
	DetectedAt     time.Time  `json:"detected_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}

// Validate enforces the resolution invariant: pending records carry no
// resolution, resolved records carry both timestamp and reviewer.
func (r Record) Validate() error {
	if !r.Field.Valid() {
		return errors.InvariantViolation("unknown discrepancy field").WithDetail("field=" + string(r.Field))
	}
	switch r.Status {
	case StatusPending:
		if r.ResolvedAt != nil || r.ResolvedBy != nil {
			return errors.InvariantViolation("pending discrepancy has resolution data")
		}
	case StatusAccepted, StatusRejected:
		if r.ResolvedAt == nil || r.ResolvedBy == nil || strings.TrimSpace(*r.ResolvedBy) == "" {
			return errors.InvariantViolation("resolved discrepancy needs resolved_at and resolved_by")
		}
	default:
		return errors.InvariantViolation("unknown discrepancy status").WithDetail("status=" + string(r.Status))
	}
	return nil
}

// Key identifies the same disagreement across reconciliation passes.
func (r Record) Key() string {
	return string(r.Field) + "|" + normalize.Text(r.ExtractedValue)
}

// Dedup drops candidates already represented in existing, in any status,
// and duplicates within candidates themselves.
func Dedup(candidates, existing []Record) []Record {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, r := range existing {
		seen[r.Key()] = struct{}{}
	}
	var out []Record
	for _, r := range candidates {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Field maps
// ─────────────────────────────────────────────────────────────────────────────

// FieldMap holds candidate or recorded values. Empty strings, nil amounts
// and empty defendant lists mean "absent".
type FieldMap struct {
	PropertyAddress  string           `json:"property_address,omitempty"`
	CurrentBidAmount *decimal.Decimal `json:"current_bid_amount,omitempty"`
	MinimumNextBid   *decimal.Decimal `json:"minimum_next_bid,omitempty"`
	Defendants       []string         `json:"defendants,omitempty"`
}

// RawFieldMap is extraction output before amount parsing.
type RawFieldMap struct {
	PropertyAddress  string   `json:"property_address,omitempty"`
	CurrentBidAmount string   `json:"current_bid_amount,omitempty"`
	MinimumNextBid   string   `json:"minimum_next_bid,omitempty"`
	Defendants       []string `json:"defendants,omitempty"`
}

// MalformedField reports a raw value that was dropped.
type MalformedField struct {
	Field Field  `json:"field"`
	Raw   string `json:"raw"`
	Err   error  `json:"-"`
}

// Parse converts raw extraction output. Amounts that fail to parse are left
// absent and reported so the caller can log them.
func (m RawFieldMap) Parse() (FieldMap, []MalformedField) {
	out := FieldMap{PropertyAddress: strings.TrimSpace(m.PropertyAddress)}
	var bad []MalformedField
	for _, name := range m.Defendants {
		if n := strings.TrimSpace(name); n != "" {
			out.Defendants = append(out.Defendants, n)
		}
	}
	if amt, err := ParseAmount(m.CurrentBidAmount); err != nil {
		bad = append(bad, MalformedField{Field: FieldCurrentBidAmount, Raw: m.CurrentBidAmount, Err: err})
	} else {
		out.CurrentBidAmount = amt
	}
	if amt, err := ParseAmount(m.MinimumNextBid); err != nil {
		bad = append(bad, MalformedField{Field: FieldMinimumNextBid, Raw: m.MinimumNextBid, Err: err})
	} else {
		out.MinimumNextBid = amt
	}
	return out, bad
}

// ParseAmount reads a money string such as "$105,000.00" or "USD 5000".
// A blank string is absent (nil, nil). Anything other than digits, one
// decimal point, thousands separators, a leading minus and a dollar sign or
// USD marker is malformed; letters are never silently dropped because OCR
// confuses O with 0 and l with 1.
func ParseAmount(s string) (*decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return nil, nil
	}
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "USD"), "usd")
	clean = strings.NewReplacer("$", "", ",", "", " ", "").Replace(clean)
	if clean == "" || clean == "-" {
		return nil, errors.MalformedInput("amount has no digits").WithDetail("raw=" + s)
	}
	for i, r := range clean {
		if (r >= '0' && r <= '9') || r == '.' || (r == '-' && i == 0) {
			continue
		}
		return nil, errors.MalformedInput("amount is not numeric").WithDetail("raw=" + s)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, errors.MalformedInput("amount is not numeric").WithDetail("raw=" + s)
	}
	return &d, nil
}

// Repository persists discrepancy records.
type Repository interface {
	Insert(ctx context.Context, records []Record) error
	ListByCase(ctx context.Context, caseID string) ([]Record, error)
	ListPending(ctx context.Context, limit int) ([]Record, error)
}
