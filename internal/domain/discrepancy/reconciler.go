package discrepancy

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/turtacn/ForeclosureWatch/pkg/normalize"
)

// DefaultTolerance is the amount difference treated as equal.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Reconciler compares extracted values to recorded ones.
type Reconciler struct {
	tolerance decimal.Decimal
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTolerance overrides the numeric tolerance. Negative values are ignored.
func WithTolerance(t decimal.Decimal) Option {
	return func(r *Reconciler) {
		if !t.IsNegative() {
			r.tolerance = t
		}
	}
}

// NewReconciler returns a Reconciler with the default 0.01 tolerance.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tolerance returns the configured numeric tolerance.
func (r *Reconciler) Tolerance() decimal.Decimal {
	return r.tolerance
}

// Reconcile returns one pending record per disagreement, in field order
// address, current bid, minimum next bid, defendants. It has no side
// effects; ids, case ids and timestamps are stamped by the caller.
//
// Text fields disagree when both sides are non-empty and their normalized
// forms differ. A defendant found by extraction disagrees when no recorded
// defendant matches it, including when none are recorded at all. Amounts
// disagree only when extracted exceeds recorded by more than the tolerance;
// a higher recorded amount usually reflects a later upset bid.
func (r *Reconciler) Reconcile(extracted, recorded FieldMap) []Record {
	var out []Record

	if !normalize.IsBlank(extracted.PropertyAddress) && !normalize.IsBlank(recorded.PropertyAddress) &&
		!normalize.Equal(extracted.PropertyAddress, recorded.PropertyAddress) {
		out = append(out, pending(FieldPropertyAddress, recorded.PropertyAddress, extracted.PropertyAddress))
	}

	if rec, ok := r.amountDiffers(extracted.CurrentBidAmount, recorded.CurrentBidAmount); ok {
		out = append(out, rec.with(FieldCurrentBidAmount))
	}
	if rec, ok := r.amountDiffers(extracted.MinimumNextBid, recorded.MinimumNextBid); ok {
		out = append(out, rec.with(FieldMinimumNextBid))
	}

	out = append(out, defendantDiscrepancies(extracted.Defendants, recorded.Defendants)...)
	return out
}

type amountPair struct {
	recorded, extracted string
}

func (p amountPair) with(f Field) Record {
	return pending(f, p.recorded, p.extracted)
}

func (r *Reconciler) amountDiffers(extracted, recorded *decimal.Decimal) (amountPair, bool) {
	if extracted == nil || recorded == nil {
		return amountPair{}, false
	}
	if !extracted.Sub(*recorded).GreaterThan(r.tolerance) {
		return amountPair{}, false
	}
	return amountPair{recorded: recorded.StringFixed(2), extracted: extracted.StringFixed(2)}, true
}

func defendantDiscrepancies(extracted, recorded []string) []Record {
	known := make(map[string]struct{}, len(recorded))
	var recordedNames []string
	for _, name := range recorded {
		if n := normalize.Text(name); n != "" {
			known[n] = struct{}{}
			recordedNames = append(recordedNames, strings.TrimSpace(name))
		}
	}
	joined := strings.Join(recordedNames, "; ")

	var out []Record
	reported := make(map[string]struct{})
	for _, name := range extracted {
		n := normalize.Text(name)
		if n == "" {
			continue
		}
		if _, ok := known[n]; ok {
			continue
		}
		if _, dup := reported[n]; dup {
			continue
		}
		reported[n] = struct{}{}
		out = append(out, pending(FieldDefendantName, joined, strings.TrimSpace(name)))
	}
	return out
}

func pending(f Field, recorded, extracted string) Record {
	return Record{
		Field:          f,
		RecordedValue:  recorded,
		ExtractedValue: extracted,
		Status:         StatusPending,
	}
}
