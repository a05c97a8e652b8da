// Package foreclosure holds the case lifecycle engine: the closed
// Classification enumeration, the immutable CaseEvent record, the rule-based
// EventClassifier, the ClassificationGuard with its staleness sweep, and the
// BidLedger. Everything here is pure; persistence and serialization of
// per-case writes are the caller's concern.
package foreclosure

import (
	"fmt"
	"strings"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Classification enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Classification is the lifecycle state of a case. The zero value is not a
// valid classification.
type Classification uint8

const (
	// Upcoming: foreclosure ordered, no sale reported yet.
	Upcoming Classification = iota + 1
	// Pending: case initiated, no order yet.
	Pending
	// UpsetBid: auction held, upset-bid window open.
	UpsetBid
	// Blocked: procedural interruption overlay (bankruptcy, stay).
	Blocked
	// NeedsReview: evidence is ambiguous or conflicting.
	NeedsReview
	// ClosedSold: upset-bid window expired with no further bid. Terminal.
	ClosedSold
	// ClosedDismissed: case dismissed. Terminal.
	ClosedDismissed
)

var classificationNames = [...]string{
	Upcoming:        "upcoming",
	Pending:         "pending",
	UpsetBid:        "upset_bid",
	Blocked:         "blocked",
	NeedsReview:     "needs_review",
	ClosedSold:      "closed_sold",
	ClosedDismissed: "closed_dismissed",
}

// ErrInvalidClassification is returned whenever a value outside the
// enumeration reaches the engine.
var ErrInvalidClassification = errors.New(errors.ErrCodeInvariantViolation, "classification not in enumeration")

// Classifications lists every valid value in declaration order.
func Classifications() []Classification {
	return []Classification{Upcoming, Pending, UpsetBid, Blocked, NeedsReview, ClosedSold, ClosedDismissed}
}

// Valid reports whether c is a member of the enumeration.
func (c Classification) Valid() bool {
	return c >= Upcoming && c <= ClosedDismissed
}

// IsTerminal reports whether no transition may leave c.
func (c Classification) IsTerminal() bool {
	return c == ClosedSold || c == ClosedDismissed
}

// String returns the wire name, or "invalid(n)" for values outside the set.
func (c Classification) String() string {
	if !c.Valid() {
		return fmt.Sprintf("invalid(%d)", uint8(c))
	}
	return classificationNames[c]
}

// ParseClassification maps a wire name (case and surrounding space
// insensitive, "-" accepted for "_") back to a Classification.
func ParseClassification(s string) (Classification, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range Classifications() {
		if classificationNames[c] == key {
			return c, nil
		}
	}
	return 0, ErrInvalidClassification.WithDetail("value=" + s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidClassification.WithDetailf("value=%d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Classification) UnmarshalText(b []byte) error {
	parsed, err := ParseClassification(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Recommendation source
// ─────────────────────────────────────────────────────────────────────────────

// Source identifies where a classification change came from.
type Source string

const (
	// SourceRule is a full recompute by the EventClassifier.
	SourceRule Source = "rule"
	// SourceAI is a downstream automated refinement.
	SourceAI Source = "ai"
	// SourceSweep is the periodic staleness sweep.
	SourceSweep Source = "sweep"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceRule, SourceAI, SourceSweep:
		return true
	}
	return false
}
