package foreclosure

import (
	"time"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
)

// Guard rule names reported on a Decision.
const (
	RuleApplied           = "applied"
	RuleUnchanged         = "unchanged"
	RuleTerminal          = "terminal state"
	RuleUpcomingIsFactual = "upcoming requires rule recompute"
	RuleBlockedOverlay    = "blocked requires rule recompute"
	RuleStale             = "deadline expired"
	RuleNotStale          = "not stale"
)

// Decision is the guard's ruling on a proposed classification.
type Decision struct {
	// Classification is the value the case should hold afterwards.
	Classification Classification `json:"classification"`
	// Changed is true when Classification differs from the current value.
	Changed bool `json:"changed"`
	// Rejected is true when the proposal was refused.
	Rejected bool   `json:"rejected"`
	Rule     string `json:"rule"`
}

// Guard mediates between a proposed classification and the persisted one.
// It holds no state.
type Guard struct{}

// Apply rules on moving from current to recommended.
//
//   - Values outside the enumeration are rejected with an error and the
//     decision keeps current.
//   - closed_sold and closed_dismissed never change.
//   - An AI refinement may not move a case out of upcoming or blocked; only a
//     rule-based recompute can.
//   - Otherwise recommended wins. Equal values report Changed=false.
func (Guard) Apply(current, recommended Classification, src Source) (Decision, error) {
	keep := Decision{Classification: current, Rejected: true}
	if !current.Valid() {
		keep.Rule = "invalid current"
		return keep, ErrInvalidClassification.WithDetail("current=" + current.String())
	}
	if !recommended.Valid() {
		keep.Rule = "invalid recommendation"
		return keep, ErrInvalidClassification.WithDetail("recommended=" + recommended.String())
	}

	if current.IsTerminal() {
		keep.Rule = RuleTerminal
		return keep, nil
	}
	if src == SourceAI && recommended != current {
		switch current {
		case Upcoming:
			keep.Rule = RuleUpcomingIsFactual
			return keep, nil
		case Blocked:
			keep.Rule = RuleBlockedOverlay
			return keep, nil
		}
	}

	if recommended == current {
		return Decision{Classification: current, Rule: RuleUnchanged}, nil
	}
	return Decision{Classification: recommended, Changed: true, Rule: RuleApplied}, nil
}

// IsStale reports whether an upset_bid case has passed its deadline.
// A case with no deadline is never stale.
func IsStale(c Classification, deadline *time.Time, today time.Time) bool {
	if c != UpsetBid || deadline == nil {
		return false
	}
	return calendar.Truncate(*deadline).Before(calendar.Truncate(today))
}

// Sweep is the staleness rule: an upset_bid case whose deadline is before
// today closes as sold. It is the only path out of upset_bid that does not
// come from a new event.
func (Guard) Sweep(c Case, today time.Time) Decision {
	if !IsStale(c.Classification, c.Ledger.NextBidDeadline, today) {
		return Decision{Classification: c.Classification, Rule: RuleNotStale}
	}
	return Decision{Classification: ClosedSold, Changed: true, Rule: RuleStale}
}

// SweepAll applies Sweep to every case and returns the transitions for the
// ones that closed. Cases are modified in place.
func (g Guard) SweepAll(cases []*Case, today, now time.Time) []Transition {
	var out []Transition
	for _, c := range cases {
		if c == nil {
			continue
		}
		if t, ok := c.Apply(g.Sweep(*c, today), ReasonDeadlineExpired, SourceSweep, now); ok {
			out = append(out, t)
		}
	}
	return out
}
