package foreclosure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

func TestGuard_UpcomingIsNotDowngradedByAI(t *testing.T) {
	var g Guard
	for _, rec := range Classifications() {
		d, err := g.Apply(Upcoming, rec, SourceAI)
		require.NoError(t, err)
		assert.Equal(t, Upcoming, d.Classification, "recommended %s", rec)
		assert.False(t, d.Changed)
	}
}

func TestGuard_RuleRecomputeLeavesUpcoming(t *testing.T) {
	d, err := Guard{}.Apply(Upcoming, UpsetBid, SourceRule)
	require.NoError(t, err)
	assert.Equal(t, UpsetBid, d.Classification)
	assert.True(t, d.Changed)
	assert.Equal(t, RuleApplied, d.Rule)
}

func TestGuard_TerminalStatesAreImmutable(t *testing.T) {
	var g Guard
	for _, current := range []Classification{ClosedSold, ClosedDismissed} {
		for _, rec := range Classifications() {
			for _, src := range []Source{SourceRule, SourceAI, SourceSweep} {
				d, err := g.Apply(current, rec, src)
				require.NoError(t, err)
				assert.Equal(t, current, d.Classification)
				assert.False(t, d.Changed)
			}
		}
	}
}

func TestGuard_BlockedOverlay(t *testing.T) {
	var g Guard

	d, err := g.Apply(Blocked, Pending, SourceAI)
	require.NoError(t, err)
	assert.Equal(t, Blocked, d.Classification)
	assert.Equal(t, RuleBlockedOverlay, d.Rule)

	d, err = g.Apply(Blocked, Pending, SourceRule)
	require.NoError(t, err)
	assert.Equal(t, Pending, d.Classification)
	assert.True(t, d.Changed)
}

func TestGuard_OtherwiseRecommendationWins(t *testing.T) {
	var g Guard

	d, err := g.Apply(Pending, Upcoming, SourceAI)
	require.NoError(t, err)
	assert.Equal(t, Upcoming, d.Classification)
	assert.True(t, d.Changed)

	d, err = g.Apply(UpsetBid, UpsetBid, SourceRule)
	require.NoError(t, err)
	assert.Equal(t, UpsetBid, d.Classification)
	assert.False(t, d.Changed)
	assert.Equal(t, RuleUnchanged, d.Rule)
}

func TestGuard_InvalidValuesAreRejected(t *testing.T) {
	var g Guard

	d, err := g.Apply(Classification(99), Pending, SourceRule)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvariantViolation))
	assert.Equal(t, Classification(99), d.Classification)
	assert.True(t, d.Rejected)

	d, err = g.Apply(Pending, Classification(0), SourceRule)
	require.Error(t, err)
	assert.Equal(t, Pending, d.Classification)
}

func TestGuard_Sweep(t *testing.T) {
	var g Guard
	today := calendar.Date(2025, time.June, 20)
	yesterday := today.AddDate(0, 0, -1)

	stale := Case{ID: "c1", Classification: UpsetBid, Ledger: Ledger{NextBidDeadline: &yesterday}}
	d := g.Sweep(stale, today)
	assert.Equal(t, ClosedSold, d.Classification)
	assert.True(t, d.Changed)

	dueToday := Case{ID: "c2", Classification: UpsetBid, Ledger: Ledger{NextBidDeadline: &today}}
	assert.False(t, g.Sweep(dueToday, today).Changed)

	noDeadline := Case{ID: "c3", Classification: UpsetBid}
	assert.False(t, g.Sweep(noDeadline, today).Changed)

	other := Case{ID: "c4", Classification: NeedsReview, Ledger: Ledger{NextBidDeadline: &yesterday}}
	assert.False(t, g.Sweep(other, today).Changed)
}

func TestGuard_SweepAll(t *testing.T) {
	today := calendar.Date(2025, time.June, 20)
	now := time.Date(2025, time.June, 20, 6, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	cases := []*Case{
		{ID: "stale", Classification: UpsetBid, Ledger: Ledger{NextBidDeadline: &yesterday}},
		{ID: "open", Classification: UpsetBid, Ledger: Ledger{NextBidDeadline: &tomorrow}},
		nil,
	}
	transitions := Guard{}.SweepAll(cases, today, now)

	require.Len(t, transitions, 1)
	tr := transitions[0]
	assert.Equal(t, "stale", tr.CaseID)
	assert.Equal(t, UpsetBid, tr.From)
	assert.Equal(t, ClosedSold, tr.To)
	assert.Equal(t, SourceSweep, tr.Source)
	assert.Equal(t, ReasonDeadlineExpired, tr.Reason)
	assert.Equal(t, ClosedSold, cases[0].Classification)
	assert.Equal(t, UpsetBid, cases[1].Classification)
}

func TestCase_Apply(t *testing.T) {
	now := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	c, err := NewCase("24CVS001234", "Wake", now)
	require.NoError(t, err)
	assert.Equal(t, NeedsReview, c.Classification)

	tr, ok := c.Apply(Decision{Classification: UpsetBid, Changed: true}, ReasonAuctionOccurred, SourceRule, now)
	require.True(t, ok)
	assert.Equal(t, NeedsReview, tr.From)
	assert.Equal(t, UpsetBid, tr.To)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, UpsetBid, c.Classification)

	_, ok = c.Apply(Decision{Classification: UpsetBid}, ReasonAuctionOccurred, SourceRule, now)
	assert.False(t, ok)

	_, ok = c.Apply(Decision{Classification: Upcoming, Rejected: true}, "x", SourceAI, now)
	assert.False(t, ok)
	assert.Equal(t, UpsetBid, c.Classification)

	_, err = NewCase("  ", "Wake", now)
	assert.Error(t, err)
}

func TestCase_Validate(t *testing.T) {
	c := &Case{ID: "c1", Classification: Pending}
	assert.NoError(t, c.Validate())

	c.Classification = 0
	assert.Error(t, c.Validate())

	c = &Case{Classification: Pending}
	assert.Error(t, c.Validate())
}
