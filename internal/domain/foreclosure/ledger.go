package foreclosure

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// ErrNonPositiveBid rejects bids of zero or less.
var ErrNonPositiveBid = errors.New(errors.ErrCodeInvariantViolation, "bid amount must be positive")

// Ledger update reasons.
const (
	LedgerRecorded     = "recorded"
	LedgerUnchanged    = "unchanged"
	LedgerStaleEvent   = "stale event"
	LedgerDeadlineSync = "deadline synced"
	LedgerRejected     = "rejected"
	LedgerNoQualifying = "no qualifying event"
)

// ─────────────────────────────────────────────────────────────────────────────
// Ledger state
// ─────────────────────────────────────────────────────────────────────────────

// Ledger is the bid state of one case. Nil pointers mean "not yet known".
// Values are replaced, never mutated through the pointers.
type Ledger struct {
	CurrentBidAmount *decimal.Decimal `json:"current_bid_amount,omitempty"`
	MinimumNextBid   *decimal.Decimal `json:"minimum_next_bid,omitempty"`
	NextBidDeadline  *time.Time       `json:"next_bid_deadline,omitempty"`
	SaleDate         *time.Time       `json:"sale_date,omitempty"`
	// LastBidDate is the event date of the bid held in CurrentBidAmount.
	LastBidDate *time.Time `json:"last_bid_date,omitempty"`
	// Verified is true when page and document sources agreed on the bid.
	Verified bool `json:"verified"`
}

// Validate checks internal consistency: amounts are positive and a minimum
// next bid never exists without a current bid.
func (l Ledger) Validate() error {
	if l.CurrentBidAmount != nil && !l.CurrentBidAmount.IsPositive() {
		return ErrNonPositiveBid.WithDetail("current=" + l.CurrentBidAmount.String())
	}
	if l.MinimumNextBid != nil && l.CurrentBidAmount == nil {
		return errors.InvariantViolation("minimum next bid without current bid")
	}
	return nil
}

// Equal compares two ledgers by value.
func (l Ledger) Equal(o Ledger) bool {
	return decPtrEqual(l.CurrentBidAmount, o.CurrentBidAmount) &&
		decPtrEqual(l.MinimumNextBid, o.MinimumNextBid) &&
		timePtrEqual(l.NextBidDeadline, o.NextBidDeadline) &&
		timePtrEqual(l.SaleDate, o.SaleDate) &&
		timePtrEqual(l.LastBidDate, o.LastBidDate) &&
		l.Verified == o.Verified
}

func decPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// LedgerUpdate describes the outcome of one ledger operation.
type LedgerUpdate struct {
	Before  Ledger `json:"before"`
	After   Ledger `json:"after"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason"`
}

func unchanged(l Ledger, reason string) LedgerUpdate {
	return LedgerUpdate{Before: l, After: l, Reason: reason}
}

func settle(before, after Ledger, reason string) LedgerUpdate {
	if before.Equal(after) {
		return LedgerUpdate{Before: before, After: before, Reason: LedgerUnchanged}
	}
	return LedgerUpdate{Before: before, After: after, Applied: true, Reason: reason}
}

// ─────────────────────────────────────────────────────────────────────────────
// BidLedger
// ─────────────────────────────────────────────────────────────────────────────

// BidLedger applies bid events to a Ledger value. It is immutable and safe
// for concurrent use; callers serialize writes per case.
type BidLedger struct {
	cal        calendar.Calendar
	multiplier decimal.Decimal
}

// NewBidLedger binds the ledger rules to a calendar and rule snapshot.
func NewBidLedger(cal calendar.Calendar, rules RuleSet) *BidLedger {
	return &BidLedger{cal: cal, multiplier: rules.orDefault().BidIncreaseMultiplier()}
}

// MinimumNextBid is round(amount x multiplier, 2) using banker's rounding.
func (b *BidLedger) MinimumNextBid(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(b.multiplier).RoundBank(2)
}

// Deadline is the upset-bid deadline for a qualifying event date.
func (b *BidLedger) Deadline(eventDate time.Time) time.Time {
	return b.cal.UpsetBidDeadline(eventDate)
}

// RecordBid applies a single bid-bearing event. Non-positive amounts are
// rejected with ErrNonPositiveBid and the ledger is returned untouched. An
// event older than the bid already held is ignored. Recording the same
// (amount, eventDate) twice yields Applied=false the second time.
func (b *BidLedger) RecordBid(l Ledger, amount decimal.Decimal, eventDate time.Time) (LedgerUpdate, error) {
	if !amount.IsPositive() {
		return unchanged(l, LedgerRejected), ErrNonPositiveBid.WithDetail("amount=" + amount.String())
	}
	if eventDate.IsZero() {
		return unchanged(l, LedgerRejected), errors.MalformedInput("bid event has no date")
	}
	d := calendar.Truncate(eventDate)
	if l.LastBidDate != nil && d.Before(*l.LastBidDate) {
		return unchanged(l, LedgerStaleEvent), nil
	}

	next := b.withAmount(l, amount, d, false)
	next = b.withDeadline(next, d)
	return settle(l, next, LedgerRecorded), nil
}

// SyncDeadline recomputes the deadline from the qualifying event date
// without touching the bid amounts. Used when the event table shows a sale
// or upset bid whose amount is not known yet.
func (b *BidLedger) SyncDeadline(l Ledger, qualifyingDate time.Time) LedgerUpdate {
	if qualifyingDate.IsZero() {
		return unchanged(l, LedgerNoQualifying)
	}
	next := b.withDeadline(l, calendar.Truncate(qualifyingDate))
	return settle(l, next, LedgerDeadlineSync)
}

// Refresh brings the ledger in line with the case's event table and the
// best available bid observation. The deadline always comes from the
// qualifying event; the amount comes from resolved unless it is older than
// the bid already held.
func (b *BidLedger) Refresh(l Ledger, qualifying CaseEvent, resolved *ResolvedBid) (LedgerUpdate, error) {
	if !qualifying.HasDate() {
		return unchanged(l, LedgerNoQualifying), nil
	}
	qDate := calendar.Truncate(*qualifying.EventDate)
	next := l
	reason := LedgerDeadlineSync

	if resolved != nil {
		if !resolved.Amount.IsPositive() {
			return unchanged(l, LedgerRejected), ErrNonPositiveBid.WithDetail("amount=" + resolved.Amount.String())
		}
		bidDate := calendar.Truncate(resolved.EventDate)
		if l.LastBidDate == nil || !bidDate.Before(*l.LastBidDate) {
			next = b.withAmount(next, resolved.Amount, bidDate, resolved.Verified)
			reason = LedgerRecorded
		} else {
			reason = LedgerStaleEvent
		}
	}
	next = b.withDeadline(next, qDate)
	return settle(l, next, reason), nil
}

func (b *BidLedger) withAmount(l Ledger, amount decimal.Decimal, bidDate time.Time, verified bool) Ledger {
	firstBid := l.CurrentBidAmount == nil
	amt := amount
	minNext := b.MinimumNextBid(amount)
	date := bidDate
	l.CurrentBidAmount = &amt
	l.MinimumNextBid = &minNext
	l.LastBidDate = &date
	l.Verified = verified
	if firstBid && l.SaleDate == nil {
		sale := bidDate
		l.SaleDate = &sale
	}
	return l
}

func (b *BidLedger) withDeadline(l Ledger, qualifyingDate time.Time) Ledger {
	deadline := b.Deadline(qualifyingDate)
	l.NextBidDeadline = &deadline
	return l
}

// ─────────────────────────────────────────────────────────────────────────────
// Bid observations
// ─────────────────────────────────────────────────────────────────────────────

// BidSource is where an observed bid amount came from.
type BidSource string

const (
	// SourceDocument is a value extracted from a filed court document.
	SourceDocument BidSource = "document"
	// SourcePage is a value scraped from the portal's case page.
	SourcePage BidSource = "page"
)

// rank orders sources by authority; documents are the legal record.
func (s BidSource) rank() int {
	switch s {
	case SourceDocument:
		return 2
	case SourcePage:
		return 1
	default:
		return 0
	}
}

// BidObservation is one sighting of a bid amount for a dated event.
type BidObservation struct {
	ID         string          `json:"id,omitempty"`
	CaseID     string          `json:"case_id"`
	EventDate  time.Time       `json:"event_date"`
	Amount     decimal.Decimal `json:"amount"`
	Source     BidSource       `json:"source"`
	ObservedAt time.Time       `json:"observed_at"`
}

// ResolvedBid is the ledger's chosen amount for the most recent bid event.
type ResolvedBid struct {
	EventDate time.Time       `json:"event_date"`
	Amount    decimal.Decimal `json:"amount"`
	Source    BidSource       `json:"source"`
	// Verified is true only when at least two distinct sources reported the
	// same amount for EventDate and none disagreed.
	Verified bool `json:"verified"`
	// Observations holds every sighting for EventDate.
	Observations []BidObservation `json:"observations"`
}

// ResolveBid picks the bid to record from a set of observations. The latest
// event date always wins, even over a larger amount on an older date. On
// that date a document value beats a page value, and among equals the most
// recently observed wins. Non-positive or undated observations are ignored.
func ResolveBid(observations []BidObservation) (ResolvedBid, bool) {
	var latest time.Time
	var usable []BidObservation
	for _, o := range observations {
		if o.EventDate.IsZero() || !o.Amount.IsPositive() {
			continue
		}
		d := calendar.Truncate(o.EventDate)
		o.EventDate = d
		usable = append(usable, o)
		if d.After(latest) {
			latest = d
		}
	}
	if len(usable) == 0 {
		return ResolvedBid{}, false
	}

	var sameDay []BidObservation
	for _, o := range usable {
		if o.EventDate.Equal(latest) {
			sameDay = append(sameDay, o)
		}
	}
	sort.SliceStable(sameDay, func(i, j int) bool {
		a, b := sameDay[i], sameDay[j]
		if a.Source.rank() != b.Source.rank() {
			return a.Source.rank() > b.Source.rank()
		}
		return a.ObservedAt.After(b.ObservedAt)
	})

	chosen := sameDay[0]
	sources := make(map[BidSource]struct{})
	agree := true
	for _, o := range sameDay {
		sources[o.Source] = struct{}{}
		if !o.Amount.Equal(chosen.Amount) {
			agree = false
		}
	}
	return ResolvedBid{
		EventDate:    latest,
		Amount:       chosen.Amount,
		Source:       chosen.Source,
		Verified:     agree && len(sources) >= 2,
		Observations: sameDay,
	}, true
}

// Disagreement reports whether the sources for the resolved date reported
// different amounts.
func (r ResolvedBid) Disagreement() bool {
	for _, o := range r.Observations {
		if !o.Amount.Equal(r.Amount) {
			return true
		}
	}
	return false
}
