package foreclosure

import (
	"sort"
	"strings"
	"time"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	"github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	"github.com/turtacn/ForeclosureWatch/pkg/normalize"
)

// CaseEvent is an immutable court docket entry. Optional values are
// explicit: EventDate is nil when the portal gave no parsable date, and
// empty strings mean the party or description was absent.
type CaseEvent struct {
	ID           string     `json:"id,omitempty"`
	CaseID       string     `json:"case_id"`
	Seq          int64      `json:"seq,omitempty"`
	EventDate    *time.Time `json:"event_date,omitempty"`
	EventType    string     `json:"event_type"`
	Description  string     `json:"description,omitempty"`
	FiledBy      string     `json:"filed_by,omitempty"`
	FiledAgainst string     `json:"filed_against,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
}

// HasDate reports whether the event carries a usable date.
func (e CaseEvent) HasDate() bool {
	return e.EventDate != nil && !e.EventDate.IsZero()
}

// DedupKey identifies the same docket entry across ingestion passes.
func (e CaseEvent) DedupKey() string {
	date := ""
	if e.HasDate() {
		date = e.EventDate.Format("2006-01-02")
	}
	return strings.Join([]string{e.CaseID, date, normalize.Text(e.EventType), normalize.Text(e.Description)}, "|")
}

// RawEvent is an event exactly as the ingestion collaborator delivered it.
type RawEvent struct {
	Date         string `json:"date"`
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	FiledBy      string `json:"filed_by,omitempty"`
	FiledAgainst string `json:"filed_against,omitempty"`
	// Amount is the bid the case page shows beside this entry, if any.
	Amount string `json:"amount,omitempty"`
}

// Skip records an input value that was ignored because it was malformed.
type Skip struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// ParseEvents converts raw events into CaseEvents. An event with a blank
// type is dropped; an event with an unparsable date is kept with a nil
// EventDate so it still counts for classification but never for deadline
// arithmetic. Both cases are reported as skips.
func ParseEvents(caseID string, raws []RawEvent, recordedAt time.Time) ([]CaseEvent, []Skip) {
	events := make([]CaseEvent, 0, len(raws))
	var skips []Skip
	for i, raw := range raws {
		if normalize.IsBlank(raw.Type) {
			skips = append(skips, Skip{Index: i, Field: "event_type", Raw: raw.Type, Reason: "empty event type"})
			continue
		}
		ev := CaseEvent{
			CaseID:       caseID,
			EventType:    strings.TrimSpace(raw.Type),
			Description:  strings.TrimSpace(raw.Description),
			FiledBy:      strings.TrimSpace(raw.FiledBy),
			FiledAgainst: strings.TrimSpace(raw.FiledAgainst),
			RecordedAt:   recordedAt,
		}
		if !normalize.IsBlank(raw.Date) {
			if d, err := calendar.ParseDate(raw.Date); err == nil {
				ev.EventDate = &d
			} else {
				skips = append(skips, Skip{Index: i, Field: "event_date", Raw: raw.Date, Reason: "unparsable date"})
			}
		}
		events = append(events, ev)
	}
	return events, skips
}

// PageBids turns the amounts the case page shows beside docket entries into
// page-sourced bid observations. Amounts without a parsable event date, and
// malformed or non-positive amounts, are reported as skips.
func PageBids(caseID string, raws []RawEvent, observedAt time.Time) ([]BidObservation, []Skip) {
	var (
		out   []BidObservation
		skips []Skip
	)
	for i, raw := range raws {
		if normalize.IsBlank(raw.Amount) {
			continue
		}
		d, err := calendar.ParseDate(raw.Date)
		if normalize.IsBlank(raw.Date) || err != nil {
			skips = append(skips, Skip{Index: i, Field: "amount", Raw: raw.Amount, Reason: "bid amount without event date"})
			continue
		}
		amt, err := discrepancy.ParseAmount(raw.Amount)
		if err != nil || amt == nil {
			skips = append(skips, Skip{Index: i, Field: "amount", Raw: raw.Amount, Reason: "unparsable amount"})
			continue
		}
		if !amt.IsPositive() {
			skips = append(skips, Skip{Index: i, Field: "amount", Raw: raw.Amount, Reason: "non-positive amount"})
			continue
		}
		out = append(out, BidObservation{
			CaseID:     caseID,
			EventDate:  calendar.Truncate(d),
			Amount:     *amt,
			Source:     SourcePage,
			ObservedAt: observedAt,
		})
	}
	return out, skips
}

// PartiesFiledAgainst lists the distinct parties named as filed-against
// across the events, in first-seen order.
func PartiesFiledAgainst(events []CaseEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range events {
		key := normalize.Text(e.FiledAgainst)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(e.FiledAgainst))
	}
	return out
}

// EventTypes extracts the type labels in order.
func EventTypes(events []CaseEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

// LatestQualifyingEvent finds the event that anchors the upset-bid
// deadline: the latest dated upset-bid filing, or when there is none, the
// latest dated sale report. Undated events never qualify.
func LatestQualifyingEvent(events []CaseEvent, rules RuleSet) (CaseEvent, bool) {
	rules = rules.orDefault()
	if ev, ok := latestMatching(events, rules.upsetBid); ok {
		return ev, true
	}
	return latestMatching(events, rules.sale)
}

func latestMatching(events []CaseEvent, indicators []string) (CaseEvent, bool) {
	var (
		best  CaseEvent
		found bool
	)
	for _, e := range events {
		if !e.HasDate() || matchAny(e.EventType, indicators) == "" {
			continue
		}
		// Ties on date keep the later arrival.
		if !found || !e.EventDate.Before(*best.EventDate) {
			best, found = e, true
		}
	}
	return best, found
}

// SortChronological orders events by date, undated last, stable on arrival.
func SortChronological(events []CaseEvent) []CaseEvent {
	out := append([]CaseEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.HasDate() && b.HasDate():
			return a.EventDate.Before(*b.EventDate)
		case a.HasDate():
			return true
		default:
			return false
		}
	})
	return out
}
