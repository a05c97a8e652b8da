// Package calendar implements the court business-day calendar: legal
// holidays with weekend observance, business-day roll-forward, and the
// statutory upset-bid deadline.
//
// All dates are civil dates represented as time.Time at midnight UTC.
// Use Date, Truncate and ParseDate to construct them.
package calendar

import (
	"strings"
	"time"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// DefaultUpsetBidWindowDays is the statutory upset-bid window in calendar days.
const DefaultUpsetBidWindowDays = 10

// ─────────────────────────────────────────────────────────────────────────────
// Civil dates
// ─────────────────────────────────────────────────────────────────────────────

// Date returns the civil date y-m-d at midnight UTC. Out-of-range values
// are normalized the way time.Date normalizes them.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock portion of t, keeping the calendar date as seen
// in t's own location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Today returns the current civil date in loc (UTC when loc is nil).
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Truncate(now.In(loc))
}

// dateLayouts are the formats accepted from court portals and operators.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
}

// ParseDate parses s as a civil date. Unparsable input yields an
// ErrCodeMalformedInput error so callers can skip the event or field.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.MalformedInput("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Truncate(t), nil
		}
	}
	return time.Time{}, errors.MalformedInput("unparsable date").WithDetail("raw=" + s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Calendar
// ─────────────────────────────────────────────────────────────────────────────

// Calendar answers business-day questions. It is an immutable value and is
// safe to share between goroutines.
type Calendar struct {
	windowDays int
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithUpsetBidWindow overrides the upset-bid window length. Non-positive
// values are ignored.
func WithUpsetBidWindow(days int) Option {
	return func(c *Calendar) {
		if days > 0 {
			c.windowDays = days
		}
	}
}

// New returns a Calendar with the statutory ten-day upset-bid window.
func New(opts ...Option) Calendar {
	c := Calendar{windowDays: DefaultUpsetBidWindowDays}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// UpsetBidWindowDays reports the configured window.
func (c Calendar) UpsetBidWindowDays() int {
	if c.windowDays <= 0 {
		return DefaultUpsetBidWindowDays
	}
	return c.windowDays
}

// Holidays returns the legal holidays of year sorted by observed date.
func (c Calendar) Holidays(year int) []Holiday {
	return HolidaysForYear(year)
}

// HolidayOn reports the holiday observed on d, if any. The following year
// is consulted too because New Year's Day on a Saturday is observed on
// December 31.
func (c Calendar) HolidayOn(d time.Time) (Holiday, bool) {
	d = Truncate(d)
	for _, year := range []int{d.Year(), d.Year() + 1} {
		for _, h := range HolidaysForYear(year) {
			if h.Observed.Equal(d) {
				return h, true
			}
		}
	}
	return Holiday{}, false
}

// IsBusinessDay is false on Saturdays, Sundays and observed holidays.
func (c Calendar) IsBusinessDay(d time.Time) bool {
	d = Truncate(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.HolidayOn(d)
	return !holiday
}

// NextBusinessDay returns d if it is a business day, otherwise the first
// business day after it.
func (c Calendar) NextBusinessDay(d time.Time) time.Time {
	d = Truncate(d)
	for !c.IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// UpsetBidDeadline is the last day to file an upset bid for a sale or bid
// event on eventDate: the window end rolled forward to a business day.
func (c Calendar) UpsetBidDeadline(eventDate time.Time) time.Time {
	return c.NextBusinessDay(Truncate(eventDate).AddDate(0, 0, c.UpsetBidWindowDays()))
}

// BusinessDaysUntil counts business days in (from, to]. It returns 0 when
// to is not after from.
func (c Calendar) BusinessDaysUntil(from, to time.Time) int {
	from, to = Truncate(from), Truncate(to)
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}
