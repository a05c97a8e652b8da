package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

func TestEasterSunday_KnownYears(t *testing.T) {
	tests := []struct {
		year int
		want time.Time
	}{
		{1818, Date(1818, time.March, 22)},
		{2000, Date(2000, time.April, 23)},
		{2019, Date(2019, time.April, 21)},
		{2024, Date(2024, time.March, 31)},
		{2025, Date(2025, time.April, 20)},
		{2038, Date(2038, time.April, 25)},
	}
	for _, tt := range tests {
		got := EasterSunday(tt.year)
		assert.True(t, tt.want.Equal(got), "year %d: got %s", tt.year, got.Format("2006-01-02"))
		assert.Equal(t, time.Sunday, got.Weekday())
	}
}

func TestHolidaysForYear_2025(t *testing.T) {
	want := map[string]time.Time{
		NewYearsDay:          Date(2025, time.January, 1),
		MartinLutherKingDay:  Date(2025, time.January, 20),
		GoodFriday:           Date(2025, time.April, 18),
		MemorialDay:          Date(2025, time.May, 26),
		IndependenceDay:      Date(2025, time.July, 4),
		LaborDay:             Date(2025, time.September, 1),
		VeteransDay:          Date(2025, time.November, 11),
		Thanksgiving:         Date(2025, time.November, 27),
		DayAfterThanksgiving: Date(2025, time.November, 28),
		ChristmasEve:         Date(2025, time.December, 24),
		ChristmasDay:         Date(2025, time.December, 25),
		DayAfterChristmas:    Date(2025, time.December, 26),
	}

	holidays := HolidaysForYear(2025)
	require.Len(t, holidays, len(want))
	for _, h := range holidays {
		expected, ok := want[h.Name]
		require.True(t, ok, h.Name)
		assert.True(t, expected.Equal(h.Observed), "%s observed %s", h.Name, h.Observed.Format("2006-01-02"))
	}
	for i := 1; i < len(holidays); i++ {
		assert.False(t, holidays[i].Observed.Before(holidays[i-1].Observed), "holidays must be sorted")
	}
}

func TestHolidaysForYear_WeekendObservance(t *testing.T) {
	byName := func(year int, name string) Holiday {
		for _, h := range HolidaysForYear(year) {
			if h.Name == name {
				return h
			}
		}
		t.Fatalf("holiday %s missing for %d", name, year)
		return Holiday{}
	}

	// Saturday holidays move to Friday.
	july4 := byName(2026, IndependenceDay)
	assert.Equal(t, time.Saturday, july4.Date.Weekday())
	assert.True(t, Date(2026, time.July, 3).Equal(july4.Observed))

	veterans := byName(2023, VeteransDay)
	assert.True(t, Date(2023, time.November, 10).Equal(veterans.Observed))

	// Sunday holidays move to Monday.
	christmas := byName(2022, ChristmasDay)
	assert.Equal(t, time.Sunday, christmas.Date.Weekday())
	assert.True(t, Date(2022, time.December, 26).Equal(christmas.Observed))
}

func TestHolidays_Deterministic(t *testing.T) {
	for year := 1990; year <= 2060; year++ {
		assert.Equal(t, HolidaysForYear(year), HolidaysForYear(year), "year %d", year)
	}
}

func TestHolidays_WeekdayProperties(t *testing.T) {
	for year := 1900; year <= 2100; year++ {
		for _, h := range HolidaysForYear(year) {
			switch h.Name {
			case GoodFriday:
				assert.Equal(t, time.Friday, h.Date.Weekday(), "good friday %d", year)
			case Thanksgiving:
				assert.Equal(t, time.Thursday, h.Date.Weekday(), "thanksgiving %d", year)
				assert.True(t, h.Date.Day() >= 22 && h.Date.Day() <= 28)
			case MartinLutherKingDay, MemorialDay, LaborDay:
				assert.Equal(t, time.Monday, h.Date.Weekday(), "%s %d", h.Name, year)
			}
			assert.NotEqual(t, time.Saturday, h.Observed.Weekday())
			assert.NotEqual(t, time.Sunday, h.Observed.Weekday())
		}
	}
}

func TestIsBusinessDay(t *testing.T) {
	cal := New()
	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"ordinary monday", Date(2025, time.June, 2), true},
		{"saturday", Date(2025, time.June, 7), false},
		{"sunday", Date(2025, time.June, 8), false},
		{"independence day", Date(2025, time.July, 4), false},
		{"good friday", Date(2025, time.April, 18), false},
		{"observed friday for saturday july 4", Date(2026, time.July, 3), false},
		{"observed new year on prior dec 31", Date(2021, time.December, 31), false},
		{"observed monday for sunday christmas", Date(2022, time.December, 26), false},
		{"day after observed christmas", Date(2022, time.December, 27), true},
		{"clock time ignored", time.Date(2025, time.June, 2, 23, 59, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsBusinessDay(tt.date))
		})
	}
}

func TestHolidayOn(t *testing.T) {
	cal := New()
	h, ok := cal.HolidayOn(Date(2021, time.December, 31))
	require.True(t, ok)
	assert.Equal(t, NewYearsDay, h.Name)

	_, ok = cal.HolidayOn(Date(2025, time.June, 2))
	assert.False(t, ok)
}

func TestNextBusinessDay(t *testing.T) {
	cal := New()
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"already business day", Date(2025, time.June, 12), Date(2025, time.June, 12)},
		{"saturday rolls to monday", Date(2025, time.June, 7), Date(2025, time.June, 9)},
		{"holiday friday rolls past weekend", Date(2025, time.July, 4), Date(2025, time.July, 7)},
		{"thanksgiving block", Date(2025, time.November, 27), Date(2025, time.December, 1)},
		{"christmas block", Date(2025, time.December, 24), Date(2025, time.December, 29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.NextBusinessDay(tt.in)
			assert.True(t, tt.want.Equal(got), "got %s", got.Format("2006-01-02"))
		})
	}
}

func TestUpsetBidDeadline(t *testing.T) {
	cal := New()

	// Monday sale, tenth day is an ordinary Thursday.
	got := cal.UpsetBidDeadline(Date(2025, time.June, 2))
	assert.True(t, Date(2025, time.June, 12).Equal(got))

	// Tenth day lands on July 4th.
	got = cal.UpsetBidDeadline(Date(2025, time.June, 24))
	assert.True(t, Date(2025, time.July, 7).Equal(got))

	// Tenth day lands on Thanksgiving.
	got = cal.UpsetBidDeadline(Date(2025, time.November, 17))
	assert.True(t, Date(2025, time.December, 1).Equal(got))

	short := New(WithUpsetBidWindow(5))
	assert.Equal(t, 5, short.UpsetBidWindowDays())
	assert.True(t, Date(2025, time.June, 9).Equal(short.UpsetBidDeadline(Date(2025, time.June, 2))))

	assert.Equal(t, DefaultUpsetBidWindowDays, New(WithUpsetBidWindow(-3)).UpsetBidWindowDays())
}

func TestUpsetBidDeadline_Monotonic(t *testing.T) {
	cal := New()
	start := Date(2020, time.January, 1)
	for d := start; d.Year() < 2031; d = d.AddDate(0, 0, 1) {
		deadline := cal.UpsetBidDeadline(d)
		assert.False(t, deadline.Before(d.AddDate(0, 0, 10)), "deadline before window end for %s", d.Format("2006-01-02"))
		assert.True(t, cal.IsBusinessDay(deadline), "deadline %s not a business day", deadline.Format("2006-01-02"))
	}
}

func TestBusinessDaysUntil(t *testing.T) {
	cal := New()
	assert.Equal(t, 5, cal.BusinessDaysUntil(Date(2025, time.June, 2), Date(2025, time.June, 9)))
	assert.Equal(t, 0, cal.BusinessDaysUntil(Date(2025, time.June, 9), Date(2025, time.June, 2)))
	assert.Equal(t, 2, cal.BusinessDaysUntil(Date(2025, time.July, 2), Date(2025, time.July, 7)))
}

func TestParseDate(t *testing.T) {
	want := Date(2025, time.June, 2)
	for _, in := range []string{"2025-06-02", "06/02/2025", "6/2/2025", "06-02-2025", "Jun 2, 2025", "June 2, 2025", " 2025-06-02 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := ParseDate("13/45/2025")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput))

	_, err = ParseDate("")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedInput))
}

func TestToday(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on June 3 is still June 2 in New York.
	now := time.Date(2025, time.June, 3, 2, 0, 0, 0, time.UTC)
	assert.True(t, Date(2025, time.June, 2).Equal(Today(now, ny)))
	assert.True(t, Date(2025, time.June, 3).Equal(Today(now, nil)))
}
