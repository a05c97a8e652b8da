package calendar

import (
	"sort"
	"time"
)

// Court holiday names.
const (
	NewYearsDay          = "New Year's Day"
	MartinLutherKingDay  = "Martin Luther King Jr. Day"
	GoodFriday           = "Good Friday"
	MemorialDay          = "Memorial Day"
	IndependenceDay      = "Independence Day"
	LaborDay             = "Labor Day"
	VeteransDay          = "Veterans Day"
	Thanksgiving         = "Thanksgiving Day"
	DayAfterThanksgiving = "Day after Thanksgiving"
	ChristmasEve         = "Christmas Eve"
	ChristmasDay         = "Christmas Day"
	DayAfterChristmas    = "Day after Christmas"
)

// Holiday is one legal holiday for a given year. Date is the nominal date;
// Observed is the day the courts close (weekend holidays shift to the
// adjacent weekday).
type Holiday struct {
	Name     string    `json:"name"`
	Date     time.Time `json:"date"`
	Observed time.Time `json:"observed"`
}

// HolidaysForYear returns the legal holidays of year sorted by observed
// date. The result is freshly allocated on every call.
func HolidaysForYear(year int) []Holiday {
	nominal := []Holiday{
		{Name: NewYearsDay, Date: Date(year, time.January, 1)},
		{Name: MartinLutherKingDay, Date: nthWeekday(year, time.January, time.Monday, 3)},
		{Name: GoodFriday, Date: EasterSunday(year).AddDate(0, 0, -2)},
		{Name: MemorialDay, Date: lastWeekday(year, time.May, time.Monday)},
		{Name: IndependenceDay, Date: Date(year, time.July, 4)},
		{Name: LaborDay, Date: nthWeekday(year, time.September, time.Monday, 1)},
		{Name: VeteransDay, Date: Date(year, time.November, 11)},
		{Name: Thanksgiving, Date: nthWeekday(year, time.November, time.Thursday, 4)},
		{Name: DayAfterThanksgiving, Date: nthWeekday(year, time.November, time.Thursday, 4).AddDate(0, 0, 1)},
		{Name: ChristmasEve, Date: Date(year, time.December, 24)},
		{Name: ChristmasDay, Date: Date(year, time.December, 25)},
		{Name: DayAfterChristmas, Date: Date(year, time.December, 26)},
	}
	for i := range nominal {
		nominal[i].Observed = observe(nominal[i].Date)
	}
	sort.SliceStable(nominal, func(i, j int) bool {
		return nominal[i].Observed.Before(nominal[j].Observed)
	})
	return nominal
}

// EasterSunday computes Gregorian Easter with the anonymous Gregorian
// (Meeus/Jones/Butcher) algorithm.
func EasterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}

// observe shifts a Saturday holiday to Friday and a Sunday holiday to Monday.
func observe(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nthWeekday returns the n-th (1-based) occurrence of wd in month.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := Date(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekday returns the final occurrence of wd in month.
func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	last := Date(year, month+1, 0)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}
