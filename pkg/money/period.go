package money

import (
	"fmt"
	"time"
)

// Period is a billing month.
type Period struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

func (p Period) IsValid() bool {
	return p.Month >= time.January && p.Month <= time.December && p.Year >= 1970 && p.Year <= 9999
}

// FirstDay is midnight UTC of the first day of the month.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) Next() Period {
	return p.Add(1)
}

// Add moves the period by n months.
func (p Period) Add(n int) Period {
	return PeriodOf(p.FirstDay().AddDate(0, n, 0))
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Label is the human readable form used on vouchers, e.g. "March 2026".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.Month.String(), p.Year)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
