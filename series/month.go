package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const monthLayout = "2006-01"

// Month is a calendar month counted from year 0, so that month arithmetic
// is plain integer addition.
type Month int

func NewMonth(year int, m time.Month) Month {
	return Month(year*12 + int(m) - 1)
}

func MonthOf(t time.Time) Month {
	return NewMonth(t.Year(), t.Month())
}

// ParseMonth accepts "YYYY-MM" and "YYYY-MM-DD". The day, if any, is
// validated and then discarded.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(monthLayout, s); err == nil {
		return MonthOf(t), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return MonthOf(t), nil
	}
	return 0, fmt.Errorf("invalid year-month %q", s)
}

// ParseYear accepts a bare "YYYY" reference period.
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	y, err := strconv.Atoi(s)
	if err != nil || y <= 0 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

func (m Month) Year() int { return int(m) / 12 }

func (m Month) Month() time.Month { return time.Month(int(m)%12 + 1) }

func (m Month) AddMonths(n int) Month { return m + Month(n) }

// Time returns the first instant of the month in UTC.
func (m Month) Time() time.Time {
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year(), int(m.Month()))
}
