// Package calendar turns business-local wall-clock data into UTC-comparable instants.
package calendar

import (
	"strconv"
	"strings"
	"time"

	"github.com/chatbook/platform/services/booking-service/internal/apperr"
	"github.com/chatbook/platform/services/booking-service/internal/availability"
	"github.com/chatbook/platform/services/booking-service/internal/model"
)

// Clock is a wall-clock time of day in seconds since local midnight.
// EndOfDay (24:00) is valid only as the end of a window.
type Clock int

const EndOfDay Clock = 24 * 60 * 60

// ParseClock accepts HH:MM and HH:MM:SS.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, apperr.Configurationf("invalid clock time %q", s)
	}
	var fields [3]int
	for i, p := range parts {
		if len(p) != 2 || !isDigit(p[0]) || !isDigit(p[1]) {
			return 0, apperr.Configurationf("invalid clock time %q", s)
		}
		fields[i] = int(p[0]-'0')*10 + int(p[1]-'0')
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if m > 59 || sec > 59 || h > 24 || (h == 24 && (m != 0 || sec != 0)) {
		return 0, apperr.Configurationf("invalid clock time %q", s)
	}
	return Clock(h*3600 + m*60 + sec), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (c Clock) String() string {
	h, m, s := int(c)/3600, int(c)%3600/60, int(c)%60
	if s == 0 {
		return twoDigits(h) + ":" + twoDigits(m)
	}
	return twoDigits(h) + ":" + twoDigits(m) + ":" + twoDigits(s)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Date is a calendar date with no location attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate accepts YYYY-MM-DD only.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, apperr.Validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// At anchors clock c to the date in loc. Nonexistent local times (DST gaps)
// are normalised by time.Date.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	secs := int(c)
	return time.Date(d.Year, d.Month, d.Day, secs/3600, secs%3600/60, secs%60, 0, loc)
}

// DayBounds is [local midnight, next local midnight) for the date.
func DayBounds(d Date, loc *time.Location) availability.Interval {
	return availability.Interval{
		Start: time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc),
		End:   time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc),
	}
}

// DayWindows returns the opening windows of the date in row order. A weekday
// with no active rows is closed and yields an empty list.
func DayWindows(d Date, loc *time.Location, rows []model.BusinessHours) ([]availability.Interval, error) {
	weekday := int(d.Weekday())
	windows := []availability.Interval{}
	for _, row := range rows {
		if !row.IsActive || row.DayOfWeek != weekday {
			continue
		}
		start, err := ParseClock(row.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := ParseClock(row.EndTime)
		if err != nil {
			return nil, err
		}
		if start == EndOfDay || end <= start {
			return nil, apperr.Configurationf("business hours %s-%s on weekday %d end before they start", row.StartTime, row.EndTime, row.DayOfWeek)
		}
		windows = append(windows, availability.Interval{Start: d.At(start, loc), End: d.At(end, loc)})
	}
	return windows, nil
}

// LoadLocation resolves an IANA zone; an unknown zone is a business
// configuration problem.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Configuration("business timezone is not set")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.Configurationf("unknown timezone %q", name)
	}
	return loc, nil
}
