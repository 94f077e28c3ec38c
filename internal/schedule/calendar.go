package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout   = "2006-01-02"
	DaysInWeek   = 7
	minutesInDay = 24 * 60
)

var dayNames = [DaysInWeek]string{"Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado", "Domingo"}

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Monday at midnight of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	return AddDays(Midnight(t), -DayIndex(t))
}

// AddDays shifts t by whole calendar days, so DST transitions keep the wall clock.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DayIndex maps t to 0..6 with Monday as 0.
func DayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % DaysInWeek
}

// DayName returns the Spanish weekday name for a Monday-based index.
func DayName(i int) string {
	if i < 0 || i >= DaysInWeek {
		return ""
	}
	return dayNames[i]
}

// DateKey is the canonical calendar-date part of an occupancy key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// MinutesToClock formats minutes since midnight as zero-padded HH:MM.
func MinutesToClock(m int) (string, error) {
	if m < 0 || m >= minutesInDay {
		return "", fmt.Errorf("%w: %d minutes", ErrInvalidSlot, m)
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60), nil
}

// ParseClock reads an HH:MM time and returns it as a Slot. Grid membership is not
// checked here.
func ParseClock(s string) (Slot, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: malformed time %q", ErrInvalidSlot, s)
	}
	if !unsignedDigits(hh, 1, 2) || !unsignedDigits(mm, 2, 2) {
		return 0, fmt.Errorf("%w: malformed time %q", ErrInvalidSlot, s)
	}
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: malformed time %q", ErrInvalidSlot, s)
	}
	return Slot(h*60 + m), nil
}

func unsignedDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ParseISOWeek converts a week-picker value such as "2025-W03" to the Monday that
// starts that ISO week.
func ParseISOWeek(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	ys, ws, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), "-W")
	if !ok {
		return time.Time{}, fmt.Errorf("parse iso week %q: expected YYYY-Www", s)
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse iso week %q: %w", s, err)
	}
	week, err := strconv.Atoi(ws)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse iso week %q: %w", s, err)
	}

	// Week 1 is the week holding January 4th.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	monday := AddDays(StartOfWeek(jan4), (week-1)*DaysInWeek)
	if y, w := monday.ISOWeek(); week < 1 || y != year || w != week {
		return time.Time{}, fmt.Errorf("parse iso week %q: week %d does not exist in %d", s, week, year)
	}
	return monday, nil
}

// ParseWeekRef accepts either an ISO week ("2025-W03") or any date inside the week and
// returns the week's Monday.
func ParseWeekRef(s string, loc *time.Location) (time.Time, error) {
	if strings.Contains(strings.ToUpper(s), "W") {
		return ParseISOWeek(s, loc)
	}
	d, err := ParseDate(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfWeek(d), nil
}

// WeekDays lists the seven dates starting at weekStart.
func WeekDays(weekStart time.Time) []time.Time {
	days := make([]time.Time, DaysInWeek)
	for i := range days {
		days[i] = AddDays(weekStart, i)
	}
	return days
}
