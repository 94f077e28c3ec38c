package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfWeek(t *testing.T) {
	loc := time.UTC
	monday := time.Date(2025, time.January, 13, 0, 0, 0, 0, loc)

	tests := []struct {
		name string
		in   time.Time
	}{
		{"monday midnight", monday},
		{"wednesday afternoon", time.Date(2025, time.January, 15, 17, 45, 0, 0, loc)},
		{"sunday late", time.Date(2025, time.January, 19, 23, 59, 59, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StartOfWeek(tt.in)
			assert.True(t, monday.Equal(got), "got %s", got)
			assert.Equal(t, time.Monday, got.Weekday())
		})
	}
}

func TestAddDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// DST starts on 2025-03-30 in Madrid.
	start := time.Date(2025, time.March, 24, 0, 0, 0, 0, loc)
	next := AddDays(start, 7)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 31, next.Day())
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestDayIndexAndName(t *testing.T) {
	sunday := time.Date(2025, time.January, 19, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, DayIndex(sunday))
	assert.Equal(t, "Domingo", DayName(DayIndex(sunday)))
	assert.Equal(t, "Lunes", DayName(0))
	assert.Equal(t, "Miércoles", DayName(2))
	assert.Empty(t, DayName(7))
}

func TestMinutesToClock(t *testing.T) {
	got, err := MinutesToClock(420)
	require.NoError(t, err)
	assert.Equal(t, "07:00", got)

	got, err = MinutesToClock(1410)
	require.NoError(t, err)
	assert.Equal(t, "23:30", got)

	got, err = MinutesToClock(0)
	require.NoError(t, err)
	assert.Equal(t, "00:00", got)

	_, err = MinutesToClock(-1)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = MinutesToClock(24 * 60)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestParseClock(t *testing.T) {
	s, err := ParseClock("22:00")
	require.NoError(t, err)
	assert.Equal(t, Slot(1320), s)

	s, err = ParseClock(" 7:30 ")
	require.NoError(t, err)
	assert.Equal(t, Slot(450), s)

	s, err = ParseClock("07:00")
	require.NoError(t, err)
	assert.Equal(t, Slot(420), s)

	for _, in := range []string{"", "22", "24:00", "10:5", "aa:bb", "10:60", "+7:00", "007:00", "-1:00", "7:+5", "07: 0", ":30"} {
		_, err := ParseClock(in)
		assert.ErrorIs(t, err, ErrInvalidSlot, in)
	}
}

func TestParseISOWeek(t *testing.T) {
	got, err := ParseISOWeek("2025-W03", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-13", DateKey(got))

	// 2026 week 1 starts in December of the previous year.
	got, err = ParseISOWeek("2026-W01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-29", DateKey(got))

	_, err = ParseISOWeek("2025-W54", time.UTC)
	assert.Error(t, err)

	_, err = ParseISOWeek("2025-03", time.UTC)
	assert.Error(t, err)
}

func TestParseWeekRef(t *testing.T) {
	got, err := ParseWeekRef("2025-01-16", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-13", DateKey(got))

	got, err = ParseWeekRef("2025-w03", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-13", DateKey(got))

	_, err = ParseWeekRef("not a date", time.UTC)
	assert.Error(t, err)
}

func TestWeekDays(t *testing.T) {
	days := WeekDays(time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC))
	require.Len(t, days, 7)
	assert.Equal(t, "2025-01-19", DateKey(days[6]))
}
