package aggregate

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// Source exposes the occupied entries of a date range.
type Source interface {
	Occupancy(from, to time.Time) []booking.Occupancy
}

type WeekStats struct {
	WeekStart time.Time                `json:"week_start"`
	PerDay    [schedule.DaysInWeek]int `json:"per_day"`
	Total     int                      `json:"total"`
	Income    decimal.Decimal          `json:"income"`
	MaxPerDay int                      `json:"max_per_day"`
}

// Share is the day's count relative to the busiest day, in [0, 1].
func (w WeekStats) Share(day int) float64 {
	if day < 0 || day >= schedule.DaysInWeek || w.MaxPerDay <= 0 {
		return 0
	}
	return float64(w.PerDay[day]) / float64(w.MaxPerDay)
}

type UpcomingItem struct {
	ReservationID uuid.UUID            `json:"reservation_id"`
	Date          string               `json:"date"`
	DayIndex      int                  `json:"day_index"`
	DayName       string               `json:"day_name"`
	Slot          schedule.Slot        `json:"slot"`
	Time          string               `json:"time"`
	ClientName    string               `json:"client_name"`
	Phone         string               `json:"phone"`
	Payment       models.PaymentStatus `json:"payment"`
	Comment       string               `json:"comment"`
	Price         decimal.Decimal      `json:"price"`

	seq uint64
}

type dedupKey struct {
	date   string
	anchor schedule.Slot
	name   string
}

// Aggregator derives read-only views from the occupancy of one week at a time.
type Aggregator struct {
	source Source
}

func New(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// distinct walks the week's entries and keeps the first one of each reservation.
func (a *Aggregator) distinct(weekStart time.Time) []booking.Occupancy {
	start := schedule.StartOfWeek(weekStart)
	entries := a.source.Occupancy(start, schedule.AddDays(start, schedule.DaysInWeek))

	seen := make(map[dedupKey]struct{}, len(entries))
	out := make([]booking.Occupancy, 0, len(entries))
	for _, e := range entries {
		k := dedupKey{
			date:   schedule.DateKey(e.Date),
			anchor: e.Reservation.Anchor,
			name:   e.Reservation.ClientName,
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (a *Aggregator) WeeklyStats(weekStart time.Time) WeekStats {
	stats := WeekStats{
		WeekStart: schedule.StartOfWeek(weekStart),
		Income:    decimal.Zero,
	}
	for _, e := range a.distinct(weekStart) {
		stats.PerDay[schedule.DayIndex(e.Date)]++
		stats.Total++
		stats.Income = stats.Income.Add(e.Reservation.Price)
	}
	stats.MaxPerDay = 1
	for _, n := range stats.PerDay {
		if n > stats.MaxPerDay {
			stats.MaxPerDay = n
		}
	}
	return stats
}

// Upcoming lists the week's reservations by date and start time. A limit of zero or
// less falls back to models.DefaultUpcomingLimit.
func (a *Aggregator) Upcoming(weekStart time.Time, limit int) []UpcomingItem {
	if limit <= 0 {
		limit = models.DefaultUpcomingLimit
	}

	var items []UpcomingItem
	for _, e := range a.distinct(weekStart) {
		r := e.Reservation
		day := schedule.DayIndex(r.Date)
		items = append(items, UpcomingItem{
			ReservationID: r.ID,
			Date:          r.DateKey(),
			DayIndex:      day,
			DayName:       schedule.DayName(day),
			Slot:          r.Anchor,
			Time:          r.Anchor.String(),
			ClientName:    r.ClientName,
			Phone:         r.Phone,
			Payment:       r.Payment,
			Comment:       r.Comment,
			Price:         r.Price,
			seq:           e.Seq,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date < items[j].Date
		}
		if items[i].Slot != items[j].Slot {
			return items[i].Slot < items[j].Slot
		}
		return items[i].seq < items[j].seq
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

var printer = message.NewPrinter(language.MustParse("es-AR"))

// FormatAmount renders whole currency units with local digit grouping, e.g. $52.000.
func FormatAmount(d decimal.Decimal) string {
	return printer.Sprintf("$%d", d.Round(0).IntPart())
}
