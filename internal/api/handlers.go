package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scoutear/gestor-turnos/internal/aggregate"
	"github.com/scoutear/gestor-turnos/internal/export"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reservationView struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"`
	Time       string          `json:"time"`
	Slots      []string        `json:"slots"`
	ClientName string          `json:"client_name"`
	Phone      string          `json:"phone"`
	Payment    string          `json:"payment"`
	Tone       string          `json:"tone"`
	Comment    string          `json:"comment"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func newReservationView(r models.Reservation) reservationView {
	slots := make([]string, len(r.Slots))
	for i, s := range r.Slots {
		slots[i] = s.String()
	}
	return reservationView{
		ID:         r.ID.String(),
		Date:       r.DateKey(),
		Time:       r.Anchor.String(),
		Slots:      slots,
		ClientName: r.ClientName,
		Phone:      r.Phone,
		Payment:    r.Payment.Label(),
		Tone:       string(r.Payment.Tone()),
		Comment:    r.Comment,
		Price:      r.Price,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type slotView struct {
	Time        string           `json:"time"`
	Minutes     int              `json:"minutes"`
	Price       decimal.Decimal  `json:"price"`
	Anchor      bool             `json:"anchor,omitempty"`
	Reservation *reservationView `json:"reservation,omitempty"`
}

type dayStat struct {
	Date  string  `json:"date"`
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

type reserveRequest struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	ClientName string `json:"client_name"`
	Phone      string `json:"phone"`
	Payment    string `json:"payment"`
	Comment    string `json:"comment"`
}

type modifyRequest struct {
	ClientName *string `json:"client_name"`
	Phone      *string `json:"phone"`
	Payment    *string `json:"payment"`
	Comment    *string `json:"comment"`
}

func (m modifyRequest) changes() models.Changes {
	c := models.Changes{
		ClientName: m.ClientName,
		Phone:      m.Phone,
		Comment:    m.Comment,
	}
	if m.Payment != nil {
		p := models.ParsePayment(*m.Payment)
		c.Payment = &p
	}
	return c
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Verify(); err != nil {
		s.log.Error().Err(err).Msg("store verification failed")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("sync adapter: %v", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, _ *http.Request) {
	pricing := s.svc.Pricing()
	out := make([]slotView, 0, schedule.SlotsPerDay)
	for _, slot := range schedule.Slots() {
		price, _ := pricing.PriceFor(slot)
		out = append(out, slotView{Time: slot.String(), Minutes: int(slot), Price: price})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"span_slots": s.svc.SpanSlots(),
		"slots":      out,
	})
}

func (s *HTTPServer) handleDay(w http.ResponseWriter, r *http.Request) {
	date, err := schedule.ParseDate(r.PathValue("date"), s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	views := s.svc.Day(date)
	out := make([]slotView, 0, len(views))
	for _, v := range views {
		sv := slotView{Time: v.Time, Minutes: int(v.Slot), Price: v.Price, Anchor: v.Anchor}
		if v.Reservation != nil {
			rv := newReservationView(*v.Reservation)
			sv.Reservation = &rv
		}
		out = append(out, sv)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     schedule.DateKey(date),
		"day_name": schedule.DayName(schedule.DayIndex(date)),
		"slots":    out,
	})
}

func (s *HTTPServer) weekParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	weekStart, err := schedule.ParseWeekRef(r.PathValue("week"), s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return weekStart, true
}

func (s *HTTPServer) handleWeekStats(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := s.weekParam(w, r)
	if !ok {
		return
	}
	stats := s.svc.WeeklyStats(weekStart)

	days := make([]dayStat, 0, schedule.DaysInWeek)
	for i, d := range schedule.WeekDays(weekStart) {
		days = append(days, dayStat{
			Date:  schedule.DateKey(d),
			Name:  schedule.DayName(i),
			Count: stats.PerDay[i],
			Share: stats.Share(i),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start":     schedule.DateKey(weekStart),
		"days":           days,
		"total":          stats.Total,
		"income":         stats.Income,
		"income_display": aggregate.FormatAmount(stats.Income),
	})
}

func (s *HTTPServer) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := s.weekParam(w, r)
	if !ok {
		return
	}
	limit := s.upcomingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		if n > 0 {
			limit = n
		}
	}

	items := s.svc.Upcoming(weekStart, limit)
	if items == nil {
		items = []aggregate.UpcomingItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": schedule.DateKey(weekStart),
		"items":      items,
	})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := s.weekParam(w, r)
	if !ok {
		return
	}
	entries := s.svc.Snapshot(weekStart, schedule.AddDays(weekStart, schedule.DaysInWeek))
	stats := s.svc.WeeklyStats(weekStart)

	var buf bytes.Buffer
	if err := export.WriteWeekWorkbook(&buf, weekStart, entries, stats); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="turnos_%s.xlsx"`, schedule.DateKey(weekStart)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := s.weekParam(w, r)
	if !ok {
		return
	}
	data, err := export.SnapshotJSON(s.svc.Snapshot(weekStart, schedule.AddDays(weekStart, schedule.DaysInWeek)))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := s.weekParam(w, r)
	if !ok {
		return
	}
	res, err := s.svc.LoadWeek(r.Context(), weekStart)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	issues := make([]string, 0, len(res.Issues))
	for _, issue := range res.Issues {
		issues = append(issues, issue.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": schedule.DateKey(res.From),
		"loaded":     res.Loaded,
		"skipped":    res.Skipped,
		"migrated":   res.Migrated,
		"issues":     issues,
	})
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := schedule.ParseDate(req.Date, s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	anchor, err := schedule.ParseClock(req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Reserve(r.Context(), date, anchor, models.Details{
		ClientName: req.ClientName,
		Phone:      req.Phone,
		Payment:    models.ParsePayment(req.Payment),
		Comment:    req.Comment,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationView(res))
}

// slotParams reads the {date}/{time} pair shared by the reservation routes.
func (s *HTTPServer) slotParams(w http.ResponseWriter, r *http.Request) (time.Time, schedule.Slot, bool) {
	date, err := schedule.ParseDate(r.PathValue("date"), s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, 0, false
	}
	slot, err := schedule.ParseClock(r.PathValue("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, 0, false
	}
	return date, slot, true
}

func (s *HTTPServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	date, slot, ok := s.slotParams(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Lookup(date, slot)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (s *HTTPServer) handleModify(w http.ResponseWriter, r *http.Request) {
	date, slot, ok := s.slotParams(w, r)
	if !ok {
		return
	}
	var req modifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.svc.Modify(r.Context(), date, slot, req.changes())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (s *HTTPServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	date, slot, ok := s.slotParams(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Release(r.Context(), date, slot)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}
