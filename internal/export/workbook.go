package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/scoutear/gestor-turnos/internal/aggregate"
	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

const (
	WeekSheet    = "Semana"
	SummarySheet = "Resumen"

	gridHeaderRow = 2
	gridFirstRow  = 3
)

var toneFill = map[models.Tone]string{
	models.ToneUnpaid:  "#FFC7CE",
	models.TonePartial: "#FFEB9C",
	models.TonePaid:    "#C6EFCE",
}

// WeekWorkbook lays the week out as a slot by day grid plus a summary sheet.
// Occupied cells are filled with the colour of their payment status.
func WeekWorkbook(weekStart time.Time, entries []booking.Occupancy, stats aggregate.WeekStats) (*excelize.File, error) {
	weekStart = schedule.StartOfWeek(weekStart)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", WeekSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}
	if err := writeGrid(f, weekStart, entries); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, stats); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteWeekWorkbook streams the workbook as xlsx.
func WriteWeekWorkbook(w io.Writer, weekStart time.Time, entries []booking.Occupancy, stats aggregate.WeekStats) error {
	f, err := WeekWorkbook(weekStart, entries, stats)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeGrid(f *excelize.File, weekStart time.Time, entries []booking.Occupancy) error {
	days := schedule.WeekDays(weekStart)
	_ = f.SetCellValue(WeekSheet, "A1", fmt.Sprintf("Semana del %s al %s",
		days[0].Format("02/01/2006"), days[len(days)-1].Format("02/01/2006")))
	_ = f.MergeCell(WeekSheet, "A1", "H1")

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	_ = f.SetCellStyle(WeekSheet, "A1", "A1", titleStyle)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	_ = f.SetCellValue(WeekSheet, cellName(1, gridHeaderRow), "Hora")
	for i, d := range days {
		_ = f.SetCellValue(WeekSheet, cellName(i+2, gridHeaderRow), fmt.Sprintf("%s %d", schedule.DayName(i), d.Day()))
	}
	_ = f.SetCellStyle(WeekSheet, cellName(1, gridHeaderRow), cellName(len(days)+1, gridHeaderRow), headerStyle)

	for i, slot := range schedule.Slots() {
		_ = f.SetCellValue(WeekSheet, cellName(1, gridFirstRow+i), slot.String())
	}

	styles := make(map[models.Tone]int, len(toneFill))
	for tone, color := range toneFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		styles[tone] = id
	}

	lo, hi := schedule.DateKey(weekStart), schedule.DateKey(schedule.AddDays(weekStart, schedule.DaysInWeek))
	for _, e := range entries {
		if dk := schedule.DateKey(e.Date); dk < lo || dk >= hi {
			continue
		}
		idx, err := schedule.IndexOf(e.Slot)
		if err != nil {
			continue
		}
		cell := cellName(schedule.DayIndex(e.Date)+2, gridFirstRow+idx)
		_ = f.SetCellValue(WeekSheet, cell, cellText(e))
		_ = f.SetCellStyle(WeekSheet, cell, cell, styles[e.Reservation.Payment.Tone()])
	}

	_ = f.SetColWidth(WeekSheet, "A", "A", 8)
	_ = f.SetColWidth(WeekSheet, "B", "H", 22)
	_ = f.SetPanes(WeekSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      gridHeaderRow,
		TopLeftCell: cellName(2, gridFirstRow),
		ActivePane:  "bottomRight",
	})
	return nil
}

// cellText shows client and payment on the anchor slot and a continuation mark on the
// rest of the span.
func cellText(e booking.Occupancy) string {
	r := e.Reservation
	if e.Slot != r.Anchor {
		return "↳ " + r.ClientName
	}
	text := fmt.Sprintf("%s\n%s · %s", r.ClientName, r.Payment.Label(), aggregate.FormatAmount(r.Price))
	if r.Phone != "" {
		text += "\n" + r.Phone
	}
	if r.Comment != "" {
		text += "\n" + r.Comment
	}
	return text
}

func writeSummary(f *excelize.File, stats aggregate.WeekStats) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	_ = f.SetSheetRow(SummarySheet, "A1", &[]interface{}{"Día", "Reservas", "Ocupación"})
	_ = f.SetCellStyle(SummarySheet, "A1", "C1", boldStyle)

	for i := 0; i < schedule.DaysInWeek; i++ {
		row := i + 2
		_ = f.SetSheetRow(SummarySheet, cellName(1, row), &[]interface{}{
			schedule.DayName(i),
			stats.PerDay[i],
			fmt.Sprintf("%.0f%%", stats.Share(i)*100),
		})
	}

	totalRow := schedule.DaysInWeek + 3
	_ = f.SetCellValue(SummarySheet, cellName(1, totalRow), "Total")
	_ = f.SetCellValue(SummarySheet, cellName(2, totalRow), stats.Total)
	_ = f.SetCellValue(SummarySheet, cellName(1, totalRow+1), "Ingresos")
	_ = f.SetCellValue(SummarySheet, cellName(2, totalRow+1), aggregate.FormatAmount(stats.Income))
	_ = f.SetCellStyle(SummarySheet, cellName(1, totalRow), cellName(1, totalRow+1), boldStyle)
	_ = f.SetColWidth(SummarySheet, "A", "C", 14)
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
