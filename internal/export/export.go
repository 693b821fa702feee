// Package export renders appointments as an XLSX workbook for the operator.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/turnos-backend/internal/calendar"
	"github.com/tbourn/turnos-backend/internal/domain"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SheetName is the single sheet holding the appointment rows.
const SheetName = "Turnos"

var headers = []string{"ID", "Fecha", "Hora", "Cliente", "WhatsApp", "Estado", "Creado"}

var statusLabels = map[domain.Status]string{
	domain.StatusConfirmed: "Confirmado",
	domain.StatusCancelled: "Cancelado",
	domain.StatusCompleted: "Completado",
}

// Appointments writes one row per appointment in the given order. Creation
// times are rendered in loc.
func Appointments(items []domain.Appointment, loc *time.Location) (*bytes.Buffer, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range headers {
		if err := f.SetCellValue(SheetName, cell(i+1, 1), h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(SheetName, cell(1, 1), cell(len(headers), 1), headerStyle); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(SheetName, "A", "A", 8)
	_ = f.SetColWidth(SheetName, "B", "C", 12)
	_ = f.SetColWidth(SheetName, "D", "D", 28)
	_ = f.SetColWidth(SheetName, "E", "E", 18)
	_ = f.SetColWidth(SheetName, "F", "F", 12)
	_ = f.SetColWidth(SheetName, "G", "G", 20)

	for r, a := range items {
		row := r + 2
		values := []any{
			a.ID,
			a.AppointmentDate,
			calendar.Label(a.AppointmentHour),
			a.Name,
			a.Contact,
			statusLabel(a.Status),
			a.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		}
		if err := f.SetSheetRow(SheetName, cell(1, row), &values); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

// Filename suggests a download name stamped with the business date.
func Filename(today string) string {
	return fmt.Sprintf("turnos_%s.xlsx", today)
}

func statusLabel(s domain.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
