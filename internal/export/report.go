// Package export renders weekly occupancy reports for reservations.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prostor/internal/models"
	"prostor/internal/timeslot"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Reservations"

// BuildWeeklyReport renders one Monday-Sunday week of reservations into a
// spreadsheet: one column per day, one row per space, cells listing the
// day's bookings for that space.
func BuildWeeklyReport(weekOf time.Time, spaces []*models.Space, reservations []*models.Reservation) (*excelize.File, error) {
	weekStart, weekEnd := timeslot.WeekBounds(weekOf)

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Week: %s - %s",
		weekStart.Format("02.01.2006"), weekEnd.Format("02.01.2006")))

	dateColumns := writeDateHeaders(f, weekStart)
	writeSpaceRows(f, spaces)
	writeReservationCells(f, spaces, reservations, dateColumns)

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	for col := 'B'; col <= 'H'; col++ {
		_ = f.SetColWidth(sheetName, string(col), string(col), 28)
	}

	lastCol, _ := excelize.ColumnNumberToName(8)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// SaveWeeklyReport writes the report to dir and returns the file path.
func SaveWeeklyReport(dir string, weekOf time.Time, spaces []*models.Space, reservations []*models.Reservation) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := BuildWeeklyReport(weekOf, spaces, reservations)
	if err != nil {
		return "", err
	}
	defer f.Close()

	weekStart, _ := timeslot.WeekBounds(weekOf)
	fileName := fmt.Sprintf("week_%s.xlsx", weekStart.Format("2006-01-02"))
	filePath := filepath.Join(dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving report: %w", err)
	}
	return filePath, nil
}

func writeDateHeaders(f *excelize.File, weekStart time.Time) map[string]int {
	dateColumns := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		day := weekStart.AddDate(0, 0, i)
		col := i + 2
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, day.Format("Mon 02.01"))
		dateColumns[day.Format("2006-01-02")] = col

		style, _ := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
	return dateColumns
}

func writeSpaceRows(f *excelize.File, spaces []*models.Space) {
	for i, space := range spaces {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(sheetName, cell, fmt.Sprintf("%s (cap %d)", space.Name, space.Capacity))
	}
}

func writeReservationCells(f *excelize.File, spaces []*models.Space, reservations []*models.Reservation, dateColumns map[string]int) {
	rowBySpace := make(map[string]int, len(spaces))
	for i, space := range spaces {
		rowBySpace[space.ID] = i + 3
	}

	cells := make(map[string]string)
	for _, r := range reservations {
		if !r.IsActive() {
			continue
		}
		row, ok := rowBySpace[r.SpaceID]
		if !ok {
			continue
		}
		col, ok := dateColumns[r.Date.Format("2006-01-02")]
		if !ok {
			continue
		}

		cell, _ := excelize.CoordinatesToCellName(col, row)
		entry := fmt.Sprintf("%s-%s %s",
			r.StartTime.Format("15:04"), r.EndTime.Format("15:04"), r.ClientEmail)
		if cells[cell] != "" {
			cells[cell] += "\n"
		}
		cells[cell] += entry
	}

	for cell, value := range cells {
		_ = f.SetCellValue(sheetName, cell, value)
	}
}
