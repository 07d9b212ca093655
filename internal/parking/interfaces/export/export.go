package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"parking-monitor/internal/parking/domain"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// BuildHistoryXLSX renders one summary sheet plus one sheet per facility series.
func BuildHistoryXLSX(series map[string][]domain.Point, capacities domain.CapacityTable) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	f.SetSheetName("Sheet1", summarySheet)
	_ = f.SetCellValue(summarySheet, "A1", "Facility")
	_ = f.SetCellValue(summarySheet, "B1", "Samples")
	_ = f.SetCellValue(summarySheet, "C1", "Min")
	_ = f.SetCellValue(summarySheet, "D1", "Max")
	_ = f.SetCellValue(summarySheet, "E1", "Average")
	_ = f.SetCellValue(summarySheet, "F1", "Latest")
	_ = f.SetCellValue(summarySheet, "G1", "Latest At")
	_ = f.SetCellValue(summarySheet, "H1", "Capacity")

	for i, col := range domain.HistoryColumns {
		points := series[col.Key]
		capacity, _ := capacities.MaxCapacity(col.Name)
		stats := domain.ComputeStats(points, capacity)

		row := i + 2
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), col.Name)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), stats.Count)
		if stats.Count > 0 {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), stats.Min)
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), stats.Max)
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), stats.Avg)
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("F%d", row), stats.Latest)
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("G%d", row), stats.LatestAt.Format(exportTimeLayout))
		}
		if capacity > 0 {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("H%d", row), capacity)
		}

		if _, err := f.NewSheet(col.Key); err != nil {
			return nil, err
		}
		_ = f.SetCellValue(col.Key, "A1", "Time")
		_ = f.SetCellValue(col.Key, "B1", "Free")
		for j, p := range points {
			_ = f.SetCellValue(col.Key, fmt.Sprintf("A%d", j+2), p.T.Format(exportTimeLayout))
			_ = f.SetCellValue(col.Key, fmt.Sprintf("B%d", j+2), p.V)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatusPDF renders the current facility table.
func BuildStatusPDF(facilities []domain.Facility, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Parking Availability")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	records := make([]domain.APIRecord, 0, len(facilities))
	total := 0.0
	for _, f := range facilities {
		records = append(records, f.APIRecord)
		total += f.DisplayValue()
	}
	pdf.Cell(0, 6, fmt.Sprintf("Total free (reported): %s", formatFloat(domain.TotalFreeSpaces(records))))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total free (displayed): %s", formatFloat(total)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Facility", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Free", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Reading", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Age", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Note", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, f := range facilities {
		age := domain.FormatAgeLabel(domain.DataAge(f.Timestamp, generatedAt))
		note := ""
		if f.Approximation.IsApproximated {
			note = "approx. " + f.Approximation.Calculation
		}
		pdf.CellFormat(40, 6, domain.NormalizeParkingName(f.ParkingGroupName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, formatFloat(f.DisplayValue()), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, f.Timestamp, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, age.Display, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, note, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
