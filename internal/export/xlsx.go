// Package export writes the estimate history to spreadsheet files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

// SheetName is the worksheet holding the estimates.
const SheetName = "Estimates"

// Columns is the header row of the estimates sheet.
var Columns = []string{
	"ID", "Created At", "Brand", "Item Type", "Size", "Condition", "Sale Speed",
	"Suggested Price", "Price Range", "Market Position", "Mean", "Median",
	"Std Dev", "Sample Size", "Confidence", "Overall Confidence", "Origin", "Fallback",
}

// WriteXLSX writes estimates as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, estimates []models.Estimate) error {
	f, err := build(estimates)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes estimates to the workbook file at path.
func SaveXLSX(path string, estimates []models.Estimate) error {
	f, err := build(estimates)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func build(estimates []models.Estimate) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, e := range estimates {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := rowFor(e)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}
	return f, nil
}

func rowFor(e models.Estimate) []interface{} {
	r := e.Recommendation
	return []interface{}{
		e.ID,
		e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		e.Brand,
		e.ItemType,
		e.Size,
		string(e.Condition),
		string(e.SaleSpeed),
		r.SuggestedPrice,
		r.PriceRange,
		r.MarketPosition,
		r.Distribution.Mean,
		r.Distribution.Median,
		r.Distribution.StdDev,
		r.SampleSize,
		r.ConfidenceLevel,
		e.OverallConfidence,
		string(e.Origin),
		r.UsedFallback,
	}
}
