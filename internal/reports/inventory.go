package reports

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/motorsales/vsms/internal/models"
)

const inventorySheet = "Inventory"

var inventoryHeader = []string{
	"Stock No.", "VIN", "Make", "Model", "Year", "Color", "Mileage", "Status", "Purchase Price", "Selling Price", "Margin",
}

var inventoryWidths = []float64{14, 20, 14, 16, 8, 12, 10, 12, 16, 16, 14}

// Inventory renders vehicles as an .xlsx workbook with a totals row. Amounts are in major units of currency.
func Inventory(vehicles []models.Vehicle, currency string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(inventorySheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	moneyFmt := fmt.Sprintf(`"%s "#,##0.00`, currency)
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("total style: %w", err)
	}

	for i, h := range inventoryHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(inventorySheet, cell, h); err != nil {
			return nil, err
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(inventorySheet, col, col, inventoryWidths[i]); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(inventorySheet, "A1", "K1", headerStyle); err != nil {
		return nil, err
	}

	for i, v := range vehicles {
		row := i + 2
		values := []any{
			v.StockNumber, v.VIN, v.Make, v.Model, v.Year, v.Color, v.Mileage, v.Status,
			major(v.PurchasePriceCents), major(v.SellingPriceCents), major(v.SellingPriceCents - v.PurchasePriceCents),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(inventorySheet, cell, &values); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
	}

	last := len(vehicles) + 1
	totalRow := last + 1
	if len(vehicles) > 0 {
		if err := f.SetCellValue(inventorySheet, fmt.Sprintf("A%d", totalRow), "Total"); err != nil {
			return nil, err
		}
		for _, col := range []string{"I", "J", "K"} {
			formula := fmt.Sprintf("SUM(%s2:%s%d)", col, col, last)
			if err := f.SetCellFormula(inventorySheet, fmt.Sprintf("%s%d", col, totalRow), formula); err != nil {
				return nil, err
			}
		}
		if err := f.SetCellStyle(inventorySheet, "I2", fmt.Sprintf("K%d", last), moneyStyle); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(inventorySheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("K%d", totalRow), totalStyle); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(inventorySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func major(cents int64) float64 {
	return float64(cents) / 100
}
