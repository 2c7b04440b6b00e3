package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type ExcelProvider struct{}

func New() Provider {
	return &ExcelProvider{}
}

func (p *ExcelProvider) RenderWorkbook(ctx context.Context, data WorkbookData) (io.Reader, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetIndicators, SheetWarnings} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E79"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}
	twoDecimals, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, err
	}

	if err := writeSummary(f, data, header, twoDecimals); err != nil {
		return nil, fmt.Errorf("sheet %s: %w", SheetSummary, err)
	}
	if err := writeResults(f, data.Results, header, twoDecimals); err != nil {
		return nil, fmt.Errorf("sheet %s: %w", SheetIndicators, err)
	}
	if err := writeWarnings(f, data.Warnings, header); err != nil {
		return nil, fmt.Errorf("sheet %s: %w", SheetWarnings, err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}

func writeSummary(f *excelize.File, data WorkbookData, header, numeric int) error {
	sheet := SheetSummary
	if err := setRow(f, sheet, 1, []interface{}{data.Title}); err != nil {
		return err
	}
	if err := setRow(f, sheet, 2, []interface{}{"Generado", data.GeneratedAt}); err != nil {
		return err
	}
	const headerRow = 4
	if err := setRow(f, sheet, headerRow, []interface{}{"Ranking", "Código", "Centro", "Establecimientos", "Cumplimiento promedio (%)"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A4", "E4", header); err != nil {
		return err
	}
	for i, row := range data.Summary {
		r := headerRow + 1 + i
		if err := setRow(f, sheet, r, []interface{}{row.Rank, row.Code, row.Name, row.EstablishmentCount, row.AverageCompliance}); err != nil {
			return err
		}
	}
	if len(data.Summary) > 0 {
		last := headerRow + len(data.Summary)
		if err := f.SetCellStyle(sheet, "E5", fmt.Sprintf("E%d", last), numeric); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "C", "C", 36)
}

func writeResults(f *excelize.File, rows []ResultRow, header, numeric int) error {
	sheet := SheetIndicators
	if err := setRow(f, sheet, 1, []interface{}{
		"Tipo", "Código entidad", "Entidad", "Centro padre", "Código indicador", "Indicador",
		"Meta", "Numerador", "Denominador", "Resultado", "Cumplimiento (%)", "Sin recalcular",
	}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "L1", header); err != nil {
		return err
	}
	for i, row := range rows {
		var compliance interface{}
		if row.Compliance != nil {
			compliance = *row.Compliance
		}
		stale := ""
		if row.Stale {
			stale = "sí"
		}
		if err := setRow(f, sheet, i+2, []interface{}{
			row.EntityType, row.EntityCode, row.EntityName, row.ParentCenter,
			row.IndicatorCode, row.IndicatorName,
			row.Target, row.Numerator, row.Denominator, row.Value, compliance, stale,
		}); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		if err := f.SetCellStyle(sheet, "G2", fmt.Sprintf("K%d", len(rows)+1), numeric); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "C", "C", 32); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "F", "F", 48)
}

func writeWarnings(f *excelize.File, rows []WarningRow, header int) error {
	sheet := SheetWarnings
	if err := setRow(f, sheet, 1, []interface{}{"Tipo", "Indicador", "Entidad", "Detalle"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "D1", header); err != nil {
		return err
	}
	for i, w := range rows {
		if err := setRow(f, sheet, i+2, []interface{}{w.Kind, w.Indicator, w.Entity, w.Message}); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "D", "D", 60)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
