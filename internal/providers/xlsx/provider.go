package xlsx

import (
	"context"
	"io"

	"go.uber.org/fx"
)

const (
	SheetSummary    = "Resumen"
	SheetIndicators = "Indicadores"
	SheetWarnings   = "Advertencias"
)

type Provider interface {
	RenderWorkbook(ctx context.Context, data WorkbookData) (io.Reader, error)
}

var Module = fx.Module("providers.xlsx",
	fx.Provide(New),
)

type WorkbookData struct {
	Title       string
	GeneratedAt string
	Summary     []SummaryRow
	Results     []ResultRow
	Warnings    []WarningRow
}

// SummaryRow is one center in the ranking sheet.
type SummaryRow struct {
	Rank               int
	Code               string
	Name               string
	EstablishmentCount int
	AverageCompliance  float64
}

type ResultRow struct {
	EntityType    string
	EntityCode    string
	EntityName    string
	ParentCenter  string
	IndicatorCode string
	IndicatorName string
	Target        float64
	Numerator     float64
	Denominator   float64
	Value         float64
	// Compliance is nil when no compliance could be computed.
	Compliance *float64
	Stale      bool
}

type WarningRow struct {
	Kind      string
	Indicator string
	Entity    string
	Message   string
}
