package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type Provider interface {
	RenderReport(ctx context.Context, data ReportData) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// ReportData is a fully formatted report; the provider only lays it out.
type ReportData struct {
	Title       string
	Subtitle    string
	GeneratedAt string
	DocumentID  string

	Cards []Card

	RankingTitle string
	Ranking      []RankingRow

	IndicatorsTitle string
	Indicators      []IndicatorRow

	Warnings []string
}

type Card struct {
	Label string
	Value string
}

type RankingRow struct {
	Rank       string
	Name       string
	Compliance string
}

type IndicatorRow struct {
	Code       string
	Name       string
	Target     string
	Value      string
	Compliance string
	Status     string
}
