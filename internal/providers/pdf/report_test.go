package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReportProducesPDF(t *testing.T) {
	data := ReportData{
		Title:       "Reporte IAAPS Curicó",
		Subtitle:    "Comunal",
		GeneratedAt: "01-07-2024 08:00",
		DocumentID:  "01J1X",
		Cards: []Card{
			{Label: "Cumplimiento comunal", Value: "72,50%"},
			{Label: "Centros", Value: "5"},
			{Label: "Establecimientos", Value: "4"},
			{Label: "Bajo meta", Value: "2"},
		},
		RankingTitle:    "Ranking de centros",
		Ranking:         []RankingRow{{Rank: "1", Name: "CESFAM Colón", Compliance: "90,00%"}},
		IndicatorsTitle: "Indicadores",
		Indicators: []IndicatorRow{
			{Code: "EMP", Name: "Examen de Medicina Preventiva", Target: "22,00%", Value: "10,59%", Compliance: "48,13%", Status: "Bajo"},
		},
		Warnings: []string{"missing_result indicator=EMP entity=posta-upeo"},
	}

	r, err := New().RenderReport(context.Background(), data)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}
