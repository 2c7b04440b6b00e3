package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	dashboardservice "github.com/smallbiznis/iaaps/internal/dashboard/service"
	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/smallbiznis/iaaps/internal/indicator/rollup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSource struct {
	store *domain.Store
}

func (s staticSource) Load(ctx context.Context) (*domain.Store, []domain.Warning, error) {
	return s.store.Clone(), nil, nil
}

func testStore() *domain.Store {
	s := domain.NewStore()
	s.AddIndicator(domain.Indicator{Code: "EMP", Name: "Examen de medicina preventiva", Target: 50, Kind: domain.KindPercentage})
	s.AddIndicator(domain.Indicator{Code: "VDI", Name: "Visitas domiciliarias", Target: 0.2, Kind: domain.KindRate})
	s.AddCenter(&domain.Center{Code: "C1", Name: "CESFAM Uno"})
	s.AddCenter(&domain.Center{Code: "C2", Name: "CESFAM Dos"})
	s.AddEstablishment(&domain.Establishment{Code: "E1", Name: "Posta Uno", ParentCenterCode: "C1"})
	s.SetResult("EMP", "C1", &domain.Result{Numerator: 10, Denominator: 100})
	s.SetResult("EMP", "C2", &domain.Result{Numerator: 40, Denominator: 60})
	s.SetResult("EMP", "E1", &domain.Result{Numerator: 5, Denominator: 50})
	s.SetResult("VDI", "C1", &domain.Result{Numerator: 30, Denominator: 100})
	s.SetResult("VDI", "C2", &domain.Result{Numerator: 10, Denominator: 100})
	return s
}

func newTestService(t *testing.T, refresh bool) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	dash := dashboardservice.NewService(dashboardservice.Params{
		Source: staticSource{store: testStore()},
		Engine: rollup.NewEngine(rollup.Params{Log: zap.NewNop()}),
		Log:    zap.NewNop(),
	})
	if refresh {
		_, err := dash.Refresh(context.Background())
		require.NoError(t, err)
	}
	return NewService(Params{Dashboard: dash, GenID: node, Log: zap.NewNop()})
}

func TestDetect(t *testing.T) {
	cases := []struct {
		query  string
		intent Intent
		arg    string
	}{
		{query: "Ayuda", intent: IntentHelp},
		{query: "¿Cómo vamos en cumplimiento?", intent: IntentSummary},
		{query: "resumen comunal", intent: IntentSummary},
		{query: "¿Cuál es el mejor centro?", intent: IntentRanking},
		{query: "ranking", intent: IntentRanking},
		{query: "indicadores bajo meta", intent: IntentBelowTarget},
		{query: "¿qué indicadores no cumplen?", intent: IntentBelowTarget},
		{query: "indicador EMP", intent: IntentIndicator, arg: "emp"},
		{query: "centro CESFAM Dos", intent: IntentCenter, arg: "cesfam-dos"},
		{query: "Reporte PDF", intent: IntentReportPDF},
		{query: "reporte pdf centro C1", intent: IntentReportPDF, arg: "c1"},
		{query: "descargar planilla excel", intent: IntentReportXLSX},
		{query: "xyz", intent: IntentUnknown},
		{query: "¿?", intent: IntentHelp},
	}
	for _, tc := range cases {
		got := detect(tc.query)
		assert.Equal(t, tc.intent, got.intent, "query %q", tc.query)
		assert.Equal(t, tc.arg, got.arg, "query %q", tc.query)
	}
}

func TestAskSummary(t *testing.T) {
	svc := newTestService(t, true)

	reply, err := svc.Ask(context.Background(), Query{Text: "resumen"})
	require.NoError(t, err)
	assert.Equal(t, IntentSummary, reply.Intent)
	assert.NotEmpty(t, reply.ID)
	assert.Contains(t, reply.Text, "Cumplimiento comunal promedio")
	assert.Contains(t, reply.Text, "Mejor centro: CESFAM Dos")
}

func TestAskRankingOrdersCenters(t *testing.T) {
	svc := newTestService(t, true)

	reply, err := svc.Ask(context.Background(), Query{Text: "ranking de centros"})
	require.NoError(t, err)
	assert.Equal(t, IntentRanking, reply.Intent)
	lines := strings.Split(reply.Text, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1. CESFAM Dos"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2. CESFAM Uno"), lines[2])
}

func TestAskBelowTarget(t *testing.T) {
	svc := newTestService(t, true)

	reply, err := svc.Ask(context.Background(), Query{Text: "pendientes"})
	require.NoError(t, err)
	// comunal EMP is 55/210 (26.2%) against a 50% target; VDI is 0.2 and meets it.
	assert.Contains(t, reply.Text, "EMP")
	assert.NotContains(t, reply.Text, "VDI")
}

func TestAskIndicatorAndCenter(t *testing.T) {
	svc := newTestService(t, true)

	reply, err := svc.Ask(context.Background(), Query{Text: "indicador vdi"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "VDI Visitas domiciliarias")
	assert.Contains(t, reply.Text, "resultado comunal 0,20")

	reply, err = svc.Ask(context.Background(), Query{Text: "indicador XX"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "No encontré el indicador")

	reply, err = svc.Ask(context.Background(), Query{Text: "cesfam uno"})
	require.NoError(t, err)
	assert.Equal(t, IntentCenter, reply.Intent)
	assert.True(t, strings.HasPrefix(reply.Text, "CESFAM Uno"), reply.Text)
	require.Len(t, reply.Links, 1)
	assert.Equal(t, "/api/v1/reports/pdf?center=C1", reply.Links[0].URL)

	reply, err = svc.Ask(context.Background(), Query{Text: "centro inexistente"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "No encontré el centro")
}

func TestAskReportLinks(t *testing.T) {
	svc := newTestService(t, true)

	reply, err := svc.Ask(context.Background(), Query{Text: "reporte excel"})
	require.NoError(t, err)
	require.Len(t, reply.Links, 1)
	assert.Equal(t, xlsxReportPath, reply.Links[0].URL)

	reply, err = svc.Ask(context.Background(), Query{Text: "informe pdf del centro cesfam dos"})
	require.NoError(t, err)
	require.Len(t, reply.Links, 1)
	assert.Equal(t, pdfReportPath+"?center=C2", reply.Links[0].URL)
}

func TestAskUnknownReturnsHelp(t *testing.T) {
	svc := newTestService(t, true)

	reply, err := svc.Ask(context.Background(), Query{Text: "qwerty"})
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, reply.Intent)
	assert.Contains(t, reply.Text, helpText)
}

func TestAskWithoutData(t *testing.T) {
	svc := newTestService(t, false)

	reply, err := svc.Ask(context.Background(), Query{Text: "resumen"})
	require.NoError(t, err)
	assert.Equal(t, noDataText, reply.Text)

	reply, err = svc.Ask(context.Background(), Query{Text: "ayuda"})
	require.NoError(t, err)
	assert.Equal(t, helpText, reply.Text)
}

func TestAskRejectsInvalidQueries(t *testing.T) {
	svc := newTestService(t, true)

	_, err := svc.Ask(context.Background(), Query{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = svc.Ask(context.Background(), Query{Text: strings.Repeat("a", maxQueryLength+1)})
	assert.ErrorIs(t, err, ErrQueryTooLong)
}
