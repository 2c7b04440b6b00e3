package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/iaaps/internal/clock"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	dashboardservice "github.com/smallbiznis/iaaps/internal/dashboard/service"
	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	"github.com/smallbiznis/iaaps/internal/providers/pdf"
	"github.com/smallbiznis/iaaps/internal/providers/xlsx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	reportTitle     = "Reporte IAAPS Curicó"
	maxPDFWarnings  = 30
	statusMeets     = "Cumple"
	statusBelow     = "Bajo meta"
	statusNoResults = "Sin datos"
)

type Params struct {
	fx.In

	Dashboard dashboarddomain.Service
	PDF       pdf.Provider
	XLSX      xlsx.Provider
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Clock     clock.Clock         `optional:"true"`
}

type Service struct {
	dashboard dashboarddomain.Service
	pdf       pdf.Provider
	xlsx      xlsx.Provider
	log       *zap.Logger
	metrics   *obsmetrics.Metrics
	clock     clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		dashboard: p.Dashboard,
		pdf:       p.PDF,
		xlsx:      p.XLSX,
		log:       p.Log.Named("report.service"),
		metrics:   p.Metrics,
		clock:     clk,
	}
}

// scope is the entity a report is centered on, resolved against one snapshot.
type scope struct {
	code   string
	name   string
	center *indicatordomain.Center
}

func (s *Service) Generate(ctx context.Context, format string, req Request) (Document, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatPDF:
		return s.PDF(ctx, req)
	case FormatXLSX, "excel":
		return s.XLSX(ctx, req)
	default:
		return Document{}, ErrUnsupportedFormat
	}
}

// PDF renders the dashboard summary, the center ranking and the indicator
// table of the requested scope.
func (s *Service) PDF(ctx context.Context, req Request) (Document, error) {
	snap, sc, err := s.snapshot(ctx, req)
	if err != nil {
		return Document{}, err
	}
	doc := s.newDocument(FormatPDF, sc)
	store := snap.Store

	rows := dashboardservice.IndicatorRows(store, sc.code)
	meeting, below := 0, 0
	for _, row := range rows {
		if row.Compliance == nil {
			continue
		}
		if row.MeetsTarget {
			meeting++
		} else {
			below++
		}
	}

	average := 0.0
	if sc.center != nil {
		average = sc.center.Derived.AverageCompliance
	}

	data := pdf.ReportData{
		Title:       reportTitle,
		Subtitle:    sc.name,
		GeneratedAt: formatTimestamp(doc.GeneratedAt),
		DocumentID:  doc.ID,
		Cards: []pdf.Card{
			{Label: "Cumplimiento promedio", Value: formatPercent(average)},
			{Label: "Indicadores que cumplen", Value: strconv.Itoa(meeting)},
			{Label: "Indicadores bajo meta", Value: strconv.Itoa(below)},
			{Label: "Centros", Value: strconv.Itoa(len(store.FacilityCenters()))},
			{Label: "Establecimientos", Value: strconv.Itoa(len(store.Establishments))},
			{Label: "Datos cargados", Value: formatTimestamp(snap.LoadedAt)},
		},
		RankingTitle:    "Ranking de centros",
		IndicatorsTitle: "Indicadores · " + sc.name,
	}

	for _, score := range dashboardservice.RankCenters(store) {
		data.Ranking = append(data.Ranking, pdf.RankingRow{
			Rank:       strconv.Itoa(score.Rank),
			Name:       score.Name,
			Compliance: formatPercent(score.AverageCompliance),
		})
	}

	for _, row := range rows {
		value := "s/d"
		if row.HasResult {
			value = formatIndicatorValue(row.Kind, row.Value)
		}
		data.Indicators = append(data.Indicators, pdf.IndicatorRow{
			Code:       row.Code,
			Name:       row.Name,
			Target:     formatIndicatorValue(row.Kind, row.Target),
			Value:      value,
			Compliance: formatCompliance(row.Compliance),
			Status:     status(row),
		})
	}

	for i, w := range snap.Warnings {
		if i == maxPDFWarnings {
			data.Warnings = append(data.Warnings, fmt.Sprintf("… y %d advertencias más", len(snap.Warnings)-maxPDFWarnings))
			break
		}
		data.Warnings = append(data.Warnings, w.Message)
	}

	body, err := s.pdf.RenderReport(ctx, data)
	if err != nil {
		s.log.Error("failed to render pdf report", zap.String("scope", sc.code), zap.Error(err))
		return Document{}, fmt.Errorf("render pdf: %w", err)
	}
	doc.Body = body
	s.metrics.RecordReport(ctx, FormatPDF)
	s.log.Info("report generated", zap.String("format", FormatPDF), zap.String("scope", sc.code), zap.String("document_id", doc.ID))
	return doc, nil
}

// XLSX exports the ranking, every entity result in scope and the load
// warnings as a workbook.
func (s *Service) XLSX(ctx context.Context, req Request) (Document, error) {
	snap, sc, err := s.snapshot(ctx, req)
	if err != nil {
		return Document{}, err
	}
	doc := s.newDocument(FormatXLSX, sc)
	store := snap.Store

	data := xlsx.WorkbookData{
		Title:       reportTitle + " · " + sc.name,
		GeneratedAt: formatTimestamp(doc.GeneratedAt),
	}
	for _, score := range dashboardservice.RankCenters(store) {
		data.Summary = append(data.Summary, xlsx.SummaryRow{
			Rank:               score.Rank,
			Code:               score.Code,
			Name:               score.Name,
			EstablishmentCount: score.EstablishmentCount,
			AverageCompliance:  round2(score.AverageCompliance),
		})
	}

	for _, c := range store.Centers {
		if sc.code != indicatordomain.ComunalCode && c.Code != sc.code {
			continue
		}
		entityType := dashboarddomain.EntityCenter
		if c.IsComunal() {
			entityType = dashboarddomain.EntityComunal
		}
		data.Results = append(data.Results, resultRows(store, c.Code, c.Name, entityType, "")...)
	}
	for _, e := range store.Establishments {
		if sc.code != indicatordomain.ComunalCode && e.ParentCenterCode != sc.code {
			continue
		}
		data.Results = append(data.Results, resultRows(store, e.Code, e.Name, dashboarddomain.EntityEstablishment, e.ParentCenterCode)...)
	}

	for _, w := range snap.Warnings {
		data.Warnings = append(data.Warnings, xlsx.WarningRow{
			Kind:      string(w.Kind),
			Indicator: w.IndicatorCode,
			Entity:    w.EntityCode,
			Message:   w.Message,
		})
	}

	body, err := s.xlsx.RenderWorkbook(ctx, data)
	if err != nil {
		s.log.Error("failed to render xlsx report", zap.String("scope", sc.code), zap.Error(err))
		return Document{}, fmt.Errorf("render xlsx: %w", err)
	}
	doc.Body = body
	s.metrics.RecordReport(ctx, FormatXLSX)
	s.log.Info("report generated", zap.String("format", FormatXLSX), zap.String("scope", sc.code), zap.String("document_id", doc.ID))
	return doc, nil
}

func (s *Service) snapshot(ctx context.Context, req Request) (dashboarddomain.Snapshot, scope, error) {
	snap, err := s.dashboard.Snapshot(ctx)
	if err != nil {
		return dashboarddomain.Snapshot{}, scope{}, err
	}
	if snap.Store == nil {
		return dashboarddomain.Snapshot{}, scope{}, dashboarddomain.ErrNoData
	}

	code := strings.TrimSpace(req.CenterCode)
	if code == "" {
		code = indicatordomain.ComunalCode
	}
	for _, c := range snap.Store.Centers {
		if strings.EqualFold(c.Code, code) {
			return snap, scope{code: c.Code, name: c.Name, center: c}, nil
		}
	}
	if code == indicatordomain.ComunalCode {
		return snap, scope{code: code, name: indicatordomain.ComunalName}, nil
	}
	return dashboarddomain.Snapshot{}, scope{}, dashboarddomain.ErrCenterNotFound
}

func (s *Service) newDocument(format string, sc scope) Document {
	now := s.clock.Now()
	contentType := ContentTypePDF
	if format == FormatXLSX {
		contentType = ContentTypeXLSX
	}
	return Document{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		FileName:    slug.Make(fmt.Sprintf("reporte iaaps %s %s", sc.name, now.Format("2006-01-02"))) + "." + format,
		Format:      format,
		ContentType: contentType,
		GeneratedAt: now,
	}
}

func resultRows(store *indicatordomain.Store, code, name, entityType, parent string) []xlsx.ResultRow {
	var out []xlsx.ResultRow
	for _, ind := range store.Indicators {
		res, ok := store.Result(ind.Code, code)
		if !ok {
			continue
		}
		row := xlsx.ResultRow{
			EntityType:    entityType,
			EntityCode:    code,
			EntityName:    name,
			ParentCenter:  parent,
			IndicatorCode: ind.Code,
			IndicatorName: ind.Name,
			Target:        ind.Target,
			Numerator:     res.Numerator,
			Denominator:   res.Denominator,
			Value:         round2(res.Value),
			Stale:         res.Stale,
		}
		if res.Compliance != nil {
			c := round2(*res.Compliance)
			row.Compliance = &c
		}
		out = append(out, row)
	}
	return out
}

func formatIndicatorValue(kind string, v float64) string {
	if indicatordomain.IndicatorKind(kind) == indicatordomain.KindRate {
		return formatNumber(v)
	}
	return formatPercent(v)
}

func status(row dashboarddomain.IndicatorRow) string {
	switch {
	case row.Compliance == nil:
		return statusNoResults
	case row.MeetsTarget:
		return statusMeets
	default:
		return statusBelow
	}
}
