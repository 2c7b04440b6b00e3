package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pdfReportPath  = "/api/v1/reports/pdf"
	xlsxReportPath = "/api/v1/reports/xlsx"
	maxQueryLength = 500
)

var (
	ErrEmptyQuery   = errors.New("empty_query")
	ErrQueryTooLong = errors.New("query_too_long")
)

const helpText = `Puedo ayudarte con:
• "resumen": cumplimiento comunal y estado general
• "ranking": centros ordenados por cumplimiento
• "bajo meta": indicadores que no alcanzan su meta
• "indicador <código>": detalle de un indicador
• "centro <código o nombre>": detalle de un centro
• "reporte pdf" o "reporte excel": descargar el reporte`

const noDataText = "Aún no hay datos cargados. Intenta nuevamente en unos minutos."

type Query struct {
	Text string `json:"text" binding:"required"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Reply struct {
	ID     string `json:"id"`
	Intent Intent `json:"intent"`
	Text   string `json:"text"`
	Links  []Link `json:"links,omitempty"`
}

type Params struct {
	fx.In

	Dashboard dashboarddomain.Service
	GenID     *snowflake.Node
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	dashboard dashboarddomain.Service
	genID     *snowflake.Node
	log       *zap.Logger
	metrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		dashboard: p.Dashboard,
		genID:     p.GenID,
		log:       p.Log.Named("assistant.service"),
		metrics:   p.Metrics,
	}
}

// Ask answers a canned query. Unknown queries get the help text; a missing
// dataset is answered in the reply rather than returned as an error.
func (s *Service) Ask(ctx context.Context, q Query) (Reply, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Reply{}, ErrEmptyQuery
	}
	if len(text) > maxQueryLength {
		return Reply{}, ErrQueryTooLong
	}

	m := detect(text)
	reply, err := s.answer(ctx, m)
	if err != nil {
		if !errors.Is(err, dashboarddomain.ErrNoData) {
			return Reply{}, err
		}
		reply = Reply{Text: noDataText}
	}
	reply.ID = s.genID.Generate().String()
	reply.Intent = m.intent

	s.metrics.RecordAssistantQuery(ctx, string(m.intent))
	s.log.Debug("assistant query answered", zap.String("intent", string(m.intent)), zap.String("arg", m.arg))
	return reply, nil
}

func (s *Service) answer(ctx context.Context, m match) (Reply, error) {
	switch m.intent {
	case IntentSummary:
		return s.summary(ctx)
	case IntentRanking:
		return s.ranking(ctx)
	case IntentBelowTarget:
		return s.belowTarget(ctx)
	case IntentIndicator:
		return s.indicator(ctx, m.arg)
	case IntentCenter:
		return s.center(ctx, m.arg)
	case IntentReportPDF:
		return s.report(ctx, "PDF", pdfReportPath, m.arg)
	case IntentReportXLSX:
		return s.report(ctx, "Excel", xlsxReportPath, m.arg)
	case IntentUnknown:
		return Reply{Text: "No entendí la consulta.\n" + helpText}, nil
	default:
		return Reply{Text: helpText}, nil
	}
}

func (s *Service) summary(ctx context.Context) (Reply, error) {
	sum, err := s.dashboard.Summary(ctx)
	if err != nil {
		return Reply{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cumplimiento comunal promedio: %s.\n", pct(sum.ComunalAverageCompliance))
	fmt.Fprintf(&b, "%d de %d indicadores cumplen su meta; %d están bajo meta.\n",
		sum.IndicatorsMeetingTarget, sum.IndicatorCount, sum.IndicatorsBelowTarget)
	fmt.Fprintf(&b, "%d centros y %d establecimientos considerados.", sum.CenterCount, sum.EstablishmentCount)
	if sum.BestCenter != nil && sum.WorstCenter != nil {
		fmt.Fprintf(&b, "\nMejor centro: %s (%s). Menor cumplimiento: %s (%s).",
			sum.BestCenter.Name, pct(sum.BestCenter.AverageCompliance),
			sum.WorstCenter.Name, pct(sum.WorstCenter.AverageCompliance))
	}
	return Reply{Text: b.String()}, nil
}

func (s *Service) ranking(ctx context.Context) (Reply, error) {
	scores, err := s.dashboard.Ranking(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(scores) == 0 {
		return Reply{Text: "No hay centros con resultados."}, nil
	}
	lines := make([]string, 0, len(scores)+1)
	lines = append(lines, "Ranking de centros por cumplimiento promedio:")
	for _, sc := range scores {
		lines = append(lines, fmt.Sprintf("%d. %s: %s", sc.Rank, sc.Name, pct(sc.AverageCompliance)))
	}
	return Reply{Text: strings.Join(lines, "\n")}, nil
}

func (s *Service) belowTarget(ctx context.Context) (Reply, error) {
	rows, err := s.dashboard.ListIndicators(ctx)
	if err != nil {
		return Reply{}, err
	}
	var lines []string
	for _, row := range rows {
		if row.Compliance == nil || row.MeetsTarget {
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s %s: %s de cumplimiento", row.Code, row.Name, pct(*row.Compliance)))
	}
	if len(lines) == 0 {
		return Reply{Text: "Todos los indicadores comunales alcanzan su meta."}, nil
	}
	return Reply{Text: "Indicadores comunales bajo meta:\n" + strings.Join(lines, "\n")}, nil
}

func (s *Service) indicator(ctx context.Context, code string) (Reply, error) {
	detail, err := s.dashboard.IndicatorDetail(ctx, code)
	if errors.Is(err, dashboarddomain.ErrIndicatorNotFound) {
		return Reply{Text: fmt.Sprintf("No encontré el indicador %q.", strings.ToUpper(code))}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	ind := detail.Indicator
	text := fmt.Sprintf("%s %s: resultado comunal %s, meta %s, cumplimiento %s.",
		ind.Code, ind.Name, value(ind.Kind, ind.Value), value(ind.Kind, ind.Target), compliance(ind.Compliance))
	return Reply{Text: text}, nil
}

func (s *Service) center(ctx context.Context, arg string) (Reply, error) {
	code, err := s.resolveCenter(ctx, arg)
	if err != nil {
		return Reply{}, err
	}
	if code == "" {
		return Reply{Text: fmt.Sprintf("No encontré el centro %q.", strings.ReplaceAll(arg, "-", " "))}, nil
	}
	detail, err := s.dashboard.CenterDetail(ctx, code)
	if err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: cumplimiento promedio %s (lugar %d).", detail.Center.Name, pct(detail.Center.AverageCompliance), detail.Center.Rank)
	for _, row := range detail.Results {
		if !row.HasResult {
			continue
		}
		fmt.Fprintf(&b, "\n• %s: %s (%s)", row.Code, value(row.Kind, row.Value), compliance(row.Compliance))
	}
	return Reply{
		Text:  b.String(),
		Links: []Link{{Label: "Reporte PDF del centro", URL: pdfReportPath + "?center=" + detail.Center.Code}},
	}, nil
}

func (s *Service) report(ctx context.Context, label, path, centerArg string) (Reply, error) {
	if _, err := s.dashboard.Summary(ctx); err != nil {
		return Reply{}, err
	}
	link := Link{Label: "Descargar reporte " + label, URL: path}
	if centerArg != "" {
		code, err := s.resolveCenter(ctx, centerArg)
		if err != nil {
			return Reply{}, err
		}
		if code != "" {
			link.URL += "?center=" + code
		}
	}
	return Reply{Text: "Tu reporte " + label + " está listo para descargar.", Links: []Link{link}}, nil
}

// resolveCenter matches arg against center codes and slugged names. It
// returns "" when nothing matches.
func (s *Service) resolveCenter(ctx context.Context, arg string) (string, error) {
	scores, err := s.dashboard.Ranking(ctx)
	if err != nil {
		return "", err
	}
	for _, sc := range scores {
		if strings.EqualFold(sc.Code, arg) || slug.Make(sc.Name) == arg {
			return sc.Code, nil
		}
	}
	for _, sc := range scores {
		if strings.Contains(slug.Make(sc.Name), arg) {
			return sc.Code, nil
		}
	}
	return "", nil
}

func pct(v float64) string {
	return strings.Replace(decimal.NewFromFloat(v).Round(1).StringFixed(1), ".", ",", 1) + "%"
}

func value(kind string, v float64) string {
	if indicatordomain.IndicatorKind(kind) == indicatordomain.KindRate {
		return strings.Replace(decimal.NewFromFloat(v).Round(2).StringFixed(2), ".", ",", 1)
	}
	return pct(v)
}

func compliance(c *float64) string {
	if c == nil {
		return "sin datos"
	}
	return pct(*c)
}
