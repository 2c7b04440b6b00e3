package rollup

import (
	"context"
	"time"

	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	StageEstablishments = "establishments_into_centers"
	StageComunal        = "centers_into_comunal"
	StageCompliance     = "compliance"

	maxCompliance = 100.0
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Engine derives center, comunal and compliance values from establishment
// results. It keeps no state between calls.
type Engine struct {
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	tracer  trace.Tracer
}

func NewEngine(p Params) *Engine {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:     log.Named("indicator.rollup"),
		metrics: p.Metrics,
		tracer:  otel.Tracer("iaaps/rollup"),
	}
}

// Outcome reports what a single stage changed.
type Outcome struct {
	Stage    string             `json:"stage"`
	Updated  []domain.ResultKey `json:"updated"`
	Warnings []domain.Warning   `json:"warnings,omitempty"`
}

func (o *Outcome) warn(w domain.Warning) {
	o.Warnings = append(o.Warnings, w)
}

// RollupEstablishmentsIntoCenters sums establishment results into their
// parent center. A center's result is always rebuilt from its pre-rollup
// snapshot plus a fresh establishment sum, so repeated calls never
// double-count.
func (e *Engine) RollupEstablishmentsIntoCenters(ctx context.Context, store *domain.Store) (Outcome, error) {
	out := Outcome{Stage: StageEstablishments}
	if store == nil {
		return out, domain.ErrNilStore
	}
	ctx, span := e.startStage(ctx, StageEstablishments)
	defer span.End()

	for _, center := range store.FacilityCenters() {
		establishments := store.EstablishmentsOf(center.Code)
		if len(establishments) == 0 {
			continue
		}
		for _, ind := range store.Indicators {
			res, ok := store.Result(ind.Code, center.Code)
			if !ok {
				out.warn(domain.MissingResult(ind.Code, center.Code))
				continue
			}
			if !res.Snapshotted() {
				num := finiteOrZero(&out, ind.Code, center.Code, "numerator", res.Numerator)
				den := finiteOrZero(&out, ind.Code, center.Code, "denominator", res.Denominator)
				res.Snapshot(num, den)
			}

			var sumNum, sumDen float64
			for _, est := range establishments {
				er, ok := store.Result(ind.Code, est.Code)
				if !ok {
					out.warn(domain.MissingResult(ind.Code, est.Code))
					continue
				}
				sumNum += finiteOrZero(&out, ind.Code, est.Code, "numerator", er.Numerator)
				sumDen += finiteOrZero(&out, ind.Code, est.Code, "denominator", er.Denominator)
			}

			res.Numerator = *res.OriginalNumerator + sumNum
			res.Denominator = *res.OriginalDenominator + sumDen
			recomputeValue(ind.Kind, res)
			out.Updated = append(out.Updated, domain.ResultKey{IndicatorCode: ind.Code, EntityCode: center.Code})
		}
	}

	e.finishStage(ctx, span, &out)
	return out, nil
}

// RollupCentersIntoComunal rebuilds the comunal result of every indicator
// as the sum over all facility centers. It must run after
// RollupEstablishmentsIntoCenters.
func (e *Engine) RollupCentersIntoComunal(ctx context.Context, store *domain.Store) (Outcome, error) {
	out := Outcome{Stage: StageComunal}
	if store == nil {
		return out, domain.ErrNilStore
	}
	if !store.HasResults() {
		return out, domain.ErrEmptyDataset
	}
	ctx, span := e.startStage(ctx, StageComunal)
	defer span.End()

	store.EnsureComunal()
	centers := store.FacilityCenters()

	for _, ind := range store.Indicators {
		res, ok := store.Result(ind.Code, domain.ComunalCode)
		if !ok {
			res = &domain.Result{}
			store.SetResult(ind.Code, domain.ComunalCode, res)
		}
		if !res.Snapshotted() {
			num := finiteOrZero(&out, ind.Code, domain.ComunalCode, "numerator", res.Numerator)
			den := finiteOrZero(&out, ind.Code, domain.ComunalCode, "denominator", res.Denominator)
			res.Snapshot(num, den)
		}

		var sumNum, sumDen float64
		for _, center := range centers {
			cr, ok := store.Result(ind.Code, center.Code)
			if !ok {
				out.warn(domain.MissingResult(ind.Code, center.Code))
				continue
			}
			sumNum += finiteOrZero(&out, ind.Code, center.Code, "numerator", cr.Numerator)
			sumDen += finiteOrZero(&out, ind.Code, center.Code, "denominator", cr.Denominator)
		}

		res.Numerator = sumNum
		res.Denominator = sumDen
		recomputeValue(ind.Kind, res)
		out.Updated = append(out.Updated, domain.ResultKey{IndicatorCode: ind.Code, EntityCode: domain.ComunalCode})
	}

	e.finishStage(ctx, span, &out)
	return out, nil
}

// ComputeCompliance derives each scored result's value from its numerator
// and denominator, then stores per-result compliance and each entity's
// average compliance.
func (e *Engine) ComputeCompliance(ctx context.Context, store *domain.Store) (Outcome, error) {
	out := Outcome{Stage: StageCompliance}
	if store == nil {
		return out, domain.ErrNilStore
	}
	if !store.HasResults() {
		return out, domain.ErrEmptyDataset
	}
	ctx, span := e.startStage(ctx, StageCompliance)
	defer span.End()

	for _, center := range store.Centers {
		center.Derived.AverageCompliance = entityCompliance(store, center.Code, &out)
	}
	for _, est := range store.Establishments {
		est.Derived.AverageCompliance = entityCompliance(store, est.Code, &out)
	}

	e.finishStage(ctx, span, &out)
	return out, nil
}

func entityCompliance(store *domain.Store, entityCode string, out *Outcome) float64 {
	var sum float64
	var n int
	for _, ind := range store.Indicators {
		res, ok := store.Result(ind.Code, entityCode)
		if !ok {
			continue
		}
		if !(res.Denominator > 0) {
			res.Compliance = nil
			continue
		}
		if v, ok := domain.ComputeValue(ind.Kind, res.Numerator, res.Denominator); ok {
			res.Value = v
			res.Stale = false
		}
		c := Compliance(ind, res.Value)
		res.Compliance = &c
		sum += c
		n++
		out.Updated = append(out.Updated, domain.ResultKey{IndicatorCode: ind.Code, EntityCode: entityCode})
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Compliance is value as a percentage of the indicator target, bounded to
// [0, 100]. Indicators without a positive target score 0.
func Compliance(ind domain.Indicator, value float64) float64 {
	if !(ind.Target > 0) || !domain.IsFinite(ind.Target) || !domain.IsFinite(value) {
		return 0
	}
	c := value / ind.Target * 100
	switch {
	case !domain.IsFinite(c), c < 0:
		return 0
	case c > maxCompliance:
		return maxCompliance
	}
	return c
}

// recomputeValue leaves Value untouched and marks it stale when the
// denominator is zero.
func recomputeValue(kind domain.IndicatorKind, res *domain.Result) {
	v, ok := domain.ComputeValue(kind, res.Numerator, res.Denominator)
	if !ok {
		res.Stale = true
		// NaN/Inf guard: a non-finite carried value is reset to 0.
		if !domain.IsFinite(res.Value) {
			res.Value = 0
		}
		return
	}
	res.Value = v
	res.Stale = false
}

func finiteOrZero(out *Outcome, indicatorCode, entityCode, field string, v float64) float64 {
	if domain.IsFinite(v) {
		return v
	}
	out.warn(domain.MalformedValue(indicatorCode, entityCode, field))
	return 0
}

func (e *Engine) startStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "rollup."+stage, trace.WithAttributes(attribute.String("rollup.stage", stage)))
}

func (e *Engine) finishStage(ctx context.Context, span trace.Span, out *Outcome) {
	span.SetAttributes(
		attribute.Int("rollup.updated", len(out.Updated)),
		attribute.Int("rollup.warnings", len(out.Warnings)),
	)
	for _, w := range out.Warnings {
		e.log.Warn("rollup warning",
			zap.String("stage", out.Stage),
			zap.String("kind", string(w.Kind)),
			zap.String("indicator", w.IndicatorCode),
			zap.String("entity", w.EntityCode),
			zap.String("detail", w.Message),
		)
		e.metrics.RecordRollupWarning(ctx, string(w.Kind))
	}
}

// Stage is one named step of the rollup pipeline.
type Stage struct {
	Name  string
	Apply func(ctx context.Context, store *domain.Store) (Outcome, error)
}

// Pipeline returns the stages in the order they must run.
func (e *Engine) Pipeline() []Stage {
	return []Stage{
		{Name: StageEstablishments, Apply: e.RollupEstablishmentsIntoCenters},
		{Name: StageComunal, Apply: e.RollupCentersIntoComunal},
		{Name: StageCompliance, Apply: e.ComputeCompliance},
	}
}

// Summary aggregates the outcome of a full pipeline run.
type Summary struct {
	Stages   []Outcome        `json:"stages"`
	Warnings []domain.Warning `json:"warnings,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Run executes the pipeline on store. It stops at the first stage error.
func (e *Engine) Run(ctx context.Context, store *domain.Store) (Summary, error) {
	return e.RunStages(ctx, store, e.Pipeline())
}

func (e *Engine) RunStages(ctx context.Context, store *domain.Store, stages []Stage) (Summary, error) {
	start := time.Now()
	var summary Summary
	if store == nil {
		return summary, domain.ErrNilStore
	}
	if !store.HasResults() {
		e.metrics.RecordRollupRun(ctx, "failed")
		return summary, domain.ErrEmptyDataset
	}

	ctx, span := e.tracer.Start(ctx, "rollup.pipeline")
	defer span.End()

	for _, stage := range stages {
		out, err := stage.Apply(ctx, store)
		summary.Stages = append(summary.Stages, out)
		summary.Warnings = append(summary.Warnings, out.Warnings...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rollup failed")
			e.metrics.RecordRollupRun(ctx, "failed")
			e.log.Error("rollup stage failed", zap.String("stage", stage.Name), zap.Error(err))
			return summary, err
		}
	}
	summary.Duration = time.Since(start)

	e.metrics.RecordRollupRun(ctx, "succeeded")
	e.log.Info("rollup completed",
		zap.Int("indicators", len(store.Indicators)),
		zap.Int("centers", len(store.Centers)),
		zap.Int("establishments", len(store.Establishments)),
		zap.Int("warnings", len(summary.Warnings)),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}
