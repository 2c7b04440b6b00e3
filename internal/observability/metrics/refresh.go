package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
)

const (
	RefreshReasonDeadlineExceeded = "deadline_exceeded"
	RefreshReasonEmptyDataset     = "empty_dataset"
	RefreshReasonLockHeld         = "lock_held"
	RefreshReasonUnknown          = "unknown"
)

// RefreshMetrics captures dataset refresh job health.
type RefreshMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastOK   prometheus.Gauge
}

var (
	refreshMetricsOnce sync.Once
	refreshMetrics     *RefreshMetrics
)

// Refresh returns the singleton refresh metrics registry.
func Refresh() *RefreshMetrics {
	return RefreshWithConfig(Config{})
}

// RefreshWithConfig returns the singleton refresh metrics registry using config labels.
func RefreshWithConfig(cfg Config) *RefreshMetrics {
	refreshMetricsOnce.Do(func() {
		refreshMetrics = newRefreshMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return refreshMetrics
}

// ResetRefreshMetricsForTest resets the refresh metrics singleton for tests.
func ResetRefreshMetricsForTest() {
	refreshMetricsOnce = sync.Once{}
	refreshMetrics = nil
}

// NewRefreshMetricsForTest builds refresh metrics on a private registry.
func NewRefreshMetricsForTest(registerer prometheus.Registerer) *RefreshMetrics {
	return newRefreshMetrics(registerer, Config{ServiceName: "iaaps-test", Environment: "test"})
}

func newRefreshMetrics(registerer prometheus.Registerer, cfg Config) *RefreshMetrics {
	constLabels := serviceLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "iaaps_refresh_runs_total",
		Help:        "Dataset refresh runs by trigger.",
		ConstLabels: constLabels,
	}, []string{"trigger"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "iaaps_refresh_errors_total",
		Help:        "Dataset refresh failures by reason.",
		ConstLabels: constLabels,
	}, []string{"trigger", "reason"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "iaaps_refresh_skipped_total",
		Help:        "Dataset refresh runs skipped by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "iaaps_refresh_duration_seconds",
		Help:        "Dataset refresh duration in seconds.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"trigger"})
	lastOK := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "iaaps_refresh_last_success_timestamp_seconds",
		Help:        "Unix time of the last successful dataset refresh.",
		ConstLabels: constLabels,
	})

	runs, _ = registerOrReuse(registerer, runs)
	errs, _ = registerOrReuse(registerer, errs)
	skipped, _ = registerOrReuse(registerer, skipped)
	duration, _ = registerOrReuse(registerer, duration)
	lastOK, _ = registerOrReuse(registerer, lastOK)

	return &RefreshMetrics{
		runs:     runs,
		errors:   errs,
		skipped:  skipped,
		duration: duration,
		lastOK:   lastOK,
	}
}

func (m *RefreshMetrics) IncRun(trigger string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
}

func (m *RefreshMetrics) ObserveDuration(trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (m *RefreshMetrics) IncError(trigger string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(trigger, ClassifyRefreshError(err)).Inc()
}

func (m *RefreshMetrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *RefreshMetrics) MarkSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.lastOK.Set(float64(at.Unix()))
}

// ClassifyRefreshError maps a refresh error onto a low-cardinality reason.
func ClassifyRefreshError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return RefreshReasonDeadlineExceeded
	case errors.Is(err, indicatordomain.ErrEmptyDataset):
		return RefreshReasonEmptyDataset
	default:
		return RefreshReasonUnknown
	}
}
