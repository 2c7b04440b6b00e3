package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/iaaps/internal/clock"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var loadedAt = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

type fakeDashboard struct {
	dashboarddomain.Service

	mu       sync.Mutex
	calls    int
	err      error
	refreshC chan struct{}
}

func (f *fakeDashboard) Refresh(ctx context.Context) (dashboarddomain.RefreshResult, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if f.refreshC != nil {
		f.refreshC <- struct{}{}
	}
	if err != nil {
		return dashboarddomain.RefreshResult{}, err
	}
	return dashboarddomain.RefreshResult{LoadedAt: loadedAt}, nil
}

func (f *fakeDashboard) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLock struct {
	held     bool
	err      error
	released []string
}

func (l *fakeLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	return "token-1", true, nil
}

func (l *fakeLock) Holder(ctx context.Context, key string) (string, error) {
	if l.held {
		return "other-host", nil
	}
	return "", nil
}

func (l *fakeLock) Release(ctx context.Context, key, token string) error {
	l.released = append(l.released, key+"="+token)
	return nil
}

func newTestScheduler(t *testing.T, dash *fakeDashboard, lock Lock, cfg Config) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	p := Params{
		Dashboard: dash,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(loadedAt),
		Config:    cfg,
		Metrics:   obsmetrics.NewRefreshMetricsForTest(registry),
	}
	if lock != nil {
		p.Lock = lock
	}
	s, err := New(p)
	require.NoError(t, err)
	return s, registry
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRecordsSuccess(t *testing.T) {
	dash := &fakeDashboard{}
	s, registry := newTestScheduler(t, dash, nil, Config{})

	require.NoError(t, s.RunOnce(context.Background(), TriggerManual))
	assert.Equal(t, 1, dash.Calls())

	assert.Equal(t, 1.0, metricValue(t, registry, "iaaps_refresh_runs_total", map[string]string{"trigger": TriggerManual}))
	assert.Equal(t, float64(loadedAt.Unix()), metricValue(t, registry, "iaaps_refresh_last_success_timestamp_seconds", nil))
}

func TestRunOnceClassifiesErrors(t *testing.T) {
	dash := &fakeDashboard{err: indicatordomain.ErrEmptyDataset}
	s, registry := newTestScheduler(t, dash, nil, Config{})

	err := s.RunOnce(context.Background(), TriggerInterval)
	require.Error(t, err)
	assert.ErrorIs(t, err, indicatordomain.ErrEmptyDataset)

	labels := map[string]string{"trigger": TriggerInterval, "reason": obsmetrics.RefreshReasonEmptyDataset}
	assert.Equal(t, 1.0, metricValue(t, registry, "iaaps_refresh_errors_total", labels))
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	dash := &fakeDashboard{}
	s, registry := newTestScheduler(t, dash, &fakeLock{held: true}, Config{})

	require.NoError(t, s.RunOnce(context.Background(), TriggerInterval))
	assert.Equal(t, 0, dash.Calls())
	assert.Equal(t, 1.0, metricValue(t, registry, "iaaps_refresh_skipped_total", map[string]string{"reason": obsmetrics.RefreshReasonLockHeld}))
}

func TestRunOnceReleasesLock(t *testing.T) {
	dash := &fakeDashboard{}
	lock := &fakeLock{}
	s, _ := newTestScheduler(t, dash, lock, Config{LockKey: "refresh"})

	require.NoError(t, s.RunOnce(context.Background(), TriggerInterval))
	assert.Equal(t, 1, dash.Calls())
	assert.Equal(t, []string{"refresh=token-1"}, lock.released)
}

func TestRunOnceFailsOpenOnLockError(t *testing.T) {
	dash := &fakeDashboard{}
	lock := &fakeLock{err: errors.New("connection refused")}
	s, _ := newTestScheduler(t, dash, lock, Config{})

	require.NoError(t, s.RunOnce(context.Background(), TriggerInterval))
	assert.Equal(t, 1, dash.Calls())
	assert.Empty(t, lock.released)
}

func TestRunForeverRefreshesOnTicksAndTriggers(t *testing.T) {
	dash := &fakeDashboard{refreshC: make(chan struct{})}
	s, registry := newTestScheduler(t, dash, nil, Config{Interval: time.Minute})

	ticks := make(chan time.Time)
	stopped := make(chan struct{})
	s.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
		assert.Equal(t, time.Minute, d)
		return ticks, func() { close(stopped) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	waitRefresh(t, dash.refreshC)
	ticks <- loadedAt
	waitRefresh(t, dash.refreshC)
	s.Trigger(TriggerCatalogChange)
	waitRefresh(t, dash.refreshC)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop")
	}
	<-stopped

	assert.Equal(t, 3, dash.Calls())
	assert.Equal(t, 1.0, metricValue(t, registry, "iaaps_refresh_runs_total", map[string]string{"trigger": TriggerStartup}))
	assert.Equal(t, 1.0, metricValue(t, registry, "iaaps_refresh_runs_total", map[string]string{"trigger": TriggerInterval}))
	assert.Equal(t, 1.0, metricValue(t, registry, "iaaps_refresh_runs_total", map[string]string{"trigger": TriggerCatalogChange}))
}

func TestRunForeverWithoutIntervalOnlyRefreshesOnStartup(t *testing.T) {
	dash := &fakeDashboard{refreshC: make(chan struct{})}
	s, _ := newTestScheduler(t, dash, nil, Config{})
	tickerStarted := false
	s.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		tickerStarted = true
		return nil, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	waitRefresh(t, dash.refreshC)
	cancel()
	<-done
	assert.Equal(t, 1, dash.Calls())
	assert.False(t, tickerStarted)
}

func TestTriggerCoalesces(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeDashboard{}, nil, Config{})

	s.Trigger(TriggerCatalogChange)
	s.Trigger(TriggerManual)
	assert.Len(t, s.triggers, 1)
	assert.Equal(t, TriggerCatalogChange, <-s.triggers)
}

func waitRefresh(t *testing.T, c <-chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

// metricValue returns the counter or gauge value of the series whose
// variable labels match labels; service/env const labels are ignored.
func metricValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if !labelsMatch(m, labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, l := range m.Label {
			if l.GetName() == k && l.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestProvideLockWithoutRedis(t *testing.T) {
	assert.Nil(t, ProvideLock(nil).Lock)
}
