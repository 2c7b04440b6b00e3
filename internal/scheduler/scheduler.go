package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/iaaps/internal/clock"
	"github.com/smallbiznis/iaaps/internal/config"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TriggerStartup       = "startup"
	TriggerInterval      = "interval"
	TriggerCatalogChange = "catalog_change"
	TriggerManual        = "manual"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Dashboard dashboarddomain.Service
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config                     `optional:"true"`
	Lock      Lock                       `optional:"true"`
	Catalog   *config.CatalogHolder      `optional:"true"`
	Metrics   *obsmetrics.RefreshMetrics `optional:"true"`
}

// Scheduler refreshes the dashboard snapshot on startup, on a fixed
// interval and whenever the catalog file changes.
type Scheduler struct {
	dashboard dashboarddomain.Service
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	lock      Lock
	metrics   *obsmetrics.RefreshMetrics

	// newTicker is swapped in tests.
	newTicker func(d time.Duration) (<-chan time.Time, func())

	triggers chan string
}

func New(p Params) (*Scheduler, error) {
	if p.Dashboard == nil || p.Log == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Refresh()
	}
	s := &Scheduler{
		dashboard: p.Dashboard,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		lock:      p.Lock,
		metrics:   metrics,
		newTicker: systemTicker,
		triggers:  make(chan string, 1),
	}
	if p.Catalog != nil {
		p.Catalog.OnChange(func(config.Catalog) {
			s.Trigger(TriggerCatalogChange)
		})
	}
	return s, nil
}

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Trigger requests an out-of-band refresh. Requests arriving while one is
// already pending are coalesced.
func (s *Scheduler) Trigger(trigger string) {
	select {
	case s.triggers <- trigger:
	default:
	}
}

// RunOnce performs a single guarded refresh. A refresh skipped because
// another instance holds the lock is not an error.
func (s *Scheduler) RunOnce(parent context.Context, trigger string) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	run := s.startRun(trigger)
	log := s.log.With(zap.String("trigger", trigger), zap.String("run_id", run.runID))

	if s.lock != nil {
		token, ok, err := s.lock.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			log.Warn("refresh lock unavailable, refreshing without it", zap.Error(err))
		case !ok:
			s.metrics.IncSkipped(obsmetrics.RefreshReasonLockHeld)
			holder, _ := s.lock.Holder(ctx, s.cfg.LockKey)
			log.Info("scheduler.refresh.skipped",
				zap.String("reason", obsmetrics.RefreshReasonLockHeld),
				zap.String("holder", holder),
			)
			return nil
		default:
			defer func() {
				// ctx may already be done; release on a fresh one.
				if err := s.lock.Release(context.WithoutCancel(parent), s.cfg.LockKey, token); err != nil {
					log.Warn("failed to release refresh lock", zap.Error(err))
				}
			}()
		}
	}

	s.metrics.IncRun(trigger)
	result, err := s.dashboard.Refresh(ctx)
	duration := s.clock.Now().Sub(run.startedAt)
	s.metrics.ObserveDuration(trigger, duration)
	if err != nil {
		s.metrics.IncError(trigger, err)
		s.logRunFailed(log, run, err)
		return fmt.Errorf("refresh (%s): %w", trigger, err)
	}

	s.metrics.MarkSuccess(result.LoadedAt)
	s.logRunFinished(log, run, result)
	return nil
}

// RunForever refreshes immediately, then on every tick and trigger until
// ctx is done. With a zero interval only triggers cause further refreshes.
func (s *Scheduler) RunForever(ctx context.Context) {
	if err := s.RunOnce(ctx, TriggerStartup); err != nil {
		s.log.Warn("startup refresh failed; serving without data until the next refresh", zap.Error(err))
	}

	var ticks <-chan time.Time
	if s.cfg.Interval > 0 {
		c, stop := s.newTicker(s.cfg.Interval)
		defer stop()
		ticks = c
	}

	for {
		trigger := ""
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			trigger = TriggerInterval
		case trigger = <-s.triggers:
		}
		if err := s.RunOnce(ctx, trigger); err != nil {
			s.log.Warn("scheduled refresh failed", zap.Error(err))
		}
	}
}
