package scheduler

import (
	"time"

	"github.com/smallbiznis/iaaps/internal/dashboard/domain"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	"go.uber.org/zap"
)

type refreshRun struct {
	trigger   string
	runID     string
	startedAt time.Time
}

func (s *Scheduler) startRun(trigger string) *refreshRun {
	return &refreshRun{
		trigger:   trigger,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
}

func (s *Scheduler) logRunFinished(log *zap.Logger, run *refreshRun, result domain.RefreshResult) {
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("warning_count", len(result.Warnings)),
		zap.Time("loaded_at", result.LoadedAt),
	}
	if len(result.Warnings) > 0 {
		log.Warn("scheduler.refresh.finish", fields...)
		return
	}
	log.Info("scheduler.refresh.finish", fields...)
}

func (s *Scheduler) logRunFailed(log *zap.Logger, run *refreshRun, err error) {
	log.Error("scheduler.refresh.failed",
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.String("reason", obsmetrics.ClassifyRefreshError(err)),
		zap.Error(err),
	)
}
