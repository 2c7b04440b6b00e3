package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/iaaps/internal/clock"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/smallbiznis/iaaps/internal/indicator/loader"
	"github.com/smallbiznis/iaaps/internal/indicator/rollup"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Source loader.Source
	Engine *rollup.Engine
	Log    *zap.Logger
	Clock  clock.Clock `optional:"true"`
}

// Service owns the live rolled-up snapshot. Readers share an RWMutex; a
// refresh builds its store off-lock and swaps it in.
type Service struct {
	source loader.Source
	engine *rollup.Engine
	log    *zap.Logger
	clock  clock.Clock

	refreshMu sync.Mutex

	mu       sync.RWMutex
	store    *indicatordomain.Store
	warnings []indicatordomain.Warning
	loadedAt time.Time
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		source: p.Source,
		engine: p.Engine,
		log:    p.Log.Named("dashboard.service"),
		clock:  clk,
	}
}

var _ dashboarddomain.Service = (*Service)(nil)

func (s *Service) Refresh(ctx context.Context) (dashboarddomain.RefreshResult, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := s.clock.Now()
	store, loadWarnings, err := s.source.Load(ctx)
	if err != nil {
		s.log.Error("load failed, keeping previous snapshot", zap.Error(err))
		return dashboarddomain.RefreshResult{}, fmt.Errorf("load: %w", err)
	}
	if store == nil {
		return dashboarddomain.RefreshResult{}, indicatordomain.ErrEmptyDataset
	}
	if err := store.Validate(); err != nil {
		s.log.Error("invalid dataset, keeping previous snapshot", zap.Error(err))
		return dashboarddomain.RefreshResult{}, err
	}

	summary, err := s.engine.Run(ctx, store)
	if err != nil {
		s.log.Error("rollup failed, keeping previous snapshot", zap.Error(err))
		return dashboarddomain.RefreshResult{}, err
	}

	warnings := make([]indicatordomain.Warning, 0, len(loadWarnings)+len(summary.Warnings))
	warnings = append(warnings, loadWarnings...)
	warnings = append(warnings, summary.Warnings...)
	loadedAt := s.clock.Now()

	s.mu.Lock()
	s.store = store
	s.warnings = warnings
	s.loadedAt = loadedAt
	s.mu.Unlock()

	s.log.Info("dashboard refreshed",
		zap.Int("results", len(store.Results)),
		zap.Int("warnings", len(warnings)),
	)
	return dashboarddomain.RefreshResult{
		LoadedAt: loadedAt,
		Duration: loadedAt.Sub(start),
		Warnings: warnings,
		Stages:   summary.Stages,
	}, nil
}

// read runs fn under the read lock, or returns ErrNoData before the first
// successful refresh.
func (s *Service) read(fn func(store *indicatordomain.Store) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return dashboarddomain.ErrNoData
	}
	return fn(s.store)
}

func (s *Service) Summary(ctx context.Context) (dashboarddomain.Summary, error) {
	var out dashboarddomain.Summary
	err := s.read(func(store *indicatordomain.Store) error {
		out.LoadedAt = s.loadedAt
		out.WarningCount = len(s.warnings)
		out.IndicatorCount = len(store.Indicators)
		out.EstablishmentCount = len(store.Establishments)
		if comunal, ok := store.Comunal(); ok {
			out.ComunalAverageCompliance = comunal.Derived.AverageCompliance
		}
		for _, row := range IndicatorRows(store, indicatordomain.ComunalCode) {
			if row.Compliance == nil {
				continue
			}
			if row.MeetsTarget {
				out.IndicatorsMeetingTarget++
			} else {
				out.IndicatorsBelowTarget++
			}
		}
		ranking := RankCenters(store)
		out.CenterCount = len(ranking)
		if len(ranking) > 0 {
			best := ranking[0]
			worst := ranking[len(ranking)-1]
			out.BestCenter = &best
			out.WorstCenter = &worst
		}
		return nil
	})
	return out, err
}

// ListIndicators returns the comunal result of every indicator.
func (s *Service) ListIndicators(ctx context.Context) ([]dashboarddomain.IndicatorRow, error) {
	var out []dashboarddomain.IndicatorRow
	err := s.read(func(store *indicatordomain.Store) error {
		out = IndicatorRows(store, indicatordomain.ComunalCode)
		return nil
	})
	return out, err
}

func (s *Service) IndicatorDetail(ctx context.Context, code string) (dashboarddomain.IndicatorDetail, error) {
	var out dashboarddomain.IndicatorDetail
	err := s.read(func(store *indicatordomain.Store) error {
		ind, ok := findIndicator(store, code)
		if !ok {
			return dashboarddomain.ErrIndicatorNotFound
		}
		res, _ := store.Result(ind.Code, indicatordomain.ComunalCode)
		out.Indicator = indicatorRow(ind, res)

		for _, c := range store.Centers {
			entityType := dashboarddomain.EntityCenter
			if c.IsComunal() {
				entityType = dashboarddomain.EntityComunal
			}
			if r, ok := store.Result(ind.Code, c.Code); ok {
				out.Entities = append(out.Entities, entityResult(c.Code, c.Name, entityType, "", r))
			}
		}
		for _, e := range store.Establishments {
			if r, ok := store.Result(ind.Code, e.Code); ok {
				out.Entities = append(out.Entities, entityResult(e.Code, e.Name, dashboarddomain.EntityEstablishment, e.ParentCenterCode, r))
			}
		}
		return nil
	})
	return out, err
}

// Ranking orders facility centers by average compliance, best first.
func (s *Service) Ranking(ctx context.Context) ([]dashboarddomain.CenterScore, error) {
	var out []dashboarddomain.CenterScore
	err := s.read(func(store *indicatordomain.Store) error {
		out = RankCenters(store)
		return nil
	})
	return out, err
}

func (s *Service) CenterDetail(ctx context.Context, code string) (dashboarddomain.CenterDetail, error) {
	var out dashboarddomain.CenterDetail
	err := s.read(func(store *indicatordomain.Store) error {
		center, ok := findCenter(store, code)
		if !ok {
			return dashboarddomain.ErrCenterNotFound
		}
		out.Center = dashboarddomain.CenterScore{
			Code:               center.Code,
			Name:               center.Name,
			AverageCompliance:  center.Derived.AverageCompliance,
			EstablishmentCount: len(store.EstablishmentsOf(center.Code)),
		}
		for _, score := range RankCenters(store) {
			if score.Code == center.Code {
				out.Center.Rank = score.Rank
			}
		}
		out.Results = IndicatorRows(store, center.Code)
		for _, e := range store.EstablishmentsOf(center.Code) {
			out.Establishments = append(out.Establishments, dashboarddomain.EstablishmentDetail{
				Code:              e.Code,
				Name:              e.Name,
				AverageCompliance: e.Derived.AverageCompliance,
				Results:           IndicatorRows(store, e.Code),
			})
		}
		return nil
	})
	return out, err
}

func (s *Service) Snapshot(ctx context.Context) (dashboarddomain.Snapshot, error) {
	var out dashboarddomain.Snapshot
	err := s.read(func(store *indicatordomain.Store) error {
		out = dashboarddomain.Snapshot{
			Store:    store.Clone(),
			Warnings: append([]indicatordomain.Warning(nil), s.warnings...),
			LoadedAt: s.loadedAt,
		}
		return nil
	})
	return out, err
}

// IsNoData reports whether err means there is nothing to show yet.
func IsNoData(err error) bool {
	return errors.Is(err, dashboarddomain.ErrNoData) || errors.Is(err, indicatordomain.ErrEmptyDataset)
}

// RankCenters orders the facility centers of store by average compliance,
// best first. Ties fall back to the center code.
func RankCenters(store *indicatordomain.Store) []dashboarddomain.CenterScore {
	centers := store.FacilityCenters()
	out := make([]dashboarddomain.CenterScore, 0, len(centers))
	for _, c := range centers {
		out = append(out, dashboarddomain.CenterScore{
			Code:               c.Code,
			Name:               c.Name,
			AverageCompliance:  c.Derived.AverageCompliance,
			EstablishmentCount: len(store.EstablishmentsOf(c.Code)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AverageCompliance != out[j].AverageCompliance {
			return out[i].AverageCompliance > out[j].AverageCompliance
		}
		return out[i].Code < out[j].Code
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// IndicatorRows lists every indicator of store for one entity.
func IndicatorRows(store *indicatordomain.Store, entityCode string) []dashboarddomain.IndicatorRow {
	out := make([]dashboarddomain.IndicatorRow, 0, len(store.Indicators))
	for _, ind := range store.Indicators {
		res, _ := store.Result(ind.Code, entityCode)
		out = append(out, indicatorRow(ind, res))
	}
	return out
}

func indicatorRow(ind indicatordomain.Indicator, res *indicatordomain.Result) dashboarddomain.IndicatorRow {
	row := dashboarddomain.IndicatorRow{
		Code:   ind.Code,
		Name:   ind.Name,
		Kind:   string(ind.Kind),
		Target: ind.Target,
	}
	if res == nil {
		return row
	}
	row.HasResult = true
	row.Numerator = res.Numerator
	row.Denominator = res.Denominator
	row.Value = res.Value
	row.Stale = res.Stale
	if res.Compliance != nil {
		c := *res.Compliance
		row.Compliance = &c
		row.MeetsTarget = c >= 100
	}
	return row
}

func entityResult(code, name, entityType, parent string, res *indicatordomain.Result) dashboarddomain.EntityResult {
	cp := res.Clone()
	return dashboarddomain.EntityResult{
		EntityCode:          code,
		EntityName:          name,
		EntityType:          entityType,
		ParentCenterCode:    parent,
		Numerator:           cp.Numerator,
		Denominator:         cp.Denominator,
		Value:               cp.Value,
		Compliance:          cp.Compliance,
		OriginalNumerator:   cp.OriginalNumerator,
		OriginalDenominator: cp.OriginalDenominator,
		Stale:               cp.Stale,
	}
}

func findIndicator(store *indicatordomain.Store, code string) (indicatordomain.Indicator, bool) {
	code = strings.TrimSpace(code)
	for _, ind := range store.Indicators {
		if strings.EqualFold(ind.Code, code) {
			return ind, true
		}
	}
	return indicatordomain.Indicator{}, false
}

func findCenter(store *indicatordomain.Store, code string) (*indicatordomain.Center, bool) {
	code = strings.TrimSpace(code)
	for _, c := range store.Centers {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return nil, false
}
