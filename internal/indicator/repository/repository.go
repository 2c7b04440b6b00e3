package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/iaaps/internal/clock"
	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/smallbiznis/iaaps/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrImportConflict is returned when a concurrent import wrote the same rows.
var ErrImportConflict = errors.New("import_conflict")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

// Repository persists catalogs and raw results, and serves them back as a
// loader source.
type Repository struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) *Repository {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Repository{
		db:    p.DB,
		log:   log.Named("indicator.repository"),
		genID: p.GenID,
		clock: clk,
	}
}

// ImportResult summarizes an ImportStore call.
type ImportResult struct {
	Indicators     int `json:"indicators"`
	Centers        int `json:"centers"`
	Establishments int `json:"establishments"`
	Results        int `json:"results"`
}

// ImportStore upserts the entities and raw results of store. Results that
// went through a rollup are written with their pre-rollup values and the
// comunal aggregate is not stored.
func (r *Repository) ImportStore(ctx context.Context, store *domain.Store, cat config.Catalog, source string) (ImportResult, error) {
	var out ImportResult
	if store == nil {
		return out, domain.ErrNilStore
	}
	if err := store.Validate(); err != nil {
		return out, err
	}
	now := r.clock.Now().UTC()
	aliases := catalogAliases(cat)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ind := range store.Indicators {
			row := Indicator{
				ID:        r.genID.Generate(),
				Code:      ind.Code,
				Name:      ind.Name,
				Target:    ind.Target,
				Kind:      string(ind.Kind),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := upsert(tx, &row, []string{"code"}, []string{"name", "target", "kind", "updated_at"}); err != nil {
				return fmt.Errorf("indicator %s: %w", ind.Code, err)
			}
			out.Indicators++
		}
		for _, c := range store.FacilityCenters() {
			row := Center{
				ID:        r.genID.Generate(),
				Code:      c.Code,
				Name:      c.Name,
				Aliases:   aliases[c.Code],
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := upsert(tx, &row, []string{"code"}, []string{"name", "aliases", "updated_at"}); err != nil {
				return fmt.Errorf("center %s: %w", c.Code, err)
			}
			out.Centers++
		}
		for _, e := range store.Establishments {
			row := Establishment{
				ID:         r.genID.Generate(),
				Code:       e.Code,
				Name:       e.Name,
				CenterCode: e.ParentCenterCode,
				Aliases:    aliases[e.Code],
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := upsert(tx, &row, []string{"code"}, []string{"name", "center_code", "aliases", "updated_at"}); err != nil {
				return fmt.Errorf("establishment %s: %w", e.Code, err)
			}
			out.Establishments++
		}
		for _, key := range store.SortedKeys() {
			if key.EntityCode == domain.ComunalCode {
				continue
			}
			res := store.Results[key]
			num, den := res.Numerator, res.Denominator
			if res.Snapshotted() {
				if _, isCenter := store.Center(key.EntityCode); isCenter {
					num, den = *res.OriginalNumerator, *res.OriginalDenominator
				}
			}
			row := Result{
				ID:            r.genID.Generate(),
				IndicatorCode: key.IndicatorCode,
				EntityCode:    key.EntityCode,
				Numerator:     finite(num),
				Denominator:   finite(den),
				Metadata:      datatypes.JSONMap{"source": source},
				ImportedAt:    now,
			}
			if err := upsert(tx, &row, []string{"indicator_code", "entity_code"}, []string{"numerator", "denominator", "metadata", "imported_at"}); err != nil {
				return fmt.Errorf("result %s/%s: %w", key.IndicatorCode, key.EntityCode, err)
			}
			out.Results++
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ImportResult{}, fmt.Errorf("%w: %v", ErrImportConflict, err)
		}
		return ImportResult{}, err
	}

	r.log.Info("store imported",
		zap.String("source", source),
		zap.Int("indicators", out.Indicators),
		zap.Int("centers", out.Centers),
		zap.Int("establishments", out.Establishments),
		zap.Int("results", out.Results),
	)
	return out, nil
}

func upsert(tx *gorm.DB, row interface{}, conflict []string, update []string) error {
	cols := make([]clause.Column, 0, len(conflict))
	for _, name := range conflict {
		cols = append(cols, clause.Column{Name: name})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(row).Error
}

// Load builds a store from the database. Results that reference an
// unknown indicator or entity are reported and skipped.
func (r *Repository) Load(ctx context.Context) (*domain.Store, []domain.Warning, error) {
	db := r.db.WithContext(ctx)

	var indicators []Indicator
	if err := db.Order("code asc").Find(&indicators).Error; err != nil {
		return nil, nil, fmt.Errorf("load indicators: %w", err)
	}
	var centers []Center
	if err := db.Order("code asc").Find(&centers).Error; err != nil {
		return nil, nil, fmt.Errorf("load centers: %w", err)
	}
	var establishments []Establishment
	if err := db.Order("code asc").Find(&establishments).Error; err != nil {
		return nil, nil, fmt.Errorf("load establishments: %w", err)
	}
	var results []Result
	if err := db.Order("indicator_code asc, entity_code asc").Find(&results).Error; err != nil {
		return nil, nil, fmt.Errorf("load results: %w", err)
	}

	store := domain.NewStore()
	for _, ind := range indicators {
		kind, err := domain.ParseKind(ind.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("indicator %s: %w", ind.Code, err)
		}
		store.AddIndicator(domain.Indicator{Code: ind.Code, Name: ind.Name, Target: ind.Target, Kind: kind})
	}
	for _, c := range centers {
		store.AddCenter(&domain.Center{Code: c.Code, Name: c.Name})
	}
	for _, e := range establishments {
		store.AddEstablishment(&domain.Establishment{Code: e.Code, Name: e.Name, ParentCenterCode: e.CenterCode})
	}
	if err := store.Validate(); err != nil {
		return nil, nil, err
	}

	var warnings []domain.Warning
	for _, row := range results {
		ind, ok := store.Indicator(row.IndicatorCode)
		if !ok {
			warnings = append(warnings, domain.UnknownIndicator(row.IndicatorCode, row.EntityCode))
			continue
		}
		if !r.knownEntity(store, row.EntityCode) {
			warnings = append(warnings, domain.UnknownEntity(row.IndicatorCode, row.EntityCode))
			continue
		}
		res := &domain.Result{Numerator: row.Numerator, Denominator: row.Denominator}
		if v, ok := domain.ComputeValue(ind.Kind, res.Numerator, res.Denominator); ok {
			res.Value = v
		} else {
			res.Stale = true
		}
		store.SetResult(row.IndicatorCode, row.EntityCode, res)
	}

	r.log.Debug("store loaded from database",
		zap.Int("indicators", len(store.Indicators)),
		zap.Int("results", len(store.Results)),
		zap.Int("warnings", len(warnings)),
	)
	return store, warnings, nil
}

func (r *Repository) knownEntity(store *domain.Store, code string) bool {
	if _, ok := store.Center(code); ok {
		return true
	}
	_, ok := store.Establishment(code)
	return ok
}

// LastImport returns the time of the most recent result import, or zero.
func (r *Repository) LastImport(ctx context.Context) (time.Time, error) {
	var row Result
	err := r.db.WithContext(ctx).Order("imported_at desc").Limit(1).Find(&row).Error
	if err != nil {
		return time.Time{}, err
	}
	return row.ImportedAt, nil
}

func catalogAliases(cat config.Catalog) map[string]datatypes.JSON {
	out := make(map[string]datatypes.JSON)
	add := func(code string, aliases []string) {
		if len(aliases) == 0 {
			return
		}
		raw, err := json.Marshal(aliases)
		if err != nil {
			return
		}
		out[code] = datatypes.JSON(raw)
	}
	for _, c := range cat.Centers {
		add(c.Code, c.Aliases)
	}
	for _, e := range cat.Establishments {
		add(e.Code, e.Aliases)
	}
	return out
}

func finite(v float64) float64 {
	if domain.IsFinite(v) {
		return v
	}
	return 0
}
