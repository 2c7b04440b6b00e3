package indicator

import (
	"errors"

	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/loader"
	"github.com/smallbiznis/iaaps/internal/indicator/repository"
	"github.com/smallbiznis/iaaps/internal/indicator/rollup"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrRepositoryRequired = errors.New("indicator_repository_required")

var Module = fx.Module("indicator",
	fx.Provide(rollup.NewEngine),
	loader.Module,
	fx.Provide(ProvideSource),
)

type SourceParams struct {
	fx.In

	Cfg  config.Config
	XLSX *loader.XLSXSource
	Repo *repository.Repository `optional:"true"`
	Log  *zap.Logger
}

// ProvideSource picks the loader source from DATA_SOURCE. The database
// source needs repository.Module in the graph.
func ProvideSource(p SourceParams) (loader.Source, error) {
	if !p.Cfg.UsesDatabase() {
		p.Log.Info("indicator source selected", zap.String("source", config.DataSourceXLSX), zap.String("file", p.Cfg.DataFile))
		return p.XLSX, nil
	}
	if p.Repo == nil {
		return nil, ErrRepositoryRequired
	}
	p.Log.Info("indicator source selected", zap.String("source", config.DataSourceDatabase))
	return p.Repo, nil
}
