package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/iaaps/internal/clock"
	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/loader"
	"github.com/smallbiznis/iaaps/internal/indicator/repository"
	"github.com/smallbiznis/iaaps/internal/migration"
	"github.com/smallbiznis/iaaps/internal/observability"
	"github.com/smallbiznis/iaaps/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type options struct {
	file    string
	sheet   string
	timeout time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "workbook to import (defaults to DATA_FILE)")
	flag.StringVar(&opts.sheet, "sheet", "", "sheet name (defaults to DATA_SHEET or the first sheet)")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "import timeout")
	flag.Parse()

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		migration.Module,
		repository.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			if opts.file != "" {
				cfg.DataFile = opts.file
			}
			if opts.sheet != "" {
				cfg.DataSheet = opts.sheet
			}
			return cfg
		}),
		loader.Module,
		fx.Supply(opts),
		fx.Invoke(runImport),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runImport(opts options, cfg config.Config, catalog *config.CatalogHolder, src *loader.XLSXSource, repo *repository.Repository, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, warnings, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", cfg.DataFile, err)
	}
	for _, w := range warnings {
		log.Warn("import warning", zap.String("detail", w.String()))
	}

	res, err := repo.ImportStore(ctx, store, catalog.Get(), cfg.DataFile)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	log.Info("import finished",
		zap.String("file", cfg.DataFile),
		zap.Int("indicators", res.Indicators),
		zap.Int("centers", res.Centers),
		zap.Int("establishments", res.Establishments),
		zap.Int("results", res.Results),
		zap.Int("warnings", len(warnings)),
	)
	return nil
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
