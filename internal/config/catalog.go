package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrEmptyCatalog = errors.New("empty_catalog")

// Catalog lists the indicators and the center/establishment hierarchy the
// loaders resolve spreadsheet rows against.
type Catalog struct {
	Indicators     []CatalogIndicator     `mapstructure:"indicators"`
	Centers        []CatalogCenter        `mapstructure:"centers"`
	Establishments []CatalogEstablishment `mapstructure:"establishments"`
}

type CatalogIndicator struct {
	Code   string  `mapstructure:"code"`
	Name   string  `mapstructure:"name"`
	Target float64 `mapstructure:"target"`
	Kind   string  `mapstructure:"kind"`
}

type CatalogCenter struct {
	Code    string   `mapstructure:"code"`
	Name    string   `mapstructure:"name"`
	Aliases []string `mapstructure:"aliases"`
}

type CatalogEstablishment struct {
	Code    string   `mapstructure:"code"`
	Name    string   `mapstructure:"name"`
	Center  string   `mapstructure:"center"`
	Aliases []string `mapstructure:"aliases"`
}

// DefaultCatalog is used when no catalog file is found.
func DefaultCatalog() Catalog {
	return Catalog{
		Indicators: []CatalogIndicator{
			{Code: "EMP", Name: "Examen de Medicina Preventiva en hombres y mujeres de 20 a 64 años", Target: 22, Kind: "percentage"},
			{Code: "EMPAM", Name: "Examen de Medicina Preventiva del Adulto Mayor", Target: 55, Kind: "percentage"},
			{Code: "DSM", Name: "Evaluación del desarrollo psicomotor de niños y niñas de 12 a 23 meses", Target: 90, Kind: "percentage"},
			{Code: "HTA", Name: "Cobertura efectiva de hipertensión arterial en personas de 15 años y más", Target: 53, Kind: "percentage"},
			{Code: "DM2", Name: "Cobertura efectiva de diabetes mellitus tipo 2 en personas de 15 años y más", Target: 30, Kind: "percentage"},
			{Code: "VDI", Name: "Visitas domiciliarias integrales por familia", Target: 0.22, Kind: "rate"},
		},
		Centers: []CatalogCenter{
			{Code: "cesfam-carlos-trupp", Name: "CESFAM Carlos Trupp", Aliases: []string{"Carlos Trupp"}},
			{Code: "cesfam-colon", Name: "CESFAM Colón", Aliases: []string{"Colon"}},
			{Code: "cesfam-betty-munoz", Name: "CESFAM Betty Muñoz", Aliases: []string{"Betty Munoz"}},
			{Code: "cesfam-los-niches", Name: "CESFAM Los Niches", Aliases: []string{"Los Niches"}},
			{Code: "cesfam-sarmiento", Name: "CESFAM Sarmiento", Aliases: []string{"Sarmiento"}},
		},
		Establishments: []CatalogEstablishment{
			{Code: "cecosf-santos-martires", Name: "CECOSF Santos Mártires", Center: "cesfam-colon"},
			{Code: "posta-upeo", Name: "Posta de Salud Rural Upeo", Center: "cesfam-los-niches"},
			{Code: "posta-potrero-grande", Name: "Posta de Salud Rural Potrero Grande", Center: "cesfam-los-niches"},
			{Code: "cecosf-galilea", Name: "CECOSF Galilea", Center: "cesfam-sarmiento"},
		},
	}
}

// Store builds an entity store without results from the catalog.
func (c Catalog) Store() (*domain.Store, error) {
	store := domain.NewStore()
	for _, ind := range c.Indicators {
		kind, err := domain.ParseKind(ind.Kind)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", ind.Code, err)
		}
		store.AddIndicator(domain.Indicator{
			Code:   strings.TrimSpace(ind.Code),
			Name:   strings.TrimSpace(ind.Name),
			Target: ind.Target,
			Kind:   kind,
		})
	}
	for _, center := range c.Centers {
		store.AddCenter(&domain.Center{
			Code: strings.TrimSpace(center.Code),
			Name: strings.TrimSpace(center.Name),
		})
	}
	for _, est := range c.Establishments {
		store.AddEstablishment(&domain.Establishment{
			Code:             strings.TrimSpace(est.Code),
			Name:             strings.TrimSpace(est.Name),
			ParentCenterCode: strings.TrimSpace(est.Center),
		})
	}
	if err := store.Validate(); err != nil {
		return nil, err
	}
	return store, nil
}

func validateCatalog(c Catalog) error {
	if len(c.Indicators) == 0 || len(c.Centers) == 0 {
		return ErrEmptyCatalog
	}
	_, err := c.Store()
	return err
}

// CatalogHolder keeps the current catalog and reloads it when the file
// changes. Invalid reloads are ignored.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
	log     *zap.Logger

	mu        sync.Mutex
	listeners []func(Catalog)
}

func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()
	v.SetConfigType("yml")
	if cfg.CatalogPath != "" {
		v.SetConfigFile(cfg.CatalogPath)
	} else {
		v.SetConfigName("catalog")
		v.AddConfigPath("/etc/iaaps")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	holder := &CatalogHolder{log: log.Named("config.catalog")}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg.CatalogPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		holder.log.Info("catalog file not found, using defaults")
		holder.current.Store(DefaultCatalog())
		return holder, nil
	}

	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validateCatalog(cat); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", v.ConfigFileUsed(), err)
	}
	holder.current.Store(cat)

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Catalog
		if err := v.Unmarshal(&updated); err != nil {
			holder.log.Warn("catalog reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.apply(updated, e.Name)
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticCatalogHolder returns a holder that never reloads.
func NewStaticCatalogHolder(cat Catalog) *CatalogHolder {
	holder := &CatalogHolder{log: zap.NewNop()}
	holder.current.Store(cat)
	return holder
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

// OnChange registers fn to run after every accepted reload.
func (h *CatalogHolder) OnChange(fn func(Catalog)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *CatalogHolder) apply(updated Catalog, source string) bool {
	if err := validateCatalog(updated); err != nil {
		h.log.Warn("invalid catalog ignored", zap.String("file", source), zap.Error(err))
		return false
	}
	h.current.Store(updated)
	h.log.Info("catalog reloaded",
		zap.String("file", source),
		zap.Int("indicators", len(updated.Indicators)),
		zap.Int("centers", len(updated.Centers)),
		zap.Int("establishments", len(updated.Establishments)),
	)

	h.mu.Lock()
	listeners := slices.Clone(h.listeners)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(updated)
	}
	return true
}
