package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCatalog = `
indicators:
  - code: I1
    name: Indicador uno
    target: 50
    kind: porcentaje
  - code: I2
    name: Tasa dos
    target: 0.5
    kind: tasa
centers:
  - code: C1
    name: CESFAM Uno
    aliases: ["Uno"]
establishments:
  - code: E1
    name: Posta Uno
    center: C1
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewCatalogHolderReadsFile(t *testing.T) {
	holder, err := NewCatalogHolder(Config{CatalogPath: writeCatalog(t, testCatalog)}, zap.NewNop())
	require.NoError(t, err)

	cat := holder.Get()
	require.Len(t, cat.Indicators, 2)
	assert.Equal(t, 50.0, cat.Indicators[0].Target)
	assert.Equal(t, []string{"Uno"}, cat.Centers[0].Aliases)
	assert.Equal(t, "C1", cat.Establishments[0].Center)

	store, err := cat.Store()
	require.NoError(t, err)
	ind, ok := store.Indicator("I2")
	require.True(t, ok)
	assert.Equal(t, domain.KindRate, ind.Kind)
	assert.Len(t, store.EstablishmentsOf("C1"), 1)
}

func TestNewCatalogHolderRejectsUnknownParent(t *testing.T) {
	body := testCatalog + `
  - code: E2
    name: Posta huérfana
    center: C9
`
	_, err := NewCatalogHolder(Config{CatalogPath: writeCatalog(t, body)}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownParent))
}

func TestNewCatalogHolderMissingExplicitFile(t *testing.T) {
	_, err := NewCatalogHolder(Config{CatalogPath: filepath.Join(t.TempDir(), "nope.yml")}, zap.NewNop())
	assert.Error(t, err)
}

func TestCatalogHolderApply(t *testing.T) {
	holder := NewStaticCatalogHolder(DefaultCatalog())
	var got []Catalog
	holder.OnChange(func(c Catalog) { got = append(got, c) })

	assert.False(t, holder.apply(Catalog{}, "test"))
	assert.Empty(t, got)
	assert.Len(t, holder.Get().Centers, len(DefaultCatalog().Centers))

	updated := DefaultCatalog()
	updated.Indicators = updated.Indicators[:1]
	assert.True(t, holder.apply(updated, "test"))
	require.Len(t, got, 1)
	assert.Len(t, holder.Get().Indicators, 1)
}

func TestCatalogHolderListenersNotifiedFromSnapshot(t *testing.T) {
	holder := NewStaticCatalogHolder(DefaultCatalog())
	calls := 0
	holder.OnChange(func(Catalog) {
		calls++
		// registering during notification must not join the current round
		holder.OnChange(func(Catalog) { calls += 10 })
	})

	require.True(t, holder.apply(DefaultCatalog(), "first"))
	assert.Equal(t, 1, calls)

	require.True(t, holder.apply(DefaultCatalog(), "second"))
	assert.Equal(t, 12, calls)
}

func TestDefaultCatalogIsValid(t *testing.T) {
	assert.NoError(t, validateCatalog(DefaultCatalog()))
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DATA_SOURCE", "DB")
	t.Setenv("REFRESH_INTERVAL", "90")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg := Load()
	assert.True(t, cfg.UsesDatabase())
	assert.Equal(t, 90*time.Second, cfg.RefreshInterval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)

	t.Setenv("REFRESH_INTERVAL", "5m")
	t.Setenv("DATA_SOURCE", "excel")
	cfg = Load()
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, DataSourceXLSX, cfg.DataSource)
}
