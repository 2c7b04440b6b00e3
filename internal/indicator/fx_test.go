package indicator

import (
	"testing"

	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/loader"
	"github.com/smallbiznis/iaaps/internal/indicator/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProvideSource(t *testing.T) {
	xlsx := loader.NewXLSXSource(config.Config{DataFile: "data.xlsx"}, config.NewStaticCatalogHolder(config.DefaultCatalog()), nil)

	src, err := ProvideSource(SourceParams{Cfg: config.Config{DataSource: config.DataSourceXLSX}, XLSX: xlsx, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Same(t, xlsx, src)

	_, err = ProvideSource(SourceParams{Cfg: config.Config{DataSource: config.DataSourceDatabase}, XLSX: xlsx, Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	repo := repository.New(repository.Params{Log: zap.NewNop()})
	src, err = ProvideSource(SourceParams{Cfg: config.Config{DataSource: config.DataSourceDatabase}, XLSX: xlsx, Repo: repo, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Same(t, repo, src)
}
