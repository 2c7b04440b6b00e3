package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/iaaps/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Positive(t, ups)
	assert.Equal(t, ups, downs)
}

func TestRunAutoMigratesNonPostgres(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Run(conn, zap.NewNop()))
	for _, table := range []string{"indicators", "centers", "establishments", "indicator_results"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	require.NoError(t, Run(conn, zap.NewNop()))
}

func TestRunRequiresConnection(t *testing.T) {
	assert.Error(t, Run(nil, nil))
}
