package loader

import (
	"context"

	"github.com/smallbiznis/iaaps/internal/indicator/domain"
)

//go:generate mockgen -source=source.go -destination=./mocks/mock_source.go -package=mocks

// Source produces a freshly loaded entity store. Results hold raw values; no
// rollup has been applied.
type Source interface {
	Load(ctx context.Context) (*domain.Store, []domain.Warning, error)
}
