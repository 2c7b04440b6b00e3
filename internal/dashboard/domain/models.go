package domain

import (
	"context"
	"errors"
	"time"

	indicatordomain "github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/smallbiznis/iaaps/internal/indicator/rollup"
)

const (
	EntityComunal       = "comunal"
	EntityCenter        = "center"
	EntityEstablishment = "establishment"
)

var (
	ErrNoData            = errors.New("no_data_available")
	ErrIndicatorNotFound = errors.New("indicator_not_found")
	ErrCenterNotFound    = errors.New("center_not_found")
)

type Service interface {
	Refresh(ctx context.Context) (RefreshResult, error)
	Summary(ctx context.Context) (Summary, error)
	ListIndicators(ctx context.Context) ([]IndicatorRow, error)
	IndicatorDetail(ctx context.Context, code string) (IndicatorDetail, error)
	Ranking(ctx context.Context) ([]CenterScore, error)
	CenterDetail(ctx context.Context, code string) (CenterDetail, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is a rolled-up store taken at LoadedAt. Store is a private copy.
type Snapshot struct {
	Store    *indicatordomain.Store    `json:"-"`
	Warnings []indicatordomain.Warning `json:"warnings"`
	LoadedAt time.Time                 `json:"loaded_at"`
}

type RefreshResult struct {
	LoadedAt time.Time                 `json:"loaded_at"`
	Duration time.Duration             `json:"duration"`
	Warnings []indicatordomain.Warning `json:"warnings"`
	Stages   []rollup.Outcome          `json:"stages"`
}

type CenterScore struct {
	Rank               int     `json:"rank"`
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	AverageCompliance  float64 `json:"average_compliance"`
	EstablishmentCount int     `json:"establishment_count"`
}

type Summary struct {
	LoadedAt                 time.Time    `json:"loaded_at"`
	ComunalAverageCompliance float64      `json:"comunal_average_compliance"`
	IndicatorCount           int          `json:"indicator_count"`
	IndicatorsMeetingTarget  int          `json:"indicators_meeting_target"`
	IndicatorsBelowTarget    int          `json:"indicators_below_target"`
	CenterCount              int          `json:"center_count"`
	EstablishmentCount       int          `json:"establishment_count"`
	BestCenter               *CenterScore `json:"best_center,omitempty"`
	WorstCenter              *CenterScore `json:"worst_center,omitempty"`
	WarningCount             int          `json:"warning_count"`
}

// IndicatorRow is one indicator's result for a single entity.
type IndicatorRow struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Target      float64  `json:"target"`
	Numerator   float64  `json:"numerator"`
	Denominator float64  `json:"denominator"`
	Value       float64  `json:"value"`
	Compliance  *float64 `json:"compliance"`
	MeetsTarget bool     `json:"meets_target"`
	Stale       bool     `json:"stale"`
	HasResult   bool     `json:"has_result"`
}

type EntityResult struct {
	EntityCode          string   `json:"entity_code"`
	EntityName          string   `json:"entity_name"`
	EntityType          string   `json:"entity_type"`
	ParentCenterCode    string   `json:"parent_center_code,omitempty"`
	Numerator           float64  `json:"numerator"`
	Denominator         float64  `json:"denominator"`
	Value               float64  `json:"value"`
	Compliance          *float64 `json:"compliance"`
	OriginalNumerator   *float64 `json:"original_numerator,omitempty"`
	OriginalDenominator *float64 `json:"original_denominator,omitempty"`
	Stale               bool     `json:"stale"`
}

type IndicatorDetail struct {
	Indicator IndicatorRow   `json:"indicator"`
	Entities  []EntityResult `json:"entities"`
}

type EstablishmentDetail struct {
	Code              string         `json:"code"`
	Name              string         `json:"name"`
	AverageCompliance float64        `json:"average_compliance"`
	Results           []IndicatorRow `json:"results"`
}

type CenterDetail struct {
	Center         CenterScore           `json:"center"`
	Results        []IndicatorRow        `json:"results"`
	Establishments []EstablishmentDetail `json:"establishments"`
}
