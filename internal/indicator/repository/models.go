package repository

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Indicator struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Code      string            `gorm:"size:64;not null;uniqueIndex" json:"code"`
	Name      string            `gorm:"not null" json:"name"`
	Target    float64           `gorm:"not null" json:"target"`
	Kind      string            `gorm:"size:32;not null" json:"kind"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (Indicator) TableName() string { return "indicators" }

type Center struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Code      string         `gorm:"size:64;not null;uniqueIndex" json:"code"`
	Name      string         `gorm:"not null" json:"name"`
	Aliases   datatypes.JSON `json:"aliases,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Center) TableName() string { return "centers" }

type Establishment struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	Code       string         `gorm:"size:64;not null;uniqueIndex" json:"code"`
	Name       string         `gorm:"not null" json:"name"`
	CenterCode string         `gorm:"size:64;not null;index" json:"center_code"`
	Aliases    datatypes.JSON `json:"aliases,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Establishment) TableName() string { return "establishments" }

// Result stores raw, pre-rollup values for one indicator and entity.
type Result struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	IndicatorCode string            `gorm:"size:64;not null;uniqueIndex:ux_indicator_results_key" json:"indicator_code"`
	EntityCode    string            `gorm:"size:64;not null;uniqueIndex:ux_indicator_results_key" json:"entity_code"`
	Numerator     float64           `gorm:"not null" json:"numerator"`
	Denominator   float64           `gorm:"not null" json:"denominator"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	ImportedAt    time.Time         `gorm:"not null" json:"imported_at"`
}

func (Result) TableName() string { return "indicator_results" }

// Models lists every table owned by this package, in dependency order.
func Models() []interface{} {
	return []interface{}{&Indicator{}, &Center{}, &Establishment{}, &Result{}}
}
