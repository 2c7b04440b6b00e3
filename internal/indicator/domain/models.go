package domain

import "strings"

// ComunalCode is the reserved code of the synthetic district-wide center.
const ComunalCode = "comunal"

// ComunalName is the display name given to the synthetic comunal center.
const ComunalName = "Comunal"

type IndicatorKind string

const (
	KindPercentage IndicatorKind = "percentage"
	KindRate       IndicatorKind = "rate"
)

// ParseKind normalizes a kind label coming from configuration or a spreadsheet.
func ParseKind(raw string) (IndicatorKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "percentage", "porcentaje", "%":
		return KindPercentage, nil
	case "rate", "tasa", "razon":
		return KindRate, nil
	default:
		return "", ErrInvalidKind
	}
}

// Indicator is a health-activity metric with a numeric target (meta).
type Indicator struct {
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	Target float64       `json:"target"`
	Kind   IndicatorKind `json:"kind"`
}

// Derived holds values the engine computes per entity.
type Derived struct {
	AverageCompliance float64 `json:"average_compliance"`
}

// Center is a primary-care facility. The comunal aggregate is also a Center.
type Center struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Derived Derived `json:"derived"`
}

func (c *Center) IsComunal() bool {
	return c != nil && c.Code == ComunalCode
}

// Establishment rolls up into exactly one parent Center.
type Establishment struct {
	Code             string  `json:"code"`
	Name             string  `json:"name"`
	ParentCenterCode string  `json:"parent_center_code"`
	Derived          Derived `json:"derived"`
}

// ResultKey identifies a Result. EntityCode ranges over center and
// establishment codes.
type ResultKey struct {
	IndicatorCode string `json:"indicator_code"`
	EntityCode    string `json:"entity_code"`
}

// Result is the mutable join between an indicator and an entity.
type Result struct {
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	Value       float64 `json:"value"`

	// Compliance is nil until computed for a Result with Denominator > 0.
	Compliance *float64 `json:"compliance,omitempty"`

	// Pre-rollup values, captured on the first rollup that touches the Result.
	OriginalNumerator   *float64 `json:"original_numerator,omitempty"`
	OriginalDenominator *float64 `json:"original_denominator,omitempty"`

	// Stale marks a Value that could not be recomputed because the
	// denominator was zero.
	Stale bool `json:"stale,omitempty"`
}

// Snapshotted reports whether the pre-rollup values were already captured.
func (r *Result) Snapshotted() bool {
	return r != nil && r.OriginalNumerator != nil && r.OriginalDenominator != nil
}

// Snapshot captures the current numerator and denominator once.
func (r *Result) Snapshot(numerator, denominator float64) {
	if r.Snapshotted() {
		return
	}
	r.OriginalNumerator = &numerator
	r.OriginalDenominator = &denominator
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Compliance = cloneFloat(r.Compliance)
	out.OriginalNumerator = cloneFloat(r.OriginalNumerator)
	out.OriginalDenominator = cloneFloat(r.OriginalDenominator)
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
