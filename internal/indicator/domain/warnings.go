package domain

import "fmt"

type WarningKind string

const (
	WarningMissingResult    WarningKind = "missing_result"
	WarningMalformedValue   WarningKind = "malformed_value"
	WarningUnknownEntity    WarningKind = "unknown_entity"
	WarningUnknownIndicator WarningKind = "unknown_indicator"
)

// Warning is a non-fatal data problem. The affected pair is skipped or
// treated as zero and processing continues.
type Warning struct {
	Kind          WarningKind `json:"kind"`
	IndicatorCode string      `json:"indicator_code,omitempty"`
	EntityCode    string      `json:"entity_code,omitempty"`
	Message       string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s indicator=%s entity=%s: %s", w.Kind, w.IndicatorCode, w.EntityCode, w.Message)
}

func MissingResult(indicatorCode, entityCode string) Warning {
	return Warning{
		Kind:          WarningMissingResult,
		IndicatorCode: indicatorCode,
		EntityCode:    entityCode,
		Message:       "no result for indicator and entity",
	}
}

func MalformedValue(indicatorCode, entityCode, field string) Warning {
	return Warning{
		Kind:          WarningMalformedValue,
		IndicatorCode: indicatorCode,
		EntityCode:    entityCode,
		Message:       fmt.Sprintf("%s is not numeric, counted as 0", field),
	}
}

func UnknownEntity(indicatorCode, label string) Warning {
	return Warning{
		Kind:          WarningUnknownEntity,
		IndicatorCode: indicatorCode,
		EntityCode:    label,
		Message:       fmt.Sprintf("entity %q does not match any center or establishment", label),
	}
}

func UnknownIndicator(indicatorCode, entityCode string) Warning {
	return Warning{
		Kind:          WarningUnknownIndicator,
		IndicatorCode: indicatorCode,
		EntityCode:    entityCode,
		Message:       fmt.Sprintf("indicator %q is not in the catalog", indicatorCode),
	}
}
