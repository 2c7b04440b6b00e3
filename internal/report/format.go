package report

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const timestampLayout = "02-01-2006 15:04"

// formatNumber renders v with two decimals in the es-CL convention
// ("1.234,57"), rounding half away from zero.
func formatNumber(v float64) string {
	fixed := decimal.NewFromFloat(v).Round(2).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if sign != "" && strings.Trim(intPart+fracPart, "0") == "" {
		sign = ""
	}
	return sign + b.String() + "," + fracPart
}

func formatPercent(v float64) string {
	return formatNumber(v) + "%"
}

func formatCompliance(c *float64) string {
	if c == nil {
		return "s/d"
	}
	return formatPercent(*c)
}

// round2 keeps spreadsheet cells consistent with the formatted PDF values.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func formatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}
