package assistant

import (
	"strings"

	"github.com/gosimple/slug"
)

type Intent string

const (
	IntentHelp        Intent = "help"
	IntentSummary     Intent = "summary"
	IntentRanking     Intent = "ranking"
	IntentBelowTarget Intent = "below_target"
	IntentIndicator   Intent = "indicator"
	IntentCenter      Intent = "center"
	IntentReportPDF   Intent = "report_pdf"
	IntentReportXLSX  Intent = "report_xlsx"
	IntentUnknown     Intent = "unknown"
)

// match is a detected intent plus its free-text argument, if any.
type match struct {
	intent Intent
	arg    string
}

// detect maps a user query to an intent. Matching runs over the slug form
// of the query so accents, case and punctuation do not matter.
func detect(query string) match {
	tokens := strings.Split(slug.Make(query), "-")
	has := func(words ...string) bool {
		for _, t := range tokens {
			for _, w := range words {
				if t == w {
					return true
				}
			}
		}
		return false
	}

	switch {
	case len(tokens) == 0 || tokens[0] == "":
		return match{intent: IntentHelp}
	case has("reporte", "informe", "descargar", "exportar"):
		if has("excel", "xlsx", "planilla") {
			return match{intent: IntentReportXLSX, arg: after(tokens, "centro", "cesfam")}
		}
		return match{intent: IntentReportPDF, arg: after(tokens, "centro", "cesfam")}
	case has("excel", "xlsx", "planilla"):
		return match{intent: IntentReportXLSX}
	case has("pdf"):
		return match{intent: IntentReportPDF}
	case has("bajo", "pendientes", "pendiente", "incumplidos") || (has("no") && has("cumple", "cumplen")):
		return match{intent: IntentBelowTarget}
	case has("ranking", "mejor", "peor", "mejores", "peores", "top"):
		return match{intent: IntentRanking}
	case has("indicador", "indicadores"):
		if arg := after(tokens, "indicador"); arg != "" {
			return match{intent: IntentIndicator, arg: arg}
		}
		return match{intent: IntentSummary}
	case has("centro", "cesfam", "establecimiento"):
		if arg := after(tokens, "centro", "cesfam", "establecimiento"); arg != "" {
			return match{intent: IntentCenter, arg: arg}
		}
		return match{intent: IntentRanking}
	case has("resumen", "cumplimiento", "general", "comunal", "estado"):
		return match{intent: IntentSummary}
	case has("ayuda", "help", "hola", "opciones", "comandos"):
		return match{intent: IntentHelp}
	default:
		return match{intent: IntentUnknown}
	}
}

// after returns the tokens following the first keyword found, joined back
// with dashes, or "" when no keyword is present or nothing follows it.
func after(tokens []string, keywords ...string) string {
	for i, t := range tokens {
		for _, k := range keywords {
			if t == k && i+1 < len(tokens) {
				return strings.Join(tokens[i+1:], "-")
			}
		}
	}
	return ""
}
