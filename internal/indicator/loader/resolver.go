package loader

import (
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/domain"
)

// Resolver maps free-text spreadsheet labels onto catalog codes. Labels
// match a code exactly or, after slug normalization, a code, name or alias.
type Resolver struct {
	indicators map[string]string
	entities   map[string]string
}

func NewResolver(cat config.Catalog) *Resolver {
	r := &Resolver{
		indicators: make(map[string]string),
		entities:   make(map[string]string),
	}
	for _, ind := range cat.Indicators {
		r.indicators[ind.Code] = ind.Code
		r.addKey(r.indicators, ind.Code, ind.Code)
		r.addKey(r.indicators, ind.Name, ind.Code)
	}

	r.entities[domain.ComunalCode] = domain.ComunalCode
	r.addKey(r.entities, domain.ComunalName, domain.ComunalCode)
	r.addKey(r.entities, "total comunal", domain.ComunalCode)
	for _, c := range cat.Centers {
		r.entities[c.Code] = c.Code
		r.addKey(r.entities, c.Code, c.Code)
		r.addKey(r.entities, c.Name, c.Code)
		for _, alias := range c.Aliases {
			r.addKey(r.entities, alias, c.Code)
		}
	}
	for _, e := range cat.Establishments {
		r.entities[e.Code] = e.Code
		r.addKey(r.entities, e.Code, e.Code)
		r.addKey(r.entities, e.Name, e.Code)
		for _, alias := range e.Aliases {
			r.addKey(r.entities, alias, e.Code)
		}
	}
	return r
}

// first registration wins so codes are never shadowed by a later alias
func (r *Resolver) addKey(index map[string]string, label, code string) {
	key := normalizeLabel(label)
	if key == "" {
		return
	}
	if _, exists := index[key]; !exists {
		index[key] = code
	}
}

func (r *Resolver) Indicator(label string) (string, bool) {
	return lookup(r.indicators, label)
}

func (r *Resolver) Entity(label string) (string, bool) {
	return lookup(r.entities, label)
}

func lookup(index map[string]string, label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	if code, ok := index[label]; ok {
		return code, true
	}
	code, ok := index[normalizeLabel(label)]
	return code, ok
}

func normalizeLabel(label string) string {
	return slug.Make(strings.TrimSpace(label))
}
