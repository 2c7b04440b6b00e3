package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Store is the in-memory entity store the rollup engine works on. It is not
// safe for concurrent use; owners must serialize access.
type Store struct {
	Indicators     []Indicator
	Centers        []*Center
	Establishments []*Establishment
	Results        map[ResultKey]*Result
}

func NewStore() *Store {
	return &Store{Results: make(map[ResultKey]*Result)}
}

func (s *Store) AddIndicator(ind Indicator) {
	s.Indicators = append(s.Indicators, ind)
}

func (s *Store) AddCenter(c *Center) {
	s.Centers = append(s.Centers, c)
}

func (s *Store) AddEstablishment(e *Establishment) {
	s.Establishments = append(s.Establishments, e)
}

// SetResult stores r under (indicatorCode, entityCode), replacing any previous one.
func (s *Store) SetResult(indicatorCode, entityCode string, r *Result) {
	if s.Results == nil {
		s.Results = make(map[ResultKey]*Result)
	}
	s.Results[ResultKey{IndicatorCode: indicatorCode, EntityCode: entityCode}] = r
}

func (s *Store) Result(indicatorCode, entityCode string) (*Result, bool) {
	r, ok := s.Results[ResultKey{IndicatorCode: indicatorCode, EntityCode: entityCode}]
	if !ok || r == nil {
		return nil, false
	}
	return r, true
}

// HasResults reports whether any Result was ever populated.
func (s *Store) HasResults() bool {
	return s != nil && len(s.Results) > 0
}

func (s *Store) Indicator(code string) (Indicator, bool) {
	for _, ind := range s.Indicators {
		if ind.Code == code {
			return ind, true
		}
	}
	return Indicator{}, false
}

func (s *Store) Center(code string) (*Center, bool) {
	for _, c := range s.Centers {
		if c.Code == code {
			return c, true
		}
	}
	return nil, false
}

func (s *Store) Establishment(code string) (*Establishment, bool) {
	for _, e := range s.Establishments {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// Comunal returns the synthetic comunal center if present.
func (s *Store) Comunal() (*Center, bool) {
	return s.Center(ComunalCode)
}

// EnsureComunal returns the comunal center, adding it when missing.
func (s *Store) EnsureComunal() *Center {
	if c, ok := s.Comunal(); ok {
		return c
	}
	c := &Center{Code: ComunalCode, Name: ComunalName}
	s.AddCenter(c)
	return c
}

// EstablishmentsOf resolves a center's establishments through the
// ParentCenterCode foreign key.
func (s *Store) EstablishmentsOf(centerCode string) []*Establishment {
	var out []*Establishment
	for _, e := range s.Establishments {
		if e.ParentCenterCode == centerCode {
			out = append(out, e)
		}
	}
	return out
}

// FacilityCenters returns every center except the comunal aggregate.
func (s *Store) FacilityCenters() []*Center {
	out := make([]*Center, 0, len(s.Centers))
	for _, c := range s.Centers {
		if c.IsComunal() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	out := &Store{
		Indicators:     append([]Indicator(nil), s.Indicators...),
		Centers:        make([]*Center, 0, len(s.Centers)),
		Establishments: make([]*Establishment, 0, len(s.Establishments)),
		Results:        make(map[ResultKey]*Result, len(s.Results)),
	}
	for _, c := range s.Centers {
		cp := *c
		out.Centers = append(out.Centers, &cp)
	}
	for _, e := range s.Establishments {
		cp := *e
		out.Establishments = append(out.Establishments, &cp)
	}
	for k, r := range s.Results {
		out.Results[k] = r.Clone()
	}
	return out
}

// SortedKeys returns result keys ordered by indicator then entity code.
func (s *Store) SortedKeys() []ResultKey {
	keys := make([]ResultKey, 0, len(s.Results))
	for k := range s.Results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].IndicatorCode != keys[j].IndicatorCode {
			return keys[i].IndicatorCode < keys[j].IndicatorCode
		}
		return keys[i].EntityCode < keys[j].EntityCode
	})
	return keys
}

// Validate checks code uniqueness and the establishment foreign keys.
func (s *Store) Validate() error {
	if s == nil {
		return ErrNilStore
	}
	var errs error
	indicators := make(map[string]struct{}, len(s.Indicators))
	for _, ind := range s.Indicators {
		code := strings.TrimSpace(ind.Code)
		if code == "" {
			errs = errors.Join(errs, ErrInvalidCode)
			continue
		}
		if _, dup := indicators[code]; dup {
			errs = errors.Join(errs, fmt.Errorf("%w: indicator %s", ErrDuplicateCode, code))
		}
		indicators[code] = struct{}{}
		if ind.Kind != KindPercentage && ind.Kind != KindRate {
			errs = errors.Join(errs, fmt.Errorf("%w: indicator %s", ErrInvalidKind, code))
		}
	}

	entities := make(map[string]struct{}, len(s.Centers)+len(s.Establishments))
	for _, c := range s.Centers {
		if strings.TrimSpace(c.Code) == "" {
			errs = errors.Join(errs, ErrInvalidCode)
			continue
		}
		if _, dup := entities[c.Code]; dup {
			errs = errors.Join(errs, fmt.Errorf("%w: center %s", ErrDuplicateCode, c.Code))
		}
		entities[c.Code] = struct{}{}
	}
	for _, e := range s.Establishments {
		if strings.TrimSpace(e.Code) == "" {
			errs = errors.Join(errs, ErrInvalidCode)
			continue
		}
		if e.Code == ComunalCode {
			errs = errors.Join(errs, fmt.Errorf("%w: establishment %s", ErrReservedCode, e.Code))
		}
		if _, dup := entities[e.Code]; dup {
			errs = errors.Join(errs, fmt.Errorf("%w: establishment %s", ErrDuplicateCode, e.Code))
		}
		entities[e.Code] = struct{}{}
		parent, ok := s.Center(e.ParentCenterCode)
		if !ok || parent.IsComunal() {
			errs = errors.Join(errs, fmt.Errorf("%w: establishment %s -> %q", ErrUnknownParent, e.Code, e.ParentCenterCode))
		}
	}
	return errs
}

// ComputeValue derives a result value from its numerator and denominator.
// ok is false when the denominator does not allow a division.
func ComputeValue(kind IndicatorKind, numerator, denominator float64) (value float64, ok bool) {
	if denominator == 0 || !IsFinite(numerator) || !IsFinite(denominator) {
		return 0, false
	}
	value = numerator / denominator
	if kind == KindPercentage {
		value *= 100
	}
	if !IsFinite(value) {
		return 0, false
	}
	return value, true
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
