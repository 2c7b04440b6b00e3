package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	ErrMissingColumns = errors.New("missing_required_columns")
	ErrSheetNotFound  = errors.New("sheet_not_found")

	errEmptyNumber = errors.New("empty number")

	// thousandsGrouped matches integers grouped by a single separator kind,
	// such as "1.234.567" or "12,345".
	thousandsGrouped = regexp.MustCompile(`^-?[1-9]\d{0,2}([.,]\d{3})+$`)
)

type column int

const (
	colIndicator column = iota
	colEntity
	colNumerator
	colDenominator
	colResult
)

// headerAliases maps slugged header labels onto column roles.
var headerAliases = map[string]column{
	"indicador":              colIndicator,
	"codigo-indicador":       colIndicator,
	"cod-indicador":          colIndicator,
	"entidad":                colEntity,
	"establecimiento":        colEntity,
	"centro":                 colEntity,
	"establecimiento-centro": colEntity,
	"centro-establecimiento": colEntity,
	"cesfam":                 colEntity,
	"numerador":              colNumerator,
	"num":                    colNumerator,
	"denominador":            colDenominator,
	"den":                    colDenominator,
	"resultado":              colResult,
	"cumplimiento":           colResult,
	"porcentaje":             colResult,
	"resultado-cumplimiento": colResult,
}

// XLSXSource loads results from a workbook. The catalog supplies
// indicators and the center hierarchy; the sheet supplies the values.
type XLSXSource struct {
	path    string
	sheet   string
	catalog *config.CatalogHolder
	log     *zap.Logger
}

func NewXLSXSource(cfg config.Config, catalog *config.CatalogHolder, log *zap.Logger) *XLSXSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &XLSXSource{
		path:    cfg.DataFile,
		sheet:   cfg.DataSheet,
		catalog: catalog,
		log:     log.Named("indicator.loader.xlsx"),
	}
}

func (s *XLSXSource) Load(ctx context.Context) (*domain.Store, []domain.Warning, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %w", s.path, err)
	}
	defer f.Close()
	return s.load(ctx, f)
}

// LoadReader parses a workbook streamed from r, e.g. an uploaded file.
func (s *XLSXSource) LoadReader(ctx context.Context, r io.Reader) (*domain.Store, []domain.Warning, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read workbook: %w", err)
	}
	defer f.Close()
	return s.load(ctx, f)
}

func (s *XLSXSource) load(ctx context.Context, f *excelize.File) (*domain.Store, []domain.Warning, error) {
	cat := s.catalog.Get()
	store, err := cat.Store()
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	parsed, warnings, err := ParseRows(rows, NewResolver(cat), store)
	if err != nil {
		return nil, nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	s.log.Info("workbook loaded",
		zap.String("file", s.path),
		zap.String("sheet", sheet),
		zap.Int("rows", parsed),
		zap.Int("results", len(store.Results)),
		zap.Int("warnings", len(warnings)),
	)
	return store, warnings, nil
}

type headerMap map[column]int

func (h headerMap) cell(row []string, c column) (string, bool) {
	idx, ok := h[c]
	if !ok || idx >= len(row) {
		return "", ok
	}
	return strings.TrimSpace(row[idx]), true
}

// findHeader returns the first row that names both an indicator and an
// entity column, along with its index.
func findHeader(rows [][]string) (headerMap, int, bool) {
	for i, row := range rows {
		h := headerMap{}
		for j, label := range row {
			role, ok := headerAliases[slug.Make(strings.TrimSpace(label))]
			if !ok {
				continue
			}
			if _, seen := h[role]; !seen {
				h[role] = j
			}
		}
		_, hasIndicator := h[colIndicator]
		_, hasEntity := h[colEntity]
		if hasIndicator && hasEntity {
			return h, i, true
		}
	}
	return nil, 0, false
}

// ParseRows fills store with the results found in rows and returns how many
// data rows produced a result. Repeated rows for the same indicator and
// entity accumulate.
func ParseRows(rows [][]string, resolver *Resolver, store *domain.Store) (int, []domain.Warning, error) {
	if len(rows) == 0 {
		return 0, nil, nil
	}
	header, headerIdx, ok := findHeader(rows)
	if !ok {
		return 0, nil, ErrMissingColumns
	}
	_, hasNum := header[colNumerator]
	_, hasDen := header[colDenominator]
	_, hasResult := header[colResult]
	if !(hasNum && hasDen) && !hasResult {
		return 0, nil, ErrMissingColumns
	}

	var warnings []domain.Warning
	parsed := 0
	for _, row := range rows[headerIdx+1:] {
		indLabel, _ := header.cell(row, colIndicator)
		entLabel, _ := header.cell(row, colEntity)
		if indLabel == "" && entLabel == "" {
			continue
		}

		indCode, ok := resolver.Indicator(indLabel)
		if !ok {
			warnings = append(warnings, domain.UnknownIndicator(indLabel, entLabel))
			continue
		}
		ind, ok := store.Indicator(indCode)
		if !ok {
			warnings = append(warnings, domain.UnknownIndicator(indLabel, entLabel))
			continue
		}
		entCode, ok := resolver.Entity(entLabel)
		if !ok {
			warnings = append(warnings, domain.UnknownEntity(indCode, entLabel))
			continue
		}

		numRaw, _ := header.cell(row, colNumerator)
		denRaw, _ := header.cell(row, colDenominator)
		resRaw, _ := header.cell(row, colResult)

		var num, den float64
		switch {
		case numRaw != "" || denRaw != "":
			num = parseCell(numRaw, indCode, entCode, "numerator", &warnings)
			den = parseCell(denRaw, indCode, entCode, "denominator", &warnings)
		case resRaw != "":
			num = parseCell(resRaw, indCode, entCode, "result", &warnings)
			den = 100
			if ind.Kind == domain.KindRate {
				den = 1
			}
		default:
			warnings = append(warnings, domain.MalformedValue(indCode, entCode, "row"))
			continue
		}

		if entCode == domain.ComunalCode {
			store.EnsureComunal()
		}
		addResult(store, ind, entCode, num, den)
		parsed++
	}
	return parsed, warnings, nil
}

func addResult(store *domain.Store, ind domain.Indicator, entityCode string, num, den float64) {
	res, ok := store.Result(ind.Code, entityCode)
	if !ok {
		res = &domain.Result{}
		store.SetResult(ind.Code, entityCode, res)
	}
	res.Numerator += num
	res.Denominator += den
	if v, ok := domain.ComputeValue(ind.Kind, res.Numerator, res.Denominator); ok {
		res.Value = v
		res.Stale = false
	} else {
		res.Stale = true
	}
}

func parseCell(raw, indicatorCode, entityCode, field string, warnings *[]domain.Warning) float64 {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	v, err := ParseNumber(raw)
	if err != nil {
		*warnings = append(*warnings, domain.MalformedValue(indicatorCode, entityCode, field))
		return 0
	}
	return v
}

// ParseNumber reads spreadsheet numbers written either as "1234.5" or in
// the local "1.234,5" form, with an optional trailing percent sign. A lone
// separator followed by groups of exactly three digits is a thousands
// separator, so "1.234" and "1,234" both read as 1234.
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, errEmptyNumber
	}
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot != hasComma && thousandsGrouped.MatchString(s):
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	case hasDot && hasComma:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
