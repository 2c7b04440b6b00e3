package loader

import (
	"bytes"
	"context"
	"testing"

	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/smallbiznis/iaaps/internal/indicator/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func testCatalog() config.Catalog {
	return config.Catalog{
		Indicators: []config.CatalogIndicator{
			{Code: "EMP", Name: "Examen de Medicina Preventiva", Target: 22, Kind: "percentage"},
			{Code: "VDI", Name: "Visitas domiciliarias integrales", Target: 0.22, Kind: "rate"},
		},
		Centers: []config.CatalogCenter{
			{Code: "cesfam-colon", Name: "CESFAM Colón", Aliases: []string{"Colon"}},
			{Code: "cesfam-sarmiento", Name: "CESFAM Sarmiento"},
		},
		Establishments: []config.CatalogEstablishment{
			{Code: "cecosf-santos-martires", Name: "CECOSF Santos Mártires", Center: "cesfam-colon"},
		},
	}
}

func workbook(t *testing.T, sheet string, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		require.NoError(t, f.DeleteSheet("Sheet1"))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func newTestSource(sheet string) *XLSXSource {
	return NewXLSXSource(
		config.Config{DataFile: "test.xlsx", DataSheet: sheet},
		config.NewStaticCatalogHolder(testCatalog()),
		zap.NewNop(),
	)
}

func TestXLSXSourceLoadsResults(t *testing.T) {
	buf := workbook(t, "IAAPS", [][]interface{}{
		{"Reporte IAAPS Curicó 2024"},
		{},
		{"Indicador", "Establecimiento / Centro", "Numerador", "Denominador"},
		{"EMP", "CESFAM Colón", "10", "100"},
		{"Examen de Medicina Preventiva", "cecosf santos martires", "5", "50"},
		{"EMP", "Colon", "2,5", "10"},
		{"VDI", "CESFAM Sarmiento", "30", "120"},
		{"EMP", "Comunal", "40", "400"},
		{"EMP", "Hospital de Curicó", "1", "1"},
		{"XYZ", "CESFAM Colón", "1", "1"},
		{"EMP", "CESFAM Sarmiento", "n/a", "20"},
	})

	store, warnings, err := newTestSource("IAAPS").LoadReader(context.Background(), buf)
	require.NoError(t, err)

	colon, ok := store.Result("EMP", "cesfam-colon")
	require.True(t, ok)
	assert.Equal(t, 12.5, colon.Numerator)
	assert.Equal(t, 110.0, colon.Denominator)
	assert.InDelta(t, 11.3636, colon.Value, 0.001)

	est, ok := store.Result("EMP", "cecosf-santos-martires")
	require.True(t, ok)
	assert.Equal(t, 10.0, est.Value)

	vdi, ok := store.Result("VDI", "cesfam-sarmiento")
	require.True(t, ok)
	assert.Equal(t, 0.25, vdi.Value)

	_, ok = store.Comunal()
	assert.True(t, ok)
	comunal, ok := store.Result("EMP", domain.ComunalCode)
	require.True(t, ok)
	assert.Equal(t, 40.0, comunal.Numerator)

	sarmiento, ok := store.Result("EMP", "cesfam-sarmiento")
	require.True(t, ok)
	assert.Equal(t, 0.0, sarmiento.Numerator)
	assert.Equal(t, 20.0, sarmiento.Denominator)

	kinds := map[domain.WarningKind]int{}
	for _, w := range warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 1, kinds[domain.WarningUnknownEntity])
	assert.Equal(t, 1, kinds[domain.WarningUnknownIndicator])
	assert.Equal(t, 1, kinds[domain.WarningMalformedValue])
}

func TestXLSXSourceResultOnlyColumn(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]interface{}{
		{"Indicador", "Centro", "Cumplimiento"},
		{"EMP", "CESFAM Colón", "18,5%"},
		{"VDI", "CESFAM Colón", "0.3"},
	})

	store, warnings, err := newTestSource("").LoadReader(context.Background(), buf)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	emp, ok := store.Result("EMP", "cesfam-colon")
	require.True(t, ok)
	assert.Equal(t, 18.5, emp.Numerator)
	assert.Equal(t, 100.0, emp.Denominator)
	assert.InDelta(t, 18.5, emp.Value, 1e-9)

	vdi, ok := store.Result("VDI", "cesfam-colon")
	require.True(t, ok)
	assert.Equal(t, 1.0, vdi.Denominator)
	assert.InDelta(t, 0.3, vdi.Value, 1e-9)
}

func TestXLSXSourceEmptySheet(t *testing.T) {
	buf := workbook(t, "Sheet1", nil)

	store, warnings, err := newTestSource("").LoadReader(context.Background(), buf)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, store.HasResults())
	assert.Len(t, store.Indicators, 2)
}

func TestXLSXSourceMissingColumns(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]interface{}{
		{"Indicador", "Centro", "Observaciones"},
		{"EMP", "CESFAM Colón", "ok"},
	})

	_, _, err := newTestSource("").LoadReader(context.Background(), buf)
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestXLSXSourceUnknownSheet(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]interface{}{{"Indicador"}})

	_, _, err := newTestSource("Datos").LoadReader(context.Background(), buf)
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestXLSXSourceMissingFile(t *testing.T) {
	src := NewXLSXSource(
		config.Config{DataFile: "does-not-exist.xlsx"},
		config.NewStaticCatalogHolder(testCatalog()),
		zap.NewNop(),
	)
	_, _, err := src.Load(context.Background())
	assert.Error(t, err)
}

func TestXLSXSourceReadsFormattedNumbersRaw(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Indicador", "Centro", "Numerador", "Denominador"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"EMP", "CESFAM Colón", 1234, 5678}))
	style, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "C2", "D2", style))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	store, warnings, err := newTestSource("").LoadReader(context.Background(), buf)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	res, ok := store.Result("EMP", "cesfam-colon")
	require.True(t, ok)
	assert.Equal(t, 1234.0, res.Numerator)
	assert.Equal(t, 5678.0, res.Denominator)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{raw: "12", want: 12},
		{raw: "12.5", want: 12.5},
		{raw: "12,5", want: 12.5},
		{raw: "1.234,5", want: 1234.5},
		{raw: "1,234.5", want: 1234.5},
		{raw: " 45% ", want: 45},
		{raw: "-3", want: -3},
		{raw: "1,234", want: 1234},
		{raw: "1.234", want: 1234},
		{raw: "1.234.567", want: 1234567},
		{raw: "12,345", want: 12345},
		{raw: "0.125", want: 0.125},
		{raw: "1234.567", want: 1234.567},
		{raw: "12.34", want: 12.34},
	}
	for _, tc := range cases {
		got, err := ParseNumber(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.InDelta(t, tc.want, got, 1e-9, tc.raw)
	}

	for _, raw := range []string{"", "%", "n/a", "1,2,3x"} {
		_, err := ParseNumber(raw)
		assert.Error(t, err, raw)
	}
}

func TestResolver(t *testing.T) {
	r := NewResolver(testCatalog())

	code, ok := r.Entity("CESFAM COLÓN")
	require.True(t, ok)
	assert.Equal(t, "cesfam-colon", code)

	code, ok = r.Entity("colon")
	require.True(t, ok)
	assert.Equal(t, "cesfam-colon", code)

	code, ok = r.Entity("Total Comunal")
	require.True(t, ok)
	assert.Equal(t, domain.ComunalCode, code)

	_, ok = r.Entity("   ")
	assert.False(t, ok)

	code, ok = r.Indicator("emp")
	require.True(t, ok)
	assert.Equal(t, "EMP", code)
}
