package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := NewStore()
	s.AddIndicator(Indicator{Code: "I1", Name: "Cobertura EMP", Target: 50, Kind: KindPercentage})
	s.AddCenter(&Center{Code: "C1", Name: "CESFAM Uno"})
	s.AddCenter(&Center{Code: "C2", Name: "CESFAM Dos"})
	s.AddEstablishment(&Establishment{Code: "E1", Name: "Posta Uno", ParentCenterCode: "C1"})
	s.AddEstablishment(&Establishment{Code: "E2", Name: "Posta Dos", ParentCenterCode: "C1"})
	s.SetResult("I1", "C1", &Result{Numerator: 10, Denominator: 100})
	return s
}

func TestStoreValidate(t *testing.T) {
	require.NoError(t, newTestStore().Validate())

	s := newTestStore()
	s.AddIndicator(Indicator{Code: "I1", Kind: KindPercentage})
	s.AddEstablishment(&Establishment{Code: ComunalCode, ParentCenterCode: "C1"})
	s.AddEstablishment(&Establishment{Code: "E9", ParentCenterCode: "missing"})
	s.AddEstablishment(&Establishment{Code: "E8", ParentCenterCode: ComunalCode})
	s.AddCenter(&Center{Code: ComunalCode})
	s.AddIndicator(Indicator{Code: "I2", Kind: "weird"})

	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCode))
	assert.True(t, errors.Is(err, ErrReservedCode))
	assert.True(t, errors.Is(err, ErrUnknownParent))
	assert.True(t, errors.Is(err, ErrInvalidKind))

	var nilStore *Store
	assert.ErrorIs(t, nilStore.Validate(), ErrNilStore)
}

func TestStoreEstablishmentsOfUsesParentCode(t *testing.T) {
	s := newTestStore()

	got := s.EstablishmentsOf("C1")
	require.Len(t, got, 2)
	assert.Equal(t, "E1", got[0].Code)
	assert.Equal(t, "E2", got[1].Code)
	assert.Empty(t, s.EstablishmentsOf("C2"))
}

func TestStoreCloneIsDeep(t *testing.T) {
	s := newTestStore()
	s.EnsureComunal()
	cp := s.Clone()

	r, ok := cp.Result("I1", "C1")
	require.True(t, ok)
	r.Numerator = 99
	r.Snapshot(1, 2)
	cp.Centers[0].Derived.AverageCompliance = 42

	orig, _ := s.Result("I1", "C1")
	assert.Equal(t, 10.0, orig.Numerator)
	assert.False(t, orig.Snapshotted())
	assert.Zero(t, s.Centers[0].Derived.AverageCompliance)
	assert.Len(t, cp.Centers, 3)
}

func TestEnsureComunalIsIdempotent(t *testing.T) {
	s := newTestStore()
	first := s.EnsureComunal()
	second := s.EnsureComunal()

	assert.Same(t, first, second)
	assert.Len(t, s.FacilityCenters(), 2)
}

func TestResultSnapshotOnlyOnce(t *testing.T) {
	r := &Result{}
	r.Snapshot(3, 4)
	r.Snapshot(7, 8)

	require.True(t, r.Snapshotted())
	assert.Equal(t, 3.0, *r.OriginalNumerator)
	assert.Equal(t, 4.0, *r.OriginalDenominator)
}

func TestComputeValue(t *testing.T) {
	v, ok := ComputeValue(KindPercentage, 18, 170)
	require.True(t, ok)
	assert.InDelta(t, 10.588, v, 0.001)

	v, ok = ComputeValue(KindRate, 3, 4)
	require.True(t, ok)
	assert.Equal(t, 0.75, v)

	_, ok = ComputeValue(KindPercentage, 1, 0)
	assert.False(t, ok)

	_, ok = ComputeValue(KindPercentage, math.NaN(), 10)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	cases := map[string]IndicatorKind{
		"":           KindPercentage,
		"Porcentaje": KindPercentage,
		"%":          KindPercentage,
		"tasa":       KindRate,
		" rate ":     KindRate,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseKind("ratio-ish")
	assert.ErrorIs(t, err, ErrInvalidKind)
}
