package dataset

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

func TestReadCSV(t *testing.T) {
	input := "CurrentSalesPrice, SumLivingAreaSqft ,Bedrooms,has_fireplace\n" +
		"150000,1200,3,True\n" +
		"250000,NA,,false\n" +
		"900000,3000,5,\n"

	tbl, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	want := []string{"currentsalesprice", "sumlivingareasqft", "bedrooms", "has_fireplace"}
	if diff := cmp.Diff(want, tbl.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, tbl.NumRows())
	assert.True(t, tbl.Has("CURRENTSALESPRICE"))

	price, ok := tbl.Column("currentsalesprice")
	require.True(t, ok)
	assert.Equal(t, []float64{150000, 250000, 900000}, price)

	living, _ := tbl.Column("sumlivingareasqft")
	assert.True(t, math.IsNaN(living[1]))

	fireplace, _ := tbl.Column("has_fireplace")
	assert.Equal(t, 1.0, fireplace[0])
	assert.Equal(t, 0.0, fireplace[1])
	assert.True(t, math.IsNaN(fireplace[2]))
}

func TestReadCSVWarnings(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	input := "price,zip,price\n" +
		"100,abc,1\n" +
		"200,def,2\n"

	tbl, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "zip"}, tbl.Columns())
	price, _ := tbl.Column("price")
	assert.Equal(t, []float64{100, 200}, price, "first duplicate column wins")

	// one warning for the duplicate header, one for the non-numeric column
	require.Len(t, warnings, 2)
	var conv *errors.DataConversionWarning
	require.True(t, errors.As(warnings[1], &conv))
	assert.Equal(t, "zip", conv.Column)
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestTableOperations(t *testing.T) {
	tbl, err := NewTable([]string{"a", "B"}, [][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	require.NoError(t, tbl.SetColumn("c", []float64{7, 8, 9}))
	assert.Error(t, tbl.SetColumn("d", []float64{1}))
	require.NoError(t, tbl.SetColumn("A", []float64{10, 20, 30}))
	assert.Equal(t, 3, tbl.NumColumns())

	filtered, kept := tbl.Filter(func(i int) bool { return i != 1 })
	assert.Equal(t, []int{0, 2}, kept)
	a, _ := filtered.Column("a")
	assert.Equal(t, []float64{10, 30}, a)

	m, err := tbl.Matrix([]string{"c", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 4, 8, 5, 9, 6}, m.RawMatrix().Data)

	_, err = tbl.Matrix([]string{"missing"})
	var mc *errors.MissingColumnError
	assert.True(t, errors.As(err, &mc))

	_, err = NewTable([]string{"a", "b"}, [][]float64{{1}, {1, 2}})
	assert.Error(t, err)
}
