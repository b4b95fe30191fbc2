package raster

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(t *testing.T, rows, cols int, xll, yll, cs, v float64) *Raster {
	t.Helper()
	r, err := New(rows, cols, xll, yll, cs, DefaultNoData)
	require.NoError(t, err)
	for i := range r.Values {
		r.Values[i] = v
	}
	return r
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rows    int
		cols    int
		cs      float64
		wantErr bool
	}{
		{"valid", 3, 3, 1, false},
		{"zero rows", 0, 3, 1, true},
		{"zero cols", 3, 0, 1, true},
		{"zero cell size", 3, 3, 0, true},
		{"negative cell size", 3, 3, -1, true},
		{"nan cell size", 3, 3, math.NaN(), true},
		{"too many cells", MaxCells, 2, 1, true},
		{"overflowing product", math.MaxInt / 2, 3, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rows, tt.cols, 0, 0, tt.cs, DefaultNoData)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCellCenterAndCellAt(t *testing.T) {
	t.Parallel()
	r := constant(t, 2, 3, 10, 20, 2, 1)

	// row 0 is the top row
	c := r.CellCenter(0, 0)
	assert.Equal(t, geom.Point{X: 11, Y: 23}, c)
	c = r.CellCenter(1, 2)
	assert.Equal(t, geom.Point{X: 15, Y: 21}, c)

	row, col, ok := r.CellAt(15, 21)
	require.True(t, ok)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)

	_, _, ok = r.CellAt(16, 21) // right edge
	assert.False(t, ok)
	_, _, ok = r.CellAt(9.9, 21)
	assert.False(t, ok)
}

func TestCrop_OneCellOverlap(t *testing.T) {
	t.Parallel()
	a := constant(t, 3, 3, 0, 0, 1, 10)
	a.Set(0, 2, 42) // top-right
	b := constant(t, 3, 3, 2, 2, 1, 7)
	b.Set(2, 0, 13) // bottom-left

	overlap := &geom.Bounds{Min: geom.Point{X: 2, Y: 2}, Max: geom.Point{X: 3, Y: 3}}
	ca, err := Crop(a, overlap)
	require.NoError(t, err)
	cb, err := Crop(b, overlap)
	require.NoError(t, err)

	assert.Equal(t, 1, ca.Rows)
	assert.Equal(t, 1, ca.Cols)
	assert.Equal(t, []float64{42}, ca.Values)
	assert.Equal(t, []float64{13}, cb.Values)
	assert.True(t, SameGrid(ca, cb))
}

func TestCrop_NoOverlap(t *testing.T) {
	t.Parallel()
	a := constant(t, 3, 3, 0, 0, 1, 1)
	_, err := Crop(a, &geom.Bounds{Min: geom.Point{X: 5, Y: 5}, Max: geom.Point{X: 6, Y: 6}})
	assert.ErrorIs(t, err, ErrNoOverlap)
}

func TestMask_KeepPredicate(t *testing.T) {
	t.Parallel()
	r := constant(t, 2, 2, 0, 0, 1, 3)
	out, err := Mask(r, r.Bounds(), func(p geom.Point) bool { return p.X < 1 })
	require.NoError(t, err)
	assert.Equal(t, 2, out.ValidCount())
	assert.True(t, out.Valid(0, 0))
	assert.False(t, out.Valid(0, 1))

	_, err = Mask(r, r.Bounds(), func(geom.Point) bool { return false })
	assert.ErrorIs(t, err, ErrNoOverlap)
}

func TestResample_NearestNeighbour(t *testing.T) {
	t.Parallel()
	// 2x2 source at cell size 2 over a 4x4 target at cell size 1.
	src := constant(t, 2, 2, 0, 0, 2, 0)
	src.Values = []float64{1, 2, 3, 4}
	like := constant(t, 4, 4, 0, 0, 1, 0)

	out := Resample(src, like)
	require.True(t, SameGrid(out, like))
	assert.Equal(t, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, out.Values)
}

func TestResample_OutsideIsNoData(t *testing.T) {
	t.Parallel()
	src := constant(t, 1, 1, 0, 0, 1, 5)
	like := constant(t, 1, 2, 0, 0, 1, 0)
	out := Resample(src, like)
	assert.Equal(t, 5.0, out.At(0, 0))
	assert.False(t, out.Valid(0, 1))
}

func TestSubtractAndSquare(t *testing.T) {
	t.Parallel()
	a := constant(t, 1, 3, 0, 0, 1, 10)
	b := constant(t, 1, 3, 0, 0, 1, 8)
	b.Values[1] = b.NoData

	d, err := Subtract(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2.0, d.Values[0])
	assert.False(t, d.Valid(0, 1))

	sq := Square(d)
	assert.Equal(t, 4.0, sq.Values[0])
	assert.False(t, sq.Valid(0, 1))
	assert.Equal(t, 4.0, sq.Values[2])
}

func TestCombine_GridMismatch(t *testing.T) {
	t.Parallel()
	a := constant(t, 2, 2, 0, 0, 1, 1)
	b := constant(t, 2, 2, 0.5, 0, 1, 1)
	_, err := Combine([]float64{1, 1}, a, b)
	assert.ErrorIs(t, err, ErrGridMismatch)

	_, err = Combine([]float64{1}, a, a)
	assert.Error(t, err)
}

func TestASC_RoundTrip(t *testing.T) {
	t.Parallel()
	r := constant(t, 2, 3, 100, 200, 5, 1.5)
	r.Set(1, 1, r.NoData)
	r.Set(0, 2, -2.25)

	var buf bytes.Buffer
	require.NoError(t, WriteASC(&buf, r))

	got, err := ReadASC(&buf)
	require.NoError(t, err)
	assert.Equal(t, r.Rows, got.Rows)
	assert.Equal(t, r.Cols, got.Cols)
	assert.Equal(t, r.XLL, got.XLL)
	assert.Equal(t, r.YLL, got.YLL)
	assert.Equal(t, r.Values, got.Values)
	assert.False(t, got.Valid(1, 1))
}

func TestReadASC_CenterRegistrationAndDefaults(t *testing.T) {
	t.Parallel()
	src := "NCOLS 2\nNROWS 1\nXLLCENTER 0.5\nYLLCENTER 0.5\nCELLSIZE 1\n3 4\n"
	r, err := ReadASC(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.XLL)
	assert.Equal(t, 0.0, r.YLL)
	assert.Equal(t, DefaultNoData, r.NoData)
	assert.Equal(t, []float64{3, 4}, r.Values)
}

func TestReadASC_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
	}{
		{"missing ncols", "nrows 1\ncellsize 1\n1\n"},
		{"short body", "ncols 2\nnrows 2\ncellsize 1\n1 2 3\n"},
		{"long body", "ncols 1\nnrows 1\ncellsize 1\n1 2\n"},
		{"bad value", "ncols 1\nnrows 1\ncellsize 1\nx\n"},
		{"bad header value", "ncols two\nnrows 1\ncellsize 1\n1\n"},
		{"fractional ncols", "ncols 2.7\nnrows 1\ncellsize 1\n1 2\n"},
		{"negative nrows", "ncols 1\nnrows -1\ncellsize 1\n1\n"},
		{"overflowing header", "ncols 4294967296\nnrows 4294967296\ncellsize 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadASC(strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestValidate_RejectsWrappedDimensions(t *testing.T) {
	t.Parallel()
	r := &Raster{Rows: math.MaxInt / 2, Cols: 4, CellSize: 1}
	assert.Error(t, r.Validate())
}

func TestASCFile_GzipAndProjection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := constant(t, 2, 2, 0, 0, 1, 9)
	r.SRS = `PROJCS["test"]`

	path := filepath.Join(dir, "grid.asc.gz")
	require.NoError(t, WriteASCFile(path, r))
	assert.FileExists(t, filepath.Join(dir, "grid.prj"))

	got, err := ReadASCFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Values, got.Values)
	assert.Equal(t, r.SRS, got.SRS)
}
