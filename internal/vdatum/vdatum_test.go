package vdatum

import (
	"context"
	"testing"

	"github.com/banshee-data/raster.report/internal/fsutil"
	"github.com/banshee-data/raster.report/internal/geoproc"
	"github.com/banshee-data/raster.report/internal/monitoring"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/testutil"
	"github.com/banshee-data/raster.report/internal/zones"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestMSS_SumsOverDomainOverlap(t *testing.T) {
	t.Parallel()
	in := MSSInputs{
		CNES:  testutil.Constant(t, 4, 4, 0, 0, 10),
		TPWGS: testutil.Constant(t, 6, 6, -1, -1, 0.5),
		MTFT:  testutil.Constant(t, 2, 4, 0, 0, -0.25), // bottom half of CNES
	}
	out, err := MSS(context.Background(), in, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Rows)
	assert.Equal(t, 4, out.Cols)
	assert.Equal(t, 8, out.ValidCount())
	for _, v := range out.ValidValues() {
		assert.InDelta(t, 10.25, v, 1e-12)
	}
}

func TestMSS_ErasesBufferedLand(t *testing.T) {
	t.Parallel()
	in := MSSInputs{
		CNES:  testutil.Constant(t, 10, 10, 0, 0, 1),
		TPWGS: testutil.Constant(t, 10, 10, 0, 0, 1),
		MTFT:  testutil.Constant(t, 10, 10, 0, 0, 1),
		Land:  testutil.Box(0, 0, 2, 10), // western strip
	}
	opts := DefaultOptions()
	opts.BufferDistance = 2

	out, err := MSS(context.Background(), in, opts)
	require.NoError(t, err)

	// Columns 0-3 have centres within 2 of the land.
	assert.Equal(t, 60, out.ValidCount())
	assert.False(t, out.Valid(0, 3))
	assert.True(t, out.Valid(0, 4))
	assert.Equal(t, 3.0, out.At(5, 9))
}

func TestMSS_DisjointDomains(t *testing.T) {
	t.Parallel()
	in := MSSInputs{
		CNES:  testutil.Constant(t, 2, 2, 0, 0, 1),
		TPWGS: testutil.Constant(t, 2, 2, 0, 0, 1),
		MTFT:  testutil.Constant(t, 2, 2, 50, 50, 1),
	}
	_, err := MSS(context.Background(), in, DefaultOptions())
	assert.ErrorIs(t, err, raster.ErrNoOverlap)
}

func TestMSS_MissingInput(t *testing.T) {
	t.Parallel()
	_, err := MSS(context.Background(), MSSInputs{CNES: testutil.Constant(t, 1, 1, 0, 0, 1)}, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.BufferDistance = -1
	r := testutil.Constant(t, 1, 1, 0, 0, 1)
	_, err = MSS(context.Background(), MSSInputs{CNES: r, TPWGS: r, MTFT: r}, opts)
	assert.Error(t, err)
}

func TestTSS_Algebra(t *testing.T) {
	t.Parallel()
	in := TSSInputs{
		Geoid: testutil.Constant(t, 3, 3, 0, 0, 20),
		CNES:  testutil.Constant(t, 3, 3, 0, 0, 15),
		TPWGS: testutil.Constant(t, 3, 3, 0, 0, 1),
		MTFT:  testutil.Constant(t, 3, 3, 0, 0, 0.5),
	}
	out, err := TSS(context.Background(), in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 9, out.ValidCount())
	for _, v := range out.ValidValues() {
		assert.InDelta(t, 3.5, v, 1e-12)
	}
}

func TestTSS_GivenExtent(t *testing.T) {
	t.Parallel()
	in := TSSInputs{
		Geoid:  testutil.Constant(t, 4, 4, 0, 0, 2),
		CNES:   testutil.Constant(t, 4, 4, 0, 0, 1),
		TPWGS:  testutil.Constant(t, 4, 4, 0, 0, 0),
		MTFT:   testutil.Constant(t, 4, 4, 0, 0, 0),
		Extent: geoproc.Polygon{Polygonal: testutil.Square(0, 0, 2, 2)},
	}
	out, err := TSS(context.Background(), in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, out.ValidCount())
}

func TestMSS_SpillsAndReleases(t *testing.T) {
	t.Parallel()
	mem := fsutil.NewMemoryFileSystem()
	r := testutil.Constant(t, 2, 2, 0, 0, 1)
	opts := DefaultOptions()
	opts.Spill = true
	opts.ScratchDir = "/scratch"
	opts.FS = mem

	out, err := MSS(context.Background(), MSSInputs{CNES: r, TPWGS: r, MTFT: r}, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, out.ValidCount())

	files, err := mem.List("/scratch")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLand_MergesZones(t *testing.T) {
	t.Parallel()
	p := testutil.Zones(t, testutil.Box(0, 0, 1, 1), testutil.Box(5, 5, 6, 6))
	land := Land(p)
	assert.Len(t, land.Polygons(), 2)
	assert.Empty(t, Land((*zones.Partition)(nil)).Polygons())
}
