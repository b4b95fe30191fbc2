package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/raster.report/internal/monitoring"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/testutil"
	"github.com/banshee-data/raster.report/internal/xsection"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

type zoneRow struct {
	geom.Polygon
	OBJECTID int
}

// fixtures writes two 4x4 rasters differing by a constant 0.5 and a single
// zone covering both.
func fixtures(t *testing.T) (dir, r1, r2, zonesPath string) {
	t.Helper()
	dir = t.TempDir()
	r1 = filepath.Join(dir, "lidar.asc")
	r2 = filepath.Join(dir, "survey.asc.gz")
	require.NoError(t, raster.WriteASCFile(r1, testutil.Constant(t, 4, 4, 0, 0, 1.5)))
	require.NoError(t, raster.WriteASCFile(r2, testutil.Constant(t, 4, 4, 0, 0, 1.0)))

	zonesPath = filepath.Join(dir, "aoi.shp")
	e, err := shp.NewEncoder(zonesPath, zoneRow{})
	require.NoError(t, err)
	require.NoError(t, e.Encode(zoneRow{Polygon: testutil.Square(0, 0, 4, 4), OBJECTID: 3}))
	e.Close()
	return dir, r1, r2, zonesPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_Version(t *testing.T) {
	out, err := runCLI(t, "-version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "raster-report "))
}

func TestRun_Usage(t *testing.T) {
	_, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "compare", "-h")
	assert.True(t, errors.Is(err, flag.ErrHelp))

	_, err = runCLI(t, "compare", "-r1", "a.asc")
	assert.ErrorIs(t, err, errUsage)

	out, err := runCLI(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "Commands:")
}

func TestRun_Compare(t *testing.T) {
	dir, r1, r2, zonesPath := fixtures(t)
	diff := filepath.Join(dir, "diff.asc")
	jsonPath := filepath.Join(dir, "result.json")
	plots := filepath.Join(dir, "plots")
	dbPath := filepath.Join(dir, "results.db")

	out, err := runCLI(t, "compare",
		"-r1", r1, "-r2", r2, "-zones", zonesPath, "-label", "Ophir",
		"-keep-diff", diff, "-json", jsonPath, "-plots", plots, "-db", dbPath)
	require.NoError(t, err)

	assert.Contains(t, out, "The bias for Ophir is 0.500 meters.")
	assert.Contains(t, out, "The standard deviation for Ophir is 0.000 meters.")
	assert.Contains(t, out, "The RMSE for Ophir is 0.500 meters.")
	assert.Contains(t, out, "All good!")
	assert.Contains(t, out, "Stored run ")

	d, err := raster.ReadASCFile(diff)
	require.NoError(t, err)
	assert.Equal(t, 16, d.ValidCount())
	assert.Equal(t, 0.5, d.Values[0])

	var res struct {
		Label string  `json:"label"`
		RMSE  float64 `json:"rmse"`
		Zones []struct {
			ZoneID int `json:"zone_id"`
		} `json:"zones"`
	}
	b, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &res))
	assert.Equal(t, "Ophir", res.Label)
	assert.InDelta(t, 0.5, res.RMSE, 1e-12)
	require.Len(t, res.Zones, 1)

	for _, name := range []string{"Ophir_difference.png", "Ophir_histogram.png", "Ophir_zones.html"} {
		_, err := os.Stat(filepath.Join(plots, name))
		assert.NoError(t, err, name)
	}

	hist, err := runCLI(t, "history", "-db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, hist, "Ophir")
	assert.Contains(t, hist, "0.500")
}

func TestRun_CompareReportUnitAndRowIDs(t *testing.T) {
	_, r1, r2, zonesPath := fixtures(t)
	out, err := runCLI(t, "compare",
		"-r1", r1, "-r2", r2, "-zones", zonesPath, "-label", "cm",
		"-id", "", "-pooled", "-report-unit", "centimeters")
	require.NoError(t, err)
	assert.Contains(t, out, "The RMSE for cm is 50.000 centimeters.")
}

func TestRun_CompareRejectsUnknownReportUnit(t *testing.T) {
	dir, r1, r2, zonesPath := fixtures(t)
	jsonPath := filepath.Join(dir, "furlongs.json")
	_, err := runCLI(t, "compare",
		"-r1", r1, "-r2", r2, "-zones", zonesPath, "-label", "furlongs",
		"-report-unit", "furlongs", "-json", jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "furlongs")
	assert.NoFileExists(t, jsonPath)
}

func TestRun_CompareDisjoint(t *testing.T) {
	dir, r1, _, zonesPath := fixtures(t)
	far := filepath.Join(dir, "far.asc")
	require.NoError(t, raster.WriteASCFile(far, testutil.Constant(t, 2, 2, 100, 100, 1)))

	_, err := runCLI(t, "compare", "-r1", r1, "-r2", far, "-zones", zonesPath, "-label", "far")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not overlap")
}

func TestRun_Batch(t *testing.T) {
	dir, r1, r2, zonesPath := fixtures(t)
	manifest := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
db_path: batch.db
jobs:
  - label: first
    raster1: `+filepath.Base(r1)+`
    raster2: `+filepath.Base(r2)+`
    zones: `+filepath.Base(zonesPath)+`
  - label: second
    raster1: `+r2+`
    raster2: `+r1+`
    zones: `+zonesPath+`
    aggregation: pooled
`), 0o644))

	out, err := runCLI(t, "batch", "-manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "=== [1/2] first ===")
	assert.Contains(t, out, "The bias for second is -0.500 meters.")

	hist, err := runCLI(t, "history", "-db", filepath.Join(dir, "batch.db"), "-label", "second")
	require.NoError(t, err)
	assert.Contains(t, hist, "second")
	assert.NotContains(t, hist, "first")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
jobs:
  - {label: ok, raster1: `+r1+`, raster2: `+r2+`, zones: `+zonesPath+`}
  - {label: missing, raster1: nope.asc, raster2: `+r2+`, zones: `+zonesPath+`}
`), 0o644))
	out, err = runCLI(t, "batch", "-manifest", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 jobs failed: missing")
	assert.Contains(t, out, "The RMSE for ok is 0.500 meters.")
}

func TestRun_MSSAndTSS(t *testing.T) {
	dir := t.TempDir()
	paths := map[string]float64{"cnes": 1, "tpwgs": 2, "mtft": 4, "geoid": 10}
	args := map[string]string{}
	for name, v := range paths {
		p := filepath.Join(dir, name+".asc")
		require.NoError(t, raster.WriteASCFile(p, testutil.Constant(t, 3, 3, 0, 0, v)))
		args[name] = p
	}

	mssPath := filepath.Join(dir, "out", "mss.asc")
	out, err := runCLI(t, "mss", "-cnes", args["cnes"], "-tpwgs", args["tpwgs"], "-mtft", args["mtft"], "-out", mssPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(9 valid cells)")
	mss, err := raster.ReadASCFile(mssPath)
	require.NoError(t, err)
	assert.Equal(t, 7.0, mss.Values[4])

	tssPath := filepath.Join(dir, "tss.asc")
	_, err = runCLI(t, "tss", "-cnes", args["cnes"], "-geoid", args["geoid"], "-tpwgs", args["tpwgs"], "-mtft", args["mtft"], "-out", tssPath)
	require.NoError(t, err)
	tss, err := raster.ReadASCFile(tssPath)
	require.NoError(t, err)
	assert.Equal(t, 3.0, tss.Values[0])

	_, err = runCLI(t, "tss", "-cnes", args["cnes"])
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_Profile(t *testing.T) {
	dir := t.TempDir()
	dem := filepath.Join(dir, "dem.asc")
	require.NoError(t, raster.WriteASCFile(dem, testutil.Constant(t, 4, 4, 0, 0, 12)))

	lines := filepath.Join(dir, "sections.shp")
	require.NoError(t, xsection.WriteLines(lines, []xsection.Feature{
		{ID: 7, Geom: geom.LineString{{X: 0.5, Y: 0.5}, {X: 3.5, Y: 0.5}}},
		{ID: 15, Geom: geom.LineString{{X: 0.5, Y: 1.5}, {X: 3.5, Y: 1.5}}},
		{ID: 30, Geom: geom.LineString{{X: 0.5, Y: 2.5}, {X: 0.5, Y: 3.5}}},
	}))

	outDir := filepath.Join(dir, "profiles")
	out, err := runCLI(t, "profile", "-lines", lines, "-dem", dem, "-out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 profiles (2 of 3 lines)")

	b, err := os.ReadFile(filepath.Join(outDir, "sections_CSV0.csv"))
	require.NoError(t, err)
	rows := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Equal(t, "id,x,y,z,distance", rows[0])
	assert.Len(t, rows, 5) // header + stations at 0, 1, 2, 3
	assert.Equal(t, "1,0.5,1.5,12,0", rows[1])

	_, err = os.Stat(filepath.Join(outDir, "sections_CSV1.csv"))
	assert.NoError(t, err)
}

func TestRun_ProfileThinsPointLayers(t *testing.T) {
	dir := t.TempDir()
	dem := filepath.Join(dir, "dem.asc")
	require.NoError(t, raster.WriteASCFile(dem, testutil.Constant(t, 4, 4, 0, 0, 12)))

	lines := filepath.Join(dir, "sections.shp")
	require.NoError(t, xsection.WriteLines(lines, []xsection.Feature{
		{ID: 15, Geom: geom.LineString{{X: 0.5, Y: 0.5}, {X: 3.5, Y: 0.5}}},
		{ID: 16, Geom: geom.LineString{{X: 0.5, Y: 1.5}, {X: 3.5, Y: 1.5}}},
	}))
	toe := filepath.Join(dir, "toe.shp")
	require.NoError(t, xsection.WritePoints(toe, []xsection.Feature{
		{ID: 15, Geom: geom.Point{X: 0.5, Y: 0.5}},
		{ID: 16, Geom: geom.Point{X: 0.5, Y: 1.5}},
	}))
	top := filepath.Join(dir, "top.shp")
	require.NoError(t, xsection.WritePoints(top, []xsection.Feature{
		{ID: 15, Geom: geom.Point{X: 3.5, Y: 0.5}},
		{ID: 16, Geom: geom.Point{X: 3.5, Y: 1.5}},
	}))

	outDir := filepath.Join(dir, "profiles")
	out, err := runCLI(t, "profile", "-lines", lines, "-dem", dem, "-out", outDir, "-toe", toe, "-top", top)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 of 2 points)")
	assert.Contains(t, out, "Wrote 1 profiles (1 of 2 lines)")

	got, err := xsection.ReadFeatures(filepath.Join(outDir, "sections_top.shp"), "OBJECTID")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, geom.Point{X: 3.5, Y: 0.5}, got[0].Geom)

	_, err = os.Stat(filepath.Join(outDir, "sections_toe.shp"))
	assert.NoError(t, err)
}

func TestRun_Migrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "m.db")
	out, err := runCLI(t, "migrate", "-db", dbPath, "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")

	out, err = runCLI(t, "migrate", "-db", dbPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")

	_, err = runCLI(t, "migrate", "-db", dbPath)
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_ConfigFile(t *testing.T) {
	_, r1, r2, zonesPath := fixtures(t)
	cfgPath := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"unit": "feet", "tolerance": 0.5}`), 0o644))

	out, err := runCLI(t, "-config", cfgPath, "compare", "-r1", r1, "-r2", r2, "-zones", zonesPath, "-label", "ft")
	require.NoError(t, err)
	assert.Contains(t, out, "The RMSE for ft is 0.500 feet.")
	assert.Contains(t, out, "is 0.000 ft.")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tolerance": -1}`), 0o644))
	_, err = runCLI(t, "-config", bad, "version")
	assert.Error(t, err)
}
