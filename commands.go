package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/raster.report/internal/compare"
	"github.com/banshee-data/raster.report/internal/config"
	"github.com/banshee-data/raster.report/internal/db"
	"github.com/banshee-data/raster.report/internal/geoproc"
	"github.com/banshee-data/raster.report/internal/plotting"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/security"
	"github.com/banshee-data/raster.report/internal/timeutil"
	"github.com/banshee-data/raster.report/internal/units"
	"github.com/banshee-data/raster.report/internal/vdatum"
	"github.com/banshee-data/raster.report/internal/xsection"
	"github.com/banshee-data/raster.report/internal/zones"
)

const defaultDBPath = "raster-report.db"

type cli struct {
	cfg    *config.Config
	clock  timeutil.Clock
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func required(fs *flag.FlagSet, names ...string) error {
	var missing []string
	for _, n := range names {
		if f := fs.Lookup(n); f == nil || f.Value.String() == "" {
			missing = append(missing, "-"+n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	fmt.Fprintf(fs.Output(), "Error: %s required\n", strings.Join(missing, ", "))
	fs.Usage()
	return errUsage
}

func (c *cli) handleCompare(ctx context.Context, args []string) error {
	fs := c.flagSet("compare")
	r1 := fs.String("r1", "", "First raster (.asc or .asc.gz), the reference grid")
	r2 := fs.String("r2", "", "Second raster, subtracted from the first")
	zonesPath := fs.String("zones", "", "Polygon shapefile of the area-of-interest zones")
	idField := fs.String("id", c.cfg.GetIDField(), "Zone id attribute; empty numbers zones by row")
	label := fs.String("label", "", "Label used in the report")
	unit := fs.String("unit", c.cfg.GetUnit(), "Linear unit of the rasters")
	reportUnit := fs.String("report-unit", "", "Convert results to this unit before reporting")
	pooled := fs.Bool("pooled", c.cfg.GetAggregation() == compare.AggregationPooled, "Pool zones into one mean and std instead of summing per-zone values")
	keepDiff := fs.String("keep-diff", "", "Write the difference raster to this path")
	plots := fs.String("plots", "", "Write heat map, histogram and zone chart to this directory")
	dbPath := fs.String("db", c.cfg.GetDBPath(), "Store the result in this SQLite database")
	jsonPath := fs.String("json", "", "Write the result as JSON to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "r1", "r2", "zones", "label"); err != nil {
		return err
	}
	if *reportUnit != "" && !units.IsValid(*reportUnit) {
		return fmt.Errorf("invalid -report-unit %q, must be one of: %s", *reportUnit, units.GetValidUnitsString())
	}

	job := config.Job{
		Label:    *label,
		Raster1:  *r1,
		Raster2:  *r2,
		Zones:    *zonesPath,
		Unit:     *unit,
		KeepDiff: *keepDiff,
		Plots:    *plots,
		JSON:     *jsonPath,
	}
	if isSet(fs, "id") {
		job.IDField = idField
	}
	if *pooled {
		job.Aggregation = string(compare.AggregationPooled)
	} else {
		job.Aggregation = string(compare.AggregationAdditive)
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	_, err = c.runJob(ctx, job, store, *reportUnit)
	return err
}

// runJob runs one comparison and writes every requested output.
func (c *cli) runJob(ctx context.Context, job config.Job, store *db.DB, reportUnit string) (*compare.Result, error) {
	r1, err := raster.ReadASCFile(job.Raster1)
	if err != nil {
		return nil, err
	}
	r2, err := raster.ReadASCFile(job.Raster2)
	if err != nil {
		return nil, err
	}
	zs, err := zones.LoadShapefile(job.Zones, job.ZoneIDField(c.cfg), r1.SRS)
	if err != nil {
		return nil, err
	}

	comparator, err := compare.New(geoproc.NewLocal(), job.Options(c.cfg))
	if err != nil {
		return nil, err
	}
	res, err := comparator.Compare(ctx, r1, r2, zs, job.Label)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job.Label, err)
	}

	if job.KeepDiff != "" {
		if err := raster.WriteASCFile(job.KeepDiff, res.Difference); err != nil {
			return nil, err
		}
		fmt.Fprintf(c.stdout, "Wrote difference raster %s\n", job.KeepDiff)
	}
	if job.Plots != "" {
		if err := writePlots(job.Plots, res); err != nil {
			return nil, err
		}
		fmt.Fprintf(c.stdout, "Wrote plots to %s\n", job.Plots)
	}
	if store != nil {
		id, err := store.InsertComparison(db.RunFromResult(res, job.Raster1, job.Raster2, job.Zones))
		if err != nil {
			return nil, fmt.Errorf("failed to store result: %w", err)
		}
		fmt.Fprintf(c.stdout, "Stored run %s\n", id)
	}

	reported := res
	if reportUnit != "" && reportUnit != res.Unit {
		reported = res.Convert(reportUnit)
	}
	if job.JSON != "" {
		if err := writeJSON(job.JSON, reported); err != nil {
			return nil, err
		}
	}
	if err := reported.WriteReport(c.stdout); err != nil {
		return nil, err
	}
	return res, nil
}

func writePlots(dir string, res *compare.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plot dir: %w", err)
	}
	heatMap, err := security.OutputPath(dir, res.Label, "_difference.png")
	if err != nil {
		return err
	}
	histogram, err := security.OutputPath(dir, res.Label, "_histogram.png")
	if err != nil {
		return err
	}
	chart, err := security.OutputPath(dir, res.Label, "_zones.html")
	if err != nil {
		return err
	}

	title := res.Label + " difference"
	if err := plotting.WriteDifferenceHeatMap(heatMap, title, res.Difference); err != nil {
		return err
	}
	if err := plotting.WriteHistogram(histogram, title, res.Difference, plotting.DefaultBins); err != nil {
		return err
	}
	return plotting.WriteZoneChartFile(chart, res)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func openStore(path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	store, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return store, nil
}

func (c *cli) handleBatch(ctx context.Context, args []string) error {
	fs := c.flagSet("batch")
	manifestPath := fs.String("manifest", "", "YAML manifest listing comparison jobs")
	dbPath := fs.String("db", "", "Store results in this SQLite database (overrides the manifest)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "manifest"); err != nil {
		return err
	}

	m, err := config.LoadManifest(*manifestPath)
	if err != nil {
		return err
	}
	path := m.DBPath
	if *dbPath != "" {
		path = *dbPath
	}
	if path == "" {
		path = c.cfg.GetDBPath()
	}
	store, err := openStore(path)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	var failed []string
	for i, job := range m.Jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "=== [%d/%d] %s ===\n", i+1, len(m.Jobs), job.Label)
		start := c.clock.Now()
		if _, err := c.runJob(ctx, job, store, ""); err != nil {
			fmt.Fprintf(c.stderr, "%s failed: %v\n", job.Label, err)
			failed = append(failed, job.Label)
			continue
		}
		fmt.Fprintf(c.stdout, "%s done in %s\n", job.Label, c.clock.Since(start).Round(time.Millisecond))
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d jobs failed: %s", len(failed), len(m.Jobs), strings.Join(failed, ", "))
	}
	return nil
}

func (c *cli) handleHistory(args []string) error {
	fs := c.flagSet("history")
	dbPath := fs.String("db", c.cfg.GetDBPath(), "SQLite results database")
	label := fs.String("label", "", "Only list runs with this label")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "db"); err != nil {
		return err
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if fs.NArg() > 0 {
		run, err := store.GetComparison(fs.Arg(0))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	runs, err := store.ListComparisons(*label, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tLABEL\tBIAS\tSTD\tRMSE\tDELTA\tOK\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%v\t%s\n",
			r.RunID, r.Label, r.Bias, r.Std, r.RMSE, r.Delta, r.Consistent, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func (c *cli) datumFlags(fs *flag.FlagSet) (land *string, buffer *float64, out *string) {
	land = fs.String("land", "", "Land polygon shapefile; cells within -buffer of land are dropped")
	buffer = fs.Float64("buffer", c.cfg.GetBufferDistance(), "Land buffer distance in metres")
	out = fs.String("out", "", "Output raster path")
	return land, buffer, out
}

func (c *cli) vdatumOptions(buffer float64) vdatum.Options {
	opts := vdatum.DefaultOptions()
	opts.BufferDistance = buffer
	opts.Processor = geoproc.NewLocal()
	opts.Spill = c.cfg.GetSpillIntermediates()
	opts.ScratchDir = c.cfg.GetScratchDir()
	return opts
}

// readPolygons loads a polygon shapefile numbered by row, or nil when path
// is empty.
func readPolygons(path, srs string) (*zones.Partition, error) {
	if path == "" {
		return nil, nil
	}
	return zones.LoadShapefile(path, "", srs)
}

func readRasters(paths ...string) ([]*raster.Raster, error) {
	out := make([]*raster.Raster, len(paths))
	for i, p := range paths {
		r, err := raster.ReadASCFile(p)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (c *cli) handleMSS(ctx context.Context, args []string) error {
	fs := c.flagSet("mss")
	cnes := fs.String("cnes", "", "CNES mean sea surface grid")
	tpwgs := fs.String("tpwgs", "", "TOPEX/Poseidon to WGS 84 conversion grid")
	mtft := fs.String("mtft", "", "Mean-tide to tide-free conversion grid")
	land, buffer, out := c.datumFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "cnes", "tpwgs", "mtft", "out"); err != nil {
		return err
	}

	rs, err := readRasters(*cnes, *tpwgs, *mtft)
	if err != nil {
		return err
	}
	in := vdatum.MSSInputs{CNES: rs[0], TPWGS: rs[1], MTFT: rs[2]}
	landZones, err := readPolygons(*land, rs[0].SRS)
	if err != nil {
		return err
	}
	if landZones != nil {
		in.Land = vdatum.Land(landZones)
	}

	mss, err := vdatum.MSS(ctx, in, c.vdatumOptions(*buffer))
	if err != nil {
		return err
	}
	return c.writeGrid(*out, mss)
}

func (c *cli) handleTSS(ctx context.Context, args []string) error {
	fs := c.flagSet("tss")
	cnes := fs.String("cnes", "", "CNES mean sea surface grid")
	geoid := fs.String("geoid", "", "Geoid grid")
	tpwgs := fs.String("tpwgs", "", "TOPEX/Poseidon to WGS 84 conversion grid")
	mtft := fs.String("mtft", "", "Mean-tide to tide-free conversion grid")
	extent := fs.String("extent", "", "Polygon shapefile limiting the output (defaults to the CNES and geoid overlap)")
	land, buffer, out := c.datumFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "cnes", "geoid", "tpwgs", "mtft", "out"); err != nil {
		return err
	}

	rs, err := readRasters(*cnes, *geoid, *tpwgs, *mtft)
	if err != nil {
		return err
	}
	in := vdatum.TSSInputs{CNES: rs[0], Geoid: rs[1], TPWGS: rs[2], MTFT: rs[3]}
	landZones, err := readPolygons(*land, rs[1].SRS)
	if err != nil {
		return err
	}
	if landZones != nil {
		in.Land = vdatum.Land(landZones)
	}
	extentZones, err := readPolygons(*extent, rs[1].SRS)
	if err != nil {
		return err
	}
	if extentZones != nil {
		in.Extent = geoproc.Polygon{Polygonal: vdatum.Land(extentZones)}
	}

	tss, err := vdatum.TSS(ctx, in, c.vdatumOptions(*buffer))
	if err != nil {
		return err
	}
	return c.writeGrid(*out, tss)
}

func (c *cli) writeGrid(path string, r *raster.Raster) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := raster.WriteASCFile(path, r); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Wrote %s (%d valid cells)\n", path, r.ValidCount())
	return nil
}

func (c *cli) handleProfile(args []string) error {
	fs := c.flagSet("profile")
	lines := fs.String("lines", "", "Cross-section line shapefile")
	dem := fs.String("dem", "", "Elevation raster to sample")
	idField := fs.String("id", c.cfg.GetIDField(), "Line id attribute; empty numbers lines by row")
	spacing := fs.Float64("spacing", c.cfg.GetProfileSpacing(), "Distance between stations along each line")
	every := fs.Int("every", c.cfg.GetThinEvery(), "Keep every Nth line by id (1 keeps all)")
	label := fs.String("label", "", "CSV file name prefix (defaults to the line layer name)")
	thinned := fs.String("thinned", "", "Also write the kept lines to this shapefile")
	toe := fs.String("toe", "", "Toe point shapefile, thinned with the lines")
	top := fs.String("top", "", "Top point shapefile, thinned with the lines")
	out := fs.String("out", "", "Output directory for profile CSV files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "lines", "dem", "out"); err != nil {
		return err
	}
	if *label == "" {
		*label = strings.TrimSuffix(filepath.Base(*lines), filepath.Ext(*lines))
	}

	features, err := xsection.ReadFeatures(*lines, *idField)
	if err != nil {
		return err
	}
	kept := xsection.Thin(features, *every)
	if len(kept) == 0 {
		return fmt.Errorf("no lines left after keeping every %d of %d", *every, len(features))
	}
	if *thinned != "" {
		if err := xsection.WriteLines(*thinned, kept); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	stem := security.SanitizeLabel(*label)
	for _, layer := range []struct{ path, suffix string }{{*toe, "_toe.shp"}, {*top, "_top.shp"}} {
		if layer.path == "" {
			continue
		}
		if err := c.thinPoints(layer.path, *idField, *every, *out, stem+layer.suffix); err != nil {
			return err
		}
	}

	surface, err := raster.ReadASCFile(*dem)
	if err != nil {
		return err
	}
	profiles, err := xsection.Profiles(kept, surface, *spacing)
	if err != nil {
		return err
	}

	for _, p := range profiles {
		path := filepath.Join(*out, xsection.FileName(stem, p.ID))
		if err := security.ValidatePathWithinDirectory(path, *out); err != nil {
			return err
		}
		if err := writeProfile(path, p); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.stdout, "Wrote %d profiles (%d of %d lines) to %s\n", len(profiles), len(kept), len(features), *out)
	return nil
}

// thinPoints thins a point layer with the same rule as the lines and writes the
// survivors to name inside dir.
func (c *cli) thinPoints(path, idField string, every int, dir, name string) error {
	features, err := xsection.ReadFeatures(path, idField)
	if err != nil {
		return err
	}
	kept := xsection.Thin(features, every)
	dst := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(dst, dir); err != nil {
		return err
	}
	if err := xsection.WritePoints(dst, kept); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Wrote %s (%d of %d points)\n", dst, len(kept), len(features))
	return nil
}

func writeProfile(path string, p xsection.Profile) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return xsection.WriteCSV(f, p)
}

func (c *cli) handleMigrate(args []string) error {
	fs := c.flagSet("migrate")
	dbPath := fs.String("db", c.cfg.GetDBPath(), "SQLite results database")
	dir := fs.String("dir", "", "Directory of migration files (defaults to the built-in set)")
	fs.Usage = func() { db.PrintMigrateHelp(c.stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *dbPath
	if path == "" {
		path = defaultDBPath
	}
	if err := db.RunMigrateCommand(c.stdout, fs.Args(), path, *dir); err != nil {
		if fs.NArg() == 0 {
			return errors.Join(errUsage, err)
		}
		return err
	}
	return nil
}
