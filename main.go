// Command raster-report compares elevation rasters over zone partitions,
// builds vertical-datum grids and extracts cross-section profiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/raster.report/internal/config"
	"github.com/banshee-data/raster.report/internal/timeutil"
	"github.com/banshee-data/raster.report/internal/version"
)

// errUsage marks command-line mistakes; the usage text has already been
// printed when it is returned.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatalf("raster-report: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("raster-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "Print version information and exit")
	configPath := fs.String("config", "", "Path to a JSON configuration file (defaults are used when empty)")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if fs.NArg() < 1 {
		printUsage(stderr)
		return errUsage
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	app := &cli{cfg: cfg, clock: timeutil.RealClock{}, stdout: stdout, stderr: stderr}
	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "compare":
		return app.handleCompare(ctx, rest)
	case "batch":
		return app.handleBatch(ctx, rest)
	case "history":
		return app.handleHistory(rest)
	case "mss":
		return app.handleMSS(ctx, rest)
	case "tss":
		return app.handleTSS(ctx, rest)
	case "profile":
		return app.handleProfile(rest)
	case "migrate":
		return app.handleMigrate(rest)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `raster-report - raster comparison and datum grid tool

Usage: raster-report [-config file.json] <command> [options]

Commands:
  compare    Compare two rasters over a zone partition (bias, std, RMSE)
  batch      Run the comparisons listed in a YAML manifest
  history    List comparison runs stored in a results database
  mss        Build a mean sea surface grid (CNES + TP_WGS + MT_FT)
  tss        Build a sea-surface topography grid (Geoid - CNES - TP_WGS - MT_FT)
  profile    Sample cross-section profiles from a DEM into CSV files
  migrate    Manage the results database schema
  version    Show version information
  help       Show this help message

Examples:
  raster-report compare -r1 lidar.asc -r2 survey.asc -zones aoi.shp -label Ophir
  raster-report batch -manifest jobs.yaml
  raster-report profile -lines sections.shp -dem dem.asc -out profiles/
  raster-report migrate -db results.db status

Run 'raster-report <command> -h' for command options.`)
}
