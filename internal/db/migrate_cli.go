package db

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand. migrationsDir selects
// migration files on disk; empty uses the embedded set.
func RunMigrateCommand(w io.Writer, args []string, dbPath, migrationsDir string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("migrate: missing action")
	}

	var src fs.FS
	if migrationsDir != "" {
		src = os.DirFS(migrationsDir)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	action := args[0]
	switch action {
	case "up":
		if err := database.MigrateUp(src); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
		return printVersion(w, database, src)

	case "down":
		if err := database.MigrateDown(src); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
		return printVersion(w, database, src)

	case "status":
		version, dirty, err := database.MigrateVersion(src)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		latest, err := LatestMigrationVersion(src)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "=== Migration Status ===")
		fmt.Fprintf(w, "Current version: %d\n", version)
		fmt.Fprintf(w, "Latest available: %d\n", latest)
		fmt.Fprintf(w, "Dirty: %v\n", dirty)
		switch {
		case dirty:
			fmt.Fprintln(w, "⚠️  Database is in a dirty state. Run: raster-report migrate force <version>")
		case version < latest:
			fmt.Fprintf(w, "⚠️  Database is %d version(s) behind. Run 'raster-report migrate up' to update.\n", latest-version)
		default:
			fmt.Fprintln(w, "✓ Database is up to date!")
		}
		return nil

	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: raster-report migrate %s <version_number>", action)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if action == "force" {
			if err := database.MigrateForce(src, n); err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Migration version forced to %d\n", n)
			return nil
		}
		if err := database.MigrateTo(src, uint(n)); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Migrated to version %d successfully\n", n)
		return nil

	case "help":
		PrintMigrateHelp(w)
		return nil

	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printVersion(w io.Writer, database *DB, src fs.FS) error {
	version, dirty, err := database.MigrateVersion(src)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Database Migration Commands")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: raster-report migrate [-db path] [-dir migrations] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up              Apply all pending migrations")
	fmt.Fprintln(w, "  down            Rollback one migration")
	fmt.Fprintln(w, "  status          Show current migration status and version")
	fmt.Fprintln(w, "  version <N>     Migrate to specific version N")
	fmt.Fprintln(w, "  force <N>       Force migration version to N (recovery only)")
	fmt.Fprintln(w, "  help            Show this help message")
}
