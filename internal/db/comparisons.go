package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/raster.report/internal/compare"
	"github.com/google/uuid"
)

// ErrNotFound is returned by GetComparison for unknown run ids.
var ErrNotFound = errors.New("comparison run not found")

// ComparisonRun is one stored comparison.
type ComparisonRun struct {
	RunID       string    `json:"run_id"`
	Label       string    `json:"label"`
	Unit        string    `json:"unit"`
	Bias        float64   `json:"bias"`
	Std         float64   `json:"std"`
	RMSE        float64   `json:"rmse"`
	Check       float64   `json:"check"`
	Delta       float64   `json:"delta"`
	Tolerance   float64   `json:"tolerance"`
	Consistent  bool      `json:"consistent"`
	Aggregation string    `json:"aggregation"`
	CellCount   int       `json:"cell_count"`
	SumSquares  float64   `json:"sum_squares"`
	Raster1     string    `json:"raster_1"`
	Raster2     string    `json:"raster_2"`
	ZonesPath   string    `json:"zones_path"`
	CreatedAt   time.Time `json:"created_at"`
	Zones       []ZoneRow `json:"zones,omitempty"`
}

// ZoneRow holds one zone's statistics of the difference (Count..Std) and of
// the squared difference (SqCount, SqSum).
type ZoneRow struct {
	ZoneID  int     `json:"zone_id"`
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	SqCount int     `json:"sq_count"`
	SqSum   float64 `json:"sq_sum"`
}

// RunFromResult converts a comparison result for storage. The input paths are
// recorded as given.
func RunFromResult(res *compare.Result, raster1, raster2, zonesPath string) *ComparisonRun {
	run := &ComparisonRun{
		Label:       res.Label,
		Unit:        res.Unit,
		Bias:        res.Bias,
		Std:         res.Std,
		RMSE:        res.RMSE,
		Check:       res.Check,
		Delta:       res.Delta,
		Tolerance:   res.Tolerance,
		Consistent:  res.Consistent,
		Aggregation: string(res.Aggregation),
		CellCount:   res.Count,
		SumSquares:  res.SumSquares,
		Raster1:     raster1,
		Raster2:     raster2,
		ZonesPath:   zonesPath,
	}
	sq := make(map[int]int, len(res.SquaredZones))
	for i, s := range res.SquaredZones {
		sq[s.ZoneID] = i
	}
	for _, s := range res.Zones {
		row := ZoneRow{ZoneID: s.ZoneID, Count: s.Count, Sum: s.Sum, Mean: s.Mean, Std: s.Std}
		if i, ok := sq[s.ZoneID]; ok {
			row.SqCount = res.SquaredZones[i].Count
			row.SqSum = res.SquaredZones[i].Sum
		}
		run.Zones = append(run.Zones, row)
	}
	return run
}

// InsertComparison stores run and its zone rows in one transaction. A run
// without an id gets a new uuid; CreatedAt is taken from the clock when zero.
func (db *DB) InsertComparison(run *ComparisonRun) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = db.clock.Now().UTC()
	}

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO comparison_runs (
			run_id, label, unit, bias, std, rmse, check_value, delta, tolerance,
			consistent, aggregation, cell_count, sum_squares,
			raster_1, raster_2, zones_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Label, run.Unit, run.Bias, run.Std, run.RMSE, run.Check, run.Delta, run.Tolerance,
		run.Consistent, run.Aggregation, run.CellCount, run.SumSquares,
		run.Raster1, run.Raster2, run.ZonesPath, run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert comparison run: %w", err)
	}

	for _, z := range run.Zones {
		_, err := tx.Exec(`
			INSERT INTO comparison_zones (run_id, zone_id, count, sum, mean, std, sq_count, sq_sum)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, z.ZoneID, z.Count, z.Sum, z.Mean, z.Std, z.SqCount, z.SqSum,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert zone %d: %w", z.ZoneID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit comparison run: %w", err)
	}
	return run.RunID, nil
}

const runColumns = `run_id, label, unit, bias, std, rmse, check_value, delta, tolerance,
	consistent, aggregation, cell_count, sum_squares,
	COALESCE(raster_1, ''), COALESCE(raster_2, ''), COALESCE(zones_path, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*ComparisonRun, error) {
	var (
		run     ComparisonRun
		created int64
	)
	err := s.Scan(
		&run.RunID, &run.Label, &run.Unit, &run.Bias, &run.Std, &run.RMSE, &run.Check, &run.Delta, &run.Tolerance,
		&run.Consistent, &run.Aggregation, &run.CellCount, &run.SumSquares,
		&run.Raster1, &run.Raster2, &run.ZonesPath, &created,
	)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	return &run, nil
}

// GetComparison returns the run with id and its zone rows.
func (db *DB) GetComparison(id string) (*ComparisonRun, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM comparison_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison run %s: %w", id, err)
	}

	rows, err := db.Query(`
		SELECT zone_id, count, sum, mean, std, sq_count, sq_sum
		FROM comparison_zones WHERE run_id = ? ORDER BY zone_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get zones of run %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var z ZoneRow
		if err := rows.Scan(&z.ZoneID, &z.Count, &z.Sum, &z.Mean, &z.Std, &z.SqCount, &z.SqSum); err != nil {
			return nil, fmt.Errorf("failed to scan zone row: %w", err)
		}
		run.Zones = append(run.Zones, z)
	}
	return run, rows.Err()
}

// ListComparisons returns stored runs, newest first, without zone rows. An
// empty label lists every run; limit <= 0 means 100.
func (db *DB) ListComparisons(label string, limit int) ([]ComparisonRun, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + runColumns + ` FROM comparison_runs`
	args := []any{}
	if label != "" {
		query += ` WHERE label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY created_at DESC, run_id LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comparison runs: %w", err)
	}
	defer rows.Close()

	var runs []ComparisonRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comparison run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteComparison removes a run and its zone rows.
func (db *DB) DeleteComparison(id string) error {
	res, err := db.Exec(`DELETE FROM comparison_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comparison run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
