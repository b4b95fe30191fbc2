package xsection

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/raster.report/internal/zones"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// ReadFeatures reads every row of a shapefile. IDs come from idField, or are
// the 1-based row number when idField is empty.
func ReadFeatures(path, idField string) ([]Feature, error) {
	d, err := shp.NewDecoder(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer d.Close()

	var columns []string
	if idField != "" {
		columns = append(columns, idField)
	}
	var out []Feature
	for row := 1; ; row++ {
		g, fields, more := d.DecodeRowFields(columns...)
		if !more {
			break
		}
		id := row
		if s, ok := fields[idField]; ok && idField != "" {
			if id, err = zones.ParseID(s); err != nil {
				return nil, fmt.Errorf("row %d: failed to parse %s %q: %w", row, idField, s, err)
			}
		}
		out = append(out, Feature{ID: id, Geom: g})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return out, nil
}

type lineRow struct {
	geom.LineString
	OBJECTID int
}

// WriteLines writes line features to a shapefile with an OBJECTID column.
func WriteLines(path string, features []Feature) error {
	e, err := shp.NewEncoder(path, lineRow{})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer e.Close()
	for _, f := range features {
		l, ok := f.Geom.(geom.LineString)
		if !ok {
			return fmt.Errorf("feature %d: geometry %T is not a single line", f.ID, f.Geom)
		}
		if err := e.Encode(lineRow{LineString: l, OBJECTID: f.ID}); err != nil {
			return fmt.Errorf("failed to write feature %d: %w", f.ID, err)
		}
	}
	return nil
}

type pointRow struct {
	geom.Point
	OBJECTID int
}

// WritePoints writes point features, such as toe or top-of-slope markers, to a
// shapefile with an OBJECTID column.
func WritePoints(path string, features []Feature) error {
	e, err := shp.NewEncoder(path, pointRow{})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer e.Close()
	for _, f := range features {
		pt, ok := f.Geom.(geom.Point)
		if !ok {
			return fmt.Errorf("feature %d: geometry %T is not a point", f.ID, f.Geom)
		}
		if err := e.Encode(pointRow{Point: pt, OBJECTID: f.ID}); err != nil {
			return fmt.Errorf("failed to write feature %d: %w", f.ID, err)
		}
	}
	return nil
}

// FileName is the CSV name of a profile: <label>_CSV<n> with n counted from 0.
func FileName(label string, id int) string {
	return fmt.Sprintf("%s_CSV%d.csv", label, id-1)
}

// WriteCSV writes p as id,x,y,z,distance rows after a header. Unsampled
// elevations are written as empty fields.
func WriteCSV(w io.Writer, p Profile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "x", "y", "z", "distance"}); err != nil {
		return fmt.Errorf("failed to write profile header: %w", err)
	}
	for i, pt := range p.Points {
		z := ""
		if !math.IsNaN(pt.Z) {
			z = ftoa(pt.Z)
		}
		rec := []string{strconv.Itoa(i + 1), ftoa(pt.X), ftoa(pt.Y), z, ftoa(pt.Distance)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write profile %d: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
