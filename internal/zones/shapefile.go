package zones

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

// DefaultIDField is the attribute holding the zone id in a polygon layer.
const DefaultIDField = "OBJECTID"

// LoadShapefile reads a polygon shapefile into a partition. Each row becomes a
// zone whose id is taken from idField; with an empty idField the 1-based row
// number is used, the way a feature class numbers OBJECTID. When targetSRS is
// non-empty and the layer has a .prj, geometries are projected into targetSRS.
func LoadShapefile(path, idField, targetSRS string) (*Partition, error) {
	d, err := shp.NewDecoder(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open zone shapefile: %w", err)
	}
	defer d.Close()

	trans, srs, err := transformFor(d, path, targetSRS)
	if err != nil {
		return nil, err
	}

	var columns []string
	if idField != "" {
		columns = append(columns, idField)
	}

	var zs []*Zone
	row := 0
	for {
		g, fields, more := d.DecodeRowFields(columns...)
		if !more {
			break
		}
		row++
		id := row
		if s, ok := fields[idField]; ok && idField != "" {
			id, err = ParseID(s)
			if err != nil {
				return nil, fmt.Errorf("zone row %d: failed to parse %s %q: %w", row, idField, s, err)
			}
		}
		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, fmt.Errorf("zone row %d: failed to reproject: %w", row, err)
			}
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("zone row %d: geometry %T is not a polygon", row, g)
		}
		zs = append(zs, &Zone{ID: id, Polygonal: poly})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("failed to decode zone shapefile: %w", err)
	}

	p, err := NewPartition(zs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.SRS = srs
	return p, nil
}

// transformFor returns the projection from the layer's spatial reference to
// targetSRS. A nil transformer means coordinates are used as stored.
func transformFor(d *shp.Decoder, path, targetSRS string) (proj.Transformer, string, error) {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	raw, err := os.ReadFile(prj)
	if err != nil {
		return nil, targetSRS, nil
	}
	srs := strings.TrimSpace(string(raw))
	if targetSRS == "" || targetSRS == srs {
		return nil, srs, nil
	}
	src, err := d.SR()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read zone projection: %w", err)
	}
	dst, err := proj.Parse(targetSRS)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse raster projection: %w", err)
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build zone projection: %w", err)
	}
	return trans, targetSRS, nil
}

// ParseID accepts integer ids written as floats by some DBF writers ("12.0").
func ParseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("id %v is not an integer", f)
	}
	return int(f), nil
}
