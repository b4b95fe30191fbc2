package raster

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadASC parses an ESRI ASCII grid. Both corner and centre registration
// (xllcorner / xllcenter) are accepted; the header keys are case-insensitive.
func ReadASC(rd io.Reader) (*Raster, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64, 6)
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if !isHeaderKey(key) {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("asc header: missing value for %s", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("asc header: failed to parse %s: %w", tok, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read asc: %w", err)
	}

	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, fmt.Errorf("asc header: missing %s", k)
		}
	}
	noData, ok := header["nodata_value"]
	if !ok {
		noData = DefaultNoData
	}
	cs := header["cellsize"]
	xll, yll := header["xllcorner"], header["yllcorner"]
	if v, ok := header["xllcenter"]; ok {
		xll = v - cs/2
	}
	if v, ok := header["yllcenter"]; ok {
		yll = v - cs/2
	}

	rows, err := dimension(header, "nrows")
	if err != nil {
		return nil, err
	}
	cols, err := dimension(header, "ncols")
	if err != nil {
		return nil, err
	}
	r, err := New(rows, cols, xll, yll, cs, noData)
	if err != nil {
		return nil, fmt.Errorf("asc header: %w", err)
	}

	n := 0
	parse := func(tok string) error {
		if n >= len(r.Values) {
			return fmt.Errorf("asc body: more than %d values", len(r.Values))
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("asc body: value %d: %w", n, err)
		}
		r.Values[n] = v
		n++
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read asc: %w", err)
	}
	if n != len(r.Values) {
		return nil, fmt.Errorf("asc body: got %d values, want %d", n, len(r.Values))
	}
	return r, nil
}

// dimension returns a row or column count, which must be a positive integer.
func dimension(header map[string]float64, key string) (int, error) {
	v := header[key]
	if v != math.Trunc(v) || v < 1 || v > MaxCells {
		return 0, fmt.Errorf("asc header: %s must be a positive integer, got %v", key, v)
	}
	return int(v), nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// WriteASC writes r as an ESRI ASCII grid with corner registration.
func WriteASC(w io.Writer, r *Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", r.Cols, r.Rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", ftoa(r.XLL), ftoa(r.YLL))
	fmt.Fprintf(bw, "cellsize %s\nNODATA_value %s\n", ftoa(r.CellSize), ftoa(r.NoData))
	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := r.At(row, col)
			if r.IsNoData(v) {
				v = r.NoData
			}
			bw.WriteString(ftoa(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// ReadASCFile reads an ASCII grid from disk. Files ending in .gz are
// decompressed; a sibling .prj file, when present, fills SRS.
func ReadASCFile(path string) (*Raster, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open raster: %w", err)
	}
	defer f.Close()

	var rd io.Reader = f
	base := path
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip raster %s: %w", path, err)
		}
		defer gz.Close()
		rd = gz
		base = strings.TrimSuffix(path, filepath.Ext(path))
	}

	r, err := ReadASC(rd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	prj := strings.TrimSuffix(base, filepath.Ext(base)) + ".prj"
	if b, err := os.ReadFile(prj); err == nil {
		r.SRS = strings.TrimSpace(string(b))
	}
	return r, nil
}

// WriteASCFile writes r to path (gzip-compressed when path ends in .gz) and a
// .prj sidecar when r.SRS is set.
func WriteASCFile(path string, r *Raster) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create raster file: %w", err)
	}
	base := path
	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
		base = strings.TrimSuffix(path, filepath.Ext(path))
	}
	if err := WriteASC(w, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write raster %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to close gzip raster %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close raster %s: %w", path, err)
	}
	if r.SRS != "" {
		prj := strings.TrimSuffix(base, filepath.Ext(base)) + ".prj"
		if err := os.WriteFile(prj, []byte(r.SRS), 0o644); err != nil {
			return fmt.Errorf("failed to write projection file: %w", err)
		}
	}
	return nil
}
