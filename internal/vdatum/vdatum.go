// Package vdatum builds the vertical-datum grids used to reference tide-gauge
// and satellite surfaces to one another: the mean sea surface (MSS) and the
// topography of the sea surface (TSS). Both are raster sums over an offshore
// mask, the overlap of the input domains with a buffered coastline removed.
package vdatum

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/raster.report/internal/fsutil"
	"github.com/banshee-data/raster.report/internal/geoproc"
	"github.com/banshee-data/raster.report/internal/monitoring"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/zones"
	"github.com/ctessum/geom"
)

// DefaultBufferDistance is the land buffer, in metres.
const DefaultBufferDistance = 9000.0

// Options configures MSS and TSS.
type Options struct {
	// BufferDistance is how far offshore of the land polygons cells are
	// dropped. Zero keeps everything outside the land itself.
	BufferDistance float64
	Processor      geoproc.Processor
	// ScratchDir and FS, when set, let intermediates be spilled to disk.
	ScratchDir string
	FS         fsutil.FileSystem
	Spill      bool
}

// DefaultOptions returns a 9 km buffer with the local processor.
func DefaultOptions() Options {
	return Options{BufferDistance: DefaultBufferDistance}
}

// MSSInputs are the grids summed into a mean sea surface.
type MSSInputs struct {
	CNES  *raster.Raster // global mean sea surface
	TPWGS *raster.Raster // TOPEX/Poseidon ellipsoid to WGS 84
	MTFT  *raster.Raster // mean-tide to tide-free
	Land  geom.Polygonal // optional
}

// TSSInputs are the grids combined into a sea-surface topography.
type TSSInputs struct {
	CNES  *raster.Raster
	Geoid *raster.Raster
	TPWGS *raster.Raster
	MTFT  *raster.Raster
	Land  geom.Polygonal
	// Extent limits the output. When nil the footprint overlap of CNES and
	// Geoid is used.
	Extent geoproc.Region
}

// MSS returns CNES + TPWGS + MTFT over the overlap of the CNES and MTFT
// domains, less the buffered land. The result is on the CNES grid.
func MSS(ctx context.Context, in MSSInputs, opts Options) (*raster.Raster, error) {
	if in.CNES == nil || in.TPWGS == nil || in.MTFT == nil {
		return nil, errors.New("mss: CNES, TP_WGS and MT_FT grids are required")
	}
	b, err := newBuilder("mss", opts)
	if err != nil {
		return nil, err
	}
	defer b.release()

	cnesDomain, err := b.footprint("cnes_domain", in.CNES)
	if err != nil {
		return nil, err
	}
	mtftDomain, err := b.footprint("matlab_domain", in.MTFT)
	if err != nil {
		return nil, err
	}
	extent, err := b.proc.Intersect(cnesDomain, mtftDomain)
	if err != nil {
		return nil, fmt.Errorf("mss: failed to intersect domains: %w", err)
	}
	if err := b.put("intersect", extent); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := b.combine(extent, in.Land, []float64{1, 1, 1}, in.CNES, in.TPWGS, in.MTFT)
	if err != nil {
		return nil, fmt.Errorf("mss: %w", err)
	}
	monitoring.Logf("[vdatum] mss: %d valid cells", out.ValidCount())
	return out, nil
}

// TSS returns Geoid - CNES - TPWGS - MTFT over Extent less the buffered land.
// The result is on the Geoid grid.
func TSS(ctx context.Context, in TSSInputs, opts Options) (*raster.Raster, error) {
	if in.CNES == nil || in.Geoid == nil || in.TPWGS == nil || in.MTFT == nil {
		return nil, errors.New("tss: CNES, Geoid, TP_WGS and MT_FT grids are required")
	}
	b, err := newBuilder("tss", opts)
	if err != nil {
		return nil, err
	}
	defer b.release()

	extent := in.Extent
	if extent == nil {
		cnesDomain, err := b.footprint("cnes_domain", in.CNES)
		if err != nil {
			return nil, err
		}
		geoidDomain, err := b.footprint("geoid_domain", in.Geoid)
		if err != nil {
			return nil, err
		}
		if extent, err = b.proc.Intersect(cnesDomain, geoidDomain); err != nil {
			return nil, fmt.Errorf("tss: failed to intersect domains: %w", err)
		}
		if err := b.put("intersect", extent); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := b.combine(extent, in.Land, []float64{1, -1, -1, -1}, in.Geoid, in.CNES, in.TPWGS, in.MTFT)
	if err != nil {
		return nil, fmt.Errorf("tss: %w", err)
	}
	monitoring.Logf("[vdatum] tss: %d valid cells", out.ValidCount())
	return out, nil
}

// Land merges every zone of p into one multipolygon.
func Land(p *zones.Partition) geom.Polygonal {
	var mp geom.MultiPolygon
	if p == nil {
		return mp
	}
	for _, z := range p.Zones {
		mp = append(mp, z.Polygons()...)
	}
	return mp
}

type builder struct {
	proc   geoproc.Processor
	ws     *geoproc.Workspace
	buffer float64
	spill  bool
}

func newBuilder(label string, opts Options) (*builder, error) {
	if opts.BufferDistance < 0 {
		return nil, fmt.Errorf("%s: negative buffer distance %v", label, opts.BufferDistance)
	}
	if opts.Spill && opts.ScratchDir == "" {
		return nil, fmt.Errorf("%s: spilling intermediates needs a scratch directory", label)
	}
	proc := opts.Processor
	if proc == nil {
		proc = geoproc.NewLocal()
	}
	wsOpts := []geoproc.WorkspaceOption{geoproc.WithScratchDir(opts.ScratchDir)}
	if opts.FS != nil {
		wsOpts = append(wsOpts, geoproc.WithFileSystem(opts.FS))
	}
	return &builder{
		proc:   proc,
		ws:     geoproc.NewWorkspace(label, wsOpts...),
		buffer: opts.BufferDistance,
		spill:  opts.Spill,
	}, nil
}

func (b *builder) release() {
	if err := b.ws.Release(); err != nil {
		monitoring.Warnf("[vdatum] %v", err)
	}
}

func (b *builder) put(kind string, v any) error {
	name, err := b.ws.Put(kind, v)
	if err != nil {
		return err
	}
	if _, ok := v.(*raster.Raster); ok && b.spill {
		if _, err := b.ws.Spill(name); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) footprint(kind string, r *raster.Raster) (geoproc.Region, error) {
	f, err := b.proc.Footprint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", kind, err)
	}
	return f, b.put(kind, f)
}

// combine erases the buffered land from extent, masks every raster to the
// result and returns their weighted sum on the first raster's grid.
func (b *builder) combine(extent geoproc.Region, land geom.Polygonal, weights []float64, rs ...*raster.Raster) (*raster.Raster, error) {
	mask := extent
	if land != nil && len(land.Polygons()) > 0 {
		buf, err := b.proc.Buffer(land, b.buffer)
		if err != nil {
			return nil, fmt.Errorf("failed to buffer land: %w", err)
		}
		if err := b.put("buffer", buf); err != nil {
			return nil, err
		}
		if mask, err = b.proc.Erase(extent, buf); err != nil {
			return nil, fmt.Errorf("failed to erase land: %w", err)
		}
		if err := b.put("final_mask", mask); err != nil {
			return nil, err
		}
	}

	masked := make([]*raster.Raster, len(rs))
	for i, r := range rs {
		m, err := b.proc.Mask(r, mask)
		if err != nil {
			return nil, fmt.Errorf("failed to mask input %d: %w", i+1, err)
		}
		if err := b.put(fmt.Sprintf("final_%d", i+1), m); err != nil {
			return nil, err
		}
		masked[i] = m
	}
	out, err := b.proc.Calculate(weights, masked...)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate grid: %w", err)
	}
	return out, nil
}
