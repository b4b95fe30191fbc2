// Package zones holds area-of-interest partitions: polygons keyed by a unique
// integer id, indexed for cell-centre lookup, and the zonal statistics computed
// over them.
package zones

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

var (
	// ErrEmptyPartition is returned for partitions without zones.
	ErrEmptyPartition = errors.New("zone partition is empty")
	// ErrDuplicateID is returned when two zones share an id.
	ErrDuplicateID = errors.New("duplicate zone id")
)

// Zone is one polygonal region of a partition.
type Zone struct {
	ID int
	geom.Polygonal
}

// Contains reports whether p lies inside the zone or on its boundary.
func (z *Zone) Contains(p geom.Point) bool {
	b := z.Bounds()
	if p.X < b.Min.X || p.X > b.Max.X || p.Y < b.Min.Y || p.Y > b.Max.Y {
		return false
	}
	if _, ok := z.Polygonal.(*geom.Bounds); ok {
		return true
	}
	return p.Within(z.Polygonal) != geom.Outside
}

// Partition is an ordered set of zones with unique ids. Partitions built as
// literals are sorted and indexed on first lookup; call Validate to check them.
type Partition struct {
	Zones []*Zone
	SRS   string // spatial reference of the zone coordinates, empty when unknown

	once   sync.Once
	index  *rtree.Rtree
	bounds *geom.Bounds
}

// NewPartition validates the zones and builds the lookup index. Zones are kept
// in ascending id order.
func NewPartition(zs ...*Zone) (*Partition, error) {
	p := &Partition{Zones: append([]*Zone(nil), zs...)}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.build()
	return p, nil
}

// Validate reports an empty partition, a zone without geometry or a repeated id.
func (p *Partition) Validate() error {
	if p.Len() == 0 {
		return ErrEmptyPartition
	}
	seen := make(map[int]bool, len(p.Zones))
	for i, z := range p.Zones {
		if z == nil || z.Polygonal == nil {
			return fmt.Errorf("zone %d has no geometry", i)
		}
		if seen[z.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateID, z.ID)
		}
		seen[z.ID] = true
	}
	return nil
}

// build sorts the zones by id and indexes them, once.
func (p *Partition) build() {
	p.once.Do(func() {
		sort.SliceStable(p.Zones, func(i, j int) bool { return p.Zones[i].ID < p.Zones[j].ID })
		p.index = rtree.NewTree(25, 50)
		p.bounds = geom.NewBounds()
		for _, z := range p.Zones {
			if z == nil || z.Polygonal == nil {
				continue
			}
			p.index.Insert(z)
			p.bounds.Extend(z.Bounds())
		}
	})
}

// Whole returns a single-zone partition covering b.
func Whole(id int, b *geom.Bounds) *Partition {
	p, _ := NewPartition(&Zone{ID: id, Polygonal: b})
	return p
}

// Len returns the number of zones.
func (p *Partition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Zones)
}

// Bounds returns the extent of all zones.
func (p *Partition) Bounds() *geom.Bounds {
	p.build()
	return p.bounds
}

// IDs returns the zone ids in partition order.
func (p *Partition) IDs() []int {
	p.build()
	ids := make([]int, len(p.Zones))
	for i, z := range p.Zones {
		ids[i] = z.ID
	}
	return ids
}

// ZonesAt returns every zone containing pt.
func (p *Partition) ZonesAt(pt geom.Point) []*Zone {
	const eps = 1e-9
	probe := &geom.Bounds{
		Min: geom.Point{X: pt.X - eps, Y: pt.Y - eps},
		Max: geom.Point{X: pt.X + eps, Y: pt.Y + eps},
	}
	p.build()
	var out []*Zone
	for _, s := range p.index.SearchIntersect(probe) {
		z := s.(*Zone)
		if z.Contains(pt) {
			out = append(out, z)
		}
	}
	if len(out) > 1 {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out
}

// Position returns the index of the zone with the given id, or -1.
func (p *Partition) Position(id int) int {
	p.build()
	i := sort.Search(len(p.Zones), func(i int) bool { return p.Zones[i].ID >= id })
	if i < len(p.Zones) && p.Zones[i].ID == id {
		return i
	}
	return -1
}
