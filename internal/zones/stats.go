package zones

import (
	"math"

	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats is the zonal statistic record of one zone over one raster. Only valid
// cells whose centre falls inside the zone contribute. Std is the population
// standard deviation. Zones without valid cells have Count 0 and zero moments.
type Stats struct {
	ZoneID int     `json:"zone_id"`
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Statistics computes one Stats record per zone, in partition order.
func Statistics(p *Partition, r *raster.Raster) []Stats {
	p.build()
	values := make([][]float64, len(p.Zones))
	r.Each(func(_, _ int, centre geom.Point, v float64) {
		for _, z := range p.ZonesAt(centre) {
			i := p.Position(z.ID)
			values[i] = append(values[i], v)
		}
	})

	out := make([]Stats, len(p.Zones))
	for i, z := range p.Zones {
		out[i] = summarise(z.ID, values[i])
	}
	return out
}

func summarise(id int, vs []float64) Stats {
	s := Stats{ZoneID: id, Count: len(vs)}
	if len(vs) == 0 {
		return s
	}
	s.Sum = floats.Sum(vs)
	s.Mean, s.Std = stat.PopMeanStdDev(vs, nil)
	if math.IsNaN(s.Std) {
		s.Std = 0
	}
	s.Min = floats.Min(vs)
	s.Max = floats.Max(vs)
	return s
}

// Totals returns the summed count and sum over all records.
func Totals(stats []Stats) (count int, sum float64) {
	for _, s := range stats {
		count += s.Count
		sum += s.Sum
	}
	return count, sum
}

// Pooled combines per-zone records into a single mean and population standard
// deviation over every contributing cell.
func Pooled(stats []Stats) (mean, std float64, count int) {
	var sum, sumSq float64
	for _, s := range stats {
		if s.Count == 0 {
			continue
		}
		n := float64(s.Count)
		count += s.Count
		sum += s.Sum
		sumSq += n * (s.Std*s.Std + s.Mean*s.Mean)
	}
	if count == 0 {
		return 0, 0, 0
	}
	n := float64(count)
	mean = sum / n
	v := sumSq/n - mean*mean
	if v < 0 { // rounding
		v = 0
	}
	return mean, math.Sqrt(v), count
}
