// Package spatial provides a grid-bucketed index over ground-station
// coordinates for radius queries during matching. The index is immutable
// after construction and safe for concurrent readers.
package spatial

import (
	"math"
	"sort"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// kmPerDegreeLat is the approximate north-south extent of one degree of
// latitude. Used only to size grid cells; exact distances always come from
// the haversine formula.
const kmPerDegreeLat = 110.574

// Station is an indexed ground-station location.
type Station struct {
	ID  string
	Lat float64
	Lon float64
}

// Neighbor is a station returned by a radius query, with its exact
// great-circle distance from the query point.
type Neighbor struct {
	Station    Station
	DistanceKM float64
}

type cellKey struct {
	row int
	col int
}

// StationIndex buckets stations into a latitude/longitude grid whose cell
// size is at least the query radius, so any neighbor within the radius lies
// in the query cell or one of its eight adjacent cells (with the column span
// widened at high latitudes where longitude degrees shrink).
type StationIndex struct {
	radiusKM float64
	cellDeg  float64
	cells    map[cellKey][]Station
}

// NewStationIndex builds an index over the given stations for queries at the
// fixed radius. Duplicate station IDs keep the first location seen.
func NewStationIndex(stations []Station, radiusKM float64) *StationIndex {
	cellDeg := radiusKM / kmPerDegreeLat
	if cellDeg <= 0 {
		cellDeg = 1
	}
	idx := &StationIndex{
		radiusKM: radiusKM,
		cellDeg:  cellDeg,
		cells:    make(map[cellKey][]Station),
	}
	seen := make(map[string]bool, len(stations))
	for _, s := range stations {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		k := idx.keyFor(s.Lat, s.Lon)
		idx.cells[k] = append(idx.cells[k], s)
	}
	return idx
}

// Within returns all stations within the index radius of the query point,
// sorted by ascending distance (ties broken by station ID for determinism).
func (idx *StationIndex) Within(lat, lon float64) []Neighbor {
	center := idx.keyFor(lat, lon)

	// Longitude degrees shrink by cos(lat); widen the column scan to keep the
	// radius covered near the poles.
	colSpan := 1
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 0.01 {
		span := int(math.Ceil(1 / cosLat))
		if span > colSpan {
			colSpan = span
		}
	} else {
		colSpan = int(math.Ceil(360 / idx.cellDeg))
	}

	var out []Neighbor
	for dr := -1; dr <= 1; dr++ {
		for dc := -colSpan; dc <= colSpan; dc++ {
			for _, s := range idx.cells[cellKey{row: center.row + dr, col: center.col + dc}] {
				d := domain.HaversineKM(lat, lon, s.Lat, s.Lon)
				if d <= idx.radiusKM {
					out = append(out, Neighbor{Station: s, DistanceKM: d})
				}
			}
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].DistanceKM != out[b].DistanceKM {
			return out[a].DistanceKM < out[b].DistanceKM
		}
		return out[a].Station.ID < out[b].Station.ID
	})
	return out
}

// RadiusKM returns the query radius the index was built for.
func (idx *StationIndex) RadiusKM() float64 {
	return idx.radiusKM
}

// Len returns the number of distinct stations in the index.
func (idx *StationIndex) Len() int {
	n := 0
	for _, bucket := range idx.cells {
		n += len(bucket)
	}
	return n
}

func (idx *StationIndex) keyFor(lat, lon float64) cellKey {
	return cellKey{
		row: int(math.Floor(lat / idx.cellDeg)),
		col: int(math.Floor(lon / idx.cellDeg)),
	}
}
