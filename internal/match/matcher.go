// Package match joins satellite observations to ground measurements that are
// close in space and time, after quality screening. Matching is a pure
// function over its inputs; diagnostics about dropped observations ride along
// with the pairs instead of being logged and lost.
package match

import (
	"math"
	"sort"
	"time"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
	"github.com/cleanskies/tempo-validation-service/internal/spatial"
)

// Config holds the spatio-temporal matching parameters.
type Config struct {
	RadiusKM      float64
	WindowMinutes float64
	Quality       domain.QualityPolicy
}

// DefaultConfig returns the headline matching settings: 20 km, ±60 minutes,
// operational quality screening.
func DefaultConfig() Config {
	return Config{
		RadiusKM:      20,
		WindowMinutes: 60,
		Quality:       domain.DefaultQualityPolicy(),
	}
}

// Diagnostics summarizes what happened to the satellite observations during
// one matching run. Carried into the validation report so "no pairs" is
// distinguishable from "no usable input".
type Diagnostics struct {
	SatelliteTotal   int            `json:"satellite_total"`
	GroundTotal      int            `json:"ground_total"`
	RejectedQuality  int            `json:"rejected_quality"`
	RejectedByReason map[string]int `json:"rejected_by_reason"`
	MatchedSatellite int            `json:"matched_satellite"`
	Unmatched        int            `json:"unmatched"`
	Pairs            int            `json:"pairs"`
	MatchRate        float64        `json:"match_rate"` // matched / quality-surviving satellite obs
}

// stationSeries is one station's measurements for one pollutant, sorted by time.
type stationSeries struct {
	station      spatial.Station
	measurements []domain.GroundMeasurement
}

// Match pairs each quality-surviving satellite observation with the best
// ground measurement from every station within RadiusKM that reported the
// same pollutant within ±WindowMinutes. Per station the measurement with the
// smallest absolute temporal offset wins (earlier timestamp on exact ties).
// Pairs for one satellite observation are ranked best-first: smallest
// absolute offset, then smallest distance, then station ID.
//
// A satellite observation with no qualifying candidates is dropped silently
// and counted in Diagnostics.Unmatched.
func Match(satObs []domain.SatelliteObservation, groundObs []domain.GroundMeasurement, cfg Config) ([]domain.MatchedPair, Diagnostics) {
	diag := Diagnostics{
		SatelliteTotal:   len(satObs),
		GroundTotal:      len(groundObs),
		RejectedByReason: make(map[string]int),
	}

	series := groupByStation(groundObs)
	index := buildIndex(series, cfg.RadiusKM)

	var pairs []domain.MatchedPair
	for _, obs := range satObs {
		ok, reason := cfg.Quality.Check(obs)
		if !ok {
			diag.RejectedQuality++
			diag.RejectedByReason[reason]++
			continue
		}

		obsPairs := matchOne(obs, index, series, cfg.WindowMinutes)
		if len(obsPairs) == 0 {
			diag.Unmatched++
			continue
		}
		diag.MatchedSatellite++
		pairs = append(pairs, obsPairs...)
	}

	diag.Pairs = len(pairs)
	if survived := diag.SatelliteTotal - diag.RejectedQuality; survived > 0 {
		diag.MatchRate = float64(diag.MatchedSatellite) / float64(survived)
	}
	return pairs, diag
}

// matchOne returns the ranked pairs for a single satellite observation.
func matchOne(obs domain.SatelliteObservation, index *spatial.StationIndex, series map[string]*stationSeries, windowMinutes float64) []domain.MatchedPair {
	var out []domain.MatchedPair
	for _, nb := range index.Within(obs.Lat, obs.Lon) {
		st, ok := series[nb.Station.ID]
		if !ok {
			continue
		}
		best, found := bestMeasurement(obs, st.measurements, windowMinutes)
		if !found {
			continue
		}
		out = append(out, domain.MatchedPair{
			Satellite:     obs,
			Ground:        best,
			DistanceKM:    nb.DistanceKM,
			OffsetMinutes: offsetMinutes(obs.Timestamp, best.Timestamp),
			City:          best.City,
			Pollutant:     obs.Pollutant,
		})
	}

	sort.Slice(out, func(a, b int) bool {
		oa, ob := math.Abs(out[a].OffsetMinutes), math.Abs(out[b].OffsetMinutes)
		if oa != ob {
			return oa < ob
		}
		if out[a].DistanceKM != out[b].DistanceKM {
			return out[a].DistanceKM < out[b].DistanceKM
		}
		return out[a].Ground.StationID < out[b].Ground.StationID
	})
	return out
}

// bestMeasurement selects the station measurement closest in time to the
// observation, restricted to the same pollutant and ±windowMinutes.
// Exact ties go to the earlier measurement so results do not depend on
// input ordering.
func bestMeasurement(obs domain.SatelliteObservation, measurements []domain.GroundMeasurement, windowMinutes float64) (domain.GroundMeasurement, bool) {
	var best domain.GroundMeasurement
	bestAbs := math.Inf(1)
	found := false

	// Measurements are time-sorted; a binary search bounds the window.
	lo := sort.Search(len(measurements), func(i int) bool {
		return offsetMinutes(obs.Timestamp, measurements[i].Timestamp) <= windowMinutes
	})
	for i := lo; i < len(measurements); i++ {
		m := measurements[i]
		off := offsetMinutes(obs.Timestamp, m.Timestamp)
		if off < -windowMinutes {
			break
		}
		if m.Pollutant != obs.Pollutant {
			continue
		}
		abs := math.Abs(off)
		if !found || abs < bestAbs || (abs == bestAbs && m.Timestamp.Before(best.Timestamp)) {
			best = m
			bestAbs = abs
			found = true
		}
	}
	return best, found
}

func offsetMinutes(sat, ground time.Time) float64 {
	return sat.Sub(ground).Minutes()
}

func groupByStation(groundObs []domain.GroundMeasurement) map[string]*stationSeries {
	series := make(map[string]*stationSeries)
	for _, m := range groundObs {
		st, ok := series[m.StationID]
		if !ok {
			st = &stationSeries{station: spatial.Station{ID: m.StationID, Lat: m.Lat, Lon: m.Lon}}
			series[m.StationID] = st
		}
		st.measurements = append(st.measurements, m)
	}
	for _, st := range series {
		sort.Slice(st.measurements, func(a, b int) bool {
			return st.measurements[a].Timestamp.Before(st.measurements[b].Timestamp)
		})
	}
	return series
}

func buildIndex(series map[string]*stationSeries, radiusKM float64) *spatial.StationIndex {
	stations := make([]spatial.Station, 0, len(series))
	for _, st := range series {
		stations = append(stations, st.station)
	}
	return spatial.NewStationIndex(stations, radiusKM)
}
