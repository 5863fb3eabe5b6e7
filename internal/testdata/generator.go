// Package testdata generates synthetic observation datasets with a known
// linear satellite/ground relationship, used by test suites and the genmock
// command.
package testdata

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// City places one ground station and its satellite overpasses.
type City struct {
	Name string
	Lat  float64
	Lon  float64
}

// DefaultCities are metropolitan areas inside TEMPO's field of regard.
var DefaultCities = []City{
	{Name: "Toronto", Lat: 43.6532, Lon: -79.3832},
	{Name: "Chicago", Lat: 41.8781, Lon: -87.6298},
	{Name: "Los Angeles", Lat: 34.0522, Lon: -118.2437},
	{Name: "Houston", Lat: 29.7604, Lon: -95.3698},
	{Name: "New York", Lat: 40.7128, Lon: -74.0060},
}

// Generator produces paired synthetic datasets where satellite readings are
// Slope*ground + Intercept plus gaussian noise. RejectedRate, if positive,
// mixes in satellite rows that fail quality screening.
type Generator struct {
	Cities       []City
	PerCity      int
	Pollutant    domain.Pollutant
	Slope        float64
	Intercept    float64
	Noise        float64
	RejectedRate float64
	Start        time.Time
	Rand         *rand.Rand
}

// Generate builds the two datasets. Each city gets one station ~1 km from
// the satellite pixel and one measurement per hourly overpass, 5 minutes
// after it.
func (g Generator) Generate() ([]domain.SatelliteObservation, []domain.GroundMeasurement) {
	rng := g.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	pollutant := g.Pollutant
	if pollutant == "" {
		pollutant = domain.PollutantNO2
	}
	start := g.Start
	if start.IsZero() {
		start = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	}

	var sat []domain.SatelliteObservation
	var ground []domain.GroundMeasurement

	for ci, city := range g.Cities {
		stationID := fmt.Sprintf("st-%02d", ci+1)
		stationLat := city.Lat + 0.009

		for i := 0; i < g.PerCity; i++ {
			ts := start.Add(time.Duration(i) * time.Hour)
			truth := 5 + rng.Float64()*40

			obs := domain.SatelliteObservation{
				Timestamp:      ts,
				Lat:            city.Lat,
				Lon:            city.Lon,
				Pollutant:      pollutant,
				Concentration:  g.Slope*truth + g.Intercept + rng.NormFloat64()*g.Noise,
				CloudFraction:  rng.Float64() * 0.25,
				SolarZenithDeg: 20 + rng.Float64()*40,
			}
			if g.RejectedRate > 0 && rng.Float64() < g.RejectedRate {
				obs = spoil(obs, rng)
			}
			sat = append(sat, obs)

			ground = append(ground, domain.GroundMeasurement{
				Timestamp:     ts.Add(5 * time.Minute),
				Lat:           stationLat,
				Lon:           city.Lon,
				StationID:     stationID,
				City:          city.Name,
				Pollutant:     pollutant,
				Concentration: truth,
			})
		}
	}
	return sat, ground
}

// spoil makes an observation fail exactly one quality check.
func spoil(obs domain.SatelliteObservation, rng *rand.Rand) domain.SatelliteObservation {
	switch rng.Intn(3) {
	case 0:
		obs.CloudFraction = 0.3 + rng.Float64()*0.7
	case 1:
		obs.SolarZenithDeg = 70 + rng.Float64()*20
	default:
		obs.QualityFlag = 1 + rng.Intn(3)
	}
	return obs
}
