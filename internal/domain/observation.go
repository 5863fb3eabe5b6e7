package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Pollutant identifies a measured species. String values match the lowercase
// codes used in both input datasets.
type Pollutant string

const (
	PollutantNO2  Pollutant = "no2"
	PollutantO3   Pollutant = "o3"
	PollutantHCHO Pollutant = "hcho"
	PollutantPM25 Pollutant = "pm25"
)

// ParsePollutant normalizes a pollutant code from input data.
// Accepts common aliases like "NO2", "PM2.5", "ozone".
func ParsePollutant(s string) (Pollutant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no2":
		return PollutantNO2, nil
	case "o3", "ozone":
		return PollutantO3, nil
	case "hcho", "formaldehyde":
		return PollutantHCHO, nil
	case "pm25", "pm2.5", "pm_25":
		return PollutantPM25, nil
	default:
		return "", fmt.Errorf("unknown pollutant %q", s)
	}
}

// Unit returns the conventional reporting unit for the pollutant.
func (p Pollutant) Unit() string {
	if p == PollutantPM25 {
		return "µg/m³"
	}
	return "ppb"
}

// SatelliteObservation is one TEMPO pixel retrieval. Immutable once ingested.
type SatelliteObservation struct {
	Timestamp      time.Time `json:"timestamp"`
	Lat            float64   `json:"latitude"`
	Lon            float64   `json:"longitude"`
	Pollutant      Pollutant `json:"pollutant"`
	Concentration  float64   `json:"concentration"`
	CloudFraction  float64   `json:"cloud_fraction"`
	SolarZenithDeg float64   `json:"solar_zenith_deg"`
	QualityFlag    int       `json:"quality_flag"`
}

// GroundMeasurement is one station reading. Immutable once ingested.
type GroundMeasurement struct {
	Timestamp     time.Time `json:"timestamp"`
	Lat           float64   `json:"latitude"`
	Lon           float64   `json:"longitude"`
	StationID     string    `json:"station_id"`
	City          string    `json:"city"`
	Pollutant     Pollutant `json:"pollutant"`
	Concentration float64   `json:"concentration"`
}

// MatchedPair joins a satellite observation to the ground measurement
// selected for it at one station. Created only by the match package.
type MatchedPair struct {
	Satellite     SatelliteObservation `json:"satellite"`
	Ground        GroundMeasurement    `json:"ground"`
	DistanceKM    float64              `json:"spatial_distance_km"`
	OffsetMinutes float64              `json:"temporal_offset_minutes"` // satellite time minus ground time
	City          string               `json:"city"`
	Pollutant     Pollutant            `json:"pollutant"`
}

// Validate reports why a satellite observation is malformed, or nil.
// Malformed records are dropped and counted at the ingestion boundary.
func (o SatelliteObservation) Validate() error {
	if o.Timestamp.IsZero() {
		return fmt.Errorf("satellite observation: missing timestamp")
	}
	if err := validateCoords(o.Lat, o.Lon); err != nil {
		return fmt.Errorf("satellite observation: %w", err)
	}
	if !isFinite(o.Concentration) {
		return fmt.Errorf("satellite observation: non-finite concentration")
	}
	if !isFinite(o.CloudFraction) || o.CloudFraction < 0 || o.CloudFraction > 1 {
		return fmt.Errorf("satellite observation: cloud fraction %v outside [0,1]", o.CloudFraction)
	}
	if !isFinite(o.SolarZenithDeg) || o.SolarZenithDeg < 0 || o.SolarZenithDeg > 180 {
		return fmt.Errorf("satellite observation: solar zenith %v outside [0,180]", o.SolarZenithDeg)
	}
	return nil
}

// Validate reports why a ground measurement is malformed, or nil.
func (m GroundMeasurement) Validate() error {
	if m.Timestamp.IsZero() {
		return fmt.Errorf("ground measurement: missing timestamp")
	}
	if err := validateCoords(m.Lat, m.Lon); err != nil {
		return fmt.Errorf("ground measurement: %w", err)
	}
	if m.StationID == "" {
		return fmt.Errorf("ground measurement: missing station id")
	}
	if m.City == "" {
		return fmt.Errorf("ground measurement: missing city")
	}
	if !isFinite(m.Concentration) {
		return fmt.Errorf("ground measurement: non-finite concentration")
	}
	return nil
}

func validateCoords(lat, lon float64) error {
	if !isFinite(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v outside [-90,90]", lat)
	}
	if !isFinite(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v outside [-180,180]", lon)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
