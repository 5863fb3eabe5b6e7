// Package csvfile reads and writes the tabular observation datasets. Rows
// that cannot be parsed or fail domain validation are dropped and counted,
// never fatal; the file digest rides along for the run manifest.
package csvfile

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// Malformed-row reasons, used as metric labels.
const (
	ReasonMissingColumn = "missing_column"
	ReasonBadTimestamp  = "bad_timestamp"
	ReasonBadNumber     = "bad_number"
	ReasonBadPollutant  = "bad_pollutant"
	ReasonInvalidRecord = "invalid_record"
)

// LoadStats summarizes one file load.
type LoadStats struct {
	Path              string
	SHA256            string
	Rows              int
	Malformed         int
	MalformedByReason map[string]int
}

var satelliteColumns = []string{
	"timestamp", "latitude", "longitude", "pollutant", "concentration",
	"cloud_fraction", "solar_zenith_deg", "quality_flag",
}

var groundColumns = []string{
	"timestamp", "latitude", "longitude", "station_id", "pollutant",
	"concentration", "city",
}

// LoadSatellite reads satellite observations from a headered CSV file.
func LoadSatellite(path string) ([]domain.SatelliteObservation, LoadStats, error) {
	var out []domain.SatelliteObservation
	stats, err := loadRows(path, satelliteColumns, func(row rowReader) error {
		obs := domain.SatelliteObservation{
			Timestamp:      row.timestamp("timestamp"),
			Lat:            row.float("latitude"),
			Lon:            row.float("longitude"),
			Pollutant:      row.pollutant("pollutant"),
			Concentration:  row.float("concentration"),
			CloudFraction:  row.float("cloud_fraction"),
			SolarZenithDeg: row.float("solar_zenith_deg"),
			QualityFlag:    row.int("quality_flag"),
		}
		if row.err != nil {
			return row.err
		}
		if err := obs.Validate(); err != nil {
			return reasonError{ReasonInvalidRecord, err}
		}
		out = append(out, obs)
		return nil
	})
	return out, stats, err
}

// LoadGround reads ground station measurements from a headered CSV file.
func LoadGround(path string) ([]domain.GroundMeasurement, LoadStats, error) {
	var out []domain.GroundMeasurement
	stats, err := loadRows(path, groundColumns, func(row rowReader) error {
		m := domain.GroundMeasurement{
			Timestamp:     row.timestamp("timestamp"),
			Lat:           row.float("latitude"),
			Lon:           row.float("longitude"),
			StationID:     row.text("station_id"),
			City:          row.text("city"),
			Pollutant:     row.pollutant("pollutant"),
			Concentration: row.float("concentration"),
		}
		if row.err != nil {
			return row.err
		}
		if err := m.Validate(); err != nil {
			return reasonError{ReasonInvalidRecord, err}
		}
		out = append(out, m)
		return nil
	})
	return out, stats, err
}

// reasonError tags a parse failure with its metric label.
type reasonError struct {
	reason string
	err    error
}

func (e reasonError) Error() string { return e.err.Error() }
func (e reasonError) Unwrap() error { return e.err }

// rowReader accumulates the first parse failure instead of forcing every
// column access to return an error.
type rowReader struct {
	cols map[string]int
	row  []string
	err  error
}

func (r *rowReader) text(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.row) {
		r.fail(reasonError{ReasonMissingColumn, fmt.Errorf("column %q missing", col)})
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r *rowReader) float(col string) float64 {
	s := r.text(col)
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(reasonError{ReasonBadNumber, fmt.Errorf("column %q: %w", col, err)})
		return 0
	}
	return v
}

func (r *rowReader) int(col string) int {
	s := r.text(col)
	if r.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail(reasonError{ReasonBadNumber, fmt.Errorf("column %q: %w", col, err)})
		return 0
	}
	return v
}

func (r *rowReader) timestamp(col string) time.Time {
	s := r.text(col)
	if r.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		r.fail(reasonError{ReasonBadTimestamp, fmt.Errorf("column %q: %w", col, err)})
		return time.Time{}
	}
	return t.UTC()
}

func (r *rowReader) pollutant(col string) domain.Pollutant {
	s := r.text(col)
	if r.err != nil {
		return ""
	}
	p, err := domain.ParsePollutant(s)
	if err != nil {
		r.fail(reasonError{ReasonBadPollutant, err})
		return ""
	}
	return p
}

func (r *rowReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// loadRows streams a CSV file through the per-row parser while hashing the
// raw bytes for the manifest digest.
func loadRows(path string, required []string, parse func(rowReader) error) (LoadStats, error) {
	stats := LoadStats{Path: path, MalformedByReason: make(map[string]int)}

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	reader := csv.NewReader(io.TeeReader(f, hasher))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("read header %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, col := range required {
		if _, ok := cols[col]; !ok {
			return stats, fmt.Errorf("%s: required column %q not in header", path, col)
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken line drops only that line.
			stats.Malformed++
			stats.MalformedByReason[ReasonInvalidRecord]++
			continue
		}
		if err := parse(rowReader{cols: cols, row: row}); err != nil {
			stats.Malformed++
			stats.MalformedByReason[reasonOf(err)]++
			continue
		}
		stats.Rows++
	}

	// Drain anything the CSV reader buffered so the digest covers the file.
	if _, err := io.Copy(hasher, f); err != nil {
		return stats, fmt.Errorf("hash %s: %w", path, err)
	}
	stats.SHA256 = hex.EncodeToString(hasher.Sum(nil))
	return stats, nil
}

func reasonOf(err error) string {
	if re, ok := err.(reasonError); ok {
		return re.reason
	}
	return ReasonInvalidRecord
}
