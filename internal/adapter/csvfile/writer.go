package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// WriteSatellite writes satellite observations as a headered CSV file,
// creating parent directories as needed.
func WriteSatellite(path string, obs []domain.SatelliteObservation) error {
	return writeRows(path, satelliteColumns, len(obs), func(i int) []string {
		o := obs[i]
		return []string{
			o.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(o.Lat),
			formatFloat(o.Lon),
			string(o.Pollutant),
			formatFloat(o.Concentration),
			formatFloat(o.CloudFraction),
			formatFloat(o.SolarZenithDeg),
			strconv.Itoa(o.QualityFlag),
		}
	})
}

// WriteGround writes ground measurements as a headered CSV file.
func WriteGround(path string, measurements []domain.GroundMeasurement) error {
	return writeRows(path, groundColumns, len(measurements), func(i int) []string {
		m := measurements[i]
		return []string{
			m.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(m.Lat),
			formatFloat(m.Lon),
			m.StationID,
			string(m.Pollutant),
			formatFloat(m.Concentration),
			m.City,
		}
	})
}

func writeRows(path string, header []string, n int, row func(i int) []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
