// Command genmock writes synthetic satellite and ground CSV fixtures with a
// known linear relationship, for local runs and test data refreshes.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -sat-out data/satellite_observations.csv \
//	  -ground-out data/ground_measurements.csv \
//	  -cities 3 -per-city 50 -slope 1.4 -intercept 2 -noise 2
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/cleanskies/tempo-validation-service/internal/adapter/csvfile"
	"github.com/cleanskies/tempo-validation-service/internal/domain"
	"github.com/cleanskies/tempo-validation-service/internal/testdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	satOut := flag.String("sat-out", "", "output path for the satellite CSV")
	groundOut := flag.String("ground-out", "", "output path for the ground CSV")
	cities := flag.Int("cities", 3, "number of cities (max 5)")
	perCity := flag.Int("per-city", 50, "observations per city")
	pollutant := flag.String("pollutant", "no2", "pollutant code")
	slope := flag.Float64("slope", 1.4, "true satellite/ground slope")
	intercept := flag.Float64("intercept", 2, "true intercept")
	noise := flag.Float64("noise", 2, "gaussian noise sigma")
	rejectedRate := flag.Float64("rejected-rate", 0.1, "fraction of satellite rows failing quality screening")
	seed := flag.Int64("seed", 1, "PRNG seed")
	flag.Parse()

	if *satOut == "" || *groundOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -sat-out, -ground-out")
	}
	if *cities < 1 || *cities > len(testdata.DefaultCities) {
		return fmt.Errorf("-cities must be between 1 and %d", len(testdata.DefaultCities))
	}
	p, err := domain.ParsePollutant(*pollutant)
	if err != nil {
		return err
	}

	gen := testdata.Generator{
		Cities:       testdata.DefaultCities[:*cities],
		PerCity:      *perCity,
		Pollutant:    p,
		Slope:        *slope,
		Intercept:    *intercept,
		Noise:        *noise,
		RejectedRate: *rejectedRate,
		Rand:         rand.New(rand.NewSource(*seed)),
	}
	sat, ground := gen.Generate()

	if err := csvfile.WriteSatellite(*satOut, sat); err != nil {
		return fmt.Errorf("writing satellite CSV: %w", err)
	}
	log.Printf("wrote %d satellite observations: %s", len(sat), *satOut)

	if err := csvfile.WriteGround(*groundOut, ground); err != nil {
		return fmt.Errorf("writing ground CSV: %w", err)
	}
	log.Printf("wrote %d ground measurements: %s", len(ground), *groundOut)
	return nil
}
