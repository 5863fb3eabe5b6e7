package report_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanskies/tempo-validation-service/internal/analysis"
	"github.com/cleanskies/tempo-validation-service/internal/domain"
	"github.com/cleanskies/tempo-validation-service/internal/match"
	"github.com/cleanskies/tempo-validation-service/internal/observability"
	"github.com/cleanskies/tempo-validation-service/internal/report"
)

func testBuilder(opts report.Options) *report.Builder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return report.NewBuilder(opts, logger, observability.NewMetricsForTesting())
}

// cityPairs builds n matched pairs for one city with satellite =
// slope*ground + intercept plus gaussian noise.
func cityPairs(city string, n int, slope, intercept, noise float64, seed int64) []domain.MatchedPair {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 7, 15, 14, 0, 0, 0, time.UTC)
	pairs := make([]domain.MatchedPair, n)
	for i := range pairs {
		g := 5 + rng.Float64()*40
		s := slope*g + intercept + rng.NormFloat64()*noise
		ts := base.Add(time.Duration(i) * time.Hour)
		pairs[i] = domain.MatchedPair{
			Satellite: domain.SatelliteObservation{
				Timestamp:     ts,
				Lat:           43.65,
				Lon:           -79.38,
				Pollutant:     domain.PollutantNO2,
				Concentration: s,
			},
			Ground: domain.GroundMeasurement{
				Timestamp:     ts.Add(5 * time.Minute),
				Lat:           43.66,
				Lon:           -79.38,
				StationID:     city + "-1",
				City:          city,
				Pollutant:     domain.PollutantNO2,
				Concentration: g,
			},
			DistanceKM:    1.1,
			OffsetMinutes: -5,
			City:          city,
			Pollutant:     domain.PollutantNO2,
		}
	}
	return pairs
}

func TestBuild_EndToEndScenario(t *testing.T) {
	// Three cities, 50 pairs each, true linear relation plus noise at 5% of
	// the value range.
	var pairs []domain.MatchedPair
	for i, city := range []string{"Toronto", "Chicago", "Los Angeles"} {
		pairs = append(pairs, cityPairs(city, 50, 1.4, 2, 2, int64(i+1))...)
	}

	opts := report.DefaultOptions()
	opts.PerRegion = false
	opts.BootstrapIterations = 200
	opts.PermutationIterations = 200
	b := testBuilder(opts)

	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 1)

	gr := rep.GroupFor("all", "no2")
	require.NotNil(t, gr)
	assert.Equal(t, report.StatusValidated, gr.Status)
	assert.Equal(t, 150, gr.N)
	assert.Equal(t, []string{"Chicago", "Los Angeles", "Toronto"}, gr.Cities)

	require.NotNil(t, gr.Regression)
	assert.Greater(t, gr.Regression.R2, 0.8)
	assert.InDelta(t, 1.4, gr.Regression.Slope, 0.15)

	require.NotNil(t, gr.LOCO)
	assert.Len(t, gr.LOCO.Folds, 3)
	assert.Equal(t, 150, gr.LOCO.Aggregate.N)
	assert.InDelta(t, gr.Regression.R2, gr.LOCO.Aggregate.R2, 0.1)

	require.NotNil(t, gr.Permutation)
	assert.True(t, gr.Permutation.Significant)
	require.NotNil(t, gr.BootstrapR2)
	assert.LessOrEqual(t, gr.BootstrapR2.Lower, gr.BootstrapR2.Upper)
	require.NotNil(t, gr.Agreement)

	assert.Equal(t, 150, rep.Overall.N)
	assert.NotEmpty(t, rep.RunID)
}

func TestBuild_PerRegionGroups(t *testing.T) {
	pairs := append(cityPairs("Toronto", 30, 1.2, 0, 1, 1), cityPairs("Chicago", 30, 1.2, 0, 1, 2)...)

	opts := report.DefaultOptions()
	opts.BootstrapIterations = 100
	opts.PermutationIterations = 100
	b := testBuilder(opts)

	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 2)

	for _, region := range []string{"Toronto", "Chicago"} {
		gr := rep.GroupFor(region, "no2")
		require.NotNil(t, gr, region)
		assert.Equal(t, report.StatusValidated, gr.Status)
		// Single-city groups cannot run LOCO; the reason is recorded.
		assert.Nil(t, gr.LOCO)
		assert.NotEmpty(t, gr.LOCOOmittedWhy)
	}
}

func TestBuild_CityRegionsCollapse(t *testing.T) {
	pairs := append(cityPairs("Toronto", 20, 1.2, 0, 1, 1), cityPairs("Hamilton", 20, 1.2, 0, 1, 2)...)

	opts := report.DefaultOptions()
	opts.BootstrapIterations = 100
	opts.PermutationIterations = 100
	opts.CityRegions = map[string]string{"Toronto": "Golden Horseshoe", "Hamilton": "Golden Horseshoe"}
	b := testBuilder(opts)

	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 1)

	gr := rep.GroupFor("Golden Horseshoe", "no2")
	require.NotNil(t, gr)
	assert.Equal(t, 40, gr.N)
	// Two underlying cities, so LOCO runs inside the merged region.
	require.NotNil(t, gr.LOCO)
	assert.Len(t, gr.LOCO.Folds, 2)
}

func TestBuild_SmallGroupMarkedNotOmitted(t *testing.T) {
	pairs := append(cityPairs("Toronto", 50, 1.2, 0, 1, 1), cityPairs("Sudbury", 4, 1.2, 0, 1, 2)...)

	opts := report.DefaultOptions()
	opts.BootstrapIterations = 100
	opts.PermutationIterations = 100
	b := testBuilder(opts)

	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 2)

	small := rep.GroupFor("Sudbury", "no2")
	require.NotNil(t, small)
	assert.Equal(t, report.StatusInsufficientData, small.Status)
	assert.Equal(t, 4, small.N)
	assert.Nil(t, small.Regression)
	assert.NotEmpty(t, small.FailReason)
}

func TestBuild_DegenerateGroup(t *testing.T) {
	pairs := cityPairs("Toronto", 20, 1.2, 0, 1, 1)
	for i := range pairs {
		pairs[i].Ground.Concentration = 10
	}
	b := testBuilder(report.DefaultOptions())

	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	require.Len(t, rep.Groups, 1)
	assert.Equal(t, report.StatusDegenerate, rep.Groups[0].Status)
}

func TestBuild_SmallGroupGetsFisherInterval(t *testing.T) {
	pairs := cityPairs("Toronto", 15, 1.2, 0, 1, 1)

	opts := report.DefaultOptions()
	b := testBuilder(opts)

	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	gr := rep.Groups[0]
	assert.Equal(t, report.StatusValidated, gr.Status)
	assert.Nil(t, gr.BootstrapR2)
	require.NotNil(t, gr.SpearmanCI)
	assert.Equal(t, "fisher_z", gr.SpearmanCI.Method)
}

func TestBuild_EmptyInputFails(t *testing.T) {
	b := testBuilder(report.DefaultOptions())
	_, err := b.Build(context.Background(), report.BuildInput{})
	require.Error(t, err)
}

func TestBuild_DeterministicAcrossRuns(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	pairs := cityPairs("Toronto", 40, 1.2, 0, 2, 1)
	opts := report.DefaultOptions()
	opts.BootstrapIterations = 150
	opts.PermutationIterations = 150

	first, err := testBuilder(opts).Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)
	second, err := testBuilder(opts).Build(context.Background(), report.BuildInput{Pairs: pairs})
	require.NoError(t, err)

	// Everything except the run ID is reproducible.
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
	assert.Empty(t, cmp.Diff(first.Groups, second.Groups))
	assert.Equal(t, first.Overall, second.Overall)
}

func TestBuild_ManifestRecordsParameters(t *testing.T) {
	pairs := cityPairs("Toronto", 40, 1.2, 0, 2, 1)
	opts := report.DefaultOptions()
	opts.Seed = 7
	opts.Match.RadiusKM = 30
	b := testBuilder(opts)

	inputs := []report.InputFile{{Path: "sat.csv", SHA256: "abc", Rows: 40}}
	rep, err := b.Build(context.Background(), report.BuildInput{Pairs: pairs, Inputs: inputs})
	require.NoError(t, err)

	assert.Equal(t, rep.RunID, rep.Manifest.RunID)
	assert.Equal(t, int64(7), rep.Manifest.Parameters.Seed)
	assert.Equal(t, 30.0, rep.Manifest.Parameters.RadiusKM)
	assert.Equal(t, analysis.DefaultLambda, rep.Manifest.Parameters.DemingLambda)
	assert.Equal(t, inputs, rep.Manifest.Inputs)
}

func TestBuild_SensitivityGrid(t *testing.T) {
	overpass := time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(5))

	var sat []domain.SatelliteObservation
	var ground []domain.GroundMeasurement
	for i := 0; i < 60; i++ {
		g := 5 + rng.Float64()*40
		ts := overpass.Add(time.Duration(i) * time.Hour)
		sat = append(sat, domain.SatelliteObservation{
			Timestamp:     ts,
			Lat:           43.65,
			Lon:           -79.38,
			Pollutant:     domain.PollutantNO2,
			Concentration: 1.3*g + rng.NormFloat64(),
			CloudFraction: 0.05,
		})
		ground = append(ground, domain.GroundMeasurement{
			Timestamp:     ts.Add(20 * time.Minute),
			Lat:           43.70,
			Lon:           -79.40,
			StationID:     "on-1",
			City:          "Toronto",
			Pollutant:     domain.PollutantNO2,
			Concentration: g,
		})
	}

	pairs, diag := match.Match(sat, ground, match.DefaultConfig())
	require.NotEmpty(t, pairs)

	opts := report.DefaultOptions()
	opts.Sensitivity = true
	opts.BootstrapIterations = 100
	opts.PermutationIterations = 100
	b := testBuilder(opts)

	rep, err := b.Build(context.Background(), report.BuildInput{
		Pairs:       pairs,
		Diagnostics: diag,
		Satellite:   sat,
		Ground:      ground,
	})
	require.NoError(t, err)
	require.Len(t, rep.Sensitivity, 9)

	var headline *report.SensitivityCell
	for i := range rep.Sensitivity {
		cell := rep.Sensitivity[i]
		assert.Contains(t, []float64{10, 20, 30}, cell.RadiusKM)
		assert.Contains(t, []float64{60, 180, 360}, cell.WindowMinutes)
		if cell.RadiusKM == 20 && cell.WindowMinutes == 60 {
			headline = &rep.Sensitivity[i]
		}
	}
	require.NotNil(t, headline)
	assert.Equal(t, len(pairs), headline.Pairs)
	assert.False(t, math.IsNaN(headline.R2))
}
