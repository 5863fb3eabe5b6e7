package report

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cleanskies/tempo-validation-service/internal/analysis"
	"github.com/cleanskies/tempo-validation-service/internal/domain"
	"github.com/cleanskies/tempo-validation-service/internal/match"
	"github.com/cleanskies/tempo-validation-service/internal/observability"
)

// minStratumPairs is the smallest slice for which stratified metrics are
// reported.
const minStratumPairs = 10

// fisherFallbackN is the group size below which the bootstrap is replaced by
// a Fisher-z interval on the Spearman correlation.
const fisherFallbackN = 20

// Options shape a report build. Zero values are filled in by NewBuilder from
// the documented defaults.
type Options struct {
	PerPollutant bool
	PerRegion    bool
	// CityRegions optionally collapses cities into named regions. Cities
	// absent from the map keep their own name as region.
	CityRegions map[string]string

	Lambda                float64
	Confidence            float64
	MinPairs              int
	BootstrapIterations   int
	PermutationIterations int
	Seed                  int64
	Workers               int
	BiasThresholds        map[domain.Pollutant]float64

	// Match holds the settings the pairs were produced with, recorded in the
	// manifest and used as the center of the sensitivity grid.
	Match match.Config
	// Sensitivity enables re-matching over the radius/window grid. Requires
	// BuildInput to carry the raw observations.
	Sensitivity bool
}

// DefaultOptions returns the standard build settings.
func DefaultOptions() Options {
	return Options{
		PerPollutant:          true,
		PerRegion:             true,
		Lambda:                analysis.DefaultLambda,
		Confidence:            0.95,
		MinPairs:              analysis.MinPairs,
		BootstrapIterations:   1000,
		PermutationIterations: 1000,
		Seed:                  42,
		Workers:               runtime.GOMAXPROCS(0),
		BiasThresholds:        analysis.DefaultBiasThresholds,
		Match:                 match.DefaultConfig(),
	}
}

// BuildInput carries one run's matched pairs plus the surrounding context.
// Satellite and Ground are only needed when the sensitivity grid is enabled.
type BuildInput struct {
	Pairs       []domain.MatchedPair
	Diagnostics match.Diagnostics
	Satellite   []domain.SatelliteObservation
	Ground      []domain.GroundMeasurement
	Inputs      []InputFile
}

// Builder turns matched pairs into a ValidationReport.
type Builder struct {
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBuilder creates a Builder, filling unset numeric options with defaults.
func NewBuilder(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	def := DefaultOptions()
	if opts.Lambda <= 0 {
		opts.Lambda = def.Lambda
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = def.Confidence
	}
	if opts.MinPairs < 3 {
		opts.MinPairs = def.MinPairs
	}
	if opts.BootstrapIterations < 1 {
		opts.BootstrapIterations = def.BootstrapIterations
	}
	if opts.PermutationIterations < 1 {
		opts.PermutationIterations = def.PermutationIterations
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.BiasThresholds == nil {
		opts.BiasThresholds = def.BiasThresholds
	}
	if opts.Match.RadiusKM <= 0 {
		opts.Match = def.Match
	}
	return &Builder{opts: opts, logger: logger, metrics: metrics}
}

// Build runs the statistical battery over every (region, pollutant) group and
// assembles the report. Only an empty pair set fails the build; every
// per-group failure is recorded as that group's status.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*ValidationReport, error) {
	if len(in.Pairs) == 0 {
		return nil, errors.New("build report: no matched pairs")
	}

	start := time.Now()
	b.metrics.RunActive.Set(1)
	defer b.metrics.RunActive.Set(0)

	groups := b.groupPairs(in.Pairs)
	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Pollutant != keys[j].Pollutant {
			return keys[i].Pollutant < keys[j].Pollutant
		}
		return keys[i].Region < keys[j].Region
	})

	b.logger.Info("building report",
		"pairs", len(in.Pairs),
		"groups", len(keys),
		"workers", b.opts.Workers,
	)

	reports := make([]GroupReport, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, key := range keys {
		g.Go(func() error {
			reports[i] = b.buildGroup(gctx, key, groups[key])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	for _, gr := range reports {
		b.metrics.GroupStatus.WithLabelValues(gr.Status).Inc()
		b.logger.Info("group analyzed",
			"region", gr.Region,
			"pollutant", gr.Pollutant,
			"status", gr.Status,
			"n", gr.N,
		)
	}

	ground, satellite := analysis.SplitValues(in.Pairs)
	runID := uuid.NewString()
	rep := &ValidationReport{
		RunID:       runID,
		GeneratedAt: domain.Now(),
		Manifest:    b.manifest(runID, in.Inputs),
		Diagnostics: in.Diagnostics,
		Overall:     domain.ComputeMetrics(ground, satellite),
		Groups:      reports,
	}

	if b.opts.Sensitivity && len(in.Satellite) > 0 {
		cells, err := b.sensitivityGrid(ctx, in)
		if err != nil {
			return nil, err
		}
		rep.Sensitivity = cells
	}

	b.metrics.RunDuration.Observe(time.Since(start).Seconds())
	return rep, nil
}

func (b *Builder) manifest(runID string, inputs []InputFile) RunManifest {
	return RunManifest{
		RunID:     runID,
		CreatedAt: domain.Now(),
		Parameters: Parameters{
			RadiusKM:              b.opts.Match.RadiusKM,
			WindowMinutes:         b.opts.Match.WindowMinutes,
			MaxCloudFraction:      b.opts.Match.Quality.MaxCloudFraction,
			MaxSolarZenithDeg:     b.opts.Match.Quality.MaxSolarZenithDeg,
			DemingLambda:          b.opts.Lambda,
			BootstrapIterations:   b.opts.BootstrapIterations,
			PermutationIterations: b.opts.PermutationIterations,
			Confidence:            b.opts.Confidence,
			MinPairs:              b.opts.MinPairs,
			Seed:                  b.opts.Seed,
		},
		Inputs: inputs,
	}
}

// groupPairs buckets pairs by their report group key.
func (b *Builder) groupPairs(pairs []domain.MatchedPair) map[GroupKey][]domain.MatchedPair {
	groups := make(map[GroupKey][]domain.MatchedPair)
	for _, p := range pairs {
		key := GroupKey{Region: "all", Pollutant: "all"}
		if b.opts.PerRegion {
			key.Region = p.City
			if mapped, ok := b.opts.CityRegions[p.City]; ok {
				key.Region = mapped
			}
		}
		if b.opts.PerPollutant {
			key.Pollutant = string(p.Pollutant)
		}
		groups[key] = append(groups[key], p)
	}
	return groups
}

// groupSeed derives a per-group seed from the run seed, so results do not
// depend on which worker picks up which group.
func (b *Builder) groupSeed(key GroupKey) int64 {
	h := fnv.New64a()
	h.Write([]byte(key.Region))
	h.Write([]byte{'|'})
	h.Write([]byte(key.Pollutant))
	return b.opts.Seed ^ int64(h.Sum64())
}

// buildGroup runs every statistical section for one group. Section failures
// downgrade the group status; they never propagate as errors.
func (b *Builder) buildGroup(ctx context.Context, key GroupKey, pairs []domain.MatchedPair) GroupReport {
	gr := GroupReport{
		GroupKey: key,
		N:        len(pairs),
		Cities:   distinctCities(pairs),
	}

	if len(pairs) < b.opts.MinPairs {
		gr.Status = StatusInsufficientData
		gr.FailReason = (&analysis.InsufficientDataError{Op: "group battery", N: len(pairs), Min: b.opts.MinPairs}).Error()
		return gr
	}

	fit, err := b.timedFit(pairs)
	if err != nil {
		gr.Status = statusFor(err)
		gr.FailReason = err.Error()
		return gr
	}
	gr.Status = StatusValidated
	gr.Regression = &fit
	gain := analysis.EvaluateCalibration(fit, pairs)
	gr.Calibration = &gain

	ground, satellite := analysis.SplitValues(pairs)
	gr.SpearmanRho = domain.SpearmanRho(ground, satellite)

	b.timedSection("bland_altman", func() {
		agreement, baErr := analysis.BlandAltman(pairs, b.biasThreshold(pairs))
		if baErr != nil {
			b.logger.Warn("bland-altman skipped", "region", key.Region, "pollutant", key.Pollutant, "error", baErr)
			return
		}
		gr.Agreement = &agreement
	})

	seed := b.groupSeed(key)
	resampler := analysis.Resampler{Iterations: b.opts.BootstrapIterations, Workers: 1}

	if len(pairs) < fisherFallbackN {
		// Small groups: the bootstrap is unstable, fall back to Fisher-z.
		if ci, fErr := analysis.FisherSpearmanCI(gr.SpearmanRho, len(pairs), b.opts.Confidence); fErr == nil {
			gr.SpearmanCI = &ci
		}
	} else {
		b.timedSection("bootstrap", func() {
			if ci, bErr := resampler.BootstrapCI(ctx, pairs, analysis.StatR2, b.opts.Confidence, seed); bErr == nil {
				gr.BootstrapR2 = &ci
			}
			if ci, bErr := resampler.BootstrapCI(ctx, pairs, analysis.StatRMSE, b.opts.Confidence, seed+1); bErr == nil {
				gr.BootstrapRMSE = &ci
			}
		})
	}

	b.timedSection("permutation", func() {
		perm := analysis.Resampler{Iterations: b.opts.PermutationIterations, Workers: 1}
		res, pErr := perm.PermutationTest(ctx, pairs, seed+2)
		if pErr != nil {
			b.logger.Warn("permutation test skipped", "region", key.Region, "pollutant", key.Pollutant, "error", pErr)
			return
		}
		gr.Permutation = &res
	})

	b.timedSection("loco", func() {
		loco, lErr := analysis.LOCOValidate(pairs, func(train []domain.MatchedPair) (analysis.DemingFit, error) {
			return analysis.FitDeming(train, b.opts.Lambda)
		})
		if lErr != nil {
			gr.LOCOOmittedWhy = lErr.Error()
			return
		}
		gr.LOCO = &loco
	})

	gr.Strata = b.stratify(pairs)
	return gr
}

func (b *Builder) timedFit(pairs []domain.MatchedPair) (analysis.DemingFit, error) {
	var fit analysis.DemingFit
	var err error
	b.timedSection("deming", func() {
		fit, err = analysis.FitDeming(pairs, b.opts.Lambda)
	})
	return fit, err
}

func (b *Builder) timedSection(section string, fn func()) {
	start := time.Now()
	fn()
	b.metrics.AnalysisDuration.WithLabelValues(section).Observe(time.Since(start).Seconds())
}

func (b *Builder) biasThreshold(pairs []domain.MatchedPair) float64 {
	if t, ok := b.opts.BiasThresholds[pairs[0].Pollutant]; ok {
		return t
	}
	return analysis.DefaultBiasThresholds[domain.PollutantNO2]
}

// stratify computes metric sets over temporal slices of the group: day versus
// night by satellite observation hour, weekend versus weekday. Strata below
// minStratumPairs are omitted.
func (b *Builder) stratify(pairs []domain.MatchedPair) []StratumMetrics {
	buckets := map[string][]domain.MatchedPair{}
	for _, p := range pairs {
		ts := p.Satellite.Timestamp.UTC()
		if h := ts.Hour(); h >= 6 && h < 18 {
			buckets["daytime"] = append(buckets["daytime"], p)
		} else {
			buckets["nighttime"] = append(buckets["nighttime"], p)
		}
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			buckets["weekend"] = append(buckets["weekend"], p)
		} else {
			buckets["weekday"] = append(buckets["weekday"], p)
		}
	}

	var out []StratumMetrics
	for _, name := range []string{"daytime", "nighttime", "weekday", "weekend"} {
		slice := buckets[name]
		if len(slice) <= minStratumPairs {
			continue
		}
		ground, satellite := analysis.SplitValues(slice)
		out = append(out, StratumMetrics{Stratum: name, Metrics: domain.ComputeMetrics(ground, satellite)})
	}
	return out
}

func statusFor(err error) string {
	var insufficient *analysis.InsufficientDataError
	if errors.As(err, &insufficient) {
		return StatusInsufficientData
	}
	return StatusDegenerate
}

func distinctCities(pairs []domain.MatchedPair) []string {
	seen := map[string]struct{}{}
	for _, p := range pairs {
		seen[p.City] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
