// Package pipeline orchestrates one validation run: load both datasets,
// match, run the statistical battery, write the report, and optionally
// publish it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cleanskies/tempo-validation-service/internal/adapter/csvfile"
	"github.com/cleanskies/tempo-validation-service/internal/config"
	"github.com/cleanskies/tempo-validation-service/internal/domain"
	"github.com/cleanskies/tempo-validation-service/internal/match"
	"github.com/cleanskies/tempo-validation-service/internal/observability"
	"github.com/cleanskies/tempo-validation-service/internal/report"
)

// Publisher delivers a completed report to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, rep *report.ValidationReport) error
}

// Runner executes validation runs and tracks the latest result for the HTTP
// endpoints.
type Runner struct {
	cfg       *config.Config
	builder   *report.Builder
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready  atomic.Bool
	latest atomic.Pointer[report.ValidationReport]
}

// NewRunner wires a Runner. publisher may be nil when Kafka is disabled.
func NewRunner(cfg *config.Config, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	opts := report.Options{
		PerPollutant:          true,
		PerRegion:             true,
		Lambda:                cfg.DemingLambda,
		Confidence:            cfg.Confidence,
		MinPairs:              cfg.MinPairs,
		BootstrapIterations:   cfg.BootstrapIterations,
		PermutationIterations: cfg.PermutationIterations,
		Seed:                  cfg.Seed,
		Workers:               cfg.Workers,
		Sensitivity:           cfg.Sensitivity,
		Match: match.Config{
			RadiusKM:      cfg.RadiusKM,
			WindowMinutes: cfg.WindowMinutes,
			Quality: domain.QualityPolicy{
				MaxCloudFraction:  cfg.MaxCloudFraction,
				MaxSolarZenithDeg: cfg.MaxSolarZenithDeg,
			},
		},
	}
	return &Runner{
		cfg:       cfg,
		builder:   report.NewBuilder(opts, logger, metrics),
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no validation run has completed yet")
	}
	return nil
}

// LatestReport returns the most recently completed report, or nil.
func (r *Runner) LatestReport() *report.ValidationReport {
	return r.latest.Load()
}

// Run executes one full validation run. Per-row and per-group failures are
// absorbed into diagnostics and statuses; Run fails only when an input file
// is unreadable, a dataset is empty, or no pairs match at all.
func (r *Runner) Run(ctx context.Context) (*report.ValidationReport, error) {
	start := time.Now()

	sat, ground, inputs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(sat) == 0 {
		return nil, fmt.Errorf("satellite dataset %s has no usable rows", r.cfg.SatelliteCSV)
	}
	if len(ground) == 0 {
		return nil, fmt.Errorf("ground dataset %s has no usable rows", r.cfg.GroundCSV)
	}

	matchStart := time.Now()
	cfg := r.builderMatchConfig()
	pairs, diag := match.Match(sat, ground, cfg)
	r.metrics.MatchDuration.Observe(time.Since(matchStart).Seconds())
	r.metrics.PairsMatched.Add(float64(diag.Pairs))
	r.metrics.SatelliteUnmatched.Add(float64(diag.Unmatched))
	for reason, n := range diag.RejectedByReason {
		r.metrics.RowsRejected.WithLabelValues("satellite", reason).Add(float64(n))
	}

	r.logger.Info("matching complete",
		"pairs", diag.Pairs,
		"matched_satellite", diag.MatchedSatellite,
		"unmatched", diag.Unmatched,
		"rejected_quality", diag.RejectedQuality,
		"match_rate", diag.MatchRate,
	)

	rep, err := r.builder.Build(ctx, report.BuildInput{
		Pairs:       pairs,
		Diagnostics: diag,
		Satellite:   sat,
		Ground:      ground,
		Inputs:      inputs,
	})
	if err != nil {
		return nil, err
	}

	if err := r.writeReport(rep); err != nil {
		return nil, err
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, rep); err != nil {
			// The report is already on disk; a publish failure should not
			// fail the run.
			r.logger.Error("report publish failed", "error", err, "run_id", rep.RunID)
		}
	}

	r.latest.Store(rep)
	r.ready.Store(true)
	r.logger.Info("validation run complete",
		"run_id", rep.RunID,
		"groups", len(rep.Groups),
		"duration", time.Since(start),
	)
	return rep, nil
}

// load reads both datasets concurrently and records ingest metrics.
func (r *Runner) load(ctx context.Context) ([]domain.SatelliteObservation, []domain.GroundMeasurement, []report.InputFile, error) {
	var (
		sat         []domain.SatelliteObservation
		ground      []domain.GroundMeasurement
		satStats    csvfile.LoadStats
		groundStats csvfile.LoadStats
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sat, satStats, err = csvfile.LoadSatellite(r.cfg.SatelliteCSV)
		return err
	})
	g.Go(func() error {
		var err error
		ground, groundStats, err = csvfile.LoadGround(r.cfg.GroundCSV)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	for source, stats := range map[string]csvfile.LoadStats{"satellite": satStats, "ground": groundStats} {
		r.metrics.ObservationsLoaded.WithLabelValues(source).Add(float64(stats.Rows))
		for reason, n := range stats.MalformedByReason {
			r.metrics.RowsRejected.WithLabelValues(source, reason).Add(float64(n))
		}
		r.logger.Info("dataset loaded",
			"source", source,
			"path", stats.Path,
			"rows", stats.Rows,
			"malformed", stats.Malformed,
		)
	}

	inputs := []report.InputFile{
		{Path: satStats.Path, SHA256: satStats.SHA256, Rows: satStats.Rows},
		{Path: groundStats.Path, SHA256: groundStats.SHA256, Rows: groundStats.Rows},
	}
	return sat, ground, inputs, nil
}

func (r *Runner) builderMatchConfig() match.Config {
	return match.Config{
		RadiusKM:      r.cfg.RadiusKM,
		WindowMinutes: r.cfg.WindowMinutes,
		Quality: domain.QualityPolicy{
			MaxCloudFraction:  r.cfg.MaxCloudFraction,
			MaxSolarZenithDeg: r.cfg.MaxSolarZenithDeg,
		},
	}
}

func (r *Runner) writeReport(rep *report.ValidationReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(r.cfg.OutputPath, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	r.logger.Info("report written", "path", r.cfg.OutputPath, "bytes", len(data))
	return nil
}
