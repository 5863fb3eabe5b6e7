// Package report assembles validation runs into a single structured document:
// per-group statistical sections, run-level diagnostics, a reproducibility
// manifest, and an optional sensitivity grid over matching parameters.
package report

import (
	"time"

	"github.com/cleanskies/tempo-validation-service/internal/analysis"
	"github.com/cleanskies/tempo-validation-service/internal/domain"
	"github.com/cleanskies/tempo-validation-service/internal/match"
)

// Group statuses. A group is never omitted for failing; it is included with
// the status explaining what happened.
const (
	StatusValidated        = "validated"
	StatusInsufficientData = "insufficient_data"
	StatusDegenerate       = "degenerate"
)

// GroupKey identifies one analysis group. Region is the city unless a
// city-to-region mapping collapses several cities, or "all" when regional
// grouping is disabled.
type GroupKey struct {
	Region    string `json:"region"`
	Pollutant string `json:"pollutant"`
}

// StratumMetrics is a metric set over a temporal slice of a group.
type StratumMetrics struct {
	Stratum string           `json:"stratum"`
	Metrics domain.MetricSet `json:"metrics"`
}

// GroupReport is the full statistical battery for one (region, pollutant)
// group. Sections that could not run are nil, with the status and reason
// fields explaining why.
type GroupReport struct {
	GroupKey
	Status string   `json:"status"`
	N      int      `json:"n"`
	Cities []string `json:"cities"`

	Regression    *analysis.DemingFit          `json:"regression,omitempty"`
	Calibration   *analysis.CalibrationGain    `json:"calibration,omitempty"`
	Agreement     *analysis.AgreementResult    `json:"agreement,omitempty"`
	BootstrapR2   *analysis.ConfidenceInterval `json:"bootstrap_r2,omitempty"`
	BootstrapRMSE *analysis.ConfidenceInterval `json:"bootstrap_rmse,omitempty"`
	SpearmanRho   float64                      `json:"spearman_rho"`
	SpearmanCI    *analysis.ConfidenceInterval `json:"spearman_ci,omitempty"`
	Permutation   *analysis.PermutationResult  `json:"permutation,omitempty"`

	LOCO           *analysis.LOCOResult `json:"loco,omitempty"`
	LOCOOmittedWhy string               `json:"loco_omitted_reason,omitempty"`
	Strata         []StratumMetrics     `json:"strata,omitempty"`
	FailReason     string               `json:"fail_reason,omitempty"`
}

// InputFile records one input dataset for the run manifest.
type InputFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Rows   int    `json:"rows"`
}

// Parameters are the knobs that shaped this run, recorded so a report can be
// reproduced bit-for-bit.
type Parameters struct {
	RadiusKM              float64 `json:"radius_km"`
	WindowMinutes         float64 `json:"window_minutes"`
	MaxCloudFraction      float64 `json:"max_cloud_fraction"`
	MaxSolarZenithDeg     float64 `json:"max_solar_zenith_deg"`
	DemingLambda          float64 `json:"deming_lambda"`
	BootstrapIterations   int     `json:"bootstrap_iterations"`
	PermutationIterations int     `json:"permutation_iterations"`
	Confidence            float64 `json:"confidence"`
	MinPairs              int     `json:"min_pairs"`
	Seed                  int64   `json:"seed"`
}

// RunManifest captures everything needed to reproduce the run.
type RunManifest struct {
	RunID      string      `json:"run_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Parameters Parameters  `json:"parameters"`
	Inputs     []InputFile `json:"inputs,omitempty"`
}

// SensitivityCell is one point of the parameter grid: the dataset re-matched
// at alternative radius/window settings and scored.
type SensitivityCell struct {
	RadiusKM      float64 `json:"radius_km"`
	WindowMinutes float64 `json:"window_minutes"`
	Pairs         int     `json:"pairs"`
	MatchRate     float64 `json:"match_rate"`
	R2            float64 `json:"r2"`
	RMSE          float64 `json:"rmse"`
}

// ValidationReport is the run's complete output document.
type ValidationReport struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Manifest    RunManifest       `json:"manifest"`
	Diagnostics match.Diagnostics `json:"diagnostics"`
	// Overall covers the full matched-pair population across every group.
	Overall     domain.MetricSet  `json:"overall"`
	Groups      []GroupReport     `json:"groups"`
	Sensitivity []SensitivityCell `json:"sensitivity,omitempty"`
}

// GroupFor returns the sub-report for a key, or nil when absent.
func (r *ValidationReport) GroupFor(region, pollutant string) *GroupReport {
	for i := range r.Groups {
		if r.Groups[i].Region == region && r.Groups[i].Pollutant == pollutant {
			return &r.Groups[i]
		}
	}
	return nil
}
