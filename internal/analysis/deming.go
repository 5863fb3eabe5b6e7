// Package analysis implements the statistical battery run over matched
// satellite/ground pairs: errors-in-variables regression, Bland-Altman
// agreement, bootstrap and permutation resampling, and leave-one-city-out
// cross-validation. Every function here is read-only over its input pairs.
package analysis

import (
	"fmt"
	"math"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// MinPairs is the smallest sample for which the regression battery is run.
const MinPairs = 10

// DefaultLambda is the assumed ratio of ground-measurement error variance to
// satellite-retrieval error variance. The reference analysis asserts 0.05
// (satellite error dominant) without deriving it from instrument data, so it
// stays configurable rather than hard-coded.
const DefaultLambda = 0.05

// DemingFit is a fitted errors-in-variables line: satellite ≈ Slope*ground +
// Intercept. R2 and RMSE are OLS-style goodness-of-fit of the line's
// satellite predictions, reported for interpretability.
type DemingFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Lambda    float64 `json:"lambda"`
	R2        float64 `json:"r2"`
	RMSE      float64 `json:"rmse"`
	N         int     `json:"n"`
}

// FitDeming fits a Deming regression of satellite on ground concentration.
// Unlike OLS it allows measurement error on both axes; lambda is the ratio
// Var(ground error)/Var(satellite error).
//
// Returns *InsufficientDataError when n < MinPairs and
// *DegenerateVarianceError when either axis is constant.
func FitDeming(pairs []domain.MatchedPair, lambda float64) (DemingFit, error) {
	if len(pairs) < MinPairs {
		return DemingFit{}, &InsufficientDataError{Op: "deming fit", N: len(pairs), Min: MinPairs}
	}
	if lambda <= 0 || math.IsNaN(lambda) {
		return DemingFit{}, fmt.Errorf("deming fit: lambda must be positive, got %v", lambda)
	}

	x, y := SplitValues(pairs)
	n := float64(len(x))

	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var sxx, syy, sxy float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	if sxx == 0 {
		return DemingFit{}, &DegenerateVarianceError{Axis: "ground"}
	}
	if syy == 0 {
		return DemingFit{}, &DegenerateVarianceError{Axis: "satellite"}
	}

	// Closed form with delta = Var(satellite error)/Var(ground error) = 1/lambda.
	// Zero covariance leaves the slope undefined; report a flat line at the
	// satellite mean rather than failing the whole group.
	var slope float64
	if sxy != 0 {
		delta := 1 / lambda
		d := syy - delta*sxx
		slope = (d + math.Sqrt(d*d+4*delta*sxy*sxy)) / (2 * sxy)
	}
	intercept := meanY - slope*meanX

	fit := DemingFit{
		Slope:     slope,
		Intercept: intercept,
		Lambda:    lambda,
		N:         len(pairs),
	}

	predicted := make([]float64, len(x))
	for i, g := range x {
		predicted[i] = fit.Predict(g)
	}
	m := domain.ComputeMetrics(y, predicted)
	fit.R2 = m.R2
	fit.RMSE = m.RMSE

	return fit, nil
}

// Predict maps a ground concentration onto the satellite scale.
func (f DemingFit) Predict(ground float64) float64 {
	return f.Slope*ground + f.Intercept
}

// Calibrate maps a satellite concentration back onto the ground scale by
// inverting the fitted line. A zero slope cannot be inverted; the raw value
// is returned unchanged.
func (f DemingFit) Calibrate(satellite float64) float64 {
	if f.Slope == 0 {
		return satellite
	}
	return (satellite - f.Intercept) / f.Slope
}

// SplitValues extracts the ground (x) and satellite (y) concentration series
// from a pair set.
func SplitValues(pairs []domain.MatchedPair) (ground, satellite []float64) {
	ground = make([]float64, len(pairs))
	satellite = make([]float64, len(pairs))
	for i, p := range pairs {
		ground[i] = p.Ground.Concentration
		satellite[i] = p.Satellite.Concentration
	}
	return ground, satellite
}

// CalibrationGain compares raw against calibrated satellite values on the
// ground scale. Positive improvement means the fitted line reduces RMSE.
type CalibrationGain struct {
	RawRMSE            float64 `json:"raw_rmse"`
	CalibratedRMSE     float64 `json:"calibrated_rmse"`
	RawBias            float64 `json:"raw_bias"`
	CalibratedBias     float64 `json:"calibrated_bias"`
	RMSEImprovementPct float64 `json:"rmse_improvement_pct"`
}

// EvaluateCalibration measures how much the fit improves satellite values as
// estimates of the paired ground truth.
func EvaluateCalibration(fit DemingFit, pairs []domain.MatchedPair) CalibrationGain {
	ground, satellite := SplitValues(pairs)
	calibrated := make([]float64, len(satellite))
	for i, v := range satellite {
		calibrated[i] = fit.Calibrate(v)
	}

	raw := domain.ComputeMetrics(ground, satellite)
	cal := domain.ComputeMetrics(ground, calibrated)

	gain := CalibrationGain{
		RawRMSE:        raw.RMSE,
		CalibratedRMSE: cal.RMSE,
		RawBias:        raw.Bias,
		CalibratedBias: cal.Bias,
	}
	if raw.RMSE > 0 {
		gain.RMSEImprovementPct = (raw.RMSE - cal.RMSE) / raw.RMSE * 100
	}
	return gain
}
