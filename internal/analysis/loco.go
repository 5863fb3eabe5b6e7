package analysis

import (
	"errors"
	"sort"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// FitFunc trains a calibration line on a pair set. LOCOValidate accepts it as
// a parameter so alternative estimators can be cross-validated with the same
// partitioning.
type FitFunc func(pairs []domain.MatchedPair) (DemingFit, error)

// FoldStatus labels how a held-out fold resolved.
const (
	FoldValidated        = "validated"
	FoldInsufficientData = "insufficient_data"
	FoldDegenerate       = "degenerate"
)

// FoldResult is the outcome of holding out one city: a fit trained on every
// other city, evaluated on the held-out pairs.
type FoldResult struct {
	City       string           `json:"city"`
	Status     string           `json:"status"`
	TrainN     int              `json:"train_n"`
	TestN      int              `json:"test_n"`
	Slope      float64          `json:"slope,omitempty"`
	Intercept  float64          `json:"intercept,omitempty"`
	Metrics    domain.MetricSet `json:"metrics,omitempty"`
	Gain       CalibrationGain  `json:"calibration_gain,omitempty"`
	FailReason string           `json:"fail_reason,omitempty"`
}

// LOCOResult aggregates leave-one-city-out cross-validation.
type LOCOResult struct {
	Folds []FoldResult `json:"folds"`
	// Aggregate pools the held-out calibrated predictions from validated
	// folds, so its N is the total pair count across those folds.
	Aggregate     domain.MetricSet `json:"aggregate"`
	PooledGain    CalibrationGain  `json:"pooled_gain"`
	CitiesHeldOut int              `json:"cities_held_out"`
}

// LOCOValidate runs leave-one-city-out cross-validation: for each city, fit
// on every other city's pairs and score the held-out city's pairs on the
// ground scale. A fold whose training fit fails is recorded with its failure
// status instead of aborting the whole validation.
//
// Returns *InsufficientPartitionsError when pairs span fewer than two cities.
func LOCOValidate(pairs []domain.MatchedPair, fit FitFunc) (LOCOResult, error) {
	byCity := make(map[string][]domain.MatchedPair)
	for _, p := range pairs {
		byCity[p.City] = append(byCity[p.City], p)
	}
	if len(byCity) < 2 {
		return LOCOResult{}, &InsufficientPartitionsError{Cities: len(byCity)}
	}

	cities := make([]string, 0, len(byCity))
	for c := range byCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	res := LOCOResult{CitiesHeldOut: len(cities)}
	var pooledGround, pooledRaw, pooledCal []float64

	for _, city := range cities {
		test := byCity[city]
		train := make([]domain.MatchedPair, 0, len(pairs)-len(test))
		for _, other := range cities {
			if other != city {
				train = append(train, byCity[other]...)
			}
		}

		fold := FoldResult{City: city, TrainN: len(train), TestN: len(test)}

		f, err := fit(train)
		if err != nil {
			fold.Status = foldStatusFor(err)
			fold.FailReason = err.Error()
			res.Folds = append(res.Folds, fold)
			continue
		}

		fold.Status = FoldValidated
		fold.Slope = f.Slope
		fold.Intercept = f.Intercept
		fold.Gain = EvaluateCalibration(f, test)

		ground, satellite := SplitValues(test)
		calibrated := make([]float64, len(satellite))
		for i, v := range satellite {
			calibrated[i] = f.Calibrate(v)
		}
		fold.Metrics = domain.ComputeMetrics(ground, calibrated)
		res.Folds = append(res.Folds, fold)

		pooledGround = append(pooledGround, ground...)
		pooledRaw = append(pooledRaw, satellite...)
		pooledCal = append(pooledCal, calibrated...)
	}

	if len(pooledGround) > 0 {
		res.Aggregate = domain.ComputeMetrics(pooledGround, pooledCal)
		raw := domain.ComputeMetrics(pooledGround, pooledRaw)
		res.PooledGain = CalibrationGain{
			RawRMSE:        raw.RMSE,
			CalibratedRMSE: res.Aggregate.RMSE,
			RawBias:        raw.Bias,
			CalibratedBias: res.Aggregate.Bias,
		}
		if raw.RMSE > 0 {
			res.PooledGain.RMSEImprovementPct = (raw.RMSE - res.Aggregate.RMSE) / raw.RMSE * 100
		}
	}

	return res, nil
}

func foldStatusFor(err error) string {
	var insufficient *InsufficientDataError
	if errors.As(err, &insufficient) {
		return FoldInsufficientData
	}
	return FoldDegenerate
}
