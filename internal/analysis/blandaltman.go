package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// loaFactor is the 97.5th normal quantile; mean ± 1.96·SD covers 95% of
// differences under the normality assumption standard in agreement analysis.
const loaFactor = 1.96

// Agreement interpretation labels, ordered best to worst.
const (
	AgreementExcellent = "Excellent"
	AgreementGood      = "Good"
	AgreementModerate  = "Moderate"
	AgreementPoor      = "Poor"
)

// DefaultBiasThresholds holds the per-pollutant absolute mean-bias level
// (in the pollutant's reporting unit) above which agreement is "Poor".
var DefaultBiasThresholds = map[domain.Pollutant]float64{
	domain.PollutantNO2:  5,  // ppb
	domain.PollutantO3:   10, // ppb
	domain.PollutantHCHO: 2,  // ppb
	domain.PollutantPM25: 10, // µg/m³
}

// AgreementResult holds Bland-Altman statistics for one pair set.
type AgreementResult struct {
	MeanBias       float64   `json:"mean_bias"`
	SDDifferences  float64   `json:"sd_of_differences"`
	LoALower       float64   `json:"loa_lower"`
	LoAUpper       float64   `json:"loa_upper"`
	Interpretation string    `json:"interpretation"`
	PropBiasSlope  float64   `json:"proportional_bias_slope"`
	PropBiasR      float64   `json:"proportional_bias_r"`
	N              int       `json:"n"`
	Differences    []float64 `json:"-"`
	PairAverages   []float64 `json:"-"`
}

// BlandAltman computes agreement statistics between satellite and ground
// values: per-pair differences (satellite - ground), mean bias, the 95%
// limits of agreement, and a proportional-bias regression of differences on
// pair averages. biasThreshold is the pollutant-specific reference level for
// the interpretation label.
func BlandAltman(pairs []domain.MatchedPair, biasThreshold float64) (AgreementResult, error) {
	if len(pairs) < 3 {
		return AgreementResult{}, &InsufficientDataError{Op: "bland-altman", N: len(pairs), Min: 3}
	}

	diffs := make([]float64, len(pairs))
	avgs := make([]float64, len(pairs))
	for i, p := range pairs {
		diffs[i] = p.Satellite.Concentration - p.Ground.Concentration
		avgs[i] = (p.Satellite.Concentration + p.Ground.Concentration) / 2
	}

	meanBias, sd := stat.MeanStdDev(diffs, nil)

	res := AgreementResult{
		MeanBias:       meanBias,
		SDDifferences:  sd,
		LoALower:       meanBias - loaFactor*sd,
		LoAUpper:       meanBias + loaFactor*sd,
		Interpretation: interpretBias(meanBias, biasThreshold),
		N:              len(pairs),
		Differences:    diffs,
		PairAverages:   avgs,
	}

	// Proportional bias: does the disagreement grow with concentration?
	if stat.Variance(avgs, nil) > 0 {
		_, res.PropBiasSlope = stat.LinearRegression(avgs, diffs, nil, false)
		if r := stat.Correlation(avgs, diffs, nil); !math.IsNaN(r) {
			res.PropBiasR = r
		}
	}

	return res, nil
}

// interpretBias grades absolute mean bias against the pollutant threshold:
// within a quarter of it Excellent, half Good, at it Moderate, beyond Poor.
func interpretBias(meanBias, threshold float64) string {
	if threshold <= 0 {
		return AgreementPoor
	}
	abs := math.Abs(meanBias)
	switch {
	case abs <= threshold/4:
		return AgreementExcellent
	case abs <= threshold/2:
		return AgreementGood
	case abs <= threshold:
		return AgreementModerate
	default:
		return AgreementPoor
	}
}
