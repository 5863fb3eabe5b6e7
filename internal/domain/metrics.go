package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MetricSet is a recomputed-never-mutated bundle of agreement metrics between
// an observed and a predicted (or paired) series.
type MetricSet struct {
	R2          float64 `json:"r2"`
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	Bias        float64 `json:"bias"`
	SpearmanRho float64 `json:"spearman_rho"`
	N           int     `json:"n"`
}

// ComputeMetrics evaluates predicted against observed. Bias is the mean of
// predicted minus observed. R2 is the coefficient of determination of
// predicted as an estimate of observed; it can be negative when predictions
// are worse than the observed mean. Returns a zero-valued set when the
// series are empty or of unequal length.
func ComputeMetrics(observed, predicted []float64) MetricSet {
	n := len(observed)
	if n == 0 || len(predicted) != n {
		return MetricSet{}
	}

	var ssRes, absSum, biasSum float64
	for i := range observed {
		d := predicted[i] - observed[i]
		ssRes += d * d
		absSum += math.Abs(d)
		biasSum += d
	}

	obsMean := stat.Mean(observed, nil)
	var ssTot float64
	for _, v := range observed {
		d := v - obsMean
		ssTot += d * d
	}

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return MetricSet{
		R2:          r2,
		RMSE:        math.Sqrt(ssRes / float64(n)),
		MAE:         absSum / float64(n),
		Bias:        biasSum / float64(n),
		SpearmanRho: SpearmanRho(observed, predicted),
		N:           n,
	}
}

// SpearmanRho computes the rank correlation between two series, with average
// ranks for ties. Returns 0 when either series has no rank variance.
func SpearmanRho(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	rx := ranks(x)
	ry := ranks(y)
	rho := stat.Correlation(rx, ry, nil)
	if math.IsNaN(rho) {
		return 0
	}
	return rho
}

// ranks assigns 1-based ranks, averaging over ties.
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Average rank across the tie group [i, j].
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}
