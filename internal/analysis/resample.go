package analysis

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/cleanskies/tempo-validation-service/internal/domain"
)

// significanceLevel is the permutation-test cutoff for "significant".
const significanceLevel = 0.05

// seedStride decorrelates per-iteration PRNG streams derived from one base
// seed (64-bit golden ratio, the SplitMix64 increment).
const seedStride uint64 = 0x9E3779B97F4A7C15

// Statistic computes one scalar over a pair set, e.g. R² or RMSE.
type Statistic func(pairs []domain.MatchedPair) float64

// ConfidenceInterval is an empirical percentile interval for a statistic.
type ConfidenceInterval struct {
	PointEstimate   float64 `json:"point_estimate"`
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Iterations      int     `json:"iterations,omitempty"`
	Method          string  `json:"method"`
}

// PermutationResult is the outcome of a permutation significance test.
type PermutationResult struct {
	Observed    float64 `json:"observed_statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Iterations  int     `json:"iterations"`
	NullMean    float64 `json:"null_mean"`
	NullSD      float64 `json:"null_sd"`
}

// Resampler runs bootstrap and permutation procedures. Iterations are
// independent, so they fan out over Workers goroutines; each iteration owns
// a PRNG derived from (seed, iteration index), which makes results identical
// for any worker count.
type Resampler struct {
	Iterations int
	Workers    int
}

// NewResampler returns a Resampler with the given iteration count and one
// worker per CPU.
func NewResampler(iterations int) Resampler {
	return Resampler{Iterations: iterations, Workers: runtime.GOMAXPROCS(0)}
}

// BootstrapCI resamples pairs with replacement and returns the empirical
// percentile interval of statFn at the given confidence level. Deterministic
// for a fixed seed; read-only over pairs.
func (r Resampler) BootstrapCI(ctx context.Context, pairs []domain.MatchedPair, statFn Statistic, confidence float64, seed int64) (ConfidenceInterval, error) {
	if len(pairs) < 2 {
		return ConfidenceInterval{}, &InsufficientDataError{Op: "bootstrap", N: len(pairs), Min: 2}
	}
	if confidence <= 0 || confidence >= 1 {
		return ConfidenceInterval{}, fmt.Errorf("bootstrap: confidence %v outside (0,1)", confidence)
	}

	values := make([]float64, r.Iterations)
	err := r.forEachIteration(ctx, seed, func(i int, rng *rand.Rand) {
		resampled := make([]domain.MatchedPair, len(pairs))
		for j := range resampled {
			resampled[j] = pairs[rng.Intn(len(pairs))]
		}
		values[i] = statFn(resampled)
	})
	if err != nil {
		return ConfidenceInterval{}, err
	}

	sort.Float64s(values)
	alpha := (1 - confidence) / 2 * 100
	lower, err := mstats.Percentile(values, alpha)
	if err != nil {
		return ConfidenceInterval{}, fmt.Errorf("bootstrap percentile: %w", err)
	}
	upper, err := mstats.Percentile(values, 100-alpha)
	if err != nil {
		return ConfidenceInterval{}, fmt.Errorf("bootstrap percentile: %w", err)
	}

	return ConfidenceInterval{
		PointEstimate:   statFn(pairs),
		Lower:           lower,
		Upper:           upper,
		ConfidenceLevel: confidence,
		Iterations:      r.Iterations,
		Method:          "bootstrap_percentile",
	}, nil
}

// PermutationTest measures whether the observed satellite/ground association
// could arise by chance. The statistic is the squared Pearson correlation;
// the null distribution comes from shuffling the ground values across pairs,
// breaking the true pairing. Deterministic for a fixed seed.
func (r Resampler) PermutationTest(ctx context.Context, pairs []domain.MatchedPair, seed int64) (PermutationResult, error) {
	if len(pairs) < 3 {
		return PermutationResult{}, &InsufficientDataError{Op: "permutation test", N: len(pairs), Min: 3}
	}

	ground, satellite := SplitValues(pairs)
	observed := squaredCorrelation(ground, satellite)
	if math.IsNaN(observed) {
		return PermutationResult{}, &DegenerateVarianceError{Axis: "ground"}
	}

	null := make([]float64, r.Iterations)
	err := r.forEachIteration(ctx, seed, func(i int, rng *rand.Rand) {
		shuffled := make([]float64, len(ground))
		for j, k := range rng.Perm(len(ground)) {
			shuffled[j] = ground[k]
		}
		null[i] = squaredCorrelation(shuffled, satellite)
	})
	if err != nil {
		return PermutationResult{}, err
	}

	exceed := 0
	for _, v := range null {
		if v >= observed {
			exceed++
		}
	}
	p := float64(exceed) / float64(r.Iterations)

	nullMean, nullSD := stat.MeanStdDev(null, nil)
	return PermutationResult{
		Observed:    observed,
		PValue:      p,
		Significant: p < significanceLevel,
		Iterations:  r.Iterations,
		NullMean:    nullMean,
		NullSD:      nullSD,
	}, nil
}

// forEachIteration runs fn for every iteration index across the worker pool.
// Each call receives its own PRNG so no global random state is touched.
func (r Resampler) forEachIteration(ctx context.Context, seed int64, fn func(i int, rng *rand.Rand)) error {
	if r.Iterations < 1 {
		return fmt.Errorf("resampler: iterations must be positive, got %d", r.Iterations)
	}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < r.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			fn(i, rand.New(rand.NewSource(seed+int64(uint64(i)*seedStride))))
			return nil
		})
	}
	return g.Wait()
}

func squaredCorrelation(x, y []float64) float64 {
	r := stat.Correlation(x, y, nil)
	return r * r
}

// StatR2 is the squared Pearson correlation between satellite and ground
// values; 0 when undefined.
func StatR2(pairs []domain.MatchedPair) float64 {
	ground, satellite := SplitValues(pairs)
	r2 := squaredCorrelation(ground, satellite)
	if math.IsNaN(r2) {
		return 0
	}
	return r2
}

// StatRMSE is the root-mean-square difference between satellite and ground
// values.
func StatRMSE(pairs []domain.MatchedPair) float64 {
	var sum float64
	for _, p := range pairs {
		d := p.Satellite.Concentration - p.Ground.Concentration
		sum += d * d
	}
	if len(pairs) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(pairs)))
}

// FisherSpearmanCI is the Fisher-z interval for a Spearman rank correlation,
// used for groups too small for a stable bootstrap. Requires n ≥ 4.
func FisherSpearmanCI(rho float64, n int, confidence float64) (ConfidenceInterval, error) {
	if n < 4 {
		return ConfidenceInterval{}, &InsufficientDataError{Op: "fisher interval", N: n, Min: 4}
	}
	if rho <= -1 || rho >= 1 {
		// atanh is unbounded at ±1; the interval collapses to the point.
		return ConfidenceInterval{PointEstimate: rho, Lower: rho, Upper: rho, ConfidenceLevel: confidence, Method: "fisher_z"}, nil
	}

	z := 0.5 * math.Log((1+rho)/(1-rho))
	dz := normalQuantile(confidence) / math.Sqrt(float64(n-3))
	return ConfidenceInterval{
		PointEstimate:   rho,
		Lower:           math.Tanh(z - dz),
		Upper:           math.Tanh(z + dz),
		ConfidenceLevel: confidence,
		Method:          "fisher_z",
	}, nil
}

// normalQuantile returns the two-sided standard-normal critical value for
// the given confidence level (1.96 for 95%).
func normalQuantile(confidence float64) float64 {
	return math.Sqrt2 * math.Erfinv(confidence)
}
