package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cleanskies/tempo-validation-service/internal/analysis"
	"github.com/cleanskies/tempo-validation-service/internal/match"
)

// Sensitivity grid axes. The headline 20 km / 60 min setting sits in the
// middle so each neighbor differs in one step.
var (
	sensitivityRadiiKM    = []float64{10, 20, 30}
	sensitivityWindowsMin = []float64{60, 180, 360}
)

// sensitivityGrid re-matches the raw observations at every radius/window
// combination and scores the resulting pair sets, so the report shows how
// much the headline numbers depend on the matching parameters.
func (b *Builder) sensitivityGrid(ctx context.Context, in BuildInput) ([]SensitivityCell, error) {
	start := time.Now()
	defer func() {
		b.metrics.SensitivityDuration.Observe(time.Since(start).Seconds())
	}()

	cells := make([]SensitivityCell, len(sensitivityRadiiKM)*len(sensitivityWindowsMin))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	for ri, radius := range sensitivityRadiiKM {
		for wi, window := range sensitivityWindowsMin {
			idx := ri*len(sensitivityWindowsMin) + wi
			cfg := match.Config{
				RadiusKM:      radius,
				WindowMinutes: window,
				Quality:       b.opts.Match.Quality,
			}
			g.Go(func() error {
				pairs, diag := match.Match(in.Satellite, in.Ground, cfg)
				cell := SensitivityCell{
					RadiusKM:      cfg.RadiusKM,
					WindowMinutes: cfg.WindowMinutes,
					Pairs:         len(pairs),
					MatchRate:     diag.MatchRate,
				}
				if len(pairs) >= 2 {
					cell.R2 = analysis.StatR2(pairs)
					cell.RMSE = analysis.StatRMSE(pairs)
				}
				cells[idx] = cell
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cells, nil
}
