package backtest

import (
	"context"
	"fmt"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/rustyeddy/jsetrader/strategies"
	"golang.org/x/sync/errgroup"
)

// SweepRun is one member of a parameter sweep. NewDecider is called once
// per run because providers may keep state between days.
type SweepRun struct {
	Name       string
	Config     Config
	NewDecider func() (strategies.DecisionProvider, error)
}

// Sweep runs isolated backtests in parallel, at most workers at a time
// (workers <= 0 means unbounded). Each run owns its portfolio; prices and
// catalog are shared read-only. Options are applied to every run, so any
// observer passed here must be safe for concurrent use.
//
// Results keep the order of runs. The first failing run cancels the rest.
func Sweep(ctx context.Context, catalog *market.Catalog, prices market.PriceProvider, runs []SweepRun, workers int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(runs))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			if run.NewDecider == nil {
				return fmt.Errorf("sweep %s: no decision provider", run.Name)
			}
			decider, err := run.NewDecider()
			if err != nil {
				return fmt.Errorf("sweep %s: %w", run.Name, err)
			}
			eng, err := NewEngine(run.Config, catalog, prices, decider, opts...)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", run.Name, err)
			}
			res, err := eng.Run(ctx)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", run.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
