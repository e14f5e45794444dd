package strategies

import (
	"context"
	"time"
)

// HoldStrategy never trades.
type HoldStrategy struct{}

func (HoldStrategy) Name() string { return "hold" }

func (HoldStrategy) Decide(ctx context.Context, date time.Time, symbols []string, view View) (map[string]Decision, error) {
	return map[string]Decision{}, nil
}
