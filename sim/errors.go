package sim

import (
	"fmt"
	"time"
)

// InvariantError marks a broken internal invariant such as a fill that
// fails after the risk engine approved it. It is a defect, never a
// recoverable condition.
type InvariantError struct {
	Date   time.Time
	Symbol string
	Err    error
}

func (e *InvariantError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("invariant violated on %s: %v", e.Date.Format("2006-01-02"), e.Err)
	}
	return fmt.Sprintf("invariant violated on %s for %s: %v", e.Date.Format("2006-01-02"), e.Symbol, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }
