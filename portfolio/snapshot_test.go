package portfolio

import (
	"testing"
	"time"

	"github.com/rustyeddy/jsetrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsDetachedCopy(t *testing.T) {
	t.Parallel()

	s := newState(t, "10000")
	_, err := s.ApplyFill("SBK", 10, d("100"))
	require.NoError(t, err)

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	prices := Prices{"SBK": d("110"), "NPN": d("50")}
	snap, err := s.Snapshot(day, prices, []string{"SECTOR_LIMIT", "POSITION_LIMIT", "SECTOR_LIMIT", ""})
	require.NoError(t, err)

	assert.True(t, snap.Equity.Equal(d("10100")))
	assert.Equal(t, []string{"POSITION_LIMIT", "SECTOR_LIMIT"}, snap.TriggeredLimits)
	assert.Len(t, snap.Marks, 1, "only held symbols are marked")
	assert.True(t, snap.SectorExposure[market.SectorFinancials].GreaterThan(d("0.1")))
	require.NoError(t, snap.CheckIdentity())

	_, err = s.ApplyFill("SBK", -10, d("110"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Positions[0].Quantity, "snapshot unaffected by later fills")
}

func TestSnapshotEmptyLimits(t *testing.T) {
	t.Parallel()

	s := newState(t, "10000")
	snap, err := s.Snapshot(time.Now(), Prices{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, snap.TriggeredLimits)
	assert.Empty(t, snap.TriggeredLimits)
	assert.True(t, snap.Drawdown().IsZero())
}

func TestCheckIdentityDetectsLeak(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		Cash:      d("100"),
		Equity:    d("250"),
		Positions: []Position{{Symbol: "SBK", Quantity: 1, AverageCost: d("100")}},
		Marks:     Prices{"SBK": d("100")},
	}
	assert.Error(t, snap.CheckIdentity())

	snap.Equity = d("200")
	assert.NoError(t, snap.CheckIdentity())

	snap.Positions[0].Quantity = 0
	assert.Error(t, snap.CheckIdentity())
}

func TestSnapshotDrawdown(t *testing.T) {
	t.Parallel()

	snap := Snapshot{PeakEquity: d("1000"), Equity: d("900")}
	assert.True(t, snap.Drawdown().Equal(d("0.1")))
}
