package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closed(net, stake, odds float64) Commitment {
	return Commitment{
		ID:         "c",
		Status:     StatusClosedSettled,
		Stake:      stake,
		EntryPrice: odds,
		EVPct:      0.04,
		GrossPnL:   net,
		NetPnL:     net,
		Result:     ResultFromPnL(net),
	}
}

func TestLedger_ApplyWinAndLoss(t *testing.T) {
	l := NewLedger("s1", 1000)
	now := time.Now()

	before := l.Balance
	require.NoError(t, l.Apply(closed(25, 25, 2.0), now))
	assert.InDelta(t, before+25, l.Balance, 1e-9)

	before = l.Balance
	require.NoError(t, l.Apply(closed(-25, 25, 2.0), now))
	assert.InDelta(t, before-25, l.Balance, 1e-9)

	assert.Equal(t, 1, l.Wins)
	assert.Equal(t, 1, l.Losses)
	assert.Equal(t, 2, l.Settled)
	assert.InDelta(t, 50, l.TotalWagered, 1e-9)
	assert.InDelta(t, 0, l.TotalPnL, 1e-9)
	assert.InDelta(t, 50, l.WinRate(), 1e-9)
	assert.InDelta(t, 0, l.ROIPct(), 1e-9)
	assert.InDelta(t, 1025, l.Peak, 1e-9)
	assert.InDelta(t, 1000, l.Trough, 1e-9)
	assert.InDelta(t, 25.0/1025*100, l.MaxDrawdownPct, 1e-9)
	assert.Equal(t, now, l.UpdatedAt)
}

func TestLedger_PushExcludedFromWinRate(t *testing.T) {
	l := NewLedger("s1", 500)
	require.NoError(t, l.Apply(closed(10, 10, 2.0), time.Now()))
	require.NoError(t, l.Apply(closed(0, 10, 2.0), time.Now()))

	assert.Equal(t, 1, l.Pushes)
	assert.Equal(t, 1, l.Decided())
	assert.InDelta(t, 100, l.WinRate(), 1e-9)
	assert.InDelta(t, 20, l.TotalWagered, 1e-9)
}

func TestLedger_Streaks(t *testing.T) {
	l := NewLedger("s1", 1000)
	for _, net := range []float64{5, 5, 5, -5, -5, 0, -5, 5} {
		require.NoError(t, l.Apply(closed(net, 5, 2.0), time.Now()))
	}
	assert.Equal(t, 3, l.BestStreak)
	assert.Equal(t, -3, l.WorstStreak)
	assert.Equal(t, 1, l.CurrentStreak)
}

func TestLedger_OnlineMeansMatchBatchMeans(t *testing.T) {
	l := NewLedger("s1", 1000)
	stakes := []float64{10, 20, 30, 45}
	odds := []float64{1.9, 2.1, 2.5, 3.0}
	for i := range stakes {
		require.NoError(t, l.Apply(closed(stakes[i], stakes[i], odds[i]), time.Now()))
	}
	assert.InDelta(t, (10+20+30+45)/4.0, l.AvgStake, 1e-9)
	assert.InDelta(t, (1.9+2.1+2.5+3.0)/4, l.AvgOdds, 1e-9)
	assert.InDelta(t, 0.04, l.AvgEV, 1e-9)
	assert.InDelta(t, l.AvgStake, l.AvgWin, 1e-9)
}

func TestLedger_RejectsVoided(t *testing.T) {
	l := NewLedger("s1", 1000)
	c := closed(50, 50, 2)
	c.Status = StatusVoided
	assert.Error(t, l.Apply(c, time.Now()))
	assert.Equal(t, NewLedger("s1", 1000), l)

	c.Status = StatusOpen
	assert.Error(t, l.Apply(c, time.Now()))
}

func TestLedger_PayoffRatioAndDrawdown(t *testing.T) {
	l := NewLedger("s1", 100)
	require.NoError(t, l.Apply(closed(30, 20, 2.5), time.Now()))
	require.NoError(t, l.Apply(closed(-20, 20, 2.5), time.Now()))

	assert.InDelta(t, 1.5, l.PayoffRatio(), 1e-9)
	assert.InDelta(t, 20.0/130*100, l.CurrentDrawdownPct(), 1e-9)
	assert.Equal(t, 0.0, NewLedger("x", 100).PayoffRatio())
}

func TestLedger_TroughResetsOnNewPeak(t *testing.T) {
	l := NewLedger("s1", 1000)
	now := time.Now()

	require.NoError(t, l.Apply(closed(-250, 250, 2.0), now))
	assert.InDelta(t, 25, l.MaxDrawdownPct, 1e-9)

	for range 15 {
		require.NoError(t, l.Apply(closed(50, 50, 2.0), now))
	}
	assert.InDelta(t, 1500, l.Peak, 1e-9)
	assert.InDelta(t, 1500, l.Trough, 1e-9)

	require.NoError(t, l.Apply(closed(-60, 60, 2.0), now))
	assert.InDelta(t, 1440, l.Trough, 1e-9)
	assert.InDelta(t, 4, l.CurrentDrawdownPct(), 1e-9)
	assert.InDelta(t, 25, l.MaxDrawdownPct, 1e-9)
}

func TestResultFromPnL(t *testing.T) {
	assert.Equal(t, ResultWin, ResultFromPnL(0.01))
	assert.Equal(t, ResultLoss, ResultFromPnL(-0.01))
	assert.Equal(t, ResultPush, ResultFromPnL(0))
}

func TestParseCommitmentStatus(t *testing.T) {
	st, err := ParseCommitmentStatus(" closed_stop ")
	require.NoError(t, err)
	assert.Equal(t, StatusClosedStop, st)

	_, err = ParseCommitmentStatus("settled")
	assert.Error(t, err)
}
