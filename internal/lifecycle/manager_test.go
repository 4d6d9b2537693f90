package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybet/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func cryptoManager() *Manager {
	return NewManager(Config{
		Classes: map[domain.AssetClass]ClassConfig{
			domain.AssetCrypto: {
				TargetPct: 0.10, StopPct: 0.05,
				ActivationFraction: 0.5, TrailFraction: 0.6,
				MaxHold: 48 * time.Hour, MaxConcurrent: 2, MinRewardRisk: 1.5,
			},
			domain.AssetSports: {MaxConcurrent: 10},
		},
		CorrelationCap: 2,
		Cooldown:       time.Hour,
	})
}

func cryptoOpp(id string) domain.Opportunity {
	return domain.Opportunity{
		ID: id, MarketID: "m-" + id, OutcomeID: "long", Symbol: "BTC",
		MarketType: domain.MarketMoneyline, AssetClass: domain.AssetCrypto,
		Direction: domain.Long, Price: 100,
	}
}

func betOpp(price float64) domain.Opportunity {
	return domain.Opportunity{
		ID: "evt-1", MarketID: "evt-1:h2h", EventID: "evt-1", OutcomeID: "home", Side: domain.SideHome,
		MarketType: domain.MarketMoneyline, AssetClass: domain.AssetSports, Price: price,
	}
}

func TestOpen_ResolvesLevelsFromClass(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{EVPct: 0.03}, 50, t0)

	assert.Equal(t, domain.StatusOpen, c.Status)
	assert.NotEmpty(t, c.ID)
	assert.InDelta(t, 110, c.Target, 1e-9)
	assert.InDelta(t, 95, c.Stop, 1e-9)
	assert.Equal(t, 48*time.Hour, c.MaxHold)
	assert.Equal(t, 100.0, c.HighestPrice)
	assert.Equal(t, 100.0, c.LowestPrice)
	assert.Equal(t, 0.03, c.EVPct)
}

func TestOpen_ShortMirrorsLevels(t *testing.T) {
	opp := cryptoOpp("o1")
	opp.Direction = domain.Short
	c := cryptoManager().Open("s1", opp, domain.Edge{}, 50, t0)
	assert.InDelta(t, 90, c.Target, 1e-9)
	assert.InDelta(t, 105, c.Stop, 1e-9)
}

func TestOnTick_TrailingStop(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 100, t0)

	assert.False(t, m.OnTick(&c, 106, t0.Add(time.Minute)))
	assert.True(t, c.TrailArmed)
	assert.InDelta(t, 102.82, c.TrailFloor, 1e-9)

	require.True(t, m.OnTick(&c, 102, t0.Add(2*time.Minute)))
	assert.Equal(t, domain.StatusClosedTrail, c.Status)
	assert.Equal(t, 102.0, c.ExitPrice)
	assert.InDelta(t, 2, c.NetPnL, 1e-9)
	assert.Equal(t, domain.ResultWin, c.Result)
}

func TestOnTick_TrailNotArmedBelowActivation(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 100, t0)

	assert.False(t, m.OnTick(&c, 104, t0.Add(time.Minute)))
	assert.False(t, c.TrailArmed)
	assert.False(t, m.OnTick(&c, 100.5, t0.Add(2*time.Minute)))
	assert.Equal(t, domain.StatusOpen, c.Status)
}

func TestOnTick_TrailFloorOnlyRatchetsUp(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 100, t0)

	m.OnTick(&c, 107, t0.Add(time.Minute))
	floor := c.TrailFloor
	m.OnTick(&c, 106, t0.Add(2*time.Minute))
	assert.Equal(t, floor, c.TrailFloor)
	m.OnTick(&c, 108, t0.Add(3*time.Minute))
	assert.Greater(t, c.TrailFloor, floor)
}

func TestOnTick_TargetStopTimeout(t *testing.T) {
	m := cryptoManager()

	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 100, t0)
	require.True(t, m.OnTick(&c, 111, t0.Add(time.Minute)))
	assert.Equal(t, domain.StatusClosedTarget, c.Status)
	assert.InDelta(t, 11, c.NetPnL, 1e-9)

	c = m.Open("s1", cryptoOpp("o2"), domain.Edge{}, 100, t0)
	require.True(t, m.OnTick(&c, 94, t0.Add(time.Minute)))
	assert.Equal(t, domain.StatusClosedStop, c.Status)
	assert.InDelta(t, -6, c.NetPnL, 1e-9)
	assert.Equal(t, domain.ResultLoss, c.Result)

	c = m.Open("s1", cryptoOpp("o3"), domain.Edge{}, 100, t0)
	assert.False(t, m.OnTick(&c, 101, t0.Add(48*time.Hour)))
	require.True(t, m.OnTick(&c, 101, t0.Add(48*time.Hour+time.Second)))
	assert.Equal(t, domain.StatusClosedTimeout, c.Status)
}

func TestOnTick_ShortPosition(t *testing.T) {
	m := cryptoManager()
	opp := cryptoOpp("o1")
	opp.Direction = domain.Short
	c := m.Open("s1", opp, domain.Edge{}, 100, t0)

	require.True(t, m.OnTick(&c, 89, t0.Add(time.Minute)))
	assert.Equal(t, domain.StatusClosedTarget, c.Status)
	assert.InDelta(t, 11, c.NetPnL, 1e-9)
}

func TestOnTick_IgnoresBetsAndClosed(t *testing.T) {
	m := cryptoManager()
	bet := m.Open("s1", betOpp(2.0), domain.Edge{}, 25, t0)
	assert.False(t, m.OnTick(&bet, 5, t0.Add(time.Minute)))
	assert.Equal(t, domain.StatusOpen, bet.Status)

	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 100, t0)
	require.True(t, m.OnTick(&c, 120, t0.Add(time.Minute)))
	exit := *c.ExitTime
	assert.False(t, m.OnTick(&c, 50, t0.Add(time.Hour)))
	assert.Equal(t, exit, *c.ExitTime)
}

func TestSettle_FlatBetWinAndLoss(t *testing.T) {
	m := cryptoManager()

	win := m.Open("s1", betOpp(2.0), domain.Edge{}, 25, t0)
	require.NoError(t, m.Settle(&win, domain.ResultWin, 0, t0.Add(time.Hour)))
	assert.Equal(t, 25.0, win.NetPnL)
	assert.Equal(t, domain.ResultWin, win.Result)
	assert.Equal(t, domain.StatusClosedSettled, win.Status)

	loss := m.Open("s1", betOpp(2.0), domain.Edge{}, 25, t0)
	require.NoError(t, m.Settle(&loss, domain.ResultLoss, 0, t0.Add(time.Hour)))
	assert.Equal(t, -25.0, loss.NetPnL)

	push := m.Open("s1", betOpp(2.0), domain.Edge{}, 25, t0)
	require.NoError(t, m.Settle(&push, domain.ResultPush, 0, t0.Add(time.Hour)))
	assert.Equal(t, 0.0, push.NetPnL)
	assert.Equal(t, domain.ResultPush, push.Result)
}

func TestSettle_IsIdempotent(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", betOpp(2.5), domain.Edge{}, 10, t0)
	require.NoError(t, m.Settle(&c, domain.ResultWin, 0, t0.Add(time.Hour)))
	before := c

	err := m.Settle(&c, domain.ResultLoss, 0, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
	assert.Equal(t, before, c)
}

func TestSettle_PricePositionAtFinalPrice(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 200, t0)
	require.NoError(t, m.Settle(&c, domain.ResultNone, 103, t0.Add(time.Hour)))
	assert.Equal(t, domain.StatusClosedSettled, c.Status)
	assert.InDelta(t, 6, c.NetPnL, 1e-9)

	c = m.Open("s1", cryptoOpp("o2"), domain.Edge{}, 200, t0)
	assert.ErrorIs(t, m.Settle(&c, domain.ResultNone, 0, t0), domain.ErrDataUnavailable)
}

func TestVoid_NoPnLAndExitAfterEntry(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", betOpp(2.0), domain.Edge{}, 25, t0)
	require.NoError(t, m.Void(&c, "no data", t0))

	assert.Equal(t, domain.StatusVoided, c.Status)
	assert.Equal(t, domain.ResultVoid, c.Result)
	assert.Equal(t, 0.0, c.NetPnL)
	assert.True(t, c.ExitTime.After(c.EntryTime))
}

func TestCloseManual(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("o1"), domain.Edge{}, 100, t0)
	m.OnTick(&c, 103, t0.Add(time.Minute))

	require.NoError(t, m.CloseManual(&c, 0, t0.Add(2*time.Minute)))
	assert.Equal(t, domain.StatusClosedManual, c.Status)
	assert.Equal(t, 103.0, c.ExitPrice)
	assert.ErrorIs(t, m.CloseManual(&c, 100, t0.Add(3*time.Minute)), domain.ErrAlreadyClosed)
}

func TestFees_AppliedOnBothSides(t *testing.T) {
	m := NewManager(Config{Classes: map[domain.AssetClass]ClassConfig{
		domain.AssetEquity: {TargetPct: 0.1, StopPct: 0.05, Fees: FeeModel{Kind: FeeFlat, PerSide: 1}},
	}})
	opp := cryptoOpp("o1")
	opp.AssetClass = domain.AssetEquity
	c := m.Open("s1", opp, domain.Edge{}, 100, t0)
	require.True(t, m.OnTick(&c, 112, t0.Add(time.Minute)))
	assert.InDelta(t, 12, c.GrossPnL, 1e-9)
	assert.Equal(t, 2.0, c.Fees)
	assert.InDelta(t, 10, c.NetPnL, 1e-9)
}

func TestFeeModel_RoundTrip(t *testing.T) {
	assert.True(t, FeeModel{}.RoundTrip(100, 110).IsZero())
	assert.Equal(t, "0.21", FeeModel{Kind: FeeProportional, Rate: 0.001}.RoundTrip(100, 110).StringFixed(2))
	assert.Equal(t, "2.00", FeeModel{Kind: FeeFloor, Rate: 0.001, MinPerSide: 1}.RoundTrip(100, 110).StringFixed(2))

	_, err := ParseFeeKind("tiered")
	assert.Error(t, err)
	k, err := ParseFeeKind("")
	require.NoError(t, err)
	assert.Equal(t, FeeNone, k)
}

func TestCheckEntry_GuardsInOrder(t *testing.T) {
	m := cryptoManager()
	now := t0.Add(10 * time.Hour)

	t.Run("class cap", func(t *testing.T) {
		open := []domain.Commitment{
			m.Open("s1", cryptoOpp("a"), domain.Edge{}, 10, t0),
			m.Open("s1", cryptoOpp("b"), domain.Edge{}, 10, t0),
		}
		err := m.CheckEntry(NewBook(open, nil), cryptoOpp("c"), now)
		assert.ErrorIs(t, err, domain.ErrGuardRejected)
		assert.Contains(t, err.Error(), "concurrency")
	})

	t.Run("correlation cap", func(t *testing.T) {
		b1, b2 := betOpp(2), betOpp(2)
		b1.ID, b2.ID = "e1", "e2"
		b1.CorrelationTag, b2.CorrelationTag = "nba-2025-06-01", "nba-2025-06-01"
		book := NewBook([]domain.Commitment{
			m.Open("s1", b1, domain.Edge{}, 10, t0),
			m.Open("s1", b2, domain.Edge{}, 10, t0),
		}, nil)
		next := betOpp(2)
		next.CorrelationTag = "nba-2025-06-01"
		err := m.CheckEntry(book, next, now)
		assert.ErrorIs(t, err, domain.ErrGuardRejected)
		assert.Contains(t, err.Error(), "correlation")

		next.CorrelationTag = "nhl"
		assert.NoError(t, m.CheckEntry(book, next, now))
	})

	t.Run("cooldown after stop", func(t *testing.T) {
		stopped := m.Open("s1", cryptoOpp("a"), domain.Edge{}, 10, t0)
		require.True(t, m.OnTick(&stopped, 90, now.Add(-30*time.Minute)))
		require.Equal(t, domain.StatusClosedStop, stopped.Status)

		book := NewBook(nil, []domain.Commitment{stopped})
		err := m.CheckEntry(book, cryptoOpp("b"), now)
		assert.ErrorIs(t, err, domain.ErrGuardRejected)
		assert.Contains(t, err.Error(), "cooldown")

		assert.NoError(t, m.CheckEntry(book, cryptoOpp("b"), now.Add(time.Hour)))
	})

	t.Run("reward risk", func(t *testing.T) {
		opp := cryptoOpp("x")
		opp.Target, opp.Stop = 104, 95
		err := m.CheckEntry(NewBook(nil, nil), opp, now)
		assert.ErrorIs(t, err, domain.ErrGuardRejected)
		assert.Contains(t, err.Error(), "reward:risk")

		opp.Target = 110
		assert.NoError(t, m.CheckEntry(NewBook(nil, nil), opp, now))
	})
}

func TestBook_TracksOpenAndStops(t *testing.T) {
	m := cryptoManager()
	c := m.Open("s1", cryptoOpp("a"), domain.Edge{}, 10, t0)
	b := NewBook(nil, nil)
	b.Add(c)
	assert.Equal(t, 1, b.Open())
	assert.True(t, b.Has("a", "long"))

	require.True(t, m.OnTick(&c, 90, t0.Add(time.Minute)))
	b.Remove(c)
	assert.Equal(t, 0, b.Open())
	assert.ErrorIs(t, m.CheckEntry(b, cryptoOpp("b"), t0.Add(10*time.Minute)), domain.ErrGuardRejected)
}
