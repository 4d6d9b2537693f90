package engine_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybet/internal/adapters/storage"
	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/application/scanner"
	"github.com/alejandrodnm/polybet/internal/cache"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/lifecycle"
	"github.com/alejandrodnm/polybet/internal/ports"
	"github.com/alejandrodnm/polybet/internal/registry"
	"github.com/alejandrodnm/polybet/internal/sizing"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- mocks ---

type mockScanner struct {
	cands []domain.Candidate
	err   error
}

func (m *mockScanner) Scan(_ context.Context) ([]domain.Candidate, scanner.Stats, error) {
	return m.cands, scanner.Stats{Candidates: len(m.cands)}, m.err
}

type mockPrices struct {
	prices map[string]float64
	err    error
}

func (m *mockPrices) FetchPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := m.prices[s]; ok {
			out[s] = p
		}
	}
	return out, m.err
}

type mockOutcomes struct {
	records []domain.SettlementRecord
	err     error
}

func (m *mockOutcomes) FetchOutcomes(_ context.Context, _, _ []string) ([]domain.SettlementRecord, error) {
	return m.records, m.err
}

type mockSignals struct {
	signals map[string]domain.SizingSignal
	calls   atomic.Int32
}

func (m *mockSignals) LatestSignal(_ context.Context, key string) (domain.SizingSignal, bool, error) {
	m.calls.Add(1)
	s, ok := m.signals[key]
	return s, ok, nil
}

// failingStore falla en InsertCommitment.
type failingStore struct {
	ports.Storage
}

func (f failingStore) InsertCommitment(context.Context, domain.Commitment) error {
	return errors.New("disk full")
}

// cancellingStore cancela el contexto después del primer insert correcto.
type cancellingStore struct {
	ports.Storage
	cancel context.CancelFunc
}

func (c cancellingStore) InsertCommitment(ctx context.Context, cm domain.Commitment) error {
	err := c.Storage.InsertCommitment(ctx, cm)
	c.cancel()
	return err
}

// --- helpers ---

type fixture struct {
	eng      *engine.Engine
	db       *storage.SQLiteStorage
	reg      *registry.Registry
	scanner  *mockScanner
	prices   *mockPrices
	outcomes *mockOutcomes
	signals  *mockSignals
	now      time.Time
}

func (f *fixture) setNow(t time.Time) { f.now = t }

func flatStrategy(id string) domain.Strategy {
	return domain.Strategy{
		ID:              id,
		Name:            "Strategy " + id,
		InitialBankroll: 1000,
		Status:          domain.StrategyActive,
		Sizing:          domain.SizingSpec{Kind: domain.SizingFlat, FlatStake: 25},
	}
}

func newFixture(t *testing.T, strategies ...domain.Strategy) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil, strategies...)
}

func newFixtureWithStore(t *testing.T, wrap func(ports.Storage) ports.Storage, strategies ...domain.Strategy) *fixture {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SeedStrategies(context.Background(), strategies))

	reg, err := registry.New(strategies)
	require.NoError(t, err)

	var store ports.Storage = db
	if wrap != nil {
		store = wrap(db)
	}

	f := &fixture{
		db:       db,
		reg:      reg,
		scanner:  &mockScanner{},
		prices:   &mockPrices{prices: map[string]float64{}},
		outcomes: &mockOutcomes{},
		signals:  &mockSignals{signals: map[string]domain.SizingSignal{}},
		now:      t0,
	}
	eng, err := engine.New(engine.Config{Workers: 4}, engine.Deps{
		Scanner:   f.scanner,
		Prices:    f.prices,
		Outcomes:  f.outcomes,
		Signals:   f.signals,
		Store:     store,
		Registry:  reg,
		Lifecycle: lifecycle.NewManager(lifecycle.DefaultConfig()),
		Sizing:    sizing.DefaultDefaults(),
		Rules:     registry.DefaultRules(),
		Windows:   cache.NewPriceWindow(cache.DefaultWindowSize),
	})
	require.NoError(t, err)
	eng.SetNow(func() time.Time { return f.now })
	f.eng = eng
	return f
}

func betCandidate(event string, ev float64) domain.Candidate {
	return domain.Candidate{
		Opportunity: domain.Opportunity{
			ID: event, MarketID: event + ":h2h", EventID: event,
			HomeName: "Los Angeles Lakers", AwayName: "Boston Celtics",
			OutcomeID: "home", Side: domain.SideHome,
			MarketType: domain.MarketMoneyline, AssetClass: domain.AssetSports,
			CorrelationTag: event, Price: 2.1, MaxHold: 6 * time.Hour, Timestamp: t0,
		},
		Edge: domain.Edge{
			OpportunityID: event, OutcomeID: "home",
			FairProbability: 0.5, BestPrice: 2.1, BestSource: "pinnacle", EVPct: ev, Sources: 3,
		},
	}
}

func cryptoCandidate(id string) domain.Candidate {
	return domain.Candidate{
		Opportunity: domain.Opportunity{
			ID: id, MarketID: id, OutcomeID: "long", Symbol: "BTC",
			MarketType: domain.MarketMoneyline, AssetClass: domain.AssetCrypto,
			Direction: domain.Long, CorrelationTag: "BTC", Price: 100, Timestamp: t0,
		},
		Edge: domain.Edge{OpportunityID: id, OutcomeID: "long", FairProbability: 0.55, BestPrice: 100, EVPct: 0.03, Sources: 2},
	}
}

func openOf(t *testing.T, db *storage.SQLiteStorage, strategyID string) []domain.Commitment {
	t.Helper()
	open, err := db.OpenCommitments(context.Background(), strategyID)
	require.NoError(t, err)
	return open
}

func ledgerOf(t *testing.T, db *storage.SQLiteStorage, strategyID string) domain.BankrollLedger {
	t.Helper()
	l, err := db.GetLedger(context.Background(), strategyID)
	require.NoError(t, err)
	return l
}

// closedBets registra wins + losses apuestas cerradas de ±25 para una estrategia.
func closedBets(t *testing.T, db *storage.SQLiteStorage, strategyID string, wins, losses int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < wins+losses; i++ {
		c := domain.Commitment{
			ID: fmt.Sprintf("%s-%03d", strategyID, i), StrategyID: strategyID,
			OpportunityID: fmt.Sprintf("hist-%03d", i), OutcomeID: "home", MarketID: fmt.Sprintf("hist-%03d", i),
			Side: domain.SideHome, MarketType: domain.MarketMoneyline, AssetClass: domain.AssetSports,
			Direction: domain.Long, EntryPrice: 2.0, Stake: 25, Status: domain.StatusOpen, EntryTime: t0,
		}
		require.NoError(t, db.InsertCommitment(ctx, c))
		exit := t0.Add(time.Duration(i+1) * time.Minute)
		c.Status = domain.StatusClosedSettled
		c.ExitTime = &exit
		if i < wins {
			c.Result, c.GrossPnL, c.NetPnL = domain.ResultWin, 25, 25
		} else {
			c.Result, c.GrossPnL, c.NetPnL = domain.ResultLoss, -25, -25
		}
		_, err := db.CloseCommitment(ctx, c)
		require.NoError(t, err)
	}
}

// --- placement ---

func TestRunPlacementCycle_PlacesForMatchingStrategies(t *testing.T) {
	picky := flatStrategy("picky")
	picky.Filter.MinEV = 0.10
	f := newFixture(t, flatStrategy("s1"), picky)
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Strategies)
	assert.Equal(t, 1, res.Placed)
	assert.Equal(t, 1, res.Filtered)

	open := openOf(t, f.db, "s1")
	require.Len(t, open, 1)
	assert.Equal(t, 25.0, open[0].Stake)
	assert.Equal(t, 2.1, open[0].EntryPrice)
	assert.Equal(t, t0, open[0].EntryTime)
	assert.Empty(t, openOf(t, f.db, "picky"))

	// la misma oportunidad en el ciclo siguiente no se acepta dos veces
	res, err = f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Placed)
	assert.Equal(t, 1, res.AlreadyHeld)
	assert.Len(t, openOf(t, f.db, "s1"), 1)
}

func TestRunPlacementCycle_ConcurrentCyclesAcceptOnce(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"), flatStrategy("s2"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05), betCandidate("evt-2", 0.04)}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.RunPlacementCycle(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, openOf(t, f.db, "s1"), 2)
	assert.Len(t, openOf(t, f.db, "s2"), 2)
}

func TestRunPlacementCycle_SkipsEliminatedStrategies(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"), flatStrategy("s2"))
	_, _, err := f.reg.Eliminate("s2", "test", t0)
	require.NoError(t, err)
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Strategies)
	assert.Equal(t, 1, res.Placed)
	assert.Empty(t, openOf(t, f.db, "s2"))
}

func TestRunPlacementCycle_NonPositiveEdgeNeverPlaced(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0), betCandidate("evt-2", -0.03)}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Placed)
	assert.Equal(t, 2, res.Filtered)
}

func TestRunPlacementCycle_SizingRejected(t *testing.T) {
	big := flatStrategy("big")
	big.Sizing.FlatStake = 500 // > 10% del bankroll
	f := newFixture(t, big)
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SizingRejected)
	assert.Equal(t, 0, res.Placed)
}

func TestRunPlacementCycle_StakesNeverExceedFreeCapital(t *testing.T) {
	small := flatStrategy("small")
	small.InitialBankroll = 400
	f := newFixture(t, small)
	for i := range 18 {
		f.scanner.cands = append(f.scanner.cands, betCandidate(fmt.Sprintf("evt-%d", i), 0.05))
	}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, res.Placed)
	assert.Equal(t, 2, res.SizingRejected)

	total := 0.0
	for _, c := range openOf(t, f.db, "small") {
		total += c.Stake
	}
	assert.InDelta(t, 400, total, 1e-9)

	// las posiciones abiertas siguen comprometiendo capital en el ciclo siguiente
	f.scanner.cands = []domain.Candidate{betCandidate("evt-new", 0.05)}
	res, err = f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Placed)
	assert.Equal(t, 1, res.SizingRejected)
}

func TestRunPlacementCycle_ScanError(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.err = errors.New("feed down")

	_, err := f.eng.RunPlacementCycle(context.Background())
	assert.Error(t, err)
}

func TestRunPlacementCycle_StoreErrorAbortsCycle(t *testing.T) {
	f := newFixtureWithStore(t, func(s ports.Storage) ports.Storage { return failingStore{s} }, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05), betCandidate("evt-2", 0.05)}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Errors)
}

func TestRunPlacementCycle_CancelledStopsBeforeNextCandidate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixtureWithStore(t, func(s ports.Storage) ports.Storage {
		return cancellingStore{Storage: s, cancel: cancel}
	}, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05), betCandidate("evt-2", 0.05)}

	res, err := f.eng.RunPlacementCycle(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Placed)
	assert.Len(t, openOf(t, f.db, "s1"), 1)
}

func TestRunPlacementCycle_SignalOverrideLookedUpOncePerSymbol(t *testing.T) {
	adaptive := flatStrategy("adaptive")
	adaptive.Sizing = domain.SizingSpec{Kind: domain.SizingAdaptive, UseOverride: true}
	f := newFixture(t, adaptive)
	f.signals.signals["BTC"] = domain.SizingSignal{Key: "BTC", Pct: 0.03, At: t0, Source: "test"}
	f.scanner.cands = []domain.Candidate{cryptoCandidate("btc-1"), cryptoCandidate("btc-2")}

	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Placed)
	assert.Equal(t, int32(1), f.signals.calls.Load())
	for _, c := range res.Commitments {
		assert.Equal(t, 30.0, c.Stake)
	}
}

// --- prices ---

func TestRunPriceUpdate_TickThenTarget(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{cryptoCandidate("btc-1")}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	open := openOf(t, f.db, "s1")
	require.Len(t, open, 1)
	assert.InDelta(t, 110, open[0].Target, 1e-9)

	f.setNow(t0.Add(time.Hour))
	f.prices.prices["BTC"] = 104
	res, err := f.eng.RunPriceUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Priced)
	assert.Equal(t, 0, res.Closed)
	c, err := f.db.GetCommitment(context.Background(), open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 104.0, c.LastPrice)
	assert.Equal(t, domain.StatusOpen, c.Status)

	f.setNow(t0.Add(2 * time.Hour))
	f.prices.prices["BTC"] = 111
	res, err = f.eng.RunPriceUpdate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Closed)
	assert.Equal(t, 1, res.ByStatus[domain.StatusClosedTarget])

	c, err = f.db.GetCommitment(context.Background(), open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosedTarget, c.Status)
	assert.Equal(t, domain.ResultWin, c.Result)

	l := ledgerOf(t, f.db, "s1")
	assert.Equal(t, 1, l.Wins)
	assert.InDelta(t, 1000+c.NetPnL, l.Balance, 1e-9)
	assert.InDelta(t, c.GrossPnL-c.Fees, c.NetPnL, 0.011)
}

func TestRunPriceUpdate_TimeoutWithoutPrice(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{cryptoCandidate("btc-1")}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)

	f.setNow(t0.Add(time.Hour))
	res, err := f.eng.RunPriceUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missing)
	assert.Equal(t, 0, res.Closed)

	f.setNow(t0.Add(73 * time.Hour))
	res, err = f.eng.RunPriceUpdate(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Closes, 1)
	assert.Equal(t, domain.StatusClosedTimeout, res.Closes[0].Status)
	assert.Equal(t, 100.0, res.Closes[0].ExitPrice)
}

func TestRunPriceUpdate_IgnoresBets(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)

	res, err := f.eng.RunPriceUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Open)
}

// --- settlement ---

func TestRunSettlement_SettlesOnce(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)

	f.setNow(t0.Add(5 * time.Hour))
	f.outcomes.records = []domain.SettlementRecord{{
		EventID: "evt-1", HomeName: "LA Lakers", AwayName: "Celtics",
		HomeValue: 112, AwayValue: 108, Completed: true, Source: "test", ObservedAt: t0.Add(5 * time.Hour),
	}}

	res, err := f.eng.RunSettlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)

	l := ledgerOf(t, f.db, "s1")
	assert.InDelta(t, 1027.5, l.Balance, 1e-9)
	assert.Equal(t, 1, l.Wins)

	// segunda pasada con los mismos datos: sin efecto
	res, err = f.eng.RunSettlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Settled)
	assert.Equal(t, l, ledgerOf(t, f.db, "s1"))
}

func TestRunSettlement_PendingThenVoidAfterGrace(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)

	f.setNow(t0.Add(24 * time.Hour))
	res, err := f.eng.RunSettlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)

	// entrada + 6h de hold + 48h de grace
	f.setNow(t0.Add(54*time.Hour + time.Minute))
	res, err = f.eng.RunSettlement(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Voided)
	assert.Equal(t, domain.StatusVoided, res.Closes[0].Status)

	l := ledgerOf(t, f.db, "s1")
	assert.Equal(t, 1000.0, l.Balance)
	assert.Equal(t, 0, l.Settled)
}

func TestRunSettlement_FetchErrorKeepsPending(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)

	f.outcomes.err = errors.New("timeout")
	res, err := f.eng.RunSettlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
}

func TestCloseManual(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{cryptoCandidate("btc-1")}
	res, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)
	id := res.Commitments[0].ID

	f.setNow(t0.Add(time.Hour))
	c, err := f.eng.CloseManual(context.Background(), id, 105)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosedManual, c.Status)
	assert.Equal(t, 105.0, c.ExitPrice)

	_, err = f.eng.CloseManual(context.Background(), id, 105)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	_, err = f.eng.CloseManual(context.Background(), "missing", 105)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- elimination, reset, reports ---

func TestRunElimination(t *testing.T) {
	f := newFixture(t, flatStrategy("loser"), flatStrategy("winner"))
	closedBets(t, f.db, "loser", 21, 39)  // 35% sobre 60
	closedBets(t, f.db, "winner", 37, 23) // ~62% sobre 60

	res, err := f.eng.RunElimination(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	require.Len(t, res.Eliminated, 1)
	assert.Equal(t, "loser", res.Eliminated[0].ID)
	assert.Less(t, res.Verdicts["loser"].Z, -1.96)
	assert.False(t, res.Verdicts["winner"].Eliminate)

	s, err := f.reg.Get("loser")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyEliminated, s.Status)

	persisted, err := f.db.ListStrategies(context.Background())
	require.NoError(t, err)
	for _, p := range persisted {
		if p.ID == "loser" {
			assert.Equal(t, domain.StrategyEliminated, p.Status)
			assert.NotEmpty(t, p.EliminationReason)
		}
	}

	// monotónico: otra pasada no cambia nada
	res, err = f.eng.RunElimination(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Eliminated)
	assert.Equal(t, 1, res.Evaluated)
}

func TestResetStrategy(t *testing.T) {
	f := newFixture(t, flatStrategy("loser"))
	closedBets(t, f.db, "loser", 21, 39)
	_, err := f.eng.RunElimination(context.Background())
	require.NoError(t, err)

	s, err := f.eng.ResetStrategy(context.Background(), "loser")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyActive, s.Status)

	l := ledgerOf(t, f.db, "loser")
	assert.Equal(t, 1000.0, l.Balance)
	assert.Equal(t, 0, l.Settled)

	page, err := f.eng.Commitments(context.Background(), ports.CommitmentFilter{StrategyID: "loser"})
	require.NoError(t, err)
	assert.Equal(t, 60, page.Total)

	_, err = f.eng.ResetStrategy(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLeaderboardAndSnapshots(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"), flatStrategy("s2"))
	closedBets(t, f.db, "s2", 3, 1)

	rows, err := f.eng.Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "s2", rows[0].StrategyID)
	assert.InDelta(t, 1050, rows[0].Balance, 1e-9)
	assert.InDelta(t, 75, rows[0].WinRate, 1e-9)
	assert.Equal(t, registry.LabelInsufficientSample, rows[0].Label)
	assert.Equal(t, "s1", rows[1].StrategyID)

	n, err := f.eng.TakeSnapshot(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = f.eng.TakeSnapshot(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)

	snaps, err := f.eng.Snapshots(context.Background(), "s2")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 1050, snaps[0].Balance, 1e-9)
	assert.Equal(t, 4, snaps[0].Settled)

	_, err = f.eng.Snapshots(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStrategyDetail(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	closedBets(t, f.db, "s1", 2, 1)
	f.scanner.cands = []domain.Candidate{cryptoCandidate("btc-1")}
	_, err := f.eng.RunPlacementCycle(context.Background())
	require.NoError(t, err)

	d, err := f.eng.StrategyDetail(context.Background(), "s1", 2)
	require.NoError(t, err)
	assert.Len(t, d.Open, 1)
	assert.Len(t, d.Recent, 2)
	assert.Equal(t, 3, d.ByStatus[domain.StatusClosedSettled])
	assert.Equal(t, 1, d.ByStatus[domain.StatusOpen])
	require.Len(t, d.ByAssetClass, 1)
	assert.Equal(t, "sports", d.ByAssetClass[0].Key)
	assert.Equal(t, 2, d.ByAssetClass[0].Wins)
	assert.InDelta(t, 25, d.ByAssetClass[0].NetPnL, 1e-9)
	require.Len(t, d.ByMarketType, 1)
	assert.Equal(t, 3, d.ByMarketType[0].Count)

	_, err = f.eng.StrategyDetail(context.Background(), "missing", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- loop ---

func TestRunCycle_Forced(t *testing.T) {
	f := newFixture(t, flatStrategy("s1"))
	f.scanner.cands = []domain.Candidate{betCandidate("evt-1", 0.05)}

	res := f.eng.RunCycle(context.Background(), true)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Placement)
	assert.Equal(t, 1, res.Placement.Placed)
	assert.NotNil(t, res.Elimination)
	assert.Equal(t, 1, res.Snapshots)
}

func TestRun_StopFile(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	reg, err := registry.New(nil)
	require.NoError(t, err)

	stop := filepath.Join(t.TempDir(), "STOP")
	eng, err := engine.New(engine.Config{Interval: 10 * time.Millisecond, StopFile: stop}, engine.Deps{
		Scanner:   &mockScanner{},
		Store:     db,
		Registry:  reg,
		Lifecycle: lifecycle.NewManager(lifecycle.DefaultConfig()),
		Sizing:    sizing.DefaultDefaults(),
		Rules:     registry.DefaultRules(),
	})
	require.NoError(t, err)

	var cycles atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(context.Background(), func(*engine.CycleResult) {
			if cycles.Add(1) == 2 {
				_ = os.WriteFile(stop, nil, 0o644)
			}
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.GreaterOrEqual(t, cycles.Load(), int32(2))
	_, err = os.Stat(stop)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.eng.Run(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
