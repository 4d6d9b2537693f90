package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/ports"
	"github.com/alejandrodnm/polybet/internal/registry"
)

const reportPageLimit = 500

// LeaderboardRow es la posición de una estrategia.
type LeaderboardRow struct {
	StrategyID        string
	Name              string
	Status            domain.StrategyStatus
	EliminationReason string
	Balance           float64
	InitialBalance    float64
	TotalPnL          float64
	ROIPct            float64
	WinRate           float64
	MaxDrawdownPct    float64
	Settled           int
	Open              int
	CurrentStreak     int
	Z                 float64
	Label             registry.Label
}

// Leaderboard devuelve todas las estrategias ordenadas por balance, incluidas las eliminadas.
func (e *Engine) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	ledgers, err := e.deps.Store.ListLedgers(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.Leaderboard: %w", err)
	}
	byID := make(map[string]domain.BankrollLedger, len(ledgers))
	for _, l := range ledgers {
		byID[l.StrategyID] = l
	}
	open, err := e.deps.Store.OpenCommitments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("engine.Leaderboard: %w", err)
	}
	openBy := make(map[string]int)
	for _, c := range open {
		openBy[c.StrategyID]++
	}

	strategies := e.deps.Registry.All()
	rows := make([]LeaderboardRow, 0, len(strategies))
	for _, s := range strategies {
		l, ok := byID[s.ID]
		if !ok {
			l = domain.NewLedger(s.ID, s.InitialBankroll)
		}
		rows = append(rows, leaderboardRow(s, l, openBy[s.ID], e.deps.Rules))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Balance != rows[j].Balance {
			return rows[i].Balance > rows[j].Balance
		}
		return rows[i].StrategyID < rows[j].StrategyID
	})
	return rows, nil
}

func leaderboardRow(s domain.Strategy, l domain.BankrollLedger, open int, rules registry.Rules) LeaderboardRow {
	return LeaderboardRow{
		StrategyID:        s.ID,
		Name:              s.Name,
		Status:            s.Status,
		EliminationReason: s.EliminationReason,
		Balance:           l.Balance,
		InitialBalance:    l.InitialBalance,
		TotalPnL:          l.TotalPnL,
		ROIPct:            l.ROIPct(),
		WinRate:           l.WinRate(),
		MaxDrawdownPct:    l.MaxDrawdownPct,
		Settled:           l.Settled,
		Open:              open,
		CurrentStreak:     l.CurrentStreak,
		Z:                 registry.ZScore(l.Wins, l.Decided()),
		Label:             registry.Classify(s, l, rules),
	}
}

// Breakdown agrega los commitments cerrados de un grupo (market type o asset class).
type Breakdown struct {
	Key     string
	Count   int
	Wins    int
	Losses  int
	Pushes  int
	Voided  int
	Wagered float64
	NetPnL  float64
}

// WinRate devuelve wins / (wins + losses) × 100.
func (b Breakdown) WinRate() float64 {
	if b.Wins+b.Losses == 0 {
		return 0
	}
	return float64(b.Wins) / float64(b.Wins+b.Losses) * 100
}

// ROIPct devuelve P&L neto sobre lo apostado × 100.
func (b Breakdown) ROIPct() float64 {
	if b.Wagered <= 0 {
		return 0
	}
	return b.NetPnL / b.Wagered * 100
}

// StrategyDetail es el reporte completo de una estrategia.
type StrategyDetail struct {
	Strategy     domain.Strategy
	Ledger       domain.BankrollLedger
	Row          LeaderboardRow
	Verdict      registry.Verdict
	ByMarketType []Breakdown
	ByAssetClass []Breakdown
	ByStatus     map[domain.CommitmentStatus]int
	Open         []domain.Commitment
	Recent       []domain.Commitment
}

// StrategyDetail arma el reporte de una estrategia con sus commitments recientes.
func (e *Engine) StrategyDetail(ctx context.Context, id string, recent int) (*StrategyDetail, error) {
	s, err := e.deps.Registry.Get(id)
	if err != nil {
		return nil, fmt.Errorf("engine.StrategyDetail: %w", err)
	}
	ledger, err := e.deps.Store.GetLedger(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		ledger = domain.NewLedger(id, s.InitialBankroll)
	} else if err != nil {
		return nil, fmt.Errorf("engine.StrategyDetail: %w", err)
	}
	open, err := e.deps.Store.OpenCommitments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine.StrategyDetail: %w", err)
	}

	d := &StrategyDetail{
		Strategy: s,
		Ledger:   ledger,
		Row:      leaderboardRow(s, ledger, len(open), e.deps.Rules),
		Verdict:  registry.Evaluate(ledger, e.deps.Rules),
		ByStatus: make(map[domain.CommitmentStatus]int),
		Open:     open,
	}

	byMarket := make(map[string]*Breakdown)
	byClass := make(map[string]*Breakdown)
	for page := 1; ; page++ {
		batch, total, err := e.deps.Store.ListCommitments(ctx, ports.CommitmentFilter{
			StrategyID: id, Page: page, Limit: reportPageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("engine.StrategyDetail: %w", err)
		}
		for _, c := range batch {
			d.ByStatus[c.Status]++
			if recent > 0 && len(d.Recent) < recent {
				d.Recent = append(d.Recent, c)
			}
			if !c.Status.Terminal() {
				continue
			}
			addBreakdown(byMarket, c.MarketType.String(), c)
			addBreakdown(byClass, c.AssetClass.String(), c)
		}
		if len(batch) == 0 || page*reportPageLimit >= total {
			break
		}
	}
	d.ByMarketType = sortedBreakdowns(byMarket)
	d.ByAssetClass = sortedBreakdowns(byClass)
	return d, nil
}

func addBreakdown(m map[string]*Breakdown, key string, c domain.Commitment) {
	b, ok := m[key]
	if !ok {
		b = &Breakdown{Key: key}
		m[key] = b
	}
	b.Count++
	if c.Status == domain.StatusVoided {
		b.Voided++
		return
	}
	b.Wagered += c.Stake
	b.NetPnL += c.NetPnL
	switch c.Result {
	case domain.ResultWin:
		b.Wins++
	case domain.ResultLoss:
		b.Losses++
	case domain.ResultPush:
		b.Pushes++
	}
}

func sortedBreakdowns(m map[string]*Breakdown) []Breakdown {
	out := make([]Breakdown, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CommitmentPage es una página del listado de commitments.
type CommitmentPage struct {
	Items []domain.Commitment
	Total int
	Page  int
	Limit int
}

// Commitments lista commitments, los más recientes primero.
func (e *Engine) Commitments(ctx context.Context, f ports.CommitmentFilter) (*CommitmentPage, error) {
	if f.StrategyID != "" {
		if _, err := e.deps.Registry.Get(f.StrategyID); err != nil {
			return nil, fmt.Errorf("engine.Commitments: %w", err)
		}
	}
	items, total, err := e.deps.Store.ListCommitments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("engine.Commitments: %w", err)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return &CommitmentPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Snapshots devuelve la curva de equity de una estrategia, de la más vieja a la más nueva.
func (e *Engine) Snapshots(ctx context.Context, id string) ([]domain.BankrollSnapshot, error) {
	if _, err := e.deps.Registry.Get(id); err != nil {
		return nil, fmt.Errorf("engine.Snapshots: %w", err)
	}
	snaps, err := e.deps.Store.ListSnapshots(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine.Snapshots: %w", err)
	}
	return snaps, nil
}
