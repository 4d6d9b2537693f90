package domain

import (
	"fmt"
	"math"
	"time"
)

// BankrollLedger es el estado financiero acumulado de una estrategia.
// Se actualiza in place una vez por commitment liquidado; nunca se recalcula desde el historial.
type BankrollLedger struct {
	StrategyID     string
	Balance        float64
	InitialBalance float64
	Peak           float64
	Trough         float64
	MaxDrawdownPct float64

	Wins    int
	Losses  int
	Pushes  int
	Settled int // wins + losses + pushes

	TotalWagered float64
	TotalPnL     float64

	CurrentStreak int // > 0 wins seguidos, < 0 losses seguidos
	BestStreak    int
	WorstStreak   int

	AvgOdds  float64
	AvgEV    float64
	AvgStake float64
	AvgWin   float64 // P&L neto medio de los wins
	AvgLoss  float64 // |P&L neto| medio de los losses

	UpdatedAt time.Time
}

// NewLedger devuelve un ledger nuevo con el bankroll inicial dado.
func NewLedger(strategyID string, initial float64) BankrollLedger {
	return BankrollLedger{
		StrategyID:     strategyID,
		Balance:        initial,
		InitialBalance: initial,
		Peak:           initial,
		Trough:         initial,
	}
}

// Apply incorpora un commitment cerrado al ledger en O(1).
// Los anulados o no terminales se rechazan sin tocar el ledger.
func (l *BankrollLedger) Apply(c Commitment, at time.Time) error {
	if !c.Status.AffectsBankroll() {
		return fmt.Errorf("ledger.Apply: commitment %s in status %s has no bankroll effect", c.ID, c.Status)
	}

	l.Balance += c.NetPnL
	l.TotalWagered += c.Stake
	l.TotalPnL += c.NetPnL

	result := c.Result
	if result == ResultNone || result == ResultVoid {
		result = ResultFromPnL(c.NetPnL)
	}
	switch result {
	case ResultWin:
		l.Wins++
		l.AvgWin = onlineMean(l.AvgWin, c.NetPnL, l.Wins)
		if l.CurrentStreak < 0 {
			l.CurrentStreak = 0
		}
		l.CurrentStreak++
	case ResultLoss:
		l.Losses++
		l.AvgLoss = onlineMean(l.AvgLoss, math.Abs(c.NetPnL), l.Losses)
		if l.CurrentStreak > 0 {
			l.CurrentStreak = 0
		}
		l.CurrentStreak--
	case ResultPush:
		l.Pushes++
	}
	l.Settled++
	if l.CurrentStreak > l.BestStreak {
		l.BestStreak = l.CurrentStreak
	}
	if l.CurrentStreak < l.WorstStreak {
		l.WorstStreak = l.CurrentStreak
	}

	// un peak nuevo abre otro tramo de drawdown
	if l.Balance > l.Peak {
		l.Peak = l.Balance
		l.Trough = l.Balance
	} else {
		l.Trough = math.Min(l.Trough, l.Balance)
	}
	if l.Peak > 0 {
		l.MaxDrawdownPct = math.Max(l.MaxDrawdownPct, (l.Peak-l.Trough)/l.Peak*100)
	}

	l.AvgOdds = onlineMean(l.AvgOdds, c.EntryPrice, l.Settled)
	l.AvgEV = onlineMean(l.AvgEV, c.EVPct, l.Settled)
	l.AvgStake = onlineMean(l.AvgStake, c.Stake, l.Settled)
	l.UpdatedAt = at
	return nil
}

// onlineMean devuelve avg_n = avg_{n-1} + (x_n − avg_{n-1})/n.
func onlineMean(prev, x float64, n int) float64 {
	if n <= 0 {
		return prev
	}
	return prev + (x-prev)/float64(n)
}

// Decided es el número de settlements que no fueron push.
func (l BankrollLedger) Decided() int {
	return l.Wins + l.Losses
}

// ROIPct devuelve total_pnl / total_wagered × 100.
func (l BankrollLedger) ROIPct() float64 {
	if l.TotalWagered <= 0 {
		return 0
	}
	return l.TotalPnL / l.TotalWagered * 100
}

// WinRate devuelve wins / (wins + losses) × 100; los push no cuentan.
func (l BankrollLedger) WinRate() float64 {
	d := l.Decided()
	if d == 0 {
		return 0
	}
	return float64(l.Wins) / float64(d) * 100
}

// CurrentDrawdownPct es la caída desde el peak hasta el balance actual.
func (l BankrollLedger) CurrentDrawdownPct() float64 {
	if l.Peak <= 0 || l.Balance >= l.Peak {
		return 0
	}
	return (l.Peak - l.Balance) / l.Peak * 100
}

// PayoffRatio es el win medio sobre el loss medio, 0 si no se conoce.
func (l BankrollLedger) PayoffRatio() float64 {
	if l.AvgLoss <= 0 {
		return 0
	}
	return l.AvgWin / l.AvgLoss
}

// BankrollSnapshot es el punto diario de la curva de equity de una estrategia.
type BankrollSnapshot struct {
	ID              string
	StrategyID      string
	Date            time.Time
	Balance         float64
	TotalPnL        float64
	ROIPct          float64
	WinRate         float64
	MaxDrawdownPct  float64
	OpenCommitments int
	Settled         int
}
