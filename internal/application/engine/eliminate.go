package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/registry"
)

// EliminationResult resume una pasada de eliminación.
type EliminationResult struct {
	Evaluated  int
	Eliminated []domain.Strategy
	Verdicts   map[string]registry.Verdict
}

// RunElimination evalúa cada estrategia activa contra las reglas de
// eliminación. Las eliminadas dejan de recibir oportunidades; sus commitments
// abiertos se siguen liquidando normalmente.
func (e *Engine) RunElimination(ctx context.Context) (*EliminationResult, error) {
	result := &EliminationResult{Verdicts: make(map[string]registry.Verdict)}
	now := e.now()

	for _, s := range e.deps.Registry.Active() {
		ledger, err := e.deps.Store.GetLedger(ctx, s.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return result, fmt.Errorf("engine.RunElimination: %w", err)
		}
		result.Evaluated++
		v := registry.Evaluate(ledger, e.deps.Rules)
		result.Verdicts[s.ID] = v
		if !v.Eliminate {
			continue
		}

		eliminated, changed, err := e.deps.Registry.Eliminate(s.ID, v.Reason, now)
		if err != nil {
			return result, fmt.Errorf("engine.RunElimination: %w", err)
		}
		if !changed {
			continue
		}
		if err := e.deps.Store.SaveStrategy(ctx, eliminated); err != nil {
			return result, fmt.Errorf("engine.RunElimination: save %s: %w", s.ID, err)
		}
		result.Eliminated = append(result.Eliminated, eliminated)
		slog.Warn("engine: strategy eliminated",
			"strategy", s.ID,
			"reason", v.Reason,
			"z", fmt.Sprintf("%.2f", v.Z),
			"sample", v.Sample,
			"roi", fmt.Sprintf("%.2f%%", ledger.ROIPct()),
			"max_drawdown", fmt.Sprintf("%.2f%%", ledger.MaxDrawdownPct),
		)
	}

	e.mu.Lock()
	e.lastElimination = now
	e.mu.Unlock()
	return result, nil
}

// ResetStrategy reactiva una estrategia y reinicia su bankroll desde el monto
// inicial. El historial de commitments se conserva.
func (e *Engine) ResetStrategy(ctx context.Context, id string) (domain.Strategy, error) {
	s, err := e.deps.Registry.Reset(id)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("engine.ResetStrategy: %w", err)
	}
	if err := e.deps.Store.SaveStrategy(ctx, s); err != nil {
		return domain.Strategy{}, fmt.Errorf("engine.ResetStrategy: %w", err)
	}
	if err := e.deps.Store.ResetLedger(ctx, s.ID, s.InitialBankroll); err != nil {
		return domain.Strategy{}, fmt.Errorf("engine.ResetStrategy: %w", err)
	}
	slog.Warn("engine: strategy reset", "strategy", s.ID, "bankroll", s.InitialBankroll)
	return s, nil
}

// TakeSnapshot guarda un punto de la curva de equity por estrategia para el
// día de date. Repetirlo el mismo día pisa el punto de ese día.
func (e *Engine) TakeSnapshot(ctx context.Context, date time.Time) (int, error) {
	ledgers, err := e.deps.Store.ListLedgers(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine.TakeSnapshot: %w", err)
	}
	open, err := e.deps.Store.OpenCommitments(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("engine.TakeSnapshot: %w", err)
	}
	openBy := make(map[string]int)
	for _, c := range open {
		openBy[c.StrategyID]++
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	for _, l := range ledgers {
		snap := domain.BankrollSnapshot{
			StrategyID:      l.StrategyID,
			Date:            day,
			Balance:         l.Balance,
			TotalPnL:        l.TotalPnL,
			ROIPct:          l.ROIPct(),
			WinRate:         l.WinRate(),
			MaxDrawdownPct:  l.MaxDrawdownPct,
			OpenCommitments: openBy[l.StrategyID],
			Settled:         l.Settled,
		}
		if err := e.deps.Store.UpsertSnapshot(ctx, snap); err != nil {
			return 0, fmt.Errorf("engine.TakeSnapshot: %s: %w", l.StrategyID, err)
		}
	}

	e.mu.Lock()
	e.lastSnapshot = e.now()
	e.mu.Unlock()
	slog.Debug("engine: snapshot taken", "date", day.Format("2006-01-02"), "strategies", len(ledgers))
	return len(ledgers), nil
}
