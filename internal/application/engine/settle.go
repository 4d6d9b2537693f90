package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/settlement"
)

// SettlementResult resume una pasada de settlement.
type SettlementResult struct {
	Open    int
	Records int
	Settled int
	Voided  int
	Pending int
	Errors  int
	Closes  []domain.Commitment
}

// RunSettlement hace el match de cada commitment abierto contra los últimos
// resultados. Los que matchean se liquidan; el resto espera hasta que vence
// su ventana de grace y se anula. Correrlo dos veces con los mismos datos no
// tiene efecto la segunda vez.
func (e *Engine) RunSettlement(ctx context.Context) (*SettlementResult, error) {
	result := &SettlementResult{}
	if e.deps.Outcomes == nil {
		return result, nil
	}

	open, err := e.deps.Store.OpenCommitments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("engine.RunSettlement: open commitments: %w", err)
	}
	result.Open = len(open)
	if len(open) == 0 {
		return result, nil
	}

	eventIDs, symbols := settlementKeys(open)
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	records, err := e.deps.Outcomes.FetchOutcomes(fetchCtx, eventIDs, symbols)
	cancel()
	if err != nil {
		// sin datos: los commitments siguen pendientes y el void por grace sigue corriendo
		slog.Warn("settlement: fetch outcomes failed", "err", err)
		records = nil
	}
	result.Records = len(records)

	now := e.now()
	for _, c := range open {
		if ctx.Err() != nil {
			break
		}
		dec := settlement.Decide(c, records, now, e.cfg.Grace)
		switch dec.Action {
		case settlement.ActionNone:
			continue
		case settlement.ActionPending:
			result.Pending++
			slog.Debug("settlement: pending", "id", c.ID, "event", c.EventID, "symbol", c.Symbol, "err", dec.Err)
			continue
		case settlement.ActionSettle:
			err = e.deps.Lifecycle.Settle(&c, dec.Result, dec.ExitPrice, now)
		case settlement.ActionVoid:
			err = e.deps.Lifecycle.Void(&c, dec.Reason, now)
		}
		if err != nil {
			result.Errors++
			slog.Error("settlement: close failed", "id", c.ID, "action", dec.Action.String(), "err", err)
			continue
		}

		closed, err := e.persistClose(ctx, c)
		if err != nil {
			result.Errors++
			slog.Error("settlement: persist failed", "id", c.ID, "err", err)
			continue
		}
		if !closed {
			continue
		}
		result.Closes = append(result.Closes, c)
		if c.Status == domain.StatusVoided {
			result.Voided++
		} else {
			result.Settled++
		}
	}

	slog.Info("settlement: pass done",
		"open", result.Open,
		"records", result.Records,
		"settled", result.Settled,
		"voided", result.Voided,
		"pending", result.Pending,
	)
	return result, nil
}

// settlementKeys devuelve, ordenados y sin duplicados, los event ids de las
// apuestas y los símbolos de las posiciones de precio.
func settlementKeys(open []domain.Commitment) (eventIDs, symbols []string) {
	seenEvt := make(map[string]bool)
	seenSym := make(map[string]bool)
	for _, c := range open {
		if c.AssetClass.IsBet() {
			if c.EventID != "" && !seenEvt[c.EventID] {
				seenEvt[c.EventID] = true
				eventIDs = append(eventIDs, c.EventID)
			}
			continue
		}
		if c.Symbol != "" && !seenSym[c.Symbol] {
			seenSym[c.Symbol] = true
			symbols = append(symbols, c.Symbol)
		}
	}
	sort.Strings(eventIDs)
	sort.Strings(symbols)
	return eventIDs, symbols
}

// CloseManual cierra un commitment abierto por pedido del operador. price ≤ 0
// usa el último precio observado.
func (e *Engine) CloseManual(ctx context.Context, id string, price float64) (domain.Commitment, error) {
	c, err := e.deps.Store.GetCommitment(ctx, id)
	if err != nil {
		return domain.Commitment{}, fmt.Errorf("engine.CloseManual: %w", err)
	}
	if err := e.deps.Lifecycle.CloseManual(&c, price, e.now()); err != nil {
		return domain.Commitment{}, fmt.Errorf("engine.CloseManual: %w", err)
	}
	closed, err := e.persistClose(ctx, c)
	if err != nil {
		return domain.Commitment{}, fmt.Errorf("engine.CloseManual: %w", err)
	}
	if !closed {
		return domain.Commitment{}, fmt.Errorf("engine.CloseManual: %s: %w", id, domain.ErrAlreadyClosed)
	}
	return c, nil
}
