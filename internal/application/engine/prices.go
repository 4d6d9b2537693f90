package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// PriceResult resume una pasada de actualización de precios.
type PriceResult struct {
	Open     int // posiciones de precio abiertas consideradas
	Priced   int
	Missing  int
	Closed   int
	Closes   []domain.Commitment
	Errors   int
	ByStatus map[domain.CommitmentStatus]int
}

// RunPriceUpdate obtiene el último precio de cada posición de precio abierta
// y aplica las reglas de salida. Cada cierre se persiste junto con su ledger
// en una transacción. Una posición que pasó su max hold sin precio fresco
// cierra por timeout a su último precio conocido.
func (e *Engine) RunPriceUpdate(ctx context.Context) (*PriceResult, error) {
	result := &PriceResult{ByStatus: make(map[domain.CommitmentStatus]int)}
	if e.deps.Prices == nil {
		return result, nil
	}

	open, err := e.deps.Store.OpenCommitments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("engine.RunPriceUpdate: open commitments: %w", err)
	}

	var positions []domain.Commitment
	seen := make(map[string]bool)
	var symbols []string
	for _, c := range open {
		if c.AssetClass.IsBet() || c.Symbol == "" {
			continue
		}
		positions = append(positions, c)
		if !seen[c.Symbol] {
			seen[c.Symbol] = true
			symbols = append(symbols, c.Symbol)
		}
	}
	result.Open = len(positions)
	if len(positions) == 0 {
		return result, nil
	}
	sort.Strings(symbols)

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	prices, err := e.deps.Prices.FetchPrices(fetchCtx, symbols)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("engine.RunPriceUpdate: fetch prices: %w", err)
	}
	for _, sym := range symbols {
		if p, ok := prices[sym]; ok {
			e.deps.Windows.Push(sym, p)
		}
	}

	now := e.now()
	for _, c := range positions {
		if ctx.Err() != nil {
			break
		}
		price, ok := prices[c.Symbol]
		if ok && price > 0 {
			result.Priced++
		} else {
			result.Missing++
			if c.MaxHold <= 0 || c.Age(now) <= c.MaxHold {
				slog.Debug("engine: no price for position", "id", c.ID, "symbol", c.Symbol, "err", domain.ErrDataUnavailable)
				continue
			}
			price = c.LastPrice
			if price <= 0 {
				price = c.EntryPrice
			}
		}

		if !e.deps.Lifecycle.OnTick(&c, price, now) {
			if err := e.deps.Store.UpdateCommitmentTick(ctx, c); err != nil {
				result.Errors++
				slog.Warn("engine: persist tick failed", "id", c.ID, "err", err)
			}
			continue
		}

		closed, err := e.persistClose(ctx, c)
		if err != nil {
			result.Errors++
			slog.Error("engine: persist close failed", "id", c.ID, "err", err)
			continue
		}
		if closed {
			result.Closed++
			result.ByStatus[c.Status]++
			result.Closes = append(result.Closes, c)
		}
	}

	if result.Closed > 0 || result.Errors > 0 {
		slog.Info("engine: price update done",
			"open", result.Open,
			"priced", result.Priced,
			"missing", result.Missing,
			"closed", result.Closed,
			"errors", result.Errors,
		)
	}
	return result, nil
}

// persistClose escribe un commitment terminal. Devuelve false, sin error,
// si otra pasada lo cerró antes.
func (e *Engine) persistClose(ctx context.Context, c domain.Commitment) (bool, error) {
	ledger, err := e.deps.Store.CloseCommitment(ctx, c)
	if errors.Is(err, domain.ErrAlreadyClosed) {
		slog.Debug("engine: commitment already closed", "id", c.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	attrs := []any{
		"strategy", c.StrategyID,
		"id", c.ID,
		"status", string(c.Status),
		"reason", c.ExitReason,
		"net_pnl", c.NetPnL,
	}
	if c.Status.AffectsBankroll() {
		attrs = append(attrs, "balance", ledger.Balance)
	}
	if c.Status == domain.StatusVoided {
		slog.Warn("settlement: voided", attrs...)
	} else {
		slog.Info("engine: closed commitment", attrs...)
	}
	return true, nil
}
