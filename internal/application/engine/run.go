package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// CycleResult contiene todo lo que produce un ciclo completo del engine.
type CycleResult struct {
	StartedAt   time.Time
	Duration    time.Duration
	Placement   *PlacementResult
	Prices      *PriceResult
	Settlement  *SettlementResult
	Elimination *EliminationResult // nil si no tocaba
	Snapshots   int
	Errors      []error
}

// RunCycle corre placement, precios y settlement, y después la eliminación y
// el snapshot de equity cuando tocan (o siempre, con force).
// Un paso que falla queda registrado y el resto sigue corriendo.
func (e *Engine) RunCycle(ctx context.Context, force bool) *CycleResult {
	res := &CycleResult{StartedAt: e.now()}

	var err error
	if res.Placement, err = e.RunPlacementCycle(ctx); err != nil {
		res.Errors = append(res.Errors, err)
	}
	if res.Prices, err = e.RunPriceUpdate(ctx); err != nil {
		res.Errors = append(res.Errors, err)
	}
	if res.Settlement, err = e.RunSettlement(ctx); err != nil {
		res.Errors = append(res.Errors, err)
	}

	e.mu.Lock()
	elimDue := force || e.now().Sub(e.lastElimination) >= e.cfg.EliminationEvery
	snapDue := force || e.now().Sub(e.lastSnapshot) >= e.cfg.SnapshotEvery
	e.mu.Unlock()

	if elimDue {
		if res.Elimination, err = e.RunElimination(ctx); err != nil {
			res.Errors = append(res.Errors, err)
		}
	}
	if snapDue {
		if res.Snapshots, err = e.TakeSnapshot(ctx, e.now()); err != nil {
			res.Errors = append(res.Errors, err)
		}
	}

	res.Duration = e.now().Sub(res.StartedAt)
	for _, err := range res.Errors {
		slog.Error("engine: cycle step failed", "err", err)
	}
	return res
}

// Run repite RunCycle cada Interval hasta que se cancela ctx o aparece el
// archivo de stop. onCycle, si no es nil, recibe cada resultado (consola).
func (e *Engine) Run(ctx context.Context, onCycle func(*CycleResult)) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	slog.Info("engine: started, press Ctrl+C or create the stop file to exit",
		"interval", e.cfg.Interval.String(),
		"stop_file", e.cfg.StopFile,
	)

	run := func() {
		res := e.RunCycle(ctx, false)
		if onCycle != nil {
			onCycle(res)
		}
	}
	run()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopped (signal)")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if e.stopRequested() {
				slog.Info("engine: stop file detected, shutting down")
				return nil
			}
			run()
		}
	}
}

// stopRequested detecta (y consume) el archivo de stop.
func (e *Engine) stopRequested() bool {
	if e.cfg.StopFile == "" {
		return false
	}
	if _, err := os.Stat(e.cfg.StopFile); err != nil {
		return false
	}
	if err := os.Remove(e.cfg.StopFile); err != nil {
		slog.Warn("engine: could not remove stop file", "err", err)
	}
	return true
}
