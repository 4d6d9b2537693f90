package scanner

// concurrent.go: worker pool para el cálculo de edges por mercado.
//
// Cada mercado es independiente (el vig se elimina dentro del mercado), así que
// los mercados se reparten entre workers sin estado compartido.

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// analysis es el resultado de analizar un mercado.
type analysis struct {
	candidates []domain.Candidate
	errs       []error
}

// analyzeMarketsConcurrent analiza todos los mercados en paralelo usando un worker pool.
//
// Si workers <= 0 usa runtime.NumCPU() × 2 para saturar los cores disponibles.
func analyzeMarketsConcurrent(
	ctx context.Context,
	analyzer *Analyzer,
	markets []domain.MarketOutcomes,
	workers int,
) ([]domain.Candidate, Stats) {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	workCh := make(chan domain.MarketOutcomes, len(markets))
	resultCh := make(chan analysis, len(markets))

	// Worker pool: cada worker toma mercados de workCh y envía resultados a resultCh.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range workCh {
				if ctx.Err() != nil {
					continue
				}
				cands, errs := analyzer.Analyze(m)
				for _, err := range errs {
					slog.Debug("scanner: outcome rejected", "market_id", m.MarketID, "err", err)
				}
				resultCh <- analysis{candidates: cands, errs: errs}
			}
		}()
	}

	for _, m := range markets {
		workCh <- m
	}
	close(workCh)

	// Cerrar resultCh cuando todos los workers terminen.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var stats Stats
	stats.Markets = len(markets)
	candidates := make([]domain.Candidate, 0, len(markets))
	for r := range resultCh {
		candidates = append(candidates, r.candidates...)
		for _, err := range r.errs {
			switch {
			case errors.Is(err, domain.ErrLowConfidence):
				stats.LowConfidence++
			case errors.Is(err, domain.ErrDataUnavailable):
				stats.Unavailable++
			default:
				stats.Invalid++
			}
		}
	}

	slog.Debug("scanner: concurrent analysis complete",
		"markets", len(markets),
		"candidates", len(candidates),
		"workers", workers,
	)

	return candidates, stats
}
