package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polybet/internal/application/scanner"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/lifecycle"
	"github.com/alejandrodnm/polybet/internal/sizing"
)

// PlacementResult resume un ciclo de placement.
type PlacementResult struct {
	Scan           scanner.Stats
	Candidates     int
	Strategies     int
	Placed         int
	Filtered       int
	AlreadyHeld    int
	GuardRejected  int
	SizingRejected int
	Duplicates     int
	Errors         int
	Cancelled      bool
	Commitments    []domain.Commitment
}

// strategyRun es el estado por ciclo de una estrategia activa. Solo lo toca
// la goroutine que evalúa esa estrategia.
type strategyRun struct {
	strategy domain.Strategy
	policy   sizing.Policy
	state    sizing.StrategyState
	book     *lifecycle.Book
}

type placementKind int

const (
	placeFiltered placementKind = iota
	placeHeld
	placeGuard
	placeSizing
	placeDuplicate
	placePlaced
	placeError
)

type placementOutcome struct {
	kind       placementKind
	commitment domain.Commitment
	err        error
}

// marketData es lo que el engine precarga una vez por candidato, compartido
// por todas las estrategias que lo evalúan.
type marketData struct {
	volatility    float64
	hasVolatility bool
	signal        *domain.SizingSignal
}

// RunPlacementCycle escanea el feed y ofrece cada candidato a cada estrategia
// activa. Los candidatos se procesan de a uno y, para cada uno, las
// estrategias se evalúan en paralelo. Un contexto cancelado corta el ciclo
// antes del siguiente candidato; lo ya colocado queda colocado.
func (e *Engine) RunPlacementCycle(ctx context.Context) (*PlacementResult, error) {
	result := &PlacementResult{}

	cands, stats, err := e.deps.Scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunPlacementCycle: scan: %w", err)
	}
	result.Scan = stats
	result.Candidates = len(cands)

	now := e.now()
	runs, err := e.loadStrategyRuns(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("engine.RunPlacementCycle: %w", err)
	}
	result.Strategies = len(runs)
	if len(runs) == 0 {
		slog.Info("engine: no active strategies, skipping placement")
		return result, nil
	}

	wantSignals := false
	for _, r := range runs {
		if r.strategy.Sizing.UseOverride {
			wantSignals = true
			break
		}
	}
	signals := make(map[string]*domain.SizingSignal)

	for _, cand := range cands {
		if ctx.Err() != nil {
			result.Cancelled = true
			slog.Info("engine: placement cancelled", "placed", result.Placed)
			break
		}
		if !cand.Edge.Positive() {
			result.Filtered += len(runs)
			continue
		}

		md := e.marketData(ctx, cand.Opportunity, wantSignals, signals)
		outcomes := e.evaluate(ctx, runs, cand, md)

		var stepErr error
		for i, out := range outcomes {
			switch out.kind {
			case placeFiltered:
				result.Filtered++
			case placeHeld:
				result.AlreadyHeld++
			case placeGuard:
				result.GuardRejected++
			case placeSizing:
				result.SizingRejected++
			case placeDuplicate:
				result.Duplicates++
			case placePlaced:
				result.Placed++
				result.Commitments = append(result.Commitments, out.commitment)
				runs[i].book.Add(out.commitment)
				runs[i].state.Committed += out.commitment.Stake
			case placeError:
				result.Errors++
				if stepErr == nil {
					stepErr = out.err
				}
			}
		}
		if stepErr != nil {
			return result, fmt.Errorf("engine.RunPlacementCycle: %w", stepErr)
		}
	}

	slog.Info("engine: placement cycle done",
		"candidates", result.Candidates,
		"strategies", result.Strategies,
		"placed", result.Placed,
		"filtered", result.Filtered,
		"guard_rejected", result.GuardRejected,
		"sizing_rejected", result.SizingRejected,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// loadStrategyRuns lee el ledger y el book abierto de cada estrategia activa una vez por ciclo.
func (e *Engine) loadStrategyRuns(ctx context.Context, now time.Time) ([]*strategyRun, error) {
	var stops []domain.Commitment
	if cd := e.deps.Lifecycle.Config().Cooldown; cd > 0 {
		var err error
		stops, err = e.deps.Store.RecentStops(ctx, now.Add(-cd))
		if err != nil {
			return nil, fmt.Errorf("recent stops: %w", err)
		}
	}

	active := e.deps.Registry.Active()
	runs := make([]*strategyRun, 0, len(active))
	for _, s := range active {
		ledger, err := e.deps.Store.GetLedger(ctx, s.ID)
		if errors.Is(err, domain.ErrNotFound) {
			ledger = domain.NewLedger(s.ID, s.InitialBankroll)
		} else if err != nil {
			return nil, fmt.Errorf("ledger %s: %w", s.ID, err)
		}
		open, err := e.deps.Store.OpenCommitments(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("open commitments %s: %w", s.ID, err)
		}
		var own []domain.Commitment
		for _, c := range stops {
			if c.StrategyID == s.ID {
				own = append(own, c)
			}
		}
		runs = append(runs, &strategyRun{
			strategy: s,
			policy:   sizing.New(s.Sizing, e.deps.Sizing),
			state:    sizing.StateFromLedger(ledger, open),
			book:     lifecycle.NewBook(open, own),
		})
	}
	return runs, nil
}

// marketData alimenta la ventana de precios y busca la señal de sizing opcional.
// Las búsquedas se cachean por símbolo durante el ciclo; un fallo = "sin señal".
func (e *Engine) marketData(ctx context.Context, opp domain.Opportunity, wantSignal bool, cached map[string]*domain.SizingSignal) marketData {
	var md marketData
	if opp.Symbol != "" {
		e.deps.Windows.Seed(opp.Symbol, opp.RecentPrices)
		if last, ok := e.deps.Windows.Last(opp.Symbol); !ok || last != opp.Price {
			e.deps.Windows.Push(opp.Symbol, opp.Price)
		}
		md.volatility, md.hasVolatility = sizing.RealizedVolatility(e.deps.Windows.Prices(opp.Symbol))
	}

	if !wantSignal || e.deps.Signals == nil || opp.Symbol == "" {
		return md
	}
	if sig, ok := cached[opp.Symbol]; ok {
		md.signal = sig
		return md
	}
	sigCtx, cancel := context.WithTimeout(ctx, e.cfg.SignalTimeout)
	defer cancel()
	sig, ok, err := e.deps.Signals.LatestSignal(sigCtx, opp.Symbol)
	switch {
	case err != nil:
		slog.Debug("engine: signal lookup failed", "symbol", opp.Symbol, "err", err)
	case ok:
		md.signal = &sig
	}
	cached[opp.Symbol] = md.signal
	return md
}

// evaluate corre filtro → guards → sizing → insert para cada estrategia en
// paralelo. Cada goroutine escribe solo su propio slot.
func (e *Engine) evaluate(ctx context.Context, runs []*strategyRun, cand domain.Candidate, md marketData) []placementOutcome {
	outcomes := make([]placementOutcome, len(runs))
	now := e.now()

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, run := range runs {
		g.Go(func() error {
			outcomes[i] = e.place(ctx, run, cand, md, now)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Engine) place(ctx context.Context, run *strategyRun, cand domain.Candidate, md marketData, now time.Time) placementOutcome {
	s := run.strategy
	opp := cand.Opportunity

	if !s.Filter.Matches(cand.Edge, opp) {
		return placementOutcome{kind: placeFiltered}
	}
	if run.book.Has(opp.ID, opp.OutcomeID) {
		return placementOutcome{kind: placeHeld}
	}
	if err := e.deps.Lifecycle.CheckEntry(run.book, opp, now); err != nil {
		slog.Debug("engine: entry guard", "strategy", s.ID, "opportunity", opp.ID, "outcome", opp.OutcomeID, "err", err)
		return placementOutcome{kind: placeGuard, err: err}
	}

	dec, err := run.policy.Size(sizing.Input{
		Opportunity:   opp,
		Edge:          cand.Edge,
		State:         run.state,
		Volatility:    md.volatility,
		HasVolatility: md.hasVolatility,
		Signal:        md.signal,
		Now:           now,
	})
	if err != nil {
		slog.Debug("engine: sizing rejected", "strategy", s.ID, "opportunity", opp.ID, "err", err)
		return placementOutcome{kind: placeSizing, err: err}
	}

	c := e.deps.Lifecycle.Open(s.ID, opp, cand.Edge, dec.Stake, now)

	unlock := e.locks.Lock(c.Key())
	defer unlock()
	if err := e.deps.Store.InsertCommitment(ctx, c); err != nil {
		if errors.Is(err, domain.ErrDuplicateAcceptance) {
			return placementOutcome{kind: placeDuplicate}
		}
		slog.Error("engine: insert commitment failed", "strategy", s.ID, "opportunity", opp.ID, "err", err)
		return placementOutcome{kind: placeError, err: err}
	}

	slog.Info("engine: placed commitment",
		"strategy", s.ID,
		"id", c.ID,
		"opportunity", opp.ID,
		"outcome", opp.OutcomeID,
		"asset_class", c.AssetClass.String(),
		"price", c.EntryPrice,
		"stake", c.Stake,
		"ev", fmt.Sprintf("%.2f%%", c.EVPct*100),
		"sizing", dec.Steps,
	)
	return placementOutcome{kind: placePlaced, commitment: c}
}
