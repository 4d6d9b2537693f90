// Package sizing convierte un edge positivo y el estado del bankroll propio
// de la estrategia en un stake. Las políticas son deterministas y sin efectos:
// quien llama precarga la volatilidad y las señales externas.
package sizing

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

const (
	minDrawdownScale = 0.25
	drawdownDivisor  = 10.0
)

// Nombres de los pasos que se reportan en Decision.Steps.
const (
	StepFlat       = "flat"
	StepKelly      = "edge_kelly"
	StepVolatility = "volatility"
	StepBase       = "base"
	StepBlend      = "kelly_blend"
	StepOverride   = "override"
	StepDrawdown   = "drawdown"
)

// VolBand es la banda de volatilidad realizada (en %) de una asset class.
type VolBand struct {
	Low  float64
	High float64
}

// Defaults son los parámetros de sizing globales. Los campos de SizingSpec
// distintos de cero pisan a los que comparten.
type Defaults struct {
	FlatStake         float64
	BasePct           float64
	FloorPct          float64
	CeilingPct        float64
	KellyFraction     float64
	KellyCap          float64
	MinKellySamples   int
	FullConfidenceAt  int
	MinStake          float64
	MaxFraction       float64
	VolBands          map[domain.AssetClass]VolBand
	OverrideFreshness time.Duration
	MinOverridePct    float64
	MaxOverridePct    float64
}

// DefaultDefaults devuelve los parámetros que se usan si el config no los trae.
func DefaultDefaults() Defaults {
	return Defaults{
		FlatStake:        25,
		BasePct:          0.02,
		FloorPct:         0.005,
		CeilingPct:       0.03,
		KellyFraction:    0.25,
		KellyCap:         0.05,
		MinKellySamples:  20,
		FullConfidenceAt: 100,
		MinStake:         1,
		MaxFraction:      0.10,
		VolBands: map[domain.AssetClass]VolBand{
			domain.AssetSports:     {Low: 2, High: 10},
			domain.AssetPrediction: {Low: 3, High: 15},
			domain.AssetCrypto:     {Low: 2, High: 8},
			domain.AssetEquity:     {Low: 0.8, High: 3},
		},
		OverrideFreshness: 24 * time.Hour,
		MinOverridePct:    0.001,
		MaxOverridePct:    0.05,
	}
}

// StrategyState es la parte del ledger que lee la política de sizing.
// Committed es el stake retenido por commitments abiertos: sigue contando en
// el balance hasta el settlement pero no puede respaldar un stake nuevo.
type StrategyState struct {
	Balance   float64
	Committed float64
	Peak      float64
	Settled int
	Wins    int
	Losses  int
	AvgWin  float64
	AvgLoss float64
}

// StateFromLedger copia los campos del ledger que usa el sizing y suma los
// stakes de los commitments abiertos de la estrategia.
func StateFromLedger(l domain.BankrollLedger, open []domain.Commitment) StrategyState {
	st := StrategyState{
		Balance: l.Balance,
		Peak:    l.Peak,
		Settled: l.Settled,
		Wins:    l.Wins,
		Losses:  l.Losses,
		AvgWin:  l.AvgWin,
		AvgLoss: l.AvgLoss,
	}
	for _, c := range open {
		if !c.Status.Terminal() {
			st.Committed += c.Stake
		}
	}
	return st
}

// Free es el capital que no retienen los commitments abiertos.
func (s StrategyState) Free() float64 {
	return s.Balance - s.Committed
}

// Input es todo lo que una política necesita para dimensionar un candidato.
type Input struct {
	Opportunity   domain.Opportunity
	Edge          domain.Edge
	State         StrategyState
	Volatility    float64
	HasVolatility bool
	Signal        *domain.SizingSignal
	Now           time.Time
}

// Decision es el resultado del sizing, con los valores intermedios para logging.
type Decision struct {
	Stake         float64
	Pct           float64
	BasePct       float64
	KellyPct      float64
	Confidence    float64
	OverrideUsed  bool
	DrawdownScale float64
	Steps         []string
}

// Policy dimensiona un candidato.
type Policy interface {
	Size(in Input) (Decision, error)
}

// New devuelve la política que configura spec, con los campos vacíos tomados de d.
func New(spec domain.SizingSpec, d Defaults) Policy {
	if spec.MinStake > 0 {
		d.MinStake = spec.MinStake
	}
	if spec.MaxFraction > 0 {
		d.MaxFraction = spec.MaxFraction
	}
	if spec.FlatStake > 0 {
		d.FlatStake = spec.FlatStake
	}
	if spec.BasePct > 0 {
		d.BasePct = spec.BasePct
	}
	if spec.KellyFraction > 0 {
		d.KellyFraction = spec.KellyFraction
	}

	switch spec.Kind {
	case domain.SizingFlat:
		return Flat{Defaults: d, Drawdown: spec.UseDrawdown}
	case domain.SizingKelly:
		return EdgeKelly{Defaults: d, Drawdown: spec.UseDrawdown}
	default:
		return Pipeline{
			Defaults:   d,
			Volatility: spec.UseVolatility,
			KellyBlend: spec.UseKellyBlend,
			Override:   spec.UseOverride,
			Drawdown:   spec.UseDrawdown,
		}
	}
}

// Flat apuesta un monto fijo.
type Flat struct {
	Defaults Defaults
	Drawdown bool
}

// Size implements Policy.
func (p Flat) Size(in Input) (Decision, error) {
	dec := Decision{DrawdownScale: 1, Steps: []string{StepFlat}}
	stake := p.Defaults.FlatStake
	if p.Drawdown {
		dec.DrawdownScale = DrawdownScale(DrawdownPct(in.State.Peak, in.State.Balance))
		stake *= dec.DrawdownScale
		dec.Steps = append(dec.Steps, StepDrawdown)
	}
	if in.State.Balance > 0 {
		dec.Pct = stake / in.State.Balance
	}
	return finalize(dec, stake, in.State, p.Defaults)
}

// EdgeKelly apuesta una fracción del Kelly del propio edge, con cap.
type EdgeKelly struct {
	Defaults Defaults
	Drawdown bool
}

// Size implements Policy.
func (p EdgeKelly) Size(in Input) (Decision, error) {
	dec := Decision{DrawdownScale: 1, Steps: []string{StepKelly}}
	pct := clamp(in.Edge.KellyFraction*p.Defaults.KellyFraction, 0, p.Defaults.KellyCap)
	dec.KellyPct = pct
	if p.Drawdown {
		dec.DrawdownScale = DrawdownScale(DrawdownPct(in.State.Peak, in.State.Balance))
		pct *= dec.DrawdownScale
		dec.Steps = append(dec.Steps, StepDrawdown)
	}
	dec.Pct = pct
	return finalize(dec, in.State.Balance*pct, in.State, p.Defaults)
}

// Pipeline es el sizer adaptativo: base por volatilidad, blend con Kelly,
// override externo y escala por drawdown, en ese orden. Los pasos desactivados se saltan.
type Pipeline struct {
	Defaults   Defaults
	Volatility bool
	KellyBlend bool
	Override   bool
	Drawdown   bool
}

// Size implements Policy.
func (p Pipeline) Size(in Input) (Decision, error) {
	d := p.Defaults
	dec := Decision{DrawdownScale: 1}

	pct := d.BasePct
	if p.Volatility {
		band := d.VolBands[in.Opportunity.AssetClass]
		pct = VolatilityPct(in.Volatility, in.HasVolatility, band, d.FloorPct, d.CeilingPct)
		dec.Steps = append(dec.Steps, StepVolatility)
	} else {
		dec.Steps = append(dec.Steps, StepBase)
	}
	dec.BasePct = pct

	if p.KellyBlend && in.State.Settled >= d.MinKellySamples && in.State.AvgLoss > 0 {
		decided := in.State.Wins + in.State.Losses
		if decided > 0 {
			winRate := float64(in.State.Wins) / float64(decided)
			k := EmpiricalKelly(winRate, in.State.AvgWin/in.State.AvgLoss)
			dec.KellyPct = clamp(k*d.KellyFraction, 0, d.KellyCap)
			dec.Confidence = Confidence(in.State.Settled, d.MinKellySamples, d.FullConfidenceAt)
			pct = Blend(dec.KellyPct, pct, dec.Confidence)
			dec.Steps = append(dec.Steps, StepBlend)
		}
	}

	if p.Override && SignalUsable(in.Signal, in.Now, d.OverrideFreshness, d.MinOverridePct, d.MaxOverridePct) {
		pct = in.Signal.Pct
		dec.OverrideUsed = true
		dec.Steps = append(dec.Steps, StepOverride)
	}

	if p.Drawdown {
		dec.DrawdownScale = DrawdownScale(DrawdownPct(in.State.Peak, in.State.Balance))
		pct *= dec.DrawdownScale
		dec.Steps = append(dec.Steps, StepDrawdown)
	}

	dec.Pct = pct
	return finalize(dec, in.State.Balance*pct, in.State, d)
}

// finalize redondea el stake a centavos y aplica sus cotas.
// Un stake fuera de rango se rechaza, nunca se recorta.
func finalize(dec Decision, stake float64, st StrategyState, d Defaults) (Decision, error) {
	stake = math.Round(stake*100) / 100
	dec.Stake = stake
	balance := st.Balance
	if balance <= 0 {
		return dec, fmt.Errorf("sizing: balance %.2f: %w", balance, domain.ErrSizingRejected)
	}
	if stake < d.MinStake {
		return dec, fmt.Errorf("sizing: stake %.2f below minimum %.2f: %w", stake, d.MinStake, domain.ErrSizingRejected)
	}
	maxStake := balance * d.MaxFraction
	if stake > maxStake+1e-9 {
		return dec, fmt.Errorf("sizing: stake %.2f above %.2f (%.1f%% of bankroll): %w",
			stake, maxStake, d.MaxFraction*100, domain.ErrSizingRejected)
	}
	if free := st.Free(); stake > free+1e-9 {
		return dec, fmt.Errorf("sizing: stake %.2f above free capital %.2f: %w", stake, free, domain.ErrSizingRejected)
	}
	return dec, nil
}
