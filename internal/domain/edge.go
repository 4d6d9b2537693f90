package domain

import (
	"fmt"
	"math"
)

// DefaultMinSources es el mínimo de cotizaciones independientes para confiar en el precio justo.
const DefaultMinSources = 2

// Edge es la valoración de precio justo de un outcome.
type Edge struct {
	OpportunityID   string
	OutcomeID       string
	FairProbability float64
	BestPrice       float64
	BestSource      string
	EVPct           float64 // ganancia esperada por unidad apostada, como fracción (0.05 = +5%)
	KellyFraction   float64
	Sources         int
	Overround       float64 // suma de las probabilidades implícitas promediadas del mercado
}

// Positive indica si el edge tiene valor esperado estrictamente positivo.
func (e Edge) Positive() bool {
	return e.EVPct > 0
}

// ImpliedProbability convierte un precio decimal en su probabilidad implícita.
// Devuelve 0 para precios inválidos (≤ 1).
func ImpliedProbability(price float64) float64 {
	if price <= 1 {
		return 0
	}
	return 1 / price
}

// RemoveVig normaliza las probabilidades implícitas para que sumen 1.
//
//	fair_i = implied_i / Σ implied
func RemoveVig(implied []float64) ([]float64, error) {
	if len(implied) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 outcomes", ErrInvalidOpportunity)
	}
	total := 0.0
	for _, p := range implied {
		if p <= 0 || p >= 1 {
			return nil, fmt.Errorf("%w: implied probability %.4f out of (0,1)", ErrInvalidOpportunity, p)
		}
		total += p
	}
	fair := make([]float64, len(implied))
	for i, p := range implied {
		fair[i] = p / total
	}
	return fair, nil
}

// ExpectedValue devuelve fair × price − 1.
func ExpectedValue(fair, price float64) float64 {
	return fair*price - 1
}

// KellyFraction devuelve ev / (price − 1), o 0 si el precio es inválido o ev ≤ 0.
func KellyFraction(ev, price float64) float64 {
	if price <= 1 || ev <= 0 {
		return 0
	}
	return ev / (price - 1)
}

// outcomeQuotes guarda la agregación por outcome que usa EstimateMarket.
type outcomeQuotes struct {
	avgImplied float64
	valid      int
	bestPrice  float64
	bestSource string
}

func aggregateQuotes(quotes []SourceQuote) outcomeQuotes {
	var agg outcomeQuotes
	sum := 0.0
	seen := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		if q.Price <= 1 {
			continue
		}
		// un voto por fuente: los duplicados de una misma fuente no son independientes
		if q.Source != "" && seen[q.Source] {
			continue
		}
		seen[q.Source] = true
		sum += 1 / q.Price
		agg.valid++
		if q.Price > agg.bestPrice {
			agg.bestPrice = q.Price
			agg.bestSource = q.Source
		}
	}
	if agg.valid > 0 {
		agg.avgImplied = sum / float64(agg.valid)
	}
	return agg
}

// EstimateMarket calcula los edges sin vig de todos los outcomes de un mercado.
//
// Los errores devueltos describen outcomes rechazados (baja confianza o
// inválidos) y nunca abortan el resto. Un mercado con algún outcome sin
// ninguna cotización válida no se puede normalizar y no produce edges.
func EstimateMarket(m MarketOutcomes, minSources int) ([]Edge, []error) {
	if minSources <= 0 {
		minSources = DefaultMinSources
	}
	if len(m.Outcomes) < 2 {
		return nil, []error{fmt.Errorf("%w: market %s has %d outcome(s)", ErrInvalidOpportunity, m.MarketID, len(m.Outcomes))}
	}

	aggs := make([]outcomeQuotes, len(m.Outcomes))
	overround := 0.0
	for i, o := range m.Outcomes {
		aggs[i] = aggregateQuotes(o.Quotes)
		if aggs[i].valid == 0 {
			return nil, []error{fmt.Errorf("%w: market %s outcome %s has no valid quote", ErrInvalidOpportunity, m.MarketID, o.OutcomeID)}
		}
		overround += aggs[i].avgImplied
	}

	var (
		edges []Edge
		errs  []error
	)
	for i, o := range m.Outcomes {
		agg := aggs[i]
		if agg.valid < minSources {
			errs = append(errs, fmt.Errorf("%w: %s has %d source(s), need %d", ErrLowConfidence, o.Key(), agg.valid, minSources))
			continue
		}
		fair := agg.avgImplied / overround
		ev := ExpectedValue(fair, agg.bestPrice)
		edges = append(edges, Edge{
			OpportunityID:   o.ID,
			OutcomeID:       o.OutcomeID,
			FairProbability: fair,
			BestPrice:       agg.bestPrice,
			BestSource:      agg.bestSource,
			EVPct:           ev,
			KellyFraction:   KellyFraction(ev, agg.bestPrice),
			Sources:         agg.valid,
			Overround:       overround,
		})
	}
	return edges, errs
}

// RoundTo redondea v al número de decimales indicado.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// EstimatePosition calcula el edge de una posición de precio. Cada cotización
// es una estimación independiente del valor justo del instrumento; su media se
// compara con el precio de entrada en la dirección de la posición:
//
//	ev = sign × (fair − price) / price
//
// Kelly usa el reward:risk de target y stop como múltiplo de pago.
// Los contratos de predicción cotizan como probabilidades, así que su valor
// justo es también la probabilidad justa.
func EstimatePosition(o Opportunity, minSources int) (Edge, error) {
	if minSources <= 0 {
		minSources = DefaultMinSources
	}
	if o.Price <= 0 {
		return Edge{}, fmt.Errorf("%w: %s price %.4f", ErrInvalidOpportunity, o.Key(), o.Price)
	}
	sum, valid := 0.0, 0
	seen := make(map[string]bool, len(o.Quotes))
	for _, q := range o.Quotes {
		if q.Price <= 0 || (q.Source != "" && seen[q.Source]) {
			continue
		}
		seen[q.Source] = true
		sum += q.Price
		valid++
	}
	if valid == 0 {
		return Edge{}, fmt.Errorf("%w: %s has no fair-value quote", ErrDataUnavailable, o.Key())
	}
	if valid < minSources {
		return Edge{}, fmt.Errorf("%w: %s has %d source(s), need %d", ErrLowConfidence, o.Key(), valid, minSources)
	}
	fair := sum / float64(valid)
	ev := o.Direction.Sign() * (fair - o.Price) / o.Price

	e := Edge{
		OpportunityID: o.ID,
		OutcomeID:     o.OutcomeID,
		BestPrice:     o.Price,
		EVPct:         ev,
		Sources:       valid,
	}
	if o.AssetClass == AssetPrediction && fair < 1 {
		e.FairProbability = fair
	}
	if risk := math.Abs(o.Price - o.Stop); o.Stop > 0 && o.Target > 0 && risk > 0 {
		payoff := math.Abs(o.Target-o.Price) / risk
		e.KellyFraction = KellyFraction(ev, 1+payoff)
	}
	return e, nil
}

// Candidate es una oportunidad junto con su edge: la unidad que evalúan las estrategias.
type Candidate struct {
	Opportunity Opportunity
	Edge        Edge
}
