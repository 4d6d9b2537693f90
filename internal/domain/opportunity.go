package domain

import (
	"fmt"
	"time"
)

// SourceQuote es el precio decimal de una fuente independiente para un outcome.
type SourceQuote struct {
	Source string
	Price  float64
	At     time.Time
}

// Opportunity es un outcome de un mercado tal como lo entrega el feed.
// Es efímera: se consume (aceptada o descartada) en una sola pasada.
type Opportunity struct {
	ID        string // id de la oportunidad, único por item del feed
	MarketID  string
	EventID   string
	HomeName  string // participante del lado A (local, token YES, ...)
	AwayName  string // participante del lado B
	OutcomeID string
	Side      Side

	MarketType MarketType
	AssetClass AssetClass
	Symbol     string // símbolo del instrumento para ticks, cooldowns y volatilidad
	// CorrelationTag agrupa oportunidades cuyos resultados se mueven juntos
	// (mismo evento, mismo subyacente). Vacío = sin correlación.
	CorrelationTag string
	Line           float64 // línea de spread o total; no aplica a moneyline

	Price   float64 // mejor precio decimal disponible / precio de entrada
	Target  float64 // target explícito opcional (0 = se deriva de la clase)
	Stop    float64 // stop explícito opcional (0 = se deriva de la clase)
	MaxHold time.Duration

	Direction    Direction
	Quotes       []SourceQuote
	RecentPrices []float64 // del más viejo al más nuevo, ventana opcional del feed

	Timestamp time.Time
	Expiry    time.Time
}

// Expired indica si la oportunidad ya no se puede aceptar.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.Expiry.IsZero() && !now.Before(o.Expiry)
}

// Key identifica el par (oportunidad, outcome) que una estrategia acepta como mucho una vez.
func (o Opportunity) Key() string {
	return o.ID + "|" + o.OutcomeID
}

// Validate comprueba los campos de los que dependen los componentes siguientes.
func (o Opportunity) Validate() error {
	if o.ID == "" || o.OutcomeID == "" || o.MarketID == "" {
		return fmt.Errorf("%w: missing id/outcome/market", ErrInvalidOpportunity)
	}
	if o.MarketType == 0 || o.AssetClass == 0 {
		return fmt.Errorf("%w: %s missing market type or asset class", ErrInvalidOpportunity, o.ID)
	}
	if o.Price <= 1 && o.AssetClass.IsBet() {
		return fmt.Errorf("%w: %s decimal price %.4f <= 1", ErrInvalidOpportunity, o.ID, o.Price)
	}
	if o.Price <= 0 {
		return fmt.Errorf("%w: %s price %.4f <= 0", ErrInvalidOpportunity, o.ID, o.Price)
	}
	return nil
}

// MarketOutcomes son todos los outcomes de un mercado, la unidad para quitar el vig.
type MarketOutcomes struct {
	MarketID string
	Outcomes []Opportunity
}

// GroupByMarket agrupa un snapshot del feed por market id, respetando el orden del feed.
func GroupByMarket(opps []Opportunity) []MarketOutcomes {
	idx := make(map[string]int, len(opps))
	var out []MarketOutcomes
	for _, o := range opps {
		i, ok := idx[o.MarketID]
		if !ok {
			i = len(out)
			idx[o.MarketID] = i
			out = append(out, MarketOutcomes{MarketID: o.MarketID})
		}
		out[i].Outcomes = append(out[i].Outcomes, o)
	}
	return out
}
