package domain

import (
	"slices"
	"time"
)

// StrategyStatus solo pasa de active a eliminated, salvo reset manual explícito.
type StrategyStatus string

const (
	StrategyActive     StrategyStatus = "active"
	StrategyEliminated StrategyStatus = "eliminated"
)

// Strategy combina un filtro sobre edges con una configuración de sizing.
// Su bankroll vive en su propia fila de BankrollLedger.
type Strategy struct {
	ID                string
	Name              string
	Filter            FilterSpec
	Sizing            SizingSpec
	InitialBankroll   float64
	Status            StrategyStatus
	EliminationReason string
	EliminatedAt      *time.Time
	CreatedAt         time.Time
}

// Active indica si la estrategia sigue aceptando oportunidades.
func (s Strategy) Active() bool {
	return s.Status != StrategyEliminated
}

// FilterSpec es el predicado declarativo que una estrategia aplica a cada edge.
// Un valor cero desactiva su cota.
type FilterSpec struct {
	MinEV        float64
	MaxEV        float64
	MinFairProb  float64
	MaxFairProb  float64
	MinPrice     float64
	MaxPrice     float64
	MinSources   int
	MarketTypes  []MarketType
	AssetClasses []AssetClass
}

// Matches indica si el edge de la oportunidad pasa todas las cotas configuradas.
// Un edge con EV ≤ 0 nunca pasa.
func (f FilterSpec) Matches(e Edge, o Opportunity) bool {
	if e.EVPct <= 0 || e.EVPct < f.MinEV {
		return false
	}
	if f.MaxEV > 0 && e.EVPct > f.MaxEV {
		return false
	}
	if e.FairProbability < f.MinFairProb {
		return false
	}
	if f.MaxFairProb > 0 && e.FairProbability > f.MaxFairProb {
		return false
	}
	if e.BestPrice < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && e.BestPrice > f.MaxPrice {
		return false
	}
	if e.Sources < f.MinSources {
		return false
	}
	if len(f.MarketTypes) > 0 && !slices.Contains(f.MarketTypes, o.MarketType) {
		return false
	}
	if len(f.AssetClasses) > 0 && !slices.Contains(f.AssetClasses, o.AssetClass) {
		return false
	}
	return true
}

// SizingKind elige el calculador de stake de una estrategia.
type SizingKind string

const (
	SizingFlat     SizingKind = "flat"
	SizingKelly    SizingKind = "kelly"
	SizingAdaptive SizingKind = "adaptive"
)

// SizingSpec configura la política de sizing de una estrategia.
// Los campos numéricos en cero usan los defaults globales.
type SizingSpec struct {
	Kind          SizingKind
	FlatStake     float64
	BasePct       float64
	KellyFraction float64
	UseVolatility bool
	UseKellyBlend bool
	UseOverride   bool
	UseDrawdown   bool
	MinStake      float64
	MaxFraction   float64 // stake máximo como fracción del bankroll propio
}

// SizingSignal es un porcentaje de sizing externo para una key (símbolo o
// algoritmo). Es opcional: el núcleo funciona igual sin proveedor.
type SizingSignal struct {
	Key    string
	Pct    float64 // fracción del bankroll, 0.02 = 2%
	At     time.Time
	Source string
}

// SettlementRecord es una observación externa de un resultado.
// Los nombres siguen las convenciones de la fuente y pueden no coincidir con los nuestros.
type SettlementRecord struct {
	EventID    string
	HomeName   string
	AwayName   string
	HomeValue  float64 // marcador / valor final del lado A
	AwayValue  float64
	Symbol     string  // posiciones de precio: símbolo del instrumento
	FinalPrice float64 // posiciones de precio: precio final de liquidación
	Completed  bool
	Source     string
	ObservedAt time.Time
}
