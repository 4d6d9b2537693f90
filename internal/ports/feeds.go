package ports

import (
	"context"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// OpportunityFeed entrega el snapshot de oportunidades de un ciclo.
type OpportunityFeed interface {
	// FetchOpportunities devuelve una oportunidad por outcome, con todas sus
	// cotizaciones por fuente. El snapshot es de solo lectura para el ciclo.
	FetchOpportunities(ctx context.Context) ([]domain.Opportunity, error)
}

// PriceProvider obtiene el último precio de los símbolos con posiciones abiertas.
type PriceProvider interface {
	// FetchPrices devuelve precio por símbolo. Los símbolos sin dato se omiten del mapa.
	FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OutcomeProvider obtiene resultados finales (marcadores o precio de cierre).
type OutcomeProvider interface {
	// FetchOutcomes devuelve los registros disponibles para los eventos y
	// símbolos dados. Los nombres siguen las convenciones de la fuente.
	FetchOutcomes(ctx context.Context, eventIDs, symbols []string) ([]domain.SettlementRecord, error)
}

// SignalProvider es una fuente opcional de porcentajes de sizing calculados
// afuera. El engine funciona igual si no hay ninguno configurado.
type SignalProvider interface {
	// LatestSignal devuelve la señal más reciente para key (símbolo o id de estrategia).
	// ok es false si el proveedor no tiene nada para key.
	LatestSignal(ctx context.Context, key string) (sig domain.SizingSignal, ok bool, err error)
}
