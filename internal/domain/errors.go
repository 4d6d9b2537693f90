package domain

import "errors"

var (
	// ErrInvalidOpportunity: precio ≤ 1, campos requeridos vacíos o enums desconocidos.
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	// ErrLowConfidence: menos cotizaciones independientes que las requeridas.
	ErrLowConfidence = errors.New("low confidence: not enough independent quotes")
	// ErrDataUnavailable: sin cotizaciones, precios ni datos de settlement.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrSizingRejected: stake fuera de [min_stake, max_fraction × bankroll] o del capital libre.
	ErrSizingRejected = errors.New("sizing rejected")
	// ErrGuardRejected: un guard de entrada rechazó el commitment.
	ErrGuardRejected = errors.New("entry guard rejected")
	// ErrDuplicateAcceptance es una señal de no-op, nunca un fallo.
	ErrDuplicateAcceptance = errors.New("duplicate acceptance")
	// ErrSettlementAmbiguous: varios matches igual de fuertes con resultados distintos.
	ErrSettlementAmbiguous = errors.New("settlement ambiguous")
	ErrAlreadyClosed       = errors.New("commitment already closed")
	ErrStrategyEliminated  = errors.New("strategy eliminated")
	ErrNotFound            = errors.New("not found")
)
