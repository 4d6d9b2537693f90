package lifecycle

import (
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// ClassConfig agrupa las reglas de salida y guards de entrada de una asset class.
// Los porcentajes son fracciones: 0.10 = 10%.
type ClassConfig struct {
	TargetPct          float64
	StopPct            float64
	ActivationFraction float64 // el trail se arma con ganancia ≥ ActivationFraction × target pct
	TrailFraction      float64 // distancia del trail = TrailFraction × stop pct
	MaxHold            time.Duration
	MaxConcurrent      int     // commitments abiertos por estrategia en esta clase, 0 = sin límite
	MinRewardRisk      float64 // 0 desactiva el guard
	Fees               FeeModel
}

// Config es la configuración de lifecycle compartida por todas las estrategias.
type Config struct {
	Classes        map[domain.AssetClass]ClassConfig
	CorrelationCap int           // commitments abiertos por correlation tag, 0 = sin límite
	Cooldown       time.Duration // sin reentrada en un símbolo durante este tiempo tras un stop
}

// DefaultConfig devuelve las reglas de lifecycle que se usan si el config no las trae.
func DefaultConfig() Config {
	return Config{
		Classes: map[domain.AssetClass]ClassConfig{
			domain.AssetSports: {
				MaxConcurrent: 20,
				Fees:          FeeModel{Kind: FeeNone},
			},
			domain.AssetPrediction: {
				TargetPct: 0.15, StopPct: 0.08,
				ActivationFraction: 0.5, TrailFraction: 0.6,
				MaxHold: 7 * 24 * time.Hour, MaxConcurrent: 10, MinRewardRisk: 1.2,
				Fees: FeeModel{Kind: FeeProportional, Rate: 0.002},
			},
			domain.AssetCrypto: {
				TargetPct: 0.10, StopPct: 0.05,
				ActivationFraction: 0.5, TrailFraction: 0.6,
				MaxHold: 72 * time.Hour, MaxConcurrent: 5, MinRewardRisk: 1.5,
				Fees: FeeModel{Kind: FeeProportional, Rate: 0.001},
			},
			domain.AssetEquity: {
				TargetPct: 0.06, StopPct: 0.03,
				ActivationFraction: 0.5, TrailFraction: 0.6,
				MaxHold: 5 * 24 * time.Hour, MaxConcurrent: 5, MinRewardRisk: 1.5,
				Fees: FeeModel{Kind: FeeFloor, Rate: 0.0005, MinPerSide: 1},
			},
		},
		CorrelationCap: 3,
		Cooldown:       6 * time.Hour,
	}
}

// Class devuelve las reglas de una asset class; las desconocidas reciben la config vacía.
func (c Config) Class(a domain.AssetClass) ClassConfig {
	return c.Classes[a]
}
