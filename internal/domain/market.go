package domain

import (
	"fmt"
	"strings"
)

// MarketType identifica cómo se resuelve un outcome contra los valores finales.
type MarketType int

const (
	MarketMoneyline MarketType = iota + 1
	MarketSpread
	MarketTotal
)

// String devuelve el nombre canónico en minúsculas que usan config y storage.
func (m MarketType) String() string {
	switch m {
	case MarketMoneyline:
		return "moneyline"
	case MarketSpread:
		return "spread"
	case MarketTotal:
		return "total"
	default:
		return "unknown"
	}
}

// ParseMarketType acepta los nombres canónicos y los alias de los feeds de cuotas.
func ParseMarketType(s string) (MarketType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moneyline", "h2h", "ml":
		return MarketMoneyline, nil
	case "spread", "spreads", "handicap":
		return MarketSpread, nil
	case "total", "totals", "over_under":
		return MarketTotal, nil
	default:
		return 0, fmt.Errorf("%w: unknown market type %q", ErrInvalidOpportunity, s)
	}
}

// AssetClass agrupa instrumentos que comparten umbrales de sizing, límites de hold y comisiones.
type AssetClass int

const (
	AssetSports AssetClass = iota + 1
	AssetPrediction
	AssetCrypto
	AssetEquity
)

// AllAssetClasses lista todas las clases soportadas en orden de display.
var AllAssetClasses = []AssetClass{AssetSports, AssetPrediction, AssetCrypto, AssetEquity}

func (a AssetClass) String() string {
	switch a {
	case AssetSports:
		return "sports"
	case AssetPrediction:
		return "prediction"
	case AssetCrypto:
		return "crypto"
	case AssetEquity:
		return "equity"
	default:
		return "unknown"
	}
}

// ParseAssetClass parsea el nombre de una asset class de config o storage.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sports", "sport":
		return AssetSports, nil
	case "prediction", "polymarket":
		return AssetPrediction, nil
	case "crypto":
		return AssetCrypto, nil
	case "equity", "stocks", "stock":
		return AssetEquity, nil
	default:
		return 0, fmt.Errorf("%w: unknown asset class %q", ErrInvalidOpportunity, s)
	}
}

// IsBet indica si los commitments de esta clase se liquidan por marcador final
// en vez de valorarse a mercado en cada tick.
func (a AssetClass) IsBet() bool {
	return a == AssetSports
}

// Direction de un commitment respecto al precio cotizado.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign devuelve +1 para long y -1 para short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Side nombra el outcome elegido dentro de un mercado.
type Side string

const (
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideOver  Side = "over"
	SideUnder Side = "under"
	SideYes   Side = "yes"
	SideNo    Side = "no"
)

// Opposite devuelve el lado contrario en un mercado de dos vías.
func (s Side) Opposite() Side {
	switch s {
	case SideHome:
		return SideAway
	case SideAway:
		return SideHome
	case SideOver:
		return SideUnder
	case SideUnder:
		return SideOver
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	default:
		return s
	}
}
