package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeKind elige cómo cobra un FeeModel cada lado de un round trip.
type FeeKind string

const (
	FeeNone         FeeKind = "none"
	FeeFlat         FeeKind = "flat"
	FeeProportional FeeKind = "proportional"
	// FeeFloor es proporcional con un cobro mínimo por lado.
	FeeFloor FeeKind = "floor"
)

// ParseFeeKind acepta el nombre de config de un fee kind. Vacío = none.
func ParseFeeKind(s string) (FeeKind, error) {
	switch k := FeeKind(s); k {
	case "", FeeNone:
		return FeeNone, nil
	case FeeFlat, FeeProportional, FeeFloor:
		return k, nil
	default:
		return "", fmt.Errorf("lifecycle: unknown fee kind %q", s)
	}
}

// FeeModel se cobra en la entrada y en la salida.
type FeeModel struct {
	Kind       FeeKind
	PerSide    float64 // monto fijo por lado
	Rate       float64 // tasa proporcional por lado, 0.001 = 10 bps
	MinPerSide float64 // solo para floor
}

// RoundTrip devuelve la comisión total de entrar con entryNotional y salir
// con exitNotional, redondeada a centavos.
func (f FeeModel) RoundTrip(entryNotional, exitNotional float64) decimal.Decimal {
	return f.side(entryNotional).Add(f.side(exitNotional)).Round(2)
}

func (f FeeModel) side(notional float64) decimal.Decimal {
	n := decimal.NewFromFloat(notional).Abs()
	rate := decimal.NewFromFloat(f.Rate)
	switch f.Kind {
	case FeeFlat:
		return decimal.NewFromFloat(f.PerSide)
	case FeeProportional:
		return n.Mul(rate)
	case FeeFloor:
		return decimal.Max(n.Mul(rate), decimal.NewFromFloat(f.MinPerSide))
	default:
		return decimal.Zero
	}
}
