package registry

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Label es la clasificación de leaderboard del historial de una estrategia.
type Label string

const (
	LabelInsufficientSample Label = "INSUFFICIENT_SAMPLE"
	LabelLosing             Label = "LOSING"
	LabelWinning            Label = "WINNING"
	LabelInconclusive       Label = "INCONCLUSIVE"
	LabelEliminated         Label = "ELIMINATED"
)

// Rules son los umbrales de eliminación.
type Rules struct {
	MinSample      int     // commitments decididos necesarios antes de cualquier veredicto
	ZThreshold     float64 // a dos colas; 1.96 = p<0.05
	ROIFloorPct    float64 // elimina si roi_pct < floor; -100 lo desactiva
	MaxDrawdownPct float64 // elimina si el max drawdown lo supera; 0 lo desactiva
}

// DefaultRules devuelve los umbrales que se usan si el config no los trae.
func DefaultRules() Rules {
	return Rules{MinSample: 50, ZThreshold: 1.96, ROIFloorPct: -25, MaxDrawdownPct: 40}
}

// Verdict es el resultado de evaluar un ledger.
type Verdict struct {
	Eliminate bool
	Reason    string
	Z         float64
	Label     Label
	Sample    int
}

// ZScore contrasta el win rate contra una moneda:
//
//	z = (win_rate − 0.5) / sqrt(0.25/n)
func ZScore(wins, n int) float64 {
	if n <= 0 {
		return 0
	}
	wr := float64(wins) / float64(n)
	return (wr - 0.5) / math.Sqrt(0.25/float64(n))
}

// Evaluate decide si una estrategia debe eliminarse. Los push no forman
// parte de la muestra.
func Evaluate(l domain.BankrollLedger, r Rules) Verdict {
	n := l.Decided()
	v := Verdict{Sample: n}
	if n < r.MinSample || n == 0 {
		v.Label = LabelInsufficientSample
		v.Reason = fmt.Sprintf("%d/%d decided", n, r.MinSample)
		return v
	}
	v.Z = ZScore(l.Wins, n)

	switch {
	case v.Z < -r.ZThreshold:
		v.Eliminate = true
		v.Reason = fmt.Sprintf("win rate %.1f%% over %d is significantly below 50%% (z=%.2f)", l.WinRate(), n, v.Z)
	case l.ROIPct() < r.ROIFloorPct:
		v.Eliminate = true
		v.Reason = fmt.Sprintf("roi %.2f%% below floor %.2f%%", l.ROIPct(), r.ROIFloorPct)
	case r.MaxDrawdownPct > 0 && l.MaxDrawdownPct > r.MaxDrawdownPct:
		v.Eliminate = true
		v.Reason = fmt.Sprintf("max drawdown %.2f%% above ceiling %.2f%%", l.MaxDrawdownPct, r.MaxDrawdownPct)
	}

	switch {
	case v.Eliminate:
		v.Label = LabelEliminated
	case v.Z > r.ZThreshold:
		v.Label = LabelWinning
	case l.TotalPnL < 0:
		v.Label = LabelLosing
	default:
		v.Label = LabelInconclusive
	}
	return v
}

// Classify etiqueta una estrategia para los reportes. Las ya eliminadas
// conservan su etiqueta sin importar sus números actuales.
func Classify(s domain.Strategy, l domain.BankrollLedger, r Rules) Label {
	if !s.Active() {
		return LabelEliminated
	}
	v := Evaluate(l, r)
	return v.Label
}
