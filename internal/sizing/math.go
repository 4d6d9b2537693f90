package sizing

import (
	"math"
	"time"

	talib "github.com/markcheno/go-talib"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// RealizedVolatility devuelve el desvío estándar muestral de los retornos
// simples de la ventana, en porcentaje. Necesita al menos 3 precios positivos.
func RealizedVolatility(prices []float64) (float64, bool) {
	if len(prices) < 3 {
		return 0, false
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return 0, false
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	n := len(returns)
	series := talib.StdDev(returns, n, 1)
	if len(series) < n {
		return 0, false
	}
	// talib devuelve el desvío poblacional; se corrige a muestral
	return series[n-1] * math.Sqrt(float64(n)/float64(n-1)) * 100, true
}

// VolatilityPct lleva la volatilidad realizada, a través de la banda de la
// asset class, a un porcentaje de sizing en [floor, ceiling]: mercados
// tranquilos reciben el ceiling y los agitados el floor, lineal en el medio.
// Sin volatilidad conocida se usa el punto medio.
func VolatilityPct(vol float64, known bool, band VolBand, floor, ceiling float64) float64 {
	if !known || band.High <= band.Low {
		return (floor + ceiling) / 2
	}
	switch {
	case vol <= band.Low:
		return ceiling
	case vol >= band.High:
		return floor
	}
	t := (vol - band.Low) / (band.High - band.Low)
	return ceiling - t*(ceiling-floor)
}

// EmpiricalKelly devuelve win_rate − (1 − win_rate)/odds_ratio con win rate en [0,1].
func EmpiricalKelly(winRate, oddsRatio float64) float64 {
	if oddsRatio <= 0 {
		return 0
	}
	return winRate - (1-winRate)/oddsRatio
}

// Confidence crece lineal de 0 en minSamples a 1 en fullSamples.
//
//	confidence = min(1, (samples − 20)/80) con los defaults 20/100.
func Confidence(samples, minSamples, fullSamples int) float64 {
	if samples < minSamples {
		return 0
	}
	span := float64(fullSamples - minSamples)
	if span <= 0 {
		return 1
	}
	return math.Min(1, float64(samples-minSamples)/span)
}

// Blend mezcla el porcentaje Kelly con el base según la confianza.
func Blend(kellyPct, basePct, confidence float64) float64 {
	return kellyPct*confidence + basePct*(1-confidence)
}

// DrawdownScale devuelve max(0.25, 1/(1 + drawdown_pct/10)).
func DrawdownScale(drawdownPct float64) float64 {
	if drawdownPct <= 0 {
		return 1
	}
	return math.Max(minDrawdownScale, 1/(1+drawdownPct/drawdownDivisor))
}

// DrawdownPct es la caída del balance desde el peak, en porcentaje.
func DrawdownPct(peak, balance float64) float64 {
	if peak <= 0 || balance >= peak {
		return 0
	}
	return (peak - balance) / peak * 100
}

// SignalUsable indica si una señal externa está fresca y dentro de cotas razonables.
func SignalUsable(sig *domain.SizingSignal, now time.Time, freshness time.Duration, minPct, maxPct float64) bool {
	if sig == nil {
		return false
	}
	if sig.At.IsZero() || now.Sub(sig.At) > freshness || sig.At.After(now) {
		return false
	}
	return sig.Pct >= minPct && sig.Pct <= maxPct
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
