package cache

import (
	"strings"
	"sync"
)

// DefaultWindowSize es cuántos precios guarda un PriceWindow por símbolo.
const DefaultWindowSize = 48

// PriceWindow guarda los precios más recientes por símbolo, del más viejo al
// más nuevo. Alimenta la volatilidad realizada del sizing.
type PriceWindow struct {
	mu     sync.RWMutex
	size   int
	series map[string][]float64
}

// NewPriceWindow crea una ventana de como mucho size precios por símbolo.
func NewPriceWindow(size int) *PriceWindow {
	if size < 3 {
		size = DefaultWindowSize
	}
	return &PriceWindow{size: size, series: make(map[string][]float64)}
}

func windowKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Push agrega precios para symbol y descarta los más viejos que excedan la ventana.
// Los precios no positivos se ignoran.
func (w *PriceWindow) Push(symbol string, prices ...float64) {
	key := windowKey(symbol)
	if w == nil || key == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.series[key]
	for _, p := range prices {
		if p > 0 {
			s = append(s, p)
		}
	}
	if len(s) > w.size {
		s = append([]float64(nil), s[len(s)-w.size:]...)
	}
	w.series[key] = s
}

// Seed llena una ventana vacía con el historial del feed. No hace nada si
// ya hay datos para symbol.
func (w *PriceWindow) Seed(symbol string, prices []float64) {
	if w == nil || len(prices) == 0 {
		return
	}
	w.mu.RLock()
	have := len(w.series[windowKey(symbol)])
	w.mu.RUnlock()
	if have == 0 {
		w.Push(symbol, prices...)
	}
}

// Prices devuelve una copia de la ventana de symbol.
func (w *PriceWindow) Prices(symbol string) []float64 {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]float64(nil), w.series[windowKey(symbol)]...)
}

// Last devuelve el precio más reciente de symbol.
func (w *PriceWindow) Last(symbol string) (float64, bool) {
	if w == nil {
		return 0, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.series[windowKey(symbol)]
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}
