// Package engine corre los ciclos batch del motor de decisiones en papel:
// placement, ticks de precio, settlement, eliminación y snapshots de equity.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/alejandrodnm/polybet/internal/application/scanner"
	"github.com/alejandrodnm/polybet/internal/cache"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/lifecycle"
	"github.com/alejandrodnm/polybet/internal/ports"
	"github.com/alejandrodnm/polybet/internal/registry"
	"github.com/alejandrodnm/polybet/internal/settlement"
	"github.com/alejandrodnm/polybet/internal/sizing"
)

// ScannerService es la interfaz mínima que el engine necesita del scanner.
// Desacopla el engine de *scanner.Scanner concreto.
type ScannerService interface {
	Scan(ctx context.Context) ([]domain.Candidate, scanner.Stats, error)
}

// Config agrupa los parámetros de los ciclos.
type Config struct {
	Workers          int           // estrategias evaluadas en paralelo por candidato (0 = NumCPU)
	FetchTimeout     time.Duration // consultas de precios y resultados
	SignalTimeout    time.Duration // consultas de la señal de sizing opcional
	Grace            time.Duration // ventana de grace antes de anular
	Interval         time.Duration // tick del loop de Run
	EliminationEvery time.Duration
	SnapshotEvery    time.Duration
	StopFile         string // Run para cuando aparece este archivo ("" lo desactiva)
}

// DefaultConfig devuelve los parámetros de ciclo que se usan si el config no los trae.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:     15 * time.Second,
		SignalTimeout:    2 * time.Second,
		Grace:            settlement.DefaultGrace,
		Interval:         60 * time.Second,
		EliminationEvery: time.Hour,
		SnapshotEvery:    time.Hour,
		StopFile:         "STOP",
	}
}

// Deps son los colaboradores del engine. Signals es opcional.
type Deps struct {
	Scanner   ScannerService
	Prices    ports.PriceProvider
	Outcomes  ports.OutcomeProvider
	Signals   ports.SignalProvider
	Store     ports.Storage
	Registry  *registry.Registry
	Lifecycle *lifecycle.Manager
	Sizing    sizing.Defaults
	Rules     registry.Rules
	Windows   *cache.PriceWindow
}

// Engine conecta los componentes de decisión. Los ciclos pueden dispararse
// en paralelo (loop del CLI y API admin); las aceptaciones se serializan por
// clave (estrategia, oportunidad, outcome) y los cierres los protege el store.
type Engine struct {
	cfg  Config
	deps Deps

	locks *keyedLock
	now   func() time.Time

	mu              sync.Mutex
	lastElimination time.Time
	lastSnapshot    time.Time
}

// New crea un engine. Los campos de config en cero toman su default.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Scanner == nil || deps.Store == nil || deps.Registry == nil || deps.Lifecycle == nil {
		return nil, fmt.Errorf("engine.New: scanner, store, registry and lifecycle are required")
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = def.SignalTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.EliminationEvery <= 0 {
		cfg.EliminationEvery = def.EliminationEvery
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = def.SnapshotEvery
	}
	if deps.Windows == nil {
		deps.Windows = cache.NewPriceWindow(cache.DefaultWindowSize)
	}
	return &Engine{
		cfg:   cfg,
		deps:  deps,
		locks: newKeyedLock(),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config devuelve los parámetros de ciclo efectivos.
func (e *Engine) Config() Config { return e.cfg }

// Rules devuelve los umbrales de eliminación que usan los reportes y la pasada de eliminación.
func (e *Engine) Rules() registry.Rules { return e.deps.Rules }

// keyedLock entrega un mutex por key y lo olvida cuando nadie lo tiene.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*refMutex)}
}

// Lock bloquea hasta que key está libre y devuelve su unlock.
func (k *keyedLock) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
