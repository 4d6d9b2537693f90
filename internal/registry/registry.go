// Package registry maneja las estrategias que compiten y su eliminación.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/polybet/internal/domain"
)

// Registry es el conjunto en memoria de estrategias, en el orden del config.
// El engine replica los cambios de status en storage.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]*domain.Strategy
	order      []string
}

// New arma un registry. Los ids de estrategia deben ser únicos y no vacíos.
func New(strategies []domain.Strategy) (*Registry, error) {
	r := &Registry{strategies: make(map[string]*domain.Strategy, len(strategies))}
	for _, s := range strategies {
		if s.ID == "" {
			return nil, fmt.Errorf("registry.New: strategy %q has no id", s.Name)
		}
		if _, dup := r.strategies[s.ID]; dup {
			return nil, fmt.Errorf("registry.New: duplicate strategy id %q", s.ID)
		}
		if s.Status == "" {
			s.Status = domain.StrategyActive
		}
		r.strategies[s.ID] = &s
		r.order = append(r.order, s.ID)
	}
	return r, nil
}

// All devuelve todas las estrategias, incluidas las eliminadas.
func (r *Registry) All() []domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Strategy, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.strategies[id])
	}
	return out
}

// Active devuelve las estrategias que siguen aceptando oportunidades.
func (r *Registry) Active() []domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Strategy, 0, len(r.order))
	for _, id := range r.order {
		if s := r.strategies[id]; s.Active() {
			out = append(out, *s)
		}
	}
	return out
}

// Get devuelve una estrategia por id.
func (r *Registry) Get(id string) (domain.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return domain.Strategy{}, fmt.Errorf("registry.Get: %s: %w", id, domain.ErrNotFound)
	}
	return *s, nil
}

// Sync pisa el status de las estrategias conocidas con el persistido, así las
// eliminaciones sobreviven a un reinicio. Los ids desconocidos se ignoran.
func (r *Registry) Sync(persisted []domain.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range persisted {
		if s, ok := r.strategies[p.ID]; ok {
			s.Status = p.Status
			s.EliminationReason = p.EliminationReason
			s.EliminatedAt = p.EliminatedAt
			if !p.CreatedAt.IsZero() {
				s.CreatedAt = p.CreatedAt
			}
		}
	}
}

// Eliminate marca una estrategia como eliminada. Devuelve false si ya lo
// estaba; se conserva el motivo original.
func (r *Registry) Eliminate(id, reason string, at time.Time) (domain.Strategy, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[id]
	if !ok {
		return domain.Strategy{}, false, fmt.Errorf("registry.Eliminate: %s: %w", id, domain.ErrNotFound)
	}
	if !s.Active() {
		return *s, false, nil
	}
	s.Status = domain.StrategyEliminated
	s.EliminationReason = reason
	s.EliminatedAt = &at
	return *s, true, nil
}

// Reset reactiva una estrategia eliminada. Solo lo llama una acción explícita
// del operador, nunca la pasada de eliminación.
func (r *Registry) Reset(id string) (domain.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[id]
	if !ok {
		return domain.Strategy{}, fmt.Errorf("registry.Reset: %s: %w", id, domain.ErrNotFound)
	}
	s.Status = domain.StrategyActive
	s.EliminationReason = ""
	s.EliminatedAt = nil
	return *s, nil
}
