// Package cache contiene caches en memoria que viven lo que dura el proceso.
// Todos se crean en main y se inyectan donde hacen falta.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL es un map seguro para concurrencia cuyas entradas expiran tras una duración fija.
type TTL[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]
	ttl  time.Duration
	now  func() time.Time
}

// NewTTL crea un cache. Un ttl no positivo pasa a ser un minuto.
func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TTL[K, V]{data: make(map[K]entry[V]), ttl: ttl, now: time.Now}
}

// Get devuelve el valor de key si existe y no expiró.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return zero, false
	}
	return e.value, true
}

// Set guarda value bajo key durante el ttl del cache.
func (c *TTL[K, V]) Set(key K, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.data[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete borra key.
func (c *TTL[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Prune descarta las entradas expiradas y devuelve cuántas quitó.
func (c *TTL[K, V]) Prune() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.data {
		if !now.Before(e.expires) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len devuelve la cantidad de entradas, incluidas las expiradas hasta el próximo Prune.
func (c *TTL[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
