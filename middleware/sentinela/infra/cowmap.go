package infra

import (
	"sync"
	"sync/atomic"
)

// CopyOnWriteMap é um mapa lido muito mais do que escrito: leituras são um
// load atômico sem lock; escritas copiam o mapa sob mutex. Só cresce.
type CopyOnWriteMap[V any] struct {
	mu sync.Mutex
	m  atomic.Pointer[map[string]V]
}

func (c *CopyOnWriteMap[V]) Load(key string) (V, bool) {
	var zero V
	m := c.m.Load()
	if m == nil {
		return zero, false
	}
	v, ok := (*m)[key]
	return v, ok
}

// LoadOrCreate devolve o valor da chave, criando-o uma única vez.
// created indica se esta chamada criou o valor.
func (c *CopyOnWriteMap[V]) LoadOrCreate(key string, create func() V) (v V, created bool) {
	if v, ok := c.Load(key); ok {
		return v, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.m.Load()
	if old != nil {
		if v, ok := (*old)[key]; ok {
			return v, false
		}
	}
	v = create()
	next := make(map[string]V, c.lenOf(old)+1)
	if old != nil {
		for k, ov := range *old {
			next[k] = ov
		}
	}
	next[key] = v
	c.m.Store(&next)
	return v, true
}

// Snapshot devolve o mapa atual. Não modifique o resultado.
func (c *CopyOnWriteMap[V]) Snapshot() map[string]V {
	m := c.m.Load()
	if m == nil {
		return map[string]V{}
	}
	return *m
}

func (c *CopyOnWriteMap[V]) Len() int { return c.lenOf(c.m.Load()) }

func (c *CopyOnWriteMap[V]) lenOf(m *map[string]V) int {
	if m == nil {
		return 0
	}
	return len(*m)
}

// Clear descarta todas as chaves.
func (c *CopyOnWriteMap[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Store(nil)
}
