package infra

import "sync/atomic"

// Snapshot guarda um valor imutável trocado atomicamente. Leitores sempre veem
// o valor antigo inteiro ou o novo inteiro.
type Snapshot[T any] struct {
	p atomic.Pointer[T]
}

func NewSnapshot[T any](initial T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.Store(initial)
	return s
}

func (s *Snapshot[T]) Load() T {
	if p := s.p.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

func (s *Snapshot[T]) Store(v T) { s.p.Store(&v) }
