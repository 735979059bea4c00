package infra

import "fronteira/middleware/sentinela/domain"

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade `max`.
// max <= 0 significa sem limite.
func NewChanPool(max int) domain.WaitPool {
	if max <= 0 {
		return unboundedPool{}
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) TryAcquire() (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	default:
		return nil, false
	}
}

type unboundedPool struct{}

func (unboundedPool) TryAcquire() (func(), bool) { return func() {}, true }
