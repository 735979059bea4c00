package infra

import (
	"context"
	"sync"

	"fronteira/middleware/sentinela/domain"
)

var _ domain.MetricSink = (*MemoryMetricSink)(nil)

// Counters é o acumulado de um recurso desde o início do processo.
type Counters struct {
	Pass      int64
	Block     int64
	Success   int64
	Exception int64
}

// MemoryMetricSink é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Guarda só os últimos `keep` itens e não é indicada para produção.
type MemoryMetricSink struct {
	mu         sync.Mutex
	total      Counters
	byResource map[string]Counters
	recent     []domain.MetricItem
	keep       int
}

type MemorySinkOption func(*MemoryMetricSink)

func WithKeepLast(n int) MemorySinkOption {
	return func(s *MemoryMetricSink) { s.keep = n }
}

func NewMemoryMetricSink(opts ...MemorySinkOption) *MemoryMetricSink {
	s := &MemoryMetricSink{
		byResource: make(map[string]Counters),
		keep:       1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryMetricSink) Write(_ context.Context, items []domain.MetricItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		c := s.byResource[it.Resource]
		c.Pass += it.PassQPS
		c.Block += it.BlockQPS
		c.Success += it.SuccessQPS
		c.Exception += it.ExceptionQPS
		s.byResource[it.Resource] = c

		s.total.Pass += it.PassQPS
		s.total.Block += it.BlockQPS
		s.total.Success += it.SuccessQPS
		s.total.Exception += it.ExceptionQPS
	}

	s.recent = append(s.recent, items...)
	if s.keep > 0 && len(s.recent) > s.keep {
		s.recent = append([]domain.MetricItem(nil), s.recent[len(s.recent)-s.keep:]...)
	}
	return nil
}

func (s *MemoryMetricSink) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryMetricSink) ByResource() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byResource))
	for k, v := range s.byResource {
		out[k] = v
	}
	return out
}

// Recent devolve uma cópia dos últimos itens gravados.
func (s *MemoryMetricSink) Recent() []domain.MetricItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MetricItem(nil), s.recent...)
}
