package infra

import "sync/atomic"

// MetricEvent indexa os contadores de um bucket.
type MetricEvent int

const (
	EventPass MetricEvent = iota
	EventBlock
	EventException
	EventSuccess
	// EventRT acumula a soma dos tempos de resposta (ms).
	EventRT
	EventOccupiedPass

	metricEventCount
)

const (
	// StatisticMaxRT é o teto de RT (ms) registrado por chamada.
	StatisticMaxRT int64 = 5000
	// OccupyTimeoutMs é o máximo que uma chamada priorizada espera por uma janela futura.
	OccupyTimeoutMs int64 = 500
)

// MetricBucket acumula os eventos de uma fatia de tempo.
// Cada campo é atualizado atomicamente e de forma independente.
type MetricBucket struct {
	counters [metricEventCount]atomic.Int64
	minRT    atomic.Int64
}

func NewMetricBucket() *MetricBucket {
	b := &MetricBucket{}
	b.minRT.Store(StatisticMaxRT)
	return b
}

func (b *MetricBucket) Add(ev MetricEvent, n int64) {
	b.counters[ev].Add(n)
}

func (b *MetricBucket) Get(ev MetricEvent) int64 {
	return b.counters[ev].Load()
}

// AddRT soma o RT e atualiza o mínimo.
func (b *MetricBucket) AddRT(rt int64) {
	b.counters[EventRT].Add(rt)
	for {
		cur := b.minRT.Load()
		if rt >= cur || b.minRT.CompareAndSwap(cur, rt) {
			return
		}
	}
}

func (b *MetricBucket) MinRT() int64 { return b.minRT.Load() }

func (b *MetricBucket) Pass() int64 { return b.Get(EventPass) }
func (b *MetricBucket) Block() int64 { return b.Get(EventBlock) }
func (b *MetricBucket) Exception() int64 { return b.Get(EventException) }
func (b *MetricBucket) Success() int64 { return b.Get(EventSuccess) }
func (b *MetricBucket) RT() int64 { return b.Get(EventRT) }
