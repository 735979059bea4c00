package infra

import "fmt"

const (
	DefaultSampleCount = 2
	DefaultIntervalMs  = 1000
)

// StatConfig configura a janela de segundo dos nós (a de minuto é fixa: 60 x 1s).
type StatConfig struct {
	SampleCount int
	IntervalMs  int64
}

func DefaultStatConfig() StatConfig {
	return StatConfig{SampleCount: DefaultSampleCount, IntervalMs: DefaultIntervalMs}
}

func (c StatConfig) Validate() error {
	if c.SampleCount <= 0 || c.IntervalMs <= 0 || c.IntervalMs%int64(c.SampleCount) != 0 {
		return fmt.Errorf("infra: intervalMs (%d) must be a positive multiple of sampleCount (%d)", c.IntervalMs, c.SampleCount)
	}
	return nil
}

// BucketSnapshot é uma cópia dos contadores de um bucket.
type BucketSnapshot struct {
	Start        int64
	Pass         int64
	Block        int64
	Success      int64
	Exception    int64
	RT           int64
	OccupiedPass int64
	MinRT        int64
}

func (s BucketSnapshot) hasValue() bool {
	return s.Pass > 0 || s.Block > 0 || s.Success > 0 || s.Exception > 0 || s.RT > 0 || s.OccupiedPass > 0
}

// ArrayMetric agrega os buckets de uma LeapArray. Todas as leituras recebem
// o instante (ms) para serem determinísticas e nunca bloqueiam os escritores.
type ArrayMetric struct {
	data *LeapArray[*MetricBucket]
	// borrow guarda o que chamadas priorizadas reservaram em fatias futuras.
	borrow *LeapArray[*MetricBucket]
}

func NewArrayMetric(sampleCount int, intervalMs int64) *ArrayMetric {
	return &ArrayMetric{
		data: NewLeapArray(sampleCount, intervalMs, func(int64) *MetricBucket { return NewMetricBucket() }),
	}
}

// NewOccupiableArrayMetric cria uma métrica em que cada bucket novo já nasce
// com o pass reservado para a sua fatia.
func NewOccupiableArrayMetric(sampleCount int, intervalMs int64) *ArrayMetric {
	m := &ArrayMetric{
		borrow: NewFutureLeapArray(sampleCount, intervalMs, func(int64) *MetricBucket { return NewMetricBucket() }),
	}
	m.data = NewLeapArray(sampleCount, intervalMs, func(start int64) *MetricBucket {
		b := NewMetricBucket()
		if borrowed, ok := m.borrow.WindowValue(start); ok {
			b.Add(EventPass, borrowed.Pass())
		}
		return b
	})
	return m
}

func (m *ArrayMetric) SampleCount() int { return m.data.SampleCount() }
func (m *ArrayMetric) IntervalMs() int64 { return m.data.IntervalMs() }
func (m *ArrayMetric) IntervalSec() float64 { return m.data.IntervalSec() }
func (m *ArrayMetric) WindowLengthMs() int64 { return m.data.WindowLengthMs() }

func (m *ArrayMetric) sum(nowMs int64, ev MetricEvent) int64 {
	// materializa a fatia atual (e o que foi emprestado para ela)
	m.data.CurrentWindow(nowMs)
	var total int64
	for _, b := range m.data.Values(nowMs) {
		total += b.Get(ev)
	}
	return total
}

func (m *ArrayMetric) Pass(nowMs int64) int64 { return m.sum(nowMs, EventPass) }
func (m *ArrayMetric) Block(nowMs int64) int64 { return m.sum(nowMs, EventBlock) }
func (m *ArrayMetric) Success(nowMs int64) int64 { return m.sum(nowMs, EventSuccess) }
func (m *ArrayMetric) Exception(nowMs int64) int64 { return m.sum(nowMs, EventException) }
func (m *ArrayMetric) RT(nowMs int64) int64 { return m.sum(nowMs, EventRT) }
func (m *ArrayMetric) OccupiedPass(nowMs int64) int64 { return m.sum(nowMs, EventOccupiedPass) }

// MaxSuccess é o maior success entre os buckets válidos (mínimo 1).
func (m *ArrayMetric) MaxSuccess(nowMs int64) int64 {
	var best int64 = 1
	for _, b := range m.data.Values(nowMs) {
		if s := b.Success(); s > best {
			best = s
		}
	}
	return best
}

// MinRT é o menor RT entre os buckets válidos (mínimo 1).
func (m *ArrayMetric) MinRT(nowMs int64) int64 {
	rt := StatisticMaxRT
	for _, b := range m.data.Values(nowMs) {
		if v := b.MinRT(); v < rt {
			rt = v
		}
	}
	if rt < 1 {
		return 1
	}
	return rt
}

// Waiting é o total já reservado em fatias futuras.
func (m *ArrayMetric) Waiting(nowMs int64) int64 {
	if m.borrow == nil {
		return 0
	}
	var total int64
	for _, b := range m.borrow.Values(nowMs) {
		total += b.Pass()
	}
	return total
}

func (m *ArrayMetric) Add(nowMs int64, ev MetricEvent, n int64) {
	if w := m.data.CurrentWindow(nowMs); w != nil {
		w.value.Add(ev, n)
	}
}

func (m *ArrayMetric) AddRT(nowMs int64, rt int64) {
	if w := m.data.CurrentWindow(nowMs); w != nil {
		w.value.AddRT(rt)
	}
}

// AddWaiting reserva n passes na fatia de futureMs.
func (m *ArrayMetric) AddWaiting(futureMs int64, n int64) {
	if m.borrow == nil {
		return
	}
	if w := m.borrow.CurrentWindow(futureMs); w != nil {
		w.value.Add(EventPass, n)
	}
}

func (m *ArrayMetric) PreviousWindowPass(nowMs int64) int64 {
	if w := m.data.PreviousWindow(nowMs); w != nil {
		return w.value.Pass()
	}
	return 0
}

func (m *ArrayMetric) PreviousWindowBlock(nowMs int64) int64 {
	if w := m.data.PreviousWindow(nowMs); w != nil {
		return w.value.Block()
	}
	return 0
}

// WindowPass é o pass do bucket que cobre timeMs (0 se não existir).
func (m *ArrayMetric) WindowPass(timeMs int64) int64 {
	if b, ok := m.data.WindowValue(timeMs); ok {
		return b.Pass()
	}
	return 0
}

// Details devolve uma cópia de cada bucket válido.
func (m *ArrayMetric) Details(nowMs int64) []BucketSnapshot {
	ws := m.data.List(nowMs)
	out := make([]BucketSnapshot, 0, len(ws))
	for _, w := range ws {
		b := w.value
		out = append(out, BucketSnapshot{
			Start:        w.start,
			Pass:         b.Pass(),
			Block:        b.Block(),
			Success:      b.Success(),
			Exception:    b.Exception(),
			RT:           b.RT(),
			OccupiedPass: b.Get(EventOccupiedPass),
			MinRT:        b.MinRT(),
		})
	}
	return out
}
