package infra

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// BucketWrap é um bucket publicado no anel. O início da fatia (start) é
// imutável depois de publicado; só os contadores do valor mudam.
type BucketWrap[T any] struct {
	start int64
	value T
}

func (w *BucketWrap[T]) Start() int64 { return w.start }
func (w *BucketWrap[T]) Value() T { return w.value }

// IsTimeInWindow indica se timeMs cai na fatia deste bucket.
func (w *BucketWrap[T]) IsTimeInWindow(timeMs, windowLengthMs int64) bool {
	return w.start <= timeMs && timeMs < w.start+windowLengthMs
}

// LeapArray é a janela deslizante: sampleCount buckets cobrindo intervalMs.
//
// Cada posição do anel é um ponteiro atômico. O rollover publica um bucket novo
// (já zerado) para a nova fatia via CAS sobre o ponteiro antigo: um único
// vencedor, sem lock, e incrementos na fatia atual nunca se perdem porque o
// bucket vigente nunca é zerado no lugar. Leituras nunca bloqueiam escritas.
type LeapArray[T any] struct {
	windowLengthMs int64
	sampleCount    int
	intervalMs     int64
	array          []atomic.Pointer[BucketWrap[T]]

	newBucket  func(startMs int64) T
	deprecated func(nowMs int64, w *BucketWrap[T]) bool
}

// NewLeapArray cria a janela. Entra em pânico se intervalMs não for múltiplo
// positivo de sampleCount (erro de configuração, validado antes por StatConfig).
func NewLeapArray[T any](sampleCount int, intervalMs int64, newBucket func(startMs int64) T) *LeapArray[T] {
	if sampleCount <= 0 || intervalMs <= 0 || intervalMs%int64(sampleCount) != 0 {
		panic(fmt.Sprintf("infra: invalid leap array (sampleCount=%d, intervalMs=%d)", sampleCount, intervalMs))
	}
	la := &LeapArray[T]{
		windowLengthMs: intervalMs / int64(sampleCount),
		sampleCount:    sampleCount,
		intervalMs:     intervalMs,
		array:          make([]atomic.Pointer[BucketWrap[T]], sampleCount),
		newBucket:      newBucket,
	}
	la.deprecated = func(nowMs int64, w *BucketWrap[T]) bool {
		return nowMs-w.start > la.intervalMs
	}
	return la
}

// NewFutureLeapArray cria uma janela que só enxerga fatias futuras
// (usada para as chamadas priorizadas que "pegam emprestado" o próximo bucket).
func NewFutureLeapArray[T any](sampleCount int, intervalMs int64, newBucket func(startMs int64) T) *LeapArray[T] {
	la := NewLeapArray(sampleCount, intervalMs, newBucket)
	la.deprecated = func(nowMs int64, w *BucketWrap[T]) bool {
		return nowMs >= w.start
	}
	return la
}

func (la *LeapArray[T]) SampleCount() int { return la.sampleCount }
func (la *LeapArray[T]) IntervalMs() int64 { return la.intervalMs }
func (la *LeapArray[T]) WindowLengthMs() int64 { return la.windowLengthMs }
func (la *LeapArray[T]) IntervalSec() float64 { return float64(la.intervalMs) / 1000.0 }

func (la *LeapArray[T]) idx(timeMs int64) int {
	return int((timeMs / la.windowLengthMs) % int64(la.sampleCount))
}

func (la *LeapArray[T]) windowStart(timeMs int64) int64 {
	return timeMs - timeMs%la.windowLengthMs
}

// CurrentWindow devolve o bucket da fatia de nowMs, fazendo o rollover se preciso.
// Relógio voltando no tempo gera um bucket avulso (fora do anel): a escrita é
// absorvida e nunca vira erro.
func (la *LeapArray[T]) CurrentWindow(nowMs int64) *BucketWrap[T] {
	if nowMs < 0 {
		return nil
	}
	i := la.idx(nowMs)
	start := la.windowStart(nowMs)
	slot := &la.array[i]

	for {
		old := slot.Load()
		switch {
		case old == nil:
			w := &BucketWrap[T]{start: start, value: la.newBucket(start)}
			if slot.CompareAndSwap(nil, w) {
				return w
			}
		case old.start == start:
			return old
		case start > old.start:
			w := &BucketWrap[T]{start: start, value: la.newBucket(start)}
			if slot.CompareAndSwap(old, w) {
				return w
			}
		default:
			return &BucketWrap[T]{start: start, value: la.newBucket(start)}
		}
		runtime.Gosched()
	}
}

// PreviousWindow devolve o bucket imediatamente anterior à fatia atual, se ainda válido.
func (la *LeapArray[T]) PreviousWindow(nowMs int64) *BucketWrap[T] {
	if nowMs < 0 {
		return nil
	}
	timeMs := nowMs - la.windowLengthMs
	w := la.array[la.idx(timeMs)].Load()
	if w == nil || la.deprecated(nowMs, w) {
		return nil
	}
	if w.start+la.windowLengthMs < timeMs {
		return nil
	}
	return w
}

// WindowValue devolve o valor do bucket que cobre timeMs, se existir.
func (la *LeapArray[T]) WindowValue(timeMs int64) (T, bool) {
	var zero T
	if timeMs < 0 {
		return zero, false
	}
	w := la.array[la.idx(timeMs)].Load()
	if w == nil || !w.IsTimeInWindow(timeMs, la.windowLengthMs) {
		return zero, false
	}
	return w.value, true
}

// List devolve os buckets válidos em nowMs (sem os envelhecidos).
func (la *LeapArray[T]) List(nowMs int64) []*BucketWrap[T] {
	if nowMs < 0 {
		return nil
	}
	out := make([]*BucketWrap[T], 0, la.sampleCount)
	for i := range la.array {
		w := la.array[i].Load()
		if w == nil || la.deprecated(nowMs, w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func (la *LeapArray[T]) Values(nowMs int64) []T {
	ws := la.List(nowMs)
	out := make([]T, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.value)
	}
	return out
}

// ValuesConditional filtra os buckets válidos pelo início da fatia.
func (la *LeapArray[T]) ValuesConditional(nowMs int64, keep func(startMs int64) bool) []T {
	ws := la.List(nowMs)
	out := make([]T, 0, len(ws))
	for _, w := range ws {
		if keep == nil || keep(w.start) {
			out = append(out, w.value)
		}
	}
	return out
}
