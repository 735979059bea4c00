package infra

import (
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"fronteira/middleware/sentinela/domain"
)

var _ domain.StatNode = (*StatisticNode)(nil)

// StatisticNode mantém duas janelas: a de segundo (configurável, padrão 2 x 500ms,
// com reserva de fatias futuras) e a de minuto (60 x 1s), além do contador de
// concorrência.
type StatisticNode struct {
	clk clock.Clock
	cfg StatConfig

	second atomic.Pointer[ArrayMetric]
	minute atomic.Pointer[ArrayMetric]

	concurrency atomic.Int64
	lastFetch   atomic.Int64
}

func NewStatisticNode(cfg StatConfig, clk clock.Clock) *StatisticNode {
	if clk == nil {
		clk = clock.New()
	}
	n := &StatisticNode{clk: clk, cfg: cfg}
	n.Reset()
	return n
}

func (n *StatisticNode) nowMs() int64 { return n.clk.Now().UnixMilli() }

// Reset troca as janelas por janelas vazias.
func (n *StatisticNode) Reset() {
	n.second.Store(NewOccupiableArrayMetric(n.cfg.SampleCount, n.cfg.IntervalMs))
	n.minute.Store(NewArrayMetric(60, 60_000))
}

func (n *StatisticNode) rollingSecond() *ArrayMetric { return n.second.Load() }
func (n *StatisticNode) rollingMinute() *ArrayMetric { return n.minute.Load() }

func (n *StatisticNode) TotalRequest() int64 {
	now := n.nowMs()
	return n.rollingMinute().Pass(now) + n.rollingMinute().Block(now)
}

func (n *StatisticNode) TotalPass() int64 { return n.rollingMinute().Pass(n.nowMs()) }
func (n *StatisticNode) TotalSuccess() int64 { return n.rollingMinute().Success(n.nowMs()) }
func (n *StatisticNode) BlockRequest() int64 { return n.rollingMinute().Block(n.nowMs()) }
func (n *StatisticNode) TotalException() int64 { return n.rollingMinute().Exception(n.nowMs()) }

func (n *StatisticNode) perSecond(v int64) float64 {
	return float64(v) / n.rollingSecond().IntervalSec()
}

func (n *StatisticNode) PassQPS() float64 { return n.perSecond(n.rollingSecond().Pass(n.nowMs())) }
func (n *StatisticNode) BlockQPS() float64 { return n.perSecond(n.rollingSecond().Block(n.nowMs())) }
func (n *StatisticNode) SuccessQPS() float64 { return n.perSecond(n.rollingSecond().Success(n.nowMs())) }
func (n *StatisticNode) ExceptionQPS() float64 { return n.perSecond(n.rollingSecond().Exception(n.nowMs())) }
func (n *StatisticNode) OccupiedPassQPS() float64 { return n.perSecond(n.rollingSecond().OccupiedPass(n.nowMs())) }

func (n *StatisticNode) TotalQPS() float64 {
	now := n.nowMs()
	return n.perSecond(n.rollingSecond().Pass(now) + n.rollingSecond().Block(now))
}

// MaxSuccessQPS estima a capacidade: o melhor bucket projetado para um segundo.
func (n *StatisticNode) MaxSuccessQPS() float64 {
	s := n.rollingSecond()
	return float64(s.MaxSuccess(n.nowMs())) * float64(s.SampleCount()) / s.IntervalSec()
}

func (n *StatisticNode) AvgRT() float64 {
	now := n.nowMs()
	success := n.rollingSecond().Success(now)
	if success == 0 {
		return 0
	}
	return float64(n.rollingSecond().RT(now)) / float64(success)
}

func (n *StatisticNode) MinRT() float64 { return float64(n.rollingSecond().MinRT(n.nowMs())) }
func (n *StatisticNode) CurConcurrency() int64 { return n.concurrency.Load() }

// PreviousPassQPS é o pass do segundo anterior (janela de minuto).
func (n *StatisticNode) PreviousPassQPS() float64 {
	return float64(n.rollingMinute().PreviousWindowPass(n.nowMs()))
}

func (n *StatisticNode) PreviousBlockQPS() float64 {
	return float64(n.rollingMinute().PreviousWindowBlock(n.nowMs()))
}

func (n *StatisticNode) AddPassRequest(count int) {
	now := n.nowMs()
	n.rollingSecond().Add(now, EventPass, int64(count))
	n.rollingMinute().Add(now, EventPass, int64(count))
}

func (n *StatisticNode) AddRTAndSuccess(rt int64, success int) {
	now := n.nowMs()
	n.rollingSecond().Add(now, EventSuccess, int64(success))
	n.rollingSecond().AddRT(now, rt)
	n.rollingMinute().Add(now, EventSuccess, int64(success))
	n.rollingMinute().AddRT(now, rt)
}

func (n *StatisticNode) IncreaseBlockQPS(count int) {
	now := n.nowMs()
	n.rollingSecond().Add(now, EventBlock, int64(count))
	n.rollingMinute().Add(now, EventBlock, int64(count))
}

func (n *StatisticNode) IncreaseExceptionQPS(count int) {
	now := n.nowMs()
	n.rollingSecond().Add(now, EventException, int64(count))
	n.rollingMinute().Add(now, EventException, int64(count))
}

func (n *StatisticNode) IncreaseConcurrency() { n.concurrency.Add(1) }
func (n *StatisticNode) DecreaseConcurrency() { n.concurrency.Add(-1) }

// TryOccupyNext procura a primeira fatia futura (dentro de OccupyTimeoutMs)
// em que acquireCount ainda cabe no limiar, e devolve a espera até ela.
func (n *StatisticNode) TryOccupyNext(nowMs int64, acquireCount int, threshold float64) int64 {
	s := n.rollingSecond()
	intervalMs := s.IntervalMs()
	maxCount := threshold * float64(intervalMs) / 1000

	borrowed := s.Waiting(nowMs)
	if float64(borrowed) >= maxCount {
		return OccupyTimeoutMs
	}

	windowLength := s.WindowLengthMs()
	earliest := nowMs - nowMs%windowLength + windowLength - intervalMs
	curPass := s.Pass(nowMs)
	for idx := int64(0); earliest < nowMs; idx++ {
		wait := idx*windowLength + windowLength - nowMs%windowLength
		if wait >= OccupyTimeoutMs {
			break
		}
		windowPass := s.WindowPass(earliest)
		if float64(curPass+borrowed+int64(acquireCount)-windowPass) <= maxCount {
			return wait
		}
		earliest += windowLength
		curPass -= windowPass
	}
	return OccupyTimeoutMs
}

func (n *StatisticNode) AddWaitingRequest(futureMs int64, acquireCount int) {
	n.rollingSecond().AddWaiting(futureMs, int64(acquireCount))
}

func (n *StatisticNode) AddOccupiedPass(acquireCount int) {
	now := n.nowMs()
	n.rollingMinute().Add(now, EventOccupiedPass, int64(acquireCount))
	n.rollingMinute().Add(now, EventPass, int64(acquireCount))
}

func (n *StatisticNode) Waiting() int64 { return n.rollingSecond().Waiting(n.nowMs()) }

// Metrics devolve os segundos fechados ainda não lidos, indexados pelo início
// do segundo (ms). Só o timer de métricas deve chamar (não é idempotente).
func (n *StatisticNode) Metrics() map[int64]BucketSnapshot {
	now := n.nowMs()
	currentSecond := now - now%1000
	last := n.lastFetch.Load()
	newLast := last

	out := make(map[int64]BucketSnapshot)
	for _, s := range n.rollingMinute().Details(now) {
		if s.Start <= last || s.Start >= currentSecond {
			continue
		}
		if s.Start > newLast {
			newLast = s.Start
		}
		if s.hasValue() {
			out[s.Start] = s
		}
	}
	n.lastFetch.Store(newLast)
	return out
}
