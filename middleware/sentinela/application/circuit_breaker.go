package application

import (
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("CircuitState(%d)", int32(s))
	}
}

// StateObserver é notificado a cada transição. snapshot é o valor que causou
// a abertura (razão, contagem), ou nil.
type StateObserver func(rule domain.DegradeRule, from, to CircuitState, snapshot any)

// CircuitBreaker é a máquina de estados de uma regra de degrade.
type CircuitBreaker interface {
	Rule() domain.DegradeRule
	State() CircuitState
	// TryPass decide se a chamada passa; em Open, o primeiro depois do tempo
	// de recuperação vira a sonda (HalfOpen).
	TryPass(c *domain.Context) bool
	// OnRequestComplete registra o resultado de uma chamada admitida.
	OnRequestComplete(rt int64, err error)
}

// breakerCounter é o bucket das janelas dos breakers.
type breakerCounter struct {
	bad   atomic.Int64
	total atomic.Int64
}

func (b *breakerCounter) reset() {
	b.bad.Store(0)
	b.total.Store(0)
}

type breakerBase struct {
	rule      domain.DegradeRule
	clk       clock.Clock
	observers func() []StateObserver

	state     atomic.Int32
	nextRetry atomic.Int64
	stat      *infra.LeapArray[*breakerCounter]
}

func (b *breakerBase) init(rule domain.DegradeRule, clk clock.Clock, observers func() []StateObserver) {
	b.rule = rule
	b.clk = clk
	b.observers = observers
	b.stat = infra.NewLeapArray(1, int64(rule.StatIntervalMs), func(int64) *breakerCounter {
		return &breakerCounter{}
	})
}

func (b *breakerBase) nowMs() int64 { return b.clk.Now().UnixMilli() }
func (b *breakerBase) Rule() domain.DegradeRule { return b.rule }
func (b *breakerBase) State() CircuitState { return CircuitState(b.state.Load()) }

func (b *breakerBase) notify(from, to CircuitState, snapshot any) {
	if b.observers == nil {
		return
	}
	for _, o := range b.observers() {
		o(b.rule, from, to, snapshot)
	}
}

func (b *breakerBase) current() *breakerCounter {
	return b.stat.CurrentWindow(b.nowMs()).Value()
}

func (b *breakerBase) totals() (bad, total int64) {
	b.stat.CurrentWindow(b.nowMs())
	for _, c := range b.stat.Values(b.nowMs()) {
		bad += c.bad.Load()
		total += c.total.Load()
	}
	return bad, total
}

func (b *breakerBase) resetStat() {
	b.current().reset()
}

func (b *breakerBase) updateNextRetry() {
	b.nextRetry.Store(b.nowMs() + int64(b.rule.TimeWindow)*1000)
}

func (b *breakerBase) transition(from, to CircuitState, snapshot any) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if to == StateOpen {
		b.updateNextRetry()
	}
	b.notify(from, to, snapshot)
	return true
}

// toOpen abre a partir de Closed ou HalfOpen.
func (b *breakerBase) toOpen(snapshot any) {
	switch b.State() {
	case StateClosed:
		b.transition(StateClosed, StateOpen, snapshot)
	case StateHalfOpen:
		b.transition(StateHalfOpen, StateOpen, snapshot)
	}
}

func (b *breakerBase) TryPass(c *domain.Context) bool {
	switch b.State() {
	case StateClosed:
		return true
	case StateOpen:
		if b.nowMs() < b.nextRetry.Load() {
			return false
		}
		return b.toHalfOpen(c)
	}
	return false
}

// toHalfOpen faz o CAS Open->HalfOpen: só uma chamada vira a sonda. Se a sonda
// for bloqueada por um estágio seguinte, o breaker volta para Open.
func (b *breakerBase) toHalfOpen(c *domain.Context) bool {
	if !b.transition(StateOpen, StateHalfOpen, nil) {
		return false
	}
	if c == nil {
		return true
	}
	if e := c.CurEntry(); e != nil {
		e.WhenTerminate(func(_ *domain.Context, e *domain.Entry) {
			if e.BlockError() != nil {
				b.transition(StateHalfOpen, StateOpen, nil)
			}
		})
	}
	return true
}

// errorBreaker abre por razão de erro ou por contagem de erros na janela.
type errorBreaker struct {
	breakerBase
}

func (b *errorBreaker) OnRequestComplete(_ int64, err error) {
	cur := b.current()
	if err != nil {
		cur.bad.Add(1)
	}
	cur.total.Add(1)

	switch b.State() {
	case StateOpen:
		return
	case StateHalfOpen:
		if err == nil {
			b.resetStat()
			b.transition(StateHalfOpen, StateClosed, nil)
		} else {
			b.toOpen(1.0)
		}
		return
	}

	bad, total := b.totals()
	if total < int64(b.rule.MinRequestAmount) {
		return
	}
	value := float64(bad)
	if b.rule.Grade == domain.DegradeErrorRatio {
		value = float64(bad) / float64(total)
	}
	if value > b.rule.Count {
		b.toOpen(value)
	}
}

// slowBreaker abre pela razão de chamadas com RT acima de Count (ms).
type slowBreaker struct {
	breakerBase
}

func (b *slowBreaker) OnRequestComplete(rt int64, _ error) {
	slow := float64(rt) > b.rule.Count
	cur := b.current()
	if slow {
		cur.bad.Add(1)
	}
	cur.total.Add(1)

	switch b.State() {
	case StateOpen:
		return
	case StateHalfOpen:
		if slow {
			b.toOpen(1.0)
		} else {
			b.resetStat()
			b.transition(StateHalfOpen, StateClosed, nil)
		}
		return
	}

	bad, total := b.totals()
	if total < int64(b.rule.MinRequestAmount) {
		return
	}
	ratio := float64(bad) / float64(total)
	limit := b.rule.SlowRatioThreshold
	if ratio > limit || (ratio == limit && limit == 1.0) {
		b.toOpen(ratio)
	}
}

func newCircuitBreaker(rule domain.DegradeRule, clk clock.Clock, observers func() []StateObserver) CircuitBreaker {
	if rule.Grade == domain.DegradeSlowRequestRatio {
		b := &slowBreaker{}
		b.init(rule, clk, observers)
		return b
	}
	b := &errorBreaker{}
	b.init(rule, clk, observers)
	return b
}
