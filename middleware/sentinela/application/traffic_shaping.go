package application

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

type shapingResult int

const (
	shapingPass shapingResult = iota
	shapingBlock
	// shapingWaited: chamada priorizada que esperou por uma janela futura.
	shapingWaited
)

// trafficShaper decide se acquireCount cabe no limiar da regra, lendo o nó escolhido.
type trafficShaper interface {
	CanPass(node domain.StatNode, acquireCount int, prioritized bool) shapingResult
}

const coldFactor = 3

func newTrafficShaper(rule domain.FlowRule, clk clock.Clock, sleep func(time.Duration)) trafficShaper {
	if rule.Grade == domain.FlowGradeQPS {
		switch rule.ControlBehavior {
		case domain.BehaviorWarmUp:
			return newWarmUpController(rule, clk)
		case domain.BehaviorRateLimiter:
			return newRateLimiterController(rule, clk, sleep)
		case domain.BehaviorWarmUpRateLimiter:
			return &warmUpRateLimiterController{
				warm:  newWarmUpController(rule, clk),
				pacer: newRateLimiterController(rule, clk, sleep),
			}
		}
	}
	return &defaultController{grade: rule.Grade, count: rule.Count, clk: clk, sleep: sleep}
}

// defaultController rejeita na hora. Chamadas priorizadas de QPS podem
// reservar uma fatia futura (até OccupyTimeoutMs) e esperar por ela.
type defaultController struct {
	grade domain.FlowGrade
	count float64
	clk   clock.Clock
	sleep func(time.Duration)
}

func (c *defaultController) used(node domain.StatNode) float64 {
	if c.grade == domain.FlowGradeConcurrency {
		return float64(node.CurConcurrency())
	}
	return node.PassQPS()
}

func (c *defaultController) CanPass(node domain.StatNode, acquireCount int, prioritized bool) shapingResult {
	if c.used(node)+float64(acquireCount) <= c.count {
		return shapingPass
	}
	if prioritized && c.grade == domain.FlowGradeQPS {
		now := c.clk.Now().UnixMilli()
		wait := node.TryOccupyNext(now, acquireCount, c.count)
		if wait < infra.OccupyTimeoutMs {
			node.AddWaitingRequest(now+wait, acquireCount)
			node.AddOccupiedPass(acquireCount)
			if wait > 0 {
				c.sleep(time.Duration(wait) * time.Millisecond)
			}
			return shapingWaited
		}
	}
	return shapingBlock
}

// rateLimiterController espaça as chamadas uniformemente (1/count s entre
// tokens) com golang.org/x/time/rate. Quem precisaria esperar mais que
// maxQueueing é rejeitado e a reserva é devolvida.
type rateLimiterController struct {
	count       float64
	maxQueueing time.Duration
	clk         clock.Clock
	sleep       func(time.Duration)
	pool        domain.WaitPool

	mu  sync.Mutex
	lim *rate.Limiter
}

func newRateLimiterController(rule domain.FlowRule, clk clock.Clock, sleep func(time.Duration)) *rateLimiterController {
	return &rateLimiterController{
		count:       rule.Count,
		maxQueueing: time.Duration(rule.MaxQueueingTimeMs) * time.Millisecond,
		clk:         clk,
		sleep:       sleep,
		pool:        infra.NewChanPool(rule.MaxQueueingCallers),
		lim:         rate.NewLimiter(rate.Limit(rule.Count), 1),
	}
}

// reserve reserva acquireCount tokens seguidos (burst 1 mantém o espaçamento)
// e devolve a espera até o último.
func (c *rateLimiterController) reserve(now time.Time, acquireCount int) (time.Duration, func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs := make([]*rate.Reservation, 0, acquireCount)
	cancel := func() {
		for i := len(rs) - 1; i >= 0; i-- {
			rs[i].CancelAt(now)
		}
	}
	var delay time.Duration
	for i := 0; i < acquireCount; i++ {
		r := c.lim.ReserveN(now, 1)
		if !r.OK() {
			cancel()
			return 0, nil, false
		}
		rs = append(rs, r)
		delay = r.DelayFrom(now)
		if delay > c.maxQueueing {
			cancel()
			return 0, nil, false
		}
	}
	return delay, cancel, true
}

func (c *rateLimiterController) CanPass(_ domain.StatNode, acquireCount int, _ bool) shapingResult {
	if acquireCount <= 0 {
		return shapingPass
	}
	if c.count <= 0 {
		return shapingBlock
	}
	delay, cancel, ok := c.reserve(c.clk.Now(), acquireCount)
	if !ok {
		return shapingBlock
	}
	if delay <= 0 {
		return shapingPass
	}
	release, ok := c.pool.TryAcquire()
	if !ok {
		c.mu.Lock()
		cancel()
		c.mu.Unlock()
		return shapingBlock
	}
	defer release()
	c.sleep(delay)
	return shapingPass
}

func (c *rateLimiterController) setLimit(now time.Time, qps float64) {
	c.lim.SetLimitAt(now, rate.Limit(qps))
}

// warmUpController é o token bucket de partida a frio: com o sistema ocioso o
// balde enche e o limiar cai para count/coldFactor; com tráfego ele esvazia e
// o limiar sobe linearmente até count em WarmUpPeriodSec.
type warmUpController struct {
	count        float64
	warningToken int64
	maxToken     int64
	slope        float64
	clk          clock.Clock

	mu             sync.Mutex
	storedTokens   int64
	lastFilledTime int64
}

func newWarmUpController(rule domain.FlowRule, clk clock.Clock) *warmUpController {
	period := float64(rule.WarmUpPeriodSec)
	c := &warmUpController{count: rule.Count, clk: clk}
	c.warningToken = int64(period*rule.Count) / (coldFactor - 1)
	c.maxToken = c.warningToken + int64(2*period*rule.Count/(1.0+coldFactor))
	if c.maxToken > c.warningToken && rule.Count > 0 {
		c.slope = (coldFactor - 1.0) / rule.Count / float64(c.maxToken-c.warningToken)
	}
	return c
}

func (c *warmUpController) coolDownTokens(currentTime int64, passQPS float64) int64 {
	old := c.storedTokens
	next := old
	refill := int64(float64(currentTime-c.lastFilledTime) * c.count / 1000)
	switch {
	case old < c.warningToken:
		next = old + refill
	case old > c.warningToken:
		if passQPS < float64(int64(c.count)/coldFactor) {
			next = old + refill
		}
	}
	return min(next, c.maxToken)
}

// syncToken repõe (ou gasta) tokens uma vez por segundo, usando o pass do segundo anterior.
func (c *warmUpController) syncToken(passQPS float64) {
	now := c.clk.Now().UnixMilli()
	currentTime := now - now%1000

	c.mu.Lock()
	defer c.mu.Unlock()
	if currentTime <= c.lastFilledTime {
		return
	}
	c.storedTokens = max(c.coolDownTokens(currentTime, passQPS)-int64(passQPS), 0)
	c.lastFilledTime = currentTime
}

// threshold devolve o limiar de QPS efetivo agora.
func (c *warmUpController) threshold(node domain.StatNode) float64 {
	c.syncToken(node.PreviousPassQPS())

	c.mu.Lock()
	rest := c.storedTokens
	c.mu.Unlock()

	if c.slope > 0 && rest >= c.warningToken {
		above := float64(rest - c.warningToken)
		return math.Nextafter(1.0/(above*c.slope+1.0/c.count), math.Inf(1))
	}
	return c.count
}

func (c *warmUpController) CanPass(node domain.StatNode, acquireCount int, _ bool) shapingResult {
	if c.count <= 0 {
		return shapingBlock
	}
	if node.PassQPS()+float64(acquireCount) <= c.threshold(node) {
		return shapingPass
	}
	return shapingBlock
}

// warmUpRateLimiterController espaça as chamadas usando o limiar do warm-up.
type warmUpRateLimiterController struct {
	warm  *warmUpController
	pacer *rateLimiterController
}

func (c *warmUpRateLimiterController) CanPass(node domain.StatNode, acquireCount int, prioritized bool) shapingResult {
	if c.warm.count <= 0 {
		return shapingBlock
	}
	c.pacer.setLimit(c.pacer.clk.Now(), c.warm.threshold(node))
	return c.pacer.CanPass(node, acquireCount, prioritized)
}
