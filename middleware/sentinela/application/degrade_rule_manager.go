package application

import (
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// DegradeRuleManager guarda um circuit breaker por regra. Na recarga, regras
// idênticas às anteriores mantêm o breaker (e o estado).
type DegradeRuleManager struct {
	clk    clock.Clock
	logger *zap.Logger
	snap   *infra.Snapshot[map[string][]CircuitBreaker]

	loadMu sync.Mutex

	obsMu     sync.RWMutex
	observers []StateObserver
}

func NewDegradeRuleManager(clk clock.Clock, logger *zap.Logger) *DegradeRuleManager {
	m := &DegradeRuleManager{
		clk:    clk,
		logger: logger,
		snap:   infra.NewSnapshot(map[string][]CircuitBreaker{}),
	}
	m.AddStateObserver(func(rule domain.DegradeRule, from, to CircuitState, snapshot any) {
		m.logger.Info("circuit breaker state changed",
			zap.String("resource", rule.Resource), zap.Stringer("grade", rule.Grade),
			zap.Stringer("from", from), zap.Stringer("to", to), zap.Any("snapshot", snapshot))
	})
	return m
}

func (m *DegradeRuleManager) AddStateObserver(o StateObserver) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *DegradeRuleManager) stateObservers() []StateObserver {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	return m.observers
}

// LoadRules troca o conjunto inteiro. Qualquer regra inválida rejeita a carga.
func (m *DegradeRuleManager) LoadRules(rules []domain.DegradeRule) error {
	normalized := make([]domain.DegradeRule, len(rules))
	for i, r := range rules {
		normalized[i] = r.WithDefaults()
	}
	if err := validateAll(normalized); err != nil {
		return err
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	reusable := make(map[domain.DegradeRule][]CircuitBreaker)
	for _, cbs := range m.snap.Load() {
		for _, cb := range cbs {
			reusable[cb.Rule()] = append(reusable[cb.Rule()], cb)
		}
	}

	next := make(map[string][]CircuitBreaker)
	reused := 0
	for _, r := range normalized {
		var cb CircuitBreaker
		if olds := reusable[r]; len(olds) > 0 {
			cb, reusable[r] = olds[0], olds[1:]
			reused++
		} else {
			cb = newCircuitBreaker(r, m.clk, m.stateObservers)
		}
		next[r.Resource] = append(next[r.Resource], cb)
	}
	m.snap.Store(next)
	m.logger.Info("degrade rules loaded", zap.Int("count", len(normalized)), zap.Int("reused", reused))
	return nil
}

func (m *DegradeRuleManager) Rules() []domain.DegradeRule {
	var out []domain.DegradeRule
	for _, cbs := range m.snap.Load() {
		for _, cb := range cbs {
			out = append(out, cb.Rule())
		}
	}
	return out
}

func (m *DegradeRuleManager) RulesFor(resource string) []domain.DegradeRule {
	cbs := m.snap.Load()[resource]
	out := make([]domain.DegradeRule, 0, len(cbs))
	for _, cb := range cbs {
		out = append(out, cb.Rule())
	}
	return out
}

// CircuitBreakers devolve os breakers do recurso (na ordem de carga).
func (m *DegradeRuleManager) CircuitBreakers(resource string) []CircuitBreaker {
	return append([]CircuitBreaker(nil), m.snap.Load()[resource]...)
}

func (m *DegradeRuleManager) HasConfig(resource string) bool {
	return len(m.snap.Load()[resource]) > 0
}

func (m *DegradeRuleManager) ClearRules() {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.snap.Store(map[string][]CircuitBreaker{})
}

type degradeSlot struct {
	LinkedSlot
	g *Guard
}

func newDegradeSlot(g *Guard) *degradeSlot { return &degradeSlot{g: g} }

func (s *degradeSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	for _, cb := range s.g.degradeRules.snap.Load()[rw.Name()] {
		if !cb.TryPass(c) {
			return domain.NewBlockError(domain.BlockTypeDegrade, rw.Name(), cb.Rule(), "circuit breaker "+cb.State().String()).
				WithSnapshot(cb.State())
		}
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *degradeSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	e := c.CurEntry()
	if e == nil || e.BlockError() != nil {
		s.FireExit(c, rw, count, args...)
		return
	}
	cbs := s.g.degradeRules.snap.Load()[rw.Name()]
	if len(cbs) > 0 {
		done := e.CompleteTime()
		if done <= 0 {
			done = s.g.nowMs()
		}
		rt := done - e.CreateTime()
		for _, cb := range cbs {
			cb.OnRequestComplete(rt, e.Err())
		}
	}
	s.FireExit(c, rw, count, args...)
}
