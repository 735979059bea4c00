package application

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

type flowRuleEntry struct {
	rule   domain.FlowRule
	shaper trafficShaper
}

// FlowRuleManager guarda as regras de fluxo (e seus controladores) por recurso.
type FlowRuleManager struct {
	clk    clock.Clock
	logger *zap.Logger
	sleep  func(time.Duration)
	snap   *infra.Snapshot[map[string][]*flowRuleEntry]
}

func NewFlowRuleManager(clk clock.Clock, logger *zap.Logger) *FlowRuleManager {
	return &FlowRuleManager{
		clk:    clk,
		logger: logger,
		sleep:  clk.Sleep,
		snap:   infra.NewSnapshot(map[string][]*flowRuleEntry{}),
	}
}

// LoadRules troca o conjunto inteiro. Os padrões são aplicados antes da
// validação; qualquer regra inválida rejeita a carga e mantém o conjunto anterior.
func (m *FlowRuleManager) LoadRules(rules []domain.FlowRule) error {
	normalized := make([]domain.FlowRule, len(rules))
	for i, r := range rules {
		normalized[i] = r.WithDefaults()
	}
	if err := validateAll(normalized); err != nil {
		return err
	}

	next := make(map[string][]*flowRuleEntry)
	for _, r := range normalized {
		next[r.Resource] = append(next[r.Resource], &flowRuleEntry{
			rule:   r,
			shaper: newTrafficShaper(r, m.clk, m.sleep),
		})
	}
	m.snap.Store(next)
	m.logger.Info("flow rules loaded", zap.Int("count", len(normalized)), zap.Int("resources", len(next)))
	return nil
}

func (m *FlowRuleManager) Rules() []domain.FlowRule {
	var out []domain.FlowRule
	for _, es := range m.snap.Load() {
		for _, e := range es {
			out = append(out, e.rule)
		}
	}
	return out
}

func (m *FlowRuleManager) RulesFor(resource string) []domain.FlowRule {
	es := m.snap.Load()[resource]
	out := make([]domain.FlowRule, 0, len(es))
	for _, e := range es {
		out = append(out, e.rule)
	}
	return out
}

func (m *FlowRuleManager) HasConfig(resource string) bool {
	return len(m.snap.Load()[resource]) > 0
}

func (m *FlowRuleManager) ClearRules() {
	m.snap.Store(map[string][]*flowRuleEntry{})
}

// isOtherOrigin: a origem não é citada por nenhuma regra do recurso.
func isOtherOrigin(origin string, entries []*flowRuleEntry) bool {
	if origin == "" {
		return false
	}
	for _, e := range entries {
		if e.rule.LimitApp == origin {
			return false
		}
	}
	return true
}

type flowSlot struct {
	LinkedSlot
	g *Guard
}

func newFlowSlot(g *Guard) *flowSlot { return &flowSlot{g: g} }

func (s *flowSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	entries := s.g.flowRules.snap.Load()[rw.Name()]
	for _, e := range entries {
		n := s.selectNode(e.rule, c, node, entries)
		if n == nil {
			continue
		}
		switch e.shaper.CanPass(n, count, prioritized) {
		case shapingBlock:
			return domain.NewBlockError(domain.BlockTypeFlow, rw.Name(), e.rule,
				fmt.Sprintf("%s threshold %v exceeded", e.rule.Grade, e.rule.Count)).WithSnapshot(n.PassQPS())
		case shapingWaited:
			return errPriorityWait
		}
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *flowSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}

// selectNode escolhe o nó lido pela regra conforme limitApp e strategy.
// nil significa que a regra não se aplica a esta chamada.
func (s *flowSlot) selectNode(rule domain.FlowRule, c *domain.Context, node domain.TreeNode, entries []*flowRuleEntry) domain.StatNode {
	origin := c.Origin()
	switch {
	case origin != "" && rule.LimitApp == origin && origin != domain.LimitAppDefault && origin != domain.LimitAppOther:
		if rule.Strategy == domain.StrategyDirect {
			return c.OriginNode()
		}
		return s.refNode(rule, c, node)

	case rule.LimitApp == domain.LimitAppDefault:
		if rule.Strategy == domain.StrategyDirect {
			if dn, ok := node.(*infra.DefaultNode); ok {
				if cn := dn.ClusterNode(); cn != nil {
					return cn
				}
			}
			return nil
		}
		return s.refNode(rule, c, node)

	case rule.LimitApp == domain.LimitAppOther && isOtherOrigin(origin, entries):
		if rule.Strategy == domain.StrategyDirect {
			return c.OriginNode()
		}
		return s.refNode(rule, c, node)
	}
	return nil
}

func (s *flowSlot) refNode(rule domain.FlowRule, c *domain.Context, node domain.TreeNode) domain.StatNode {
	switch rule.Strategy {
	case domain.StrategyRelate:
		if cn, ok := s.g.nodes.Get(rule.RefResource); ok {
			return cn
		}
	case domain.StrategyChain:
		if rule.RefResource == c.Name() && node != nil {
			return node
		}
	}
	return nil
}
