package application

import (
	"strings"

	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

type AuthorityRuleManager struct {
	logger *zap.Logger
	snap   *infra.Snapshot[map[string][]domain.AuthorityRule]
}

func NewAuthorityRuleManager(logger *zap.Logger) *AuthorityRuleManager {
	return &AuthorityRuleManager{
		logger: logger,
		snap:   infra.NewSnapshot(map[string][]domain.AuthorityRule{}),
	}
}

// LoadRules troca o conjunto inteiro. Qualquer regra inválida rejeita a carga.
func (m *AuthorityRuleManager) LoadRules(rules []domain.AuthorityRule) error {
	if err := validateAll(rules); err != nil {
		return err
	}
	m.snap.Store(byResource(rules, domain.AuthorityRule.ResourceName))
	m.logger.Info("authority rules loaded", zap.Int("count", len(rules)))
	return nil
}

func (m *AuthorityRuleManager) Rules() []domain.AuthorityRule {
	var out []domain.AuthorityRule
	for _, rs := range m.snap.Load() {
		out = append(out, rs...)
	}
	return out
}

func (m *AuthorityRuleManager) RulesFor(resource string) []domain.AuthorityRule {
	return append([]domain.AuthorityRule(nil), m.snap.Load()[resource]...)
}

func (m *AuthorityRuleManager) HasConfig(resource string) bool {
	return len(m.snap.Load()[resource]) > 0
}

func (m *AuthorityRuleManager) ClearRules() {
	m.snap.Store(map[string][]domain.AuthorityRule{})
}

// passAuthority compara a origem com a lista limitApp (separada por vírgula).
// Origem vazia passa.
func passAuthority(rule domain.AuthorityRule, origin string) bool {
	if origin == "" || rule.LimitApp == "" {
		return true
	}
	contains := false
	if strings.Contains(rule.LimitApp, origin) {
		for _, app := range strings.Split(rule.LimitApp, ",") {
			if strings.TrimSpace(app) == origin {
				contains = true
				break
			}
		}
	}
	switch rule.Strategy {
	case domain.AuthorityBlack:
		return !contains
	case domain.AuthorityWhite:
		return contains
	}
	return true
}

type authoritySlot struct {
	LinkedSlot
	g *Guard
}

func newAuthoritySlot(g *Guard) *authoritySlot { return &authoritySlot{g: g} }

func (s *authoritySlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	for _, r := range s.g.authorityRules.snap.Load()[rw.Name()] {
		if !passAuthority(r, c.Origin()) {
			return domain.NewBlockError(domain.BlockTypeAuthority, rw.Name(), r, "origin "+c.Origin()).WithSnapshot(c.Origin())
		}
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *authoritySlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}
