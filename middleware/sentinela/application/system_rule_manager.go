package application

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// systemThresholds é o conjunto efetivo: o menor valor de cada limiar entre
// as regras carregadas (<= 0 = desligado).
type systemThresholds struct {
	rules          []domain.SystemRule
	load           float64
	cpu            float64
	qps            float64
	avgRT          int64
	maxConcurrency int64
}

func (t systemThresholds) enabled() bool {
	return t.load > 0 || t.cpu > 0 || t.qps > 0 || t.avgRT > 0 || t.maxConcurrency > 0
}

type SystemRuleManager struct {
	logger *zap.Logger
	snap   *infra.Snapshot[systemThresholds]
}

func NewSystemRuleManager(logger *zap.Logger) *SystemRuleManager {
	return &SystemRuleManager{logger: logger, snap: infra.NewSnapshot(systemThresholds{})}
}

func minPositive[T int64 | float64](cur, v T) T {
	if v <= 0 {
		return cur
	}
	if cur <= 0 || v < cur {
		return v
	}
	return cur
}

// LoadRules valida tudo antes: qualquer regra inválida rejeita a carga inteira.
func (m *SystemRuleManager) LoadRules(rules []domain.SystemRule) error {
	var errs error
	for _, r := range rules {
		errs = multierr.Append(errs, r.Validate())
	}
	if errs != nil {
		return errs
	}

	t := systemThresholds{rules: append([]domain.SystemRule(nil), rules...)}
	for _, r := range rules {
		t.load = minPositive(t.load, r.HighestSystemLoad)
		t.cpu = minPositive(t.cpu, r.HighestCPUUsage)
		t.qps = minPositive(t.qps, r.QPS)
		t.avgRT = minPositive(t.avgRT, r.AvgRT)
		t.maxConcurrency = minPositive(t.maxConcurrency, r.MaxConcurrency)
	}
	m.snap.Store(t)
	m.logger.Info("system rules loaded", zap.Int("count", len(rules)),
		zap.Float64("load", t.load), zap.Float64("cpu", t.cpu), zap.Float64("qps", t.qps),
		zap.Int64("avgRt", t.avgRT), zap.Int64("maxConcurrency", t.maxConcurrency))
	return nil
}

func (m *SystemRuleManager) Rules() []domain.SystemRule {
	return append([]domain.SystemRule(nil), m.snap.Load().rules...)
}

func (m *SystemRuleManager) HasConfig() bool { return m.snap.Load().enabled() }

func (m *SystemRuleManager) ClearRules() { m.snap.Store(systemThresholds{}) }

func (m *SystemRuleManager) thresholds() systemThresholds { return m.snap.Load() }

type systemSlot struct {
	LinkedSlot
	g *Guard
}

func newSystemSlot(g *Guard) *systemSlot { return &systemSlot{g: g} }

func (s *systemSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	if err := s.check(rw, count); err != nil {
		return err
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *systemSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}

func systemBlock(rw domain.ResourceWrapper, limit string, observed any) error {
	return domain.NewBlockError(domain.BlockTypeSystem, rw.Name(), nil, limit).WithSnapshot(observed)
}

func (s *systemSlot) check(rw domain.ResourceWrapper, count int) error {
	if rw.EntryType() != domain.Inbound {
		return nil
	}
	t := s.g.systemRules.thresholds()
	if !t.enabled() {
		return nil
	}
	in := s.g.inbound

	if t.qps > 0 {
		if qps := in.PassQPS(); qps+float64(count) > t.qps {
			return systemBlock(rw, "qps", qps)
		}
	}
	conc := in.CurConcurrency()
	if t.maxConcurrency > 0 && conc > t.maxConcurrency {
		return systemBlock(rw, "concurrency", conc)
	}
	if t.avgRT > 0 {
		if rt := in.AvgRT(); rt > float64(t.avgRT) {
			return systemBlock(rw, "avgRt", rt)
		}
	}
	if t.load > 0 {
		if load := s.g.systemStatus.Load(); load > t.load && !s.checkBBR(conc) {
			return systemBlock(rw, "load", load)
		}
	}
	if t.cpu > 0 {
		if cpu := s.g.systemStatus.CPUUsage(); cpu > t.cpu {
			return systemBlock(rw, "cpu", cpu)
		}
	}
	return nil
}

// checkBBR só deixa o load bloquear quando a concorrência passa a capacidade
// estimada (maxSuccessQPS * minRT).
func (s *systemSlot) checkBBR(concurrency int64) bool {
	in := s.g.inbound
	return !(concurrency > 1 && float64(concurrency) > in.MaxSuccessQPS()*in.MinRT()/1000)
}
