package domain

import (
	"fmt"
	"strings"
)

// FlowGrade é a métrica comparada pela regra de fluxo.
type FlowGrade int

const (
	FlowGradeConcurrency FlowGrade = iota
	FlowGradeQPS
)

var flowGradeNames = []string{"concurrency", "qps"}

func (g FlowGrade) String() string { return enumName(int(g), flowGradeNames) }
func (g FlowGrade) MarshalText() ([]byte, error) { return []byte(g.String()), nil }
func (g *FlowGrade) UnmarshalText(b []byte) error {
	i, err := enumText(b, flowGradeNames)
	*g = FlowGrade(i)
	return err
}

// RelationStrategy define qual nó é lido pela regra.
type RelationStrategy int

const (
	// StrategyDirect lê o nó do próprio recurso (ou da origem).
	StrategyDirect RelationStrategy = iota
	// StrategyRelate lê o ClusterNode de RefResource.
	StrategyRelate
	// StrategyChain só vale quando o nome do contexto é RefResource.
	StrategyChain
)

var strategyNames = []string{"direct", "relate", "chain"}

func (s RelationStrategy) String() string { return enumName(int(s), strategyNames) }
func (s RelationStrategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *RelationStrategy) UnmarshalText(b []byte) error {
	i, err := enumText(b, strategyNames)
	*s = RelationStrategy(i)
	return err
}

// ControlBehavior é o comportamento quando o limiar é atingido.
type ControlBehavior int

const (
	// BehaviorReject rejeita na hora.
	BehaviorReject ControlBehavior = iota
	// BehaviorWarmUp sobe o limiar linearmente a partir de count/3 durante WarmUpPeriodSec.
	BehaviorWarmUp
	// BehaviorRateLimiter espaça as chamadas e deixa o chamador esperar até MaxQueueingTimeMs.
	BehaviorRateLimiter
	BehaviorWarmUpRateLimiter
)

var behaviorNames = []string{"reject", "warm_up", "rate_limiter", "warm_up_rate_limiter"}

func (b ControlBehavior) String() string { return enumName(int(b), behaviorNames) }
func (b ControlBehavior) MarshalText() ([]byte, error) { return []byte(b.String()), nil }
func (b *ControlBehavior) UnmarshalText(text []byte) error {
	i, err := enumText(text, behaviorNames)
	*b = ControlBehavior(i)
	return err
}

const (
	DefaultWarmUpPeriodSec   = 10
	DefaultMaxQueueingTimeMs = 500
)

// FlowRule limita QPS ou concorrência de um recurso.
type FlowRule struct {
	Resource string `json:"resource" yaml:"resource"`
	// LimitApp: "default", "other" ou uma única origem. Listas só valem na regra de autoridade.
	LimitApp string    `json:"limitApp,omitempty" yaml:"limitApp,omitempty"`
	Grade    FlowGrade `json:"grade" yaml:"grade"`
	Count    float64   `json:"count" yaml:"count"`

	Strategy    RelationStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	RefResource string           `json:"refResource,omitempty" yaml:"refResource,omitempty"`

	ControlBehavior   ControlBehavior `json:"controlBehavior,omitempty" yaml:"controlBehavior,omitempty"`
	WarmUpPeriodSec   int             `json:"warmUpPeriodSec,omitempty" yaml:"warmUpPeriodSec,omitempty"`
	MaxQueueingTimeMs int             `json:"maxQueueingTimeMs,omitempty" yaml:"maxQueueingTimeMs,omitempty"`
	// MaxQueueingCallers limita quantos chamadores esperam ao mesmo tempo (0 = sem limite).
	MaxQueueingCallers int `json:"maxQueueingCallers,omitempty" yaml:"maxQueueingCallers,omitempty"`
}

// WithDefaults preenche os campos opcionais que vieram zerados.
func (r FlowRule) WithDefaults() FlowRule {
	if r.LimitApp == "" {
		r.LimitApp = LimitAppDefault
	}
	if r.WarmUpPeriodSec == 0 {
		r.WarmUpPeriodSec = DefaultWarmUpPeriodSec
	}
	if r.MaxQueueingTimeMs == 0 && (r.ControlBehavior == BehaviorRateLimiter || r.ControlBehavior == BehaviorWarmUpRateLimiter) {
		r.MaxQueueingTimeMs = DefaultMaxQueueingTimeMs
	}
	return r
}

func (r FlowRule) ResourceName() string { return r.Resource }

func (r FlowRule) Validate() error {
	switch {
	case r.Resource == "":
		return fmt.Errorf("%w: empty resource", ErrInvalidRule)
	case r.Count < 0:
		return invalidRule(r, "count must be >= 0, got %v", r.Count)
	case strings.Contains(r.LimitApp, ","):
		return invalidRule(r, "limitApp must be a single origin, got %q", r.LimitApp)
	case r.Grade != FlowGradeQPS && r.Grade != FlowGradeConcurrency:
		return invalidRule(r, "unknown grade %d", int(r.Grade))
	case r.Strategy < StrategyDirect || r.Strategy > StrategyChain:
		return invalidRule(r, "unknown strategy %d", int(r.Strategy))
	case r.Strategy != StrategyDirect && r.RefResource == "":
		return invalidRule(r, "strategy %s requires refResource", r.Strategy)
	case r.ControlBehavior < BehaviorReject || r.ControlBehavior > BehaviorWarmUpRateLimiter:
		return invalidRule(r, "unknown control behavior %d", int(r.ControlBehavior))
	case r.WarmUpPeriodSec < 0:
		return invalidRule(r, "warmUpPeriodSec must be >= 0")
	case r.MaxQueueingTimeMs < 0:
		return invalidRule(r, "maxQueueingTimeMs must be >= 0")
	case r.MaxQueueingCallers < 0:
		return invalidRule(r, "maxQueueingCallers must be >= 0")
	}
	return nil
}

func (r FlowRule) String() string {
	return fmt.Sprintf("FlowRule{resource=%s, limitApp=%s, grade=%s, count=%v, strategy=%s, refResource=%s, behavior=%s, warmUpPeriodSec=%d, maxQueueingTimeMs=%d}",
		r.Resource, r.LimitApp, r.Grade, r.Count, r.Strategy, r.RefResource, r.ControlBehavior, r.WarmUpPeriodSec, r.MaxQueueingTimeMs)
}
