package application

import (
	"sort"

	"fronteira/middleware/sentinela/domain"
)

// Ordem dos slots padrão (menor roda antes).
const (
	OrderNodeSelector   = -10000
	OrderClusterBuilder = -9000
	OrderLog            = -8000
	OrderStatistic      = -7000
	OrderSystem         = -6000
	OrderAuthority      = -5000
	OrderFlow           = -2000
	OrderDegrade        = -1000
)

// LinkableSlot é um slot que pode ser encadeado.
type LinkableSlot interface {
	domain.ProcessorSlot
	SetNext(next domain.ProcessorSlot)
}

// LinkedSlot implementa o encadeamento; slots concretos o embutem e chamam
// FireEntry/FireExit para repassar ao próximo estágio.
type LinkedSlot struct {
	next domain.ProcessorSlot
}

func (s *LinkedSlot) SetNext(next domain.ProcessorSlot) { s.next = next }
func (s *LinkedSlot) Next() domain.ProcessorSlot { return s.next }

func (s *LinkedSlot) FireEntry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	if s.next == nil {
		return nil
	}
	return s.next.Entry(c, rw, node, count, prioritized, args...)
}

func (s *LinkedSlot) FireExit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	if s.next != nil {
		s.next.Exit(c, rw, count, args...)
	}
}

// SlotChain é uma lista encadeada de slots, e também é um slot.
type SlotChain struct {
	head LinkedSlot
	tail LinkableSlot
}

func NewSlotChain() *SlotChain { return &SlotChain{} }

func (sc *SlotChain) AddFirst(s LinkableSlot) {
	s.SetNext(sc.head.next)
	sc.head.next = s
	if sc.tail == nil {
		sc.tail = s
	}
}

func (sc *SlotChain) AddLast(s LinkableSlot) {
	if sc.tail == nil {
		sc.head.next = s
	} else {
		sc.tail.SetNext(s)
	}
	sc.tail = s
}

func (sc *SlotChain) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	return sc.head.FireEntry(c, rw, node, count, prioritized, args...)
}

func (sc *SlotChain) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	sc.head.FireExit(c, rw, count, args...)
}

// SlotFactory cria uma instância nova do slot para uma chain (slots guardam estado por recurso).
type SlotFactory func(g *Guard) LinkableSlot

type slotRegistration struct {
	order   int
	factory SlotFactory
}

// SlotChainBuilder monta a chain de um recurso.
type SlotChainBuilder interface {
	Build(g *Guard) *SlotChain
}

// DefaultSlotChainBuilder ordena os slots registrados pelo valor de ordem
// (estável: empates mantêm a ordem de registro).
type DefaultSlotChainBuilder struct {
	slots []slotRegistration
}

func NewDefaultSlotChainBuilder() *DefaultSlotChainBuilder {
	b := &DefaultSlotChainBuilder{}
	b.Register(OrderNodeSelector, func(g *Guard) LinkableSlot { return newNodeSelectorSlot(g) })
	b.Register(OrderClusterBuilder, func(g *Guard) LinkableSlot { return newClusterBuilderSlot(g) })
	b.Register(OrderLog, func(g *Guard) LinkableSlot { return newLogSlot(g) })
	b.Register(OrderStatistic, func(g *Guard) LinkableSlot { return newStatisticSlot(g) })
	b.Register(OrderSystem, func(g *Guard) LinkableSlot { return newSystemSlot(g) })
	b.Register(OrderAuthority, func(g *Guard) LinkableSlot { return newAuthoritySlot(g) })
	b.Register(OrderFlow, func(g *Guard) LinkableSlot { return newFlowSlot(g) })
	b.Register(OrderDegrade, func(g *Guard) LinkableSlot { return newDegradeSlot(g) })
	return b
}

func (b *DefaultSlotChainBuilder) Register(order int, f SlotFactory) {
	b.slots = append(b.slots, slotRegistration{order: order, factory: f})
}

func (b *DefaultSlotChainBuilder) Build(g *Guard) *SlotChain {
	regs := make([]slotRegistration, len(b.slots))
	copy(regs, b.slots)
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].order < regs[j].order })

	chain := NewSlotChain()
	for _, r := range regs {
		chain.AddLast(r.factory(g))
	}
	return chain
}
