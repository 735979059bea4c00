package application

import (
	"errors"

	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// errPriorityWait sinaliza que a chamada priorizada já esperou e foi contada
// numa janela futura: passa, mas o pass não é somado de novo.
var errPriorityWait = errors.New("sentinela: prioritized call waited for next window")

type statisticSlot struct {
	LinkedSlot
	g *Guard
}

func newStatisticSlot(g *Guard) *statisticSlot { return &statisticSlot{g: g} }

// statNodes devolve os nós que recebem a contabilidade da chamada:
// o do recurso, o da origem (se houver) e o total de entrada (se Inbound).
func (s *statisticSlot) statNodes(c *domain.Context, rw domain.ResourceWrapper, node domain.StatNode) []domain.StatNode {
	out := make([]domain.StatNode, 0, 3)
	if node != nil {
		out = append(out, node)
	}
	if on := c.OriginNode(); on != nil {
		out = append(out, on)
	}
	if rw.EntryType() == domain.Inbound {
		out = append(out, s.g.inbound)
	}
	return out
}

func (s *statisticSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	err := s.FireEntry(c, rw, node, count, prioritized, args...)

	var be *domain.BlockError
	switch {
	case err == nil:
		for _, n := range s.statNodes(c, rw, node) {
			n.IncreaseConcurrency()
			n.AddPassRequest(count)
		}
		s.g.callbacks.firePass(c, rw, node, count, args...)
		return nil

	case errors.Is(err, errPriorityWait):
		for _, n := range s.statNodes(c, rw, node) {
			n.IncreaseConcurrency()
		}
		s.g.callbacks.firePass(c, rw, node, count, args...)
		return nil

	case errors.As(err, &be):
		if e := c.CurEntry(); e != nil {
			e.SetBlockError(be)
		}
		for _, n := range s.statNodes(c, rw, node) {
			n.IncreaseBlockQPS(count)
		}
		s.g.callbacks.fireBlocked(c, rw, node, count, be, args...)
		return err

	default:
		// falha inesperada de um slot de decisão: a chamada passa
		s.g.logger.Error("slot failed, passing through",
			zap.String("resource", rw.Name()), zap.Error(err))
		for _, n := range s.statNodes(c, rw, node) {
			n.IncreaseConcurrency()
			n.AddPassRequest(count)
		}
		return nil
	}
}

func (s *statisticSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	e := c.CurEntry()
	if e != nil && e.BlockError() == nil {
		now := s.g.nowMs()
		e.SetCompleteTime(now)
		rt := now - e.CreateTime()
		if rt > infra.StatisticMaxRT {
			rt = infra.StatisticMaxRT
		}
		if rt < 0 {
			rt = 0
		}
		var node domain.StatNode
		if n := e.CurNode(); n != nil {
			node = n
		}
		for _, n := range s.statNodes(c, rw, node) {
			n.AddRTAndSuccess(rt, count)
			n.DecreaseConcurrency()
			if e.Err() != nil {
				n.IncreaseExceptionQPS(count)
			}
		}
		s.g.callbacks.fireExit(c, rw, rt, count, e.Err(), args...)
	}
	s.FireExit(c, rw, count, args...)
}
