package application

import (
	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
)

// logSlot registra os bloqueios. O log é limitado por recurso para não virar
// gargalo sob ataque.
type logSlot struct {
	LinkedSlot
	g      *Guard
	logger *zap.Logger
}

func newLogSlot(g *Guard) *logSlot {
	return &logSlot{g: g, logger: g.logger.Named("block")}
}

func (s *logSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	err := s.FireEntry(c, rw, node, count, prioritized, args...)
	if be, ok := domain.AsBlockError(err); ok && s.g.logLimiter.Allow(rw.Name()) {
		fields := []zap.Field{
			zap.String("resource", rw.Name()),
			zap.Stringer("type", be.BlockType()),
			zap.String("context", c.Name()),
			zap.String("origin", c.Origin()),
			zap.Int("count", count),
		}
		if r := be.Rule(); r != nil {
			fields = append(fields, zap.Stringer("rule", r))
		}
		s.logger.Info("blocked", fields...)
	}
	return err
}

func (s *logSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}
