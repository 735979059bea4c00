package application

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fronteira/middleware/sentinela/domain"
)

// 250ms dentro do segundo: escritas de um mesmo instante ficam num bucket
// que envelhece inteiro depois de +1s.
const testStartMs = 1_000_000_250

func newTestGuard(t *testing.T, opts ...Option) (*Guard, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(testStartMs))
	all := append([]Option{WithClock(clk), WithLogger(zaptest.NewLogger(t))}, opts...)
	g, err := NewGuard(all...)
	require.NoError(t, err)
	return g, clk
}

// call entra e sai imediatamente; devolve o erro de bloqueio, se houver.
func call(t *testing.T, g *Guard, c *domain.Context, resource string, opts ...EntryOption) error {
	t.Helper()
	e, err := g.Entry(c, resource, opts...)
	if err != nil {
		return err
	}
	require.NoError(t, e.Exit())
	return nil
}

type recordingSlot struct {
	LinkedSlot
	name string
	log  *[]string
}

func (s *recordingSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	*s.log = append(*s.log, "entry:"+s.name)
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *recordingSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	*s.log = append(*s.log, "exit:"+s.name)
	s.FireExit(c, rw, count, args...)
}

// errorSlot devolve sempre o mesmo erro na entrada.
type errorSlot struct {
	LinkedSlot
	err error
}

func (s *errorSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	if s.err != nil {
		return s.err
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *errorSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}
