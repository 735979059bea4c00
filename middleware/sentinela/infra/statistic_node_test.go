package infra

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fronteira/middleware/sentinela/domain"
)

func newMockClock(ms int64) *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(ms))
	return clk
}

func TestStatisticNode_Counters(t *testing.T) {
	clk := newMockClock(1_000_000)
	n := NewStatisticNode(DefaultStatConfig(), clk)

	n.AddPassRequest(3)
	n.IncreaseBlockQPS(2)
	n.IncreaseExceptionQPS(1)

	assert.Equal(t, 3.0, n.PassQPS())
	assert.Equal(t, 2.0, n.BlockQPS())
	assert.Equal(t, 5.0, n.TotalQPS())
	assert.Equal(t, 1.0, n.ExceptionQPS())
	assert.Equal(t, int64(5), n.TotalRequest())
	assert.Equal(t, int64(2), n.BlockRequest())
}

func TestStatisticNode_RT(t *testing.T) {
	clk := newMockClock(1_000_000)
	n := NewStatisticNode(DefaultStatConfig(), clk)

	assert.Equal(t, 0.0, n.AvgRT())

	n.AddRTAndSuccess(10, 1)
	n.AddRTAndSuccess(30, 1)

	assert.Equal(t, 20.0, n.AvgRT())
	assert.Equal(t, 10.0, n.MinRT())
	assert.Equal(t, int64(2), n.TotalSuccess())
}

func TestStatisticNode_Concurrency(t *testing.T) {
	n := NewStatisticNode(DefaultStatConfig(), newMockClock(1_000_000))

	n.IncreaseConcurrency()
	n.IncreaseConcurrency()
	n.DecreaseConcurrency()
	assert.Equal(t, int64(1), n.CurConcurrency())
}

func TestStatisticNode_SecondWindowSlides(t *testing.T) {
	clk := newMockClock(1_000_000)
	n := NewStatisticNode(DefaultStatConfig(), clk)

	n.AddPassRequest(5)
	clk.Add(1500 * time.Millisecond)

	assert.Equal(t, 0.0, n.PassQPS())
	// a janela de minuto ainda enxerga
	assert.Equal(t, int64(5), n.TotalPass())
	assert.Equal(t, 5.0, n.PreviousPassQPS())

	clk.Add(time.Second)
	assert.Equal(t, 0.0, n.PreviousPassQPS())
}

func TestStatisticNode_Reset(t *testing.T) {
	n := NewStatisticNode(DefaultStatConfig(), newMockClock(1_000_000))
	n.AddPassRequest(5)
	n.Reset()
	assert.Equal(t, 0.0, n.PassQPS())
	assert.Equal(t, int64(0), n.TotalPass())
}

func TestStatisticNode_MetricsReturnsClosedSecondsOnce(t *testing.T) {
	clk := newMockClock(1_000_000)
	n := NewStatisticNode(DefaultStatConfig(), clk)

	n.AddPassRequest(3)
	n.IncreaseBlockQPS(1)
	assert.Empty(t, n.Metrics(), "o segundo atual não está fechado")

	clk.Add(time.Second)
	got := n.Metrics()
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[1_000_000].Pass)
	assert.Equal(t, int64(1), got[1_000_000].Block)

	assert.Empty(t, n.Metrics())
}

func TestStatisticNode_TryOccupyNext(t *testing.T) {
	clk := newMockClock(999_600)
	n := NewStatisticNode(DefaultStatConfig(), clk)
	n.AddPassRequest(2)

	clk.Set(time.UnixMilli(1_000_200))
	assert.Equal(t, int64(300), n.TryOccupyNext(1_000_200, 1, 2))

	n.AddPassRequest(2)
	assert.Equal(t, OccupyTimeoutMs, n.TryOccupyNext(1_000_200, 1, 2))
}

func TestStatisticNode_WaitingAndOccupiedPass(t *testing.T) {
	clk := newMockClock(1_000_200)
	n := NewStatisticNode(DefaultStatConfig(), clk)

	n.AddWaitingRequest(1_000_500, 2)
	assert.Equal(t, int64(2), n.Waiting())

	clk.Set(time.UnixMilli(1_000_500))
	n.AddOccupiedPass(2)
	// o bucket novo nasce com o que foi emprestado
	assert.Equal(t, 2.0, n.PassQPS())
	assert.Equal(t, int64(0), n.Waiting())
	assert.Equal(t, int64(2), n.TotalPass())
}

func TestStatisticNode_ImplementsStatNode(t *testing.T) {
	var _ domain.StatNode = NewStatisticNode(DefaultStatConfig(), nil)
}
