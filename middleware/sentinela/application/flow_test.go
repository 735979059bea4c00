package application

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

func countPasses(t *testing.T, g *Guard, c *domain.Context, resource string, n int) int {
	t.Helper()
	pass := 0
	for i := 0; i < n; i++ {
		if call(t, g, c, resource) == nil {
			pass++
		}
	}
	return pass
}

func TestFlow_SpecificOrigin(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "r", LimitApp: "app-a", Grade: domain.FlowGradeQPS, Count: 1},
	}))

	assert.Equal(t, 1, countPasses(t, g, g.Enter("ctx", "app-a"), "r", 5))
	assert.Equal(t, 5, countPasses(t, g, g.Enter("ctx", "app-b"), "r", 5))
	assert.Equal(t, 5, countPasses(t, g, g.Enter("ctx", ""), "r", 5))
}

func TestFlow_OtherOrigin(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "r", LimitApp: "app-a", Grade: domain.FlowGradeQPS, Count: 100},
		{Resource: "r", LimitApp: domain.LimitAppOther, Grade: domain.FlowGradeQPS, Count: 1},
	}))

	assert.Equal(t, 5, countPasses(t, g, g.Enter("ctx", "app-a"), "r", 5))
	assert.Equal(t, 1, countPasses(t, g, g.Enter("ctx", "app-b"), "r", 5))
	assert.Equal(t, 1, countPasses(t, g, g.Enter("ctx", "app-c"), "r", 5))
}

func TestFlow_RelateReadsRefResource(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "write", Grade: domain.FlowGradeQPS, Count: 2, Strategy: domain.StrategyRelate, RefResource: "read"},
	}))

	// sem tráfego em read (nem nó), a regra não se aplica
	assert.Equal(t, 3, countPasses(t, g, nil, "write", 3))

	require.Equal(t, 3, countPasses(t, g, nil, "read", 3))
	assert.Equal(t, 0, countPasses(t, g, nil, "write", 3))
}

func TestFlow_ChainOnlyForEntranceContext(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "r", Grade: domain.FlowGradeQPS, Count: 1, Strategy: domain.StrategyChain, RefResource: "entrance1"},
	}))

	assert.Equal(t, 1, countPasses(t, g, g.Enter("entrance1", ""), "r", 4))
	assert.Equal(t, 4, countPasses(t, g, g.Enter("entrance2", ""), "r", 4))
}

func TestFlow_PrioritizedBorrowsNextWindow(t *testing.T) {
	g, clk := newTestGuard(t)
	base := int64(testStartMs - 250)
	clk.Set(time.UnixMilli(base - 400))

	var slept []time.Duration
	g.FlowRules().sleep = func(d time.Duration) { slept = append(slept, d) }
	require.NoError(t, g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "r", Grade: domain.FlowGradeQPS, Count: 2},
	}))

	require.Equal(t, 2, countPasses(t, g, nil, "r", 2))

	clk.Set(time.UnixMilli(base + 200))
	assert.True(t, domain.IsBlocked(call(t, g, nil, "r")))

	e, err := g.Entry(nil, "r", WithPrioritized(true))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, slept)

	cn, _ := g.ClusterNode("r")
	assert.Equal(t, int64(1), cn.CurConcurrency())
	assert.Equal(t, int64(1), cn.Waiting())
	require.NoError(t, e.Exit())
}

func TestFlowRuleManager_LoadIsAllOrNothing(t *testing.T) {
	g, _ := newTestGuard(t)
	m := g.FlowRules()
	require.NoError(t, m.LoadRules([]domain.FlowRule{{Resource: "r", Grade: domain.FlowGradeQPS, Count: 1}}))

	err := m.LoadRules([]domain.FlowRule{
		{Resource: "r", Grade: domain.FlowGradeQPS, Count: 10},
		{Resource: "", Grade: domain.FlowGradeQPS, Count: 1},
		{Resource: "x", Grade: domain.FlowGradeQPS, Count: -1},
	})
	require.ErrorIs(t, err, domain.ErrInvalidRule)

	rules := m.RulesFor("r")
	require.Len(t, rules, 1)
	assert.Equal(t, 1.0, rules[0].Count)
	assert.False(t, m.HasConfig("x"))
}

func TestFlowRuleManager_DefaultsAndClear(t *testing.T) {
	g, _ := newTestGuard(t)
	m := g.FlowRules()
	require.NoError(t, m.LoadRules([]domain.FlowRule{
		{Resource: "r", Grade: domain.FlowGradeQPS, Count: 1, ControlBehavior: domain.BehaviorRateLimiter},
	}))

	r := m.RulesFor("r")[0]
	assert.Equal(t, domain.LimitAppDefault, r.LimitApp)
	assert.Equal(t, domain.DefaultMaxQueueingTimeMs, r.MaxQueueingTimeMs)
	assert.Len(t, m.Rules(), 1)

	m.ClearRules()
	assert.False(t, m.HasConfig("r"))
	assert.NoError(t, call(t, g, nil, "r"))
}

func newMock(ms int64) *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(ms))
	return clk
}

func TestRateLimiterController_PacesAndRejectsLongWaits(t *testing.T) {
	clk := newMock(testStartMs)
	var slept []time.Duration
	c := newRateLimiterController(domain.FlowRule{Count: 10, MaxQueueingTimeMs: 500}, clk, func(d time.Duration) { slept = append(slept, d) })

	pass := 0
	for i := 0; i < 10; i++ {
		if c.CanPass(nil, 1, false) == shapingPass {
			pass++
		}
	}
	assert.Equal(t, 6, pass)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
		400 * time.Millisecond, 500 * time.Millisecond,
	}, slept)
}

func TestRateLimiterController_WaiterCapCancelsReservation(t *testing.T) {
	clk := newMock(testStartMs)
	var slept []time.Duration
	c := newRateLimiterController(domain.FlowRule{Count: 10, MaxQueueingTimeMs: 500, MaxQueueingCallers: 1}, clk, func(d time.Duration) { slept = append(slept, d) })

	require.Equal(t, shapingPass, c.CanPass(nil, 1, false))

	hold, ok := c.pool.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, shapingBlock, c.CanPass(nil, 1, false))
	hold()

	require.Equal(t, shapingPass, c.CanPass(nil, 1, false))
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, slept, "a reserva cancelada foi devolvida")
}

func TestRateLimiterController_ZeroCountBlocks(t *testing.T) {
	c := newRateLimiterController(domain.FlowRule{Count: 0, MaxQueueingTimeMs: 500}, newMock(testStartMs), func(time.Duration) {})
	assert.Equal(t, shapingBlock, c.CanPass(nil, 1, false))
}

// passesPerSecond admite chamadas até o controlador bloquear, contando no nó.
func passesPerSecond(c trafficShaper, node *infra.StatisticNode) int {
	pass := 0
	for c.CanPass(node, 1, false) == shapingPass {
		node.AddPassRequest(1)
		pass++
		if pass > 1000 {
			break
		}
	}
	return pass
}

func TestWarmUpController_StartsColdAndWarmsUp(t *testing.T) {
	clk := newMock(testStartMs)
	node := infra.NewStatisticNode(infra.DefaultStatConfig(), clk)
	c := newWarmUpController(domain.FlowRule{Count: 30, WarmUpPeriodSec: 10}, clk)

	first := passesPerSecond(c, node)
	assert.InDelta(t, 10, first, 1, "frio: count/coldFactor")

	last := first
	for i := 0; i < 40; i++ {
		clk.Add(time.Second)
		last = passesPerSecond(c, node)
	}
	assert.Equal(t, 30, last)
}

func TestDefaultController_Concurrency(t *testing.T) {
	clk := newMock(testStartMs)
	node := infra.NewStatisticNode(infra.DefaultStatConfig(), clk)
	c := &defaultController{grade: domain.FlowGradeConcurrency, count: 1, clk: clk, sleep: func(time.Duration) {}}

	assert.Equal(t, shapingPass, c.CanPass(node, 1, false))
	node.IncreaseConcurrency()
	assert.Equal(t, shapingBlock, c.CanPass(node, 1, true), "concorrência não pega emprestado")
}
