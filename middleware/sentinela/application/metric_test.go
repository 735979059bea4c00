package application

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

func seedTraffic(t *testing.T, g *Guard) {
	t.Helper()
	require.NoError(t, g.FlowRules().LoadRules([]domain.FlowRule{{Resource: "b", Grade: domain.FlowGradeQPS, Count: 1}}))
	for i := 0; i < 3; i++ {
		require.NoError(t, call(t, g, nil, "a", WithEntryType(domain.Inbound)))
	}
	require.NoError(t, call(t, g, nil, "b"))
	require.True(t, domain.IsBlocked(call(t, g, nil, "b")))
}

func TestMetricTimer_FlushWritesClosedSecondsOnce(t *testing.T) {
	g, clk := newTestGuard(t)
	sink := infra.NewMemoryMetricSink()
	timer := NewMetricTimer(g, sink)

	seedTraffic(t, g)
	timer.Flush(context.Background())
	assert.Empty(t, sink.Recent(), "o segundo atual ainda não fechou")

	clk.Add(time.Second)
	timer.Flush(context.Background())
	timer.Flush(context.Background())

	by := sink.ByResource()
	assert.Equal(t, infra.Counters{Pass: 3, Success: 3}, by["a"])
	assert.Equal(t, infra.Counters{Pass: 1, Block: 1, Success: 1}, by["b"])
	assert.Equal(t, int64(3), by[TotalInboundNodeName].Pass)

	items := sink.Recent()
	require.Len(t, items, 3)
	assert.Equal(t, TotalInboundNodeName, items[0].Resource)
	assert.Equal(t, "a", items[1].Resource)
	assert.Equal(t, time.UnixMilli(testStartMs-250), items[1].Timestamp)
}

func TestMetricTimer_StartFlushesOnTick(t *testing.T) {
	sink := infra.NewMemoryMetricSink()
	g, clk := newTestGuard(t, WithMetricSinks(sink), WithMetricInterval(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	seedTraffic(t, g)
	clk.Add(time.Second)

	assert.Eventually(t, func() bool {
		return sink.ByResource()["a"].Pass == 3
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterPrometheus(t *testing.T) {
	g, _ := newTestGuard(t)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, RegisterPrometheus(g, reg))

	seedTraffic(t, g)
	require.True(t, domain.IsBlocked(call(t, g, nil, "b")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var blocked float64
	for _, mf := range mfs {
		if mf.GetName() != "sentinela_block_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			blocked += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, blocked)

	n, err := testutil.GatherAndCount(reg, "sentinela_resource_pass_qps")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Error(t, RegisterPrometheus(g, reg), "registrar duas vezes falha")
}

func TestSlotChainBuilder_StableOrder(t *testing.T) {
	var log []string
	rec := func(name string) SlotFactory {
		return func(*Guard) LinkableSlot { return &recordingSlot{name: name, log: &log} }
	}
	b := &DefaultSlotChainBuilder{}
	b.Register(10, rec("c"))
	b.Register(-5, rec("a"))
	b.Register(10, rec("d"))
	b.Register(0, rec("b"))

	chain := b.Build(nil)
	rw, err := domain.NewResourceWrapper("r", domain.Outbound, domain.KindCommon)
	require.NoError(t, err)
	require.NoError(t, chain.Entry(nil, rw, nil, 1, false))
	chain.Exit(nil, rw, 1)

	assert.Equal(t, []string{
		"entry:a", "entry:b", "entry:c", "entry:d",
		"exit:a", "exit:b", "exit:c", "exit:d",
	}, log)
}
