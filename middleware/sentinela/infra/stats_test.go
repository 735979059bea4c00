package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fronteira/middleware/sentinela/domain"
)

func TestMemoryMetricSink_Accumulates(t *testing.T) {
	s := NewMemoryMetricSink(WithKeepLast(2))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, []domain.MetricItem{
		{Resource: "a", PassQPS: 3, BlockQPS: 1},
		{Resource: "b", PassQPS: 2, ExceptionQPS: 1},
	}))
	require.NoError(t, s.Write(ctx, []domain.MetricItem{
		{Resource: "a", PassQPS: 1, SuccessQPS: 4},
	}))

	assert.Equal(t, Counters{Pass: 6, Block: 1, Success: 4, Exception: 1}, s.Total())
	assert.Equal(t, Counters{Pass: 4, Block: 1, Success: 4}, s.ByResource()["a"])
	recent := s.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "a", recent[1].Resource)
}

func TestRedisMetricSink_NilClientIsNoop(t *testing.T) {
	s := NewRedisMetricSink(nil)
	assert.NoError(t, s.Write(context.Background(), []domain.MetricItem{{Resource: "a", PassQPS: 1}}))
}

func TestRedisMetricSink_UnreachableServerReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	s := NewRedisMetricSink(rdb)
	err := s.Write(context.Background(), []domain.MetricItem{{Resource: "a", PassQPS: 1, Timestamp: time.Now()}})
	assert.Error(t, err)

	assert.NoError(t, s.Write(context.Background(), nil), "lote vazio não toca o redis")
}

// Integração: só roda com SENTINELA_REDIS_ADDR definido.
func TestRedisMetricSink_WritesHashes(t *testing.T) {
	addr := os.Getenv("SENTINELA_REDIS_ADDR")
	if addr == "" {
		t.Skip("SENTINELA_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	prefix := "sentinela:test:" + time.Now().Format("150405.000")
	s := NewRedisMetricSink(rdb, WithSinkPrefix(prefix), WithSinkTTL(time.Minute), WithSinkTrackResources(true))

	require.NoError(t, s.Write(ctx, []domain.MetricItem{{Resource: "a", PassQPS: 3, BlockQPS: 2, Timestamp: time.Now()}}))

	got, err := rdb.HGet(ctx, prefix+":total", "a:pass").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	got, err = rdb.HGet(ctx, prefix+":resource:a", "block").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	rdb.Del(ctx, prefix+":total", prefix+":resource:a")
}

func TestResourceCollector(t *testing.T) {
	clk := newMockClock(1_000_000)
	reg := NewClusterNodeRegistry(DefaultStatConfig(), clk)

	c := NewResourceCollector(reg)
	assert.Equal(t, 0, testutil.CollectAndCount(c))

	reg.GetOrCreate(mustResource(t, "a")).AddPassRequest(2)
	reg.GetOrCreate(mustResource(t, "b"))
	assert.Equal(t, 12, testutil.CollectAndCount(c))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "sentinela_resource_pass_qps"))

	r := prometheus.NewPedanticRegistry()
	require.NoError(t, r.Register(c))
}

func TestBlockCounter(t *testing.T) {
	bc := NewBlockCounter()
	bc.WithLabelValues("a", "flow").Inc()
	bc.WithLabelValues("a", "flow").Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(bc.WithLabelValues("a", "flow")))
}

func writeProcFixture(t *testing.T, dir, cpuLine string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loadavg"), []byte("1.50 1.00 0.50 2/300 4242\n"), 0o644))
	stat := cpuLine + "\nctxt 0\nbtime 1700000000\nprocesses 1\nprocs_running 1\nprocs_blocked 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
}

func TestProcfsSystemStatus_Sample(t *testing.T) {
	dir := t.TempDir()
	writeProcFixture(t, dir, "cpu  100 0 100 800 0 0 0 0 0 0")

	s := NewProcfsSystemStatus(WithProcMount(dir))
	assert.Equal(t, -1.0, s.CPUUsage())

	require.NoError(t, s.Sample())
	assert.InDelta(t, 1.5, s.Load(), 0.0001)
	assert.Equal(t, -1.0, s.CPUUsage(), "precisa de duas amostras")

	writeProcFixture(t, dir, "cpu  200 0 200 1000 0 0 0 0 0 0")
	require.NoError(t, s.Sample())
	assert.InDelta(t, 0.5, s.CPUUsage(), 0.0001)
}

func TestProcfsSystemStatus_StartSamplesOnTick(t *testing.T) {
	dir := t.TempDir()
	writeProcFixture(t, dir, "cpu  100 0 100 800 0 0 0 0 0 0")
	clk := clock.NewMock()

	s := NewProcfsSystemStatus(WithProcMount(dir), WithStatusClock(clk), WithSampleEvery(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	assert.InDelta(t, 1.5, s.Load(), 0.0001, "primeira amostra é síncrona")

	writeProcFixture(t, dir, "cpu  200 0 200 1000 0 0 0 0 0 0")
	assert.Equal(t, -1.0, s.CPUUsage())
	assert.Eventually(t, func() bool {
		clk.Add(time.Second)
		return s.CPUUsage() > 0
	}, time.Second, 10*time.Millisecond)
	assert.InDelta(t, 0.5, s.CPUUsage(), 0.0001)
}

func TestProcfsSystemStatus_MissingMount(t *testing.T) {
	s := NewProcfsSystemStatus(WithProcMount(filepath.Join(t.TempDir(), "nope")))
	assert.Error(t, s.Sample())
	assert.Equal(t, -1.0, s.Load())
}

func TestStaticSystemStatus(t *testing.T) {
	s := NewStaticSystemStatus(2, 0.3)
	assert.Equal(t, 2.0, s.Load())
	s.Set(4, 0.9)
	assert.Equal(t, 0.9, s.CPUUsage())
}
