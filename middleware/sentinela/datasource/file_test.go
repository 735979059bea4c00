package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/domain"
)

const rulesYAML = `
flow:
  - resource: GET /orders
    grade: qps
    count: 10
    controlBehavior: rate_limiter
  - resource: GET /orders
    limitApp: mobile
    grade: 0
    count: 4
degrade:
  - resource: GET /orders
    grade: error_ratio
    count: 0.5
    timeWindow: 10
system:
  - qps: 1000
    highestCpuUsage: 0.9
authority:
  - resource: GET /admin
    limitApp: ops,sre
    strategy: white
`

func newGuard(t *testing.T) *application.Guard {
	t.Helper()
	g, err := application.NewGuard(application.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return g
}

func writeFile(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestParse(t *testing.T) {
	rs, err := Parse([]byte(rulesYAML))
	require.NoError(t, err)

	require.Len(t, rs.Flow, 2)
	assert.Equal(t, domain.FlowGradeQPS, rs.Flow[0].Grade)
	assert.Equal(t, domain.BehaviorRateLimiter, rs.Flow[0].ControlBehavior)
	assert.Equal(t, domain.FlowGradeConcurrency, rs.Flow[1].Grade)
	assert.Equal(t, "mobile", rs.Flow[1].LimitApp)

	require.Len(t, rs.Degrade, 1)
	assert.Equal(t, domain.DegradeErrorRatio, rs.Degrade[0].Grade)
	require.Len(t, rs.System, 1)
	assert.Equal(t, 0.9, rs.System[0].HighestCPUUsage)
	require.Len(t, rs.Authority, 1)
	assert.Equal(t, domain.AuthorityWhite, rs.Authority[0].Strategy)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("flow:\n  - resource: a\n    grade: bogus\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("flow:\n  - resource: a\n    unknownField: 1\n"))
	assert.Error(t, err)

	rs, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, rs.Flow)
}

func TestMarshalRoundTripsThroughGuard(t *testing.T) {
	g := newGuard(t)
	rs, err := Parse([]byte(rulesYAML))
	require.NoError(t, err)
	require.NoError(t, Apply(g, rs))

	out, err := Marshal(Current(g))
	require.NoError(t, err)
	assert.Contains(t, string(out), "rate_limiter")

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Len(t, again.Flow, 2)
	assert.Len(t, again.Authority, 1)
}

func TestApply_InvalidSectionChangesNothing(t *testing.T) {
	g := newGuard(t)
	require.NoError(t, Apply(g, RuleSet{Flow: []domain.FlowRule{{Resource: "a", Grade: domain.FlowGradeQPS, Count: 1}}}))

	err := Apply(g, RuleSet{
		Flow:    []domain.FlowRule{{Resource: "b", Grade: domain.FlowGradeQPS, Count: 1}},
		Degrade: []domain.DegradeRule{{Resource: "b", Grade: domain.DegradeErrorRatio, Count: 3, TimeWindow: 1}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidRule)
	assert.True(t, g.FlowRules().HasConfig("a"))
	assert.False(t, g.FlowRules().HasConfig("b"))
}

func TestFileSource_LoadAndWatch(t *testing.T) {
	g := newGuard(t)
	clk := clock.NewMock()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	base := time.Now().Add(-time.Hour)
	writeFile(t, path, rulesYAML, base)

	src := NewFileSource(path, g, WithClock(clk), WithPollEvery(time.Second), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, src.Load())
	assert.Len(t, g.FlowRules().RulesFor("GET /orders"), 2)
	assert.True(t, g.AuthorityRules().HasConfig("GET /admin"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.Watch(ctx)

	// arquivo inválido: regras anteriores ficam
	writeFile(t, path, "flow:\n  - resource: ''\n    grade: qps\n    count: 1\n", base.Add(time.Minute))
	clk.Add(time.Second)
	assert.Never(t, func() bool {
		return len(g.FlowRules().RulesFor("GET /orders")) != 2
	}, 100*time.Millisecond, 10*time.Millisecond)

	writeFile(t, path, "flow:\n  - resource: GET /users\n    grade: qps\n    count: 3\n", base.Add(2*time.Minute))
	clk.Add(time.Second)
	assert.Eventually(t, func() bool {
		return g.FlowRules().HasConfig("GET /users") && !g.FlowRules().HasConfig("GET /orders")
	}, time.Second, 10*time.Millisecond)
	assert.False(t, g.AuthorityRules().HasConfig("GET /admin"), "seções ausentes limpam as regras")
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.yaml"), newGuard(t))
	assert.Error(t, src.Load())
}
