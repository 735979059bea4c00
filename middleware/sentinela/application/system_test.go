package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

func inbound(t *testing.T, g *Guard, resource string) (*domain.Entry, error) {
	t.Helper()
	return g.Entry(nil, resource, WithEntryType(domain.Inbound))
}

func TestSystem_QPSOnlyInbound(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.SystemRules().LoadRules([]domain.SystemRule{{QPS: 3}}))

	for i := 0; i < 3; i++ {
		require.NoError(t, call(t, g, nil, "api", WithEntryType(domain.Inbound)))
	}
	err := call(t, g, nil, "api", WithEntryType(domain.Inbound))
	be, ok := domain.AsBlockError(err)
	require.True(t, ok)
	assert.Equal(t, domain.BlockTypeSystem, be.BlockType())
	assert.Equal(t, 3.0, be.Snapshot())

	assert.NoError(t, call(t, g, nil, "db"), "saída não passa pela regra de sistema")
}

func TestSystem_MaxConcurrency(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.SystemRules().LoadRules([]domain.SystemRule{{MaxConcurrency: 1}}))

	e1, err := inbound(t, g, "a")
	require.NoError(t, err)
	e2, err := inbound(t, g, "b")
	require.NoError(t, err)
	_, err = inbound(t, g, "c")
	assert.True(t, domain.IsBlocked(err))

	require.NoError(t, e2.Exit())
	require.NoError(t, e1.Exit())
	assert.Equal(t, int64(0), g.InboundNode().CurConcurrency())
}

func TestSystem_AvgRT(t *testing.T) {
	g, clk := newTestGuard(t)
	require.NoError(t, g.SystemRules().LoadRules([]domain.SystemRule{{AvgRT: 100}}))

	e, err := inbound(t, g, "slow")
	require.NoError(t, err)
	clk.Add(300 * time.Millisecond)
	require.NoError(t, e.Exit())

	_, err = inbound(t, g, "slow")
	be, ok := domain.AsBlockError(err)
	require.True(t, ok)
	assert.Equal(t, 300.0, be.Snapshot())
}

func TestSystem_CPU(t *testing.T) {
	status := infra.NewStaticSystemStatus(-1, 0.9)
	g, _ := newTestGuard(t, WithSystemStatus(status))
	require.NoError(t, g.SystemRules().LoadRules([]domain.SystemRule{{HighestCPUUsage: 0.8}}))

	_, err := inbound(t, g, "api")
	assert.True(t, domain.IsBlocked(err))

	status.Set(-1, 0.5)
	_, err = inbound(t, g, "api")
	assert.NoError(t, err)
}

func TestSystem_LoadWithBBR(t *testing.T) {
	status := infra.NewStaticSystemStatus(5, -1)
	g, _ := newTestGuard(t, WithSystemStatus(status))
	require.NoError(t, g.SystemRules().LoadRules([]domain.SystemRule{{HighestSystemLoad: 1}}))

	// load alto, mas concorrência baixa: passa
	e1, err := inbound(t, g, "api")
	require.NoError(t, err)
	e2, err := inbound(t, g, "api")
	require.NoError(t, err)

	// concorrência 2 acima da capacidade estimada (sem sucesso ainda): bloqueia
	_, err = inbound(t, g, "api")
	be, ok := domain.AsBlockError(err)
	require.True(t, ok)
	assert.Equal(t, 5.0, be.Snapshot())

	require.NoError(t, e2.Exit())
	require.NoError(t, e1.Exit())

	status.Set(0.5, -1)
	_, err = inbound(t, g, "api")
	assert.NoError(t, err)
}

func TestSystemRuleManager_MergesToMinimum(t *testing.T) {
	g, _ := newTestGuard(t)
	m := g.SystemRules()
	require.NoError(t, m.LoadRules([]domain.SystemRule{
		{QPS: 10, HighestCPUUsage: 0.9},
		{QPS: 5, AvgRT: 200},
		{QPS: -1, MaxConcurrency: 0},
	}))

	th := m.thresholds()
	assert.Equal(t, 5.0, th.qps)
	assert.Equal(t, 0.9, th.cpu)
	assert.Equal(t, int64(200), th.avgRT)
	assert.Zero(t, th.maxConcurrency)
	assert.True(t, m.HasConfig())
	assert.Len(t, m.Rules(), 3)

	err := m.LoadRules([]domain.SystemRule{{HighestCPUUsage: 1.5}})
	require.ErrorIs(t, err, domain.ErrInvalidRule)
	assert.Equal(t, 5.0, m.thresholds().qps, "carga inválida mantém o conjunto anterior")

	m.ClearRules()
	assert.False(t, m.HasConfig())
}

func TestPassAuthority(t *testing.T) {
	white := domain.AuthorityRule{Resource: "r", LimitApp: "app-a, app-b", Strategy: domain.AuthorityWhite}
	black := domain.AuthorityRule{Resource: "r", LimitApp: "app-a,app-b", Strategy: domain.AuthorityBlack}

	tests := []struct {
		name   string
		rule   domain.AuthorityRule
		origin string
		want   bool
	}{
		{"white lista", white, "app-a", true},
		{"white com espaço", white, "app-b", true},
		{"white fora", white, "app-c", false},
		{"white prefixo não conta", white, "app", false},
		{"black lista", black, "app-b", false},
		{"black fora", black, "app-c", true},
		{"origem vazia", white, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passAuthority(tt.rule, tt.origin))
		})
	}
}

func TestAuthority_WhiteListThroughGuard(t *testing.T) {
	g, _ := newTestGuard(t)
	require.NoError(t, g.AuthorityRules().LoadRules([]domain.AuthorityRule{
		{Resource: "admin", LimitApp: "ops", Strategy: domain.AuthorityWhite},
	}))

	assert.NoError(t, call(t, g, g.Enter("web", "ops"), "admin"))

	err := call(t, g, g.Enter("web", "guest"), "admin")
	be, ok := domain.AsBlockError(err)
	require.True(t, ok)
	assert.Equal(t, domain.BlockTypeAuthority, be.BlockType())
	assert.Equal(t, "guest", be.Snapshot())

	assert.True(t, g.AuthorityRules().HasConfig("admin"))
	assert.Len(t, g.AuthorityRules().RulesFor("admin"), 1)

	require.Error(t, g.AuthorityRules().LoadRules([]domain.AuthorityRule{{Resource: "admin"}}))
	assert.Len(t, g.AuthorityRules().Rules(), 1)
}
