package application

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

const (
	DefaultMaxSlotChains    = 6000
	DefaultMaxContextNames  = 2000
	DefaultMetricInterval   = time.Second
	DefaultBlockLogRPS      = 1
	DefaultBlockLogBurst    = 5
	DefaultContextName      = "sentinela_default_context"
	TotalInboundNodeName    = "__total_inbound_traffic__"
	MachineRootResourceName = "machine-root"
)

type Option func(*Guard)

func WithClock(clk clock.Clock) Option {
	return func(g *Guard) { g.clk = clk }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithStatConfig troca a janela de segundo dos nós (padrão 2 x 500ms).
func WithStatConfig(cfg infra.StatConfig) Option {
	return func(g *Guard) { g.statCfg = cfg }
}

// WithSlot registra um slot extra na chain padrão, na posição dada por order.
func WithSlot(order int, f SlotFactory) Option {
	return func(g *Guard) { g.extraSlots = append(g.extraSlots, slotRegistration{order: order, factory: f}) }
}

func WithSlotChainBuilder(b SlotChainBuilder) Option {
	return func(g *Guard) { g.builder = b }
}

func WithSystemStatus(s domain.SystemStatus) Option {
	return func(g *Guard) { g.systemStatus = s }
}

func WithMaxSlotChains(n int) Option {
	return func(g *Guard) { g.maxChains = n }
}

func WithMaxContextNames(n int) Option {
	return func(g *Guard) { g.maxContexts = n }
}

// WithMetricSinks define para onde o timer de métricas grava a cada segundo.
func WithMetricSinks(sinks ...domain.MetricSink) Option {
	return func(g *Guard) { g.sinks = append(g.sinks, sinks...) }
}

func WithMetricInterval(d time.Duration) Option {
	return func(g *Guard) { g.metricInterval = d }
}

// WithBlockLogRate limita os logs de bloqueio por recurso.
func WithBlockLogRate(rps float64, burst int) Option {
	return func(g *Guard) { g.blockLogRPS, g.blockLogBurst = rps, burst }
}

type entryOptions struct {
	entryType   domain.EntryType
	kind        domain.ResourceKind
	count       int
	prioritized bool
	args        []any
}

type EntryOption func(*entryOptions)

func WithEntryType(t domain.EntryType) EntryOption {
	return func(o *entryOptions) { o.entryType = t }
}

func WithResourceKind(k domain.ResourceKind) EntryOption {
	return func(o *entryOptions) { o.kind = k }
}

// WithCount define quantos tokens a chamada consome (padrão 1, precisa ser > 0).
func WithCount(n int) EntryOption {
	return func(o *entryOptions) { o.count = n }
}

// WithPrioritized permite pegar emprestado uma janela futura (regra de QPS com rejeição).
func WithPrioritized(p bool) EntryOption {
	return func(o *entryOptions) { o.prioritized = p }
}

func WithArgs(args ...any) EntryOption {
	return func(o *entryOptions) { o.args = args }
}
