package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// Guard é o ponto de entrada e dona de todo o estado do processo: nós
// estatísticos, chains por recurso, managers de regra e callbacks.
//
// É segura para uso concorrente. Contexts e Entries não são: cada um pertence
// a uma goroutine por vez.
type Guard struct {
	clk     clock.Clock
	logger  *zap.Logger
	statCfg infra.StatConfig

	root      *infra.EntranceNode
	entrances infra.CopyOnWriteMap[*infra.EntranceNode]
	nodes     *infra.ClusterNodeRegistry
	inbound   *infra.ClusterNode

	builder    SlotChainBuilder
	extraSlots []slotRegistration
	chains     infra.CopyOnWriteMap[*SlotChain]
	chainGroup singleflight.Group

	maxChains      int
	maxContexts    int
	warnChains     sync.Once
	warnContexts   sync.Once
	enabled        atomic.Bool
	systemStatus   domain.SystemStatus
	callbacks      *StatisticCallbacks
	blockLogRPS    float64
	blockLogBurst  int
	logLimiter     *infra.LimiterStore
	sinks          []domain.MetricSink
	metricInterval time.Duration

	flowRules      *FlowRuleManager
	degradeRules   *DegradeRuleManager
	systemRules    *SystemRuleManager
	authorityRules *AuthorityRuleManager
}

func NewGuard(opts ...Option) (*Guard, error) {
	g := &Guard{
		logger:        zap.NewNop(),
		statCfg:       infra.DefaultStatConfig(),
		maxChains:     DefaultMaxSlotChains,
		maxContexts:   DefaultMaxContextNames,
		blockLogRPS:   DefaultBlockLogRPS,
		blockLogBurst: DefaultBlockLogBurst,
	}
	g.metricInterval = DefaultMetricInterval
	for _, opt := range opts {
		opt(g)
	}
	if err := g.statCfg.Validate(); err != nil {
		return nil, err
	}
	if g.clk == nil {
		g.clk = clock.New()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.builder == nil {
		g.builder = NewDefaultSlotChainBuilder()
	}
	if b, ok := g.builder.(*DefaultSlotChainBuilder); ok {
		for _, r := range g.extraSlots {
			b.Register(r.order, r.factory)
		}
	}
	if g.systemStatus == nil {
		g.systemStatus = infra.NewStaticSystemStatus(-1, -1)
	}

	g.root = infra.NewEntranceNode(MachineRootResourceName, g.statCfg, g.clk)
	g.nodes = infra.NewClusterNodeRegistry(g.statCfg, g.clk)
	g.inbound = infra.NewClusterNode(TotalInboundNodeName, domain.KindCommon, g.statCfg, g.clk)
	g.callbacks = NewStatisticCallbacks()
	g.logLimiter = infra.NewLimiterStore(g.blockLogRPS, g.blockLogBurst, infra.WithStoreClock(g.clk))

	g.flowRules = NewFlowRuleManager(g.clk, g.logger.Named("flow"))
	g.degradeRules = NewDegradeRuleManager(g.clk, g.logger.Named("degrade"))
	g.systemRules = NewSystemRuleManager(g.logger.Named("system"))
	g.authorityRules = NewAuthorityRuleManager(g.logger.Named("authority"))

	g.enabled.Store(true)
	return g, nil
}

// Start inicia as goroutines de apoio (timer de métricas, leitura de load/CPU,
// limpeza dos limitadores de log). Param ao cancelar ctx.
func (g *Guard) Start(ctx context.Context) {
	if s, ok := g.systemStatus.(interface{ Start(context.Context) }); ok {
		s.Start(ctx)
	}
	g.logLimiter.StartJanitor(ctx)
	if len(g.sinks) > 0 {
		NewMetricTimer(g, g.sinks...).Start(ctx)
	}
}

func (g *Guard) Clock() clock.Clock { return g.clk }
func (g *Guard) Logger() *zap.Logger { return g.logger }
func (g *Guard) StatConfig() infra.StatConfig { return g.statCfg }
func (g *Guard) Root() *infra.EntranceNode { return g.root }
func (g *Guard) InboundNode() *infra.ClusterNode { return g.inbound }
func (g *Guard) ClusterNodes() *infra.ClusterNodeRegistry { return g.nodes }
func (g *Guard) Callbacks() *StatisticCallbacks { return g.callbacks }
func (g *Guard) SystemStatus() domain.SystemStatus { return g.systemStatus }
func (g *Guard) FlowRules() *FlowRuleManager { return g.flowRules }
func (g *Guard) DegradeRules() *DegradeRuleManager { return g.degradeRules }
func (g *Guard) SystemRules() *SystemRuleManager { return g.systemRules }
func (g *Guard) AuthorityRules() *AuthorityRuleManager { return g.authorityRules }

// ClusterNode devolve o nó agregado de um recurso, se ele já foi usado.
func (g *Guard) ClusterNode(resource string) (*infra.ClusterNode, bool) {
	return g.nodes.Get(resource)
}

// SetEnabled liga/desliga a proteção. Desligada, toda entry passa sem regra nem estatística.
func (g *Guard) SetEnabled(on bool) { g.enabled.Store(on) }
func (g *Guard) Enabled() bool { return g.enabled.Load() }

func (g *Guard) nowMs() int64 { return g.clk.Now().UnixMilli() }

// entranceFor devolve o nó de entrada do nome de contexto, criando e ligando à
// raiz na primeira vez. nil quando o limite de nomes foi atingido.
func (g *Guard) entranceFor(name string) *infra.EntranceNode {
	if n, ok := g.entrances.Load(name); ok {
		return n
	}
	if g.entrances.Len() >= g.maxContexts {
		g.warnContexts.Do(func() {
			g.logger.Warn("context name limit reached, new contexts will not be checked",
				zap.Int("max", g.maxContexts), zap.String("context", name))
		})
		return nil
	}
	n, created := g.entrances.LoadOrCreate(name, func() *infra.EntranceNode {
		return infra.NewEntranceNode(name, g.statCfg, g.clk)
	})
	if created {
		g.root.AddChild(n)
	}
	return n
}

// Enter abre um Context nomeado. Nome vazio usa o contexto padrão.
// Acima do limite de nomes devolve um contexto nulo (chamadas passam sem checagem).
func (g *Guard) Enter(name, origin string) *domain.Context {
	if name == "" {
		name = DefaultContextName
	}
	entrance := g.entranceFor(name)
	if entrance == nil {
		return domain.NewNullContext()
	}
	return domain.NewContext(name, origin, entrance)
}

// EnterContext devolve o Context amarrado a ctx, ou abre um novo e o amarra.
func (g *Guard) EnterContext(ctx context.Context, name, origin string) (context.Context, *domain.Context) {
	if c, ok := domain.FromContext(ctx); ok {
		return ctx, c
	}
	c := g.Enter(name, origin)
	return domain.IntoContext(ctx, c), c
}

func (g *Guard) autoContext() *domain.Context {
	entrance := g.entranceFor(DefaultContextName)
	if entrance == nil {
		return domain.NewNullContext()
	}
	return domain.NewAutoContext(DefaultContextName, "", entrance)
}

// lookChain devolve a chain do recurso (compartilhada entre contextos), ou nil
// quando o limite de chains foi atingido.
func (g *Guard) lookChain(rw domain.ResourceWrapper) *SlotChain {
	if sc, ok := g.chains.Load(rw.Name()); ok {
		return sc
	}
	if g.chains.Len() >= g.maxChains {
		g.warnChains.Do(func() {
			g.logger.Warn("slot chain limit reached, new resources will not be checked",
				zap.Int("max", g.maxChains), zap.String("resource", rw.Name()))
		})
		return nil
	}
	v, _, _ := g.chainGroup.Do(rw.Name(), func() (any, error) {
		sc, _ := g.chains.LoadOrCreate(rw.Name(), func() *SlotChain { return g.builder.Build(g) })
		return sc, nil
	})
	return v.(*SlotChain)
}

// Entry tenta usar o recurso no Context c (nil usa um contexto automático,
// fechado quando a entry sai). Bloqueio devolve um *domain.BlockError; a entry
// devolvida precisa sair (Exit) exatamente uma vez.
func (g *Guard) Entry(c *domain.Context, resource string, opts ...EntryOption) (*domain.Entry, error) {
	o := entryOptions{entryType: domain.Outbound, kind: domain.KindCommon, count: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.count <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidCount, o.count)
	}
	rw, err := domain.NewResourceWrapper(resource, o.entryType, o.kind)
	if err != nil {
		return nil, err
	}
	return g.entryWithResource(c, rw, o)
}

// AsyncEntry é como Entry, mas a entry vai para uma cópia do contexto: o cursor
// do chamador volta na hora para o pai, e o trabalho assíncrono aninha novas
// entries em entry.AsyncContext().
func (g *Guard) AsyncEntry(c *domain.Context, resource string, opts ...EntryOption) (*domain.Entry, error) {
	e, err := g.Entry(c, resource, opts...)
	if err != nil {
		return nil, err
	}
	e.DetachAsync()
	return e, nil
}

func (g *Guard) entryWithResource(c *domain.Context, rw domain.ResourceWrapper, o entryOptions) (*domain.Entry, error) {
	if c != nil && c.IsClosed() {
		return nil, domain.ErrContextClosed
	}
	now := g.nowMs()
	if c == nil {
		c = g.autoContext()
	}
	if c.IsNull() || !g.enabled.Load() {
		return domain.NewEntry(rw, nil, c, now, o.count, o.args), nil
	}

	chain := g.lookChain(rw)
	if chain == nil {
		return domain.NewEntry(rw, nil, c, now, o.count, o.args), nil
	}

	e := domain.NewEntry(rw, chain, c, now, o.count, o.args)
	err := chain.Entry(c, rw, nil, o.count, o.prioritized, o.args...)
	if err == nil {
		return e, nil
	}
	if be, ok := domain.AsBlockError(err); ok {
		e.SetBlockError(be)
		_ = e.Exit(domain.WithExitCount(o.count), domain.WithExitArgs(o.args...))
		return nil, be
	}
	// falha antes do slot de estatística: nada foi contado, então o exit
	// também não pode contar.
	g.logger.Error("unexpected slot error, passing through",
		zap.String("resource", rw.Name()), zap.Error(err))
	e.PassThrough()
	return e, nil
}
