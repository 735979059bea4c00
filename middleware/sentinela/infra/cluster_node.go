package infra

import (
	"github.com/benbjohnson/clock"

	"fronteira/middleware/sentinela/domain"
)

// ClusterNode agrega um recurso em todos os contextos do processo, e guarda
// os nós por origem (criados sob demanda).
type ClusterNode struct {
	*StatisticNode
	name string
	kind domain.ResourceKind

	cfg     StatConfig
	clk     clock.Clock
	origins CopyOnWriteMap[*StatisticNode]
}

func NewClusterNode(name string, kind domain.ResourceKind, cfg StatConfig, clk clock.Clock) *ClusterNode {
	return &ClusterNode{
		StatisticNode: NewStatisticNode(cfg, clk),
		name:          name,
		kind:          kind,
		cfg:           cfg,
		clk:           clk,
	}
}

func (n *ClusterNode) Name() string { return n.name }
func (n *ClusterNode) Kind() domain.ResourceKind { return n.kind }

// OriginNode devolve (criando se preciso) o nó de uma origem.
func (n *ClusterNode) OriginNode(origin string) *StatisticNode {
	v, _ := n.origins.LoadOrCreate(origin, func() *StatisticNode {
		return NewStatisticNode(n.cfg, n.clk)
	})
	return v
}

func (n *ClusterNode) OriginNodes() map[string]*StatisticNode { return n.origins.Snapshot() }

// ClusterNodeRegistry é o mapa recurso -> ClusterNode do processo.
// Cresce monotonicamente, sem expiração.
type ClusterNodeRegistry struct {
	cfg   StatConfig
	clk   clock.Clock
	nodes CopyOnWriteMap[*ClusterNode]
}

func NewClusterNodeRegistry(cfg StatConfig, clk clock.Clock) *ClusterNodeRegistry {
	return &ClusterNodeRegistry{cfg: cfg, clk: clk}
}

func (r *ClusterNodeRegistry) GetOrCreate(rw domain.ResourceWrapper) *ClusterNode {
	v, _ := r.nodes.LoadOrCreate(rw.Name(), func() *ClusterNode {
		return NewClusterNode(rw.Name(), rw.Kind(), r.cfg, r.clk)
	})
	return v
}

func (r *ClusterNodeRegistry) Get(name string) (*ClusterNode, bool) { return r.nodes.Load(name) }
func (r *ClusterNodeRegistry) All() map[string]*ClusterNode { return r.nodes.Snapshot() }
func (r *ClusterNodeRegistry) Len() int { return r.nodes.Len() }

// ResetAll zera as janelas de todos os nós (usado em testes e no reset via admin).
func (r *ClusterNodeRegistry) ResetAll() {
	for _, n := range r.nodes.Snapshot() {
		n.Reset()
	}
}
