package infra

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"fronteira/middleware/sentinela/domain"
)

var _ domain.TreeNode = (*DefaultNode)(nil)

// DefaultNode é o nó de um recurso dentro de um contexto. Toda escrita também
// vai para o ClusterNode do recurso, que agrega todos os contextos.
type DefaultNode struct {
	*StatisticNode
	resource domain.ResourceWrapper
	cluster  atomic.Pointer[ClusterNode]

	mu       sync.Mutex
	children atomic.Pointer[[]domain.TreeNode]
}

func NewDefaultNode(rw domain.ResourceWrapper, cluster *ClusterNode, cfg StatConfig, clk clock.Clock) *DefaultNode {
	n := &DefaultNode{
		StatisticNode: NewStatisticNode(cfg, clk),
		resource:      rw,
	}
	if cluster != nil {
		n.cluster.Store(cluster)
	}
	return n
}

func (n *DefaultNode) Resource() domain.ResourceWrapper { return n.resource }
func (n *DefaultNode) ClusterNode() *ClusterNode { return n.cluster.Load() }
func (n *DefaultNode) SetClusterNode(c *ClusterNode) { n.cluster.Store(c) }

// AddChild liga um nó filho na árvore (ignora duplicados).
func (n *DefaultNode) AddChild(child domain.TreeNode) {
	if child == nil {
		return
	}
	if n.hasChild(child) {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hasChild(child) {
		return
	}
	old := n.Children()
	next := make([]domain.TreeNode, len(old), len(old)+1)
	copy(next, old)
	next = append(next, child)
	n.children.Store(&next)
}

func (n *DefaultNode) hasChild(child domain.TreeNode) bool {
	for _, c := range n.Children() {
		if c == child {
			return true
		}
	}
	return false
}

// Children devolve os filhos atuais. Não modifique o slice.
func (n *DefaultNode) Children() []domain.TreeNode {
	if p := n.children.Load(); p != nil {
		return *p
	}
	return nil
}

func (n *DefaultNode) AddPassRequest(count int) {
	n.StatisticNode.AddPassRequest(count)
	if c := n.ClusterNode(); c != nil {
		c.AddPassRequest(count)
	}
}

func (n *DefaultNode) AddRTAndSuccess(rt int64, success int) {
	n.StatisticNode.AddRTAndSuccess(rt, success)
	if c := n.ClusterNode(); c != nil {
		c.AddRTAndSuccess(rt, success)
	}
}

func (n *DefaultNode) IncreaseBlockQPS(count int) {
	n.StatisticNode.IncreaseBlockQPS(count)
	if c := n.ClusterNode(); c != nil {
		c.IncreaseBlockQPS(count)
	}
}

func (n *DefaultNode) IncreaseExceptionQPS(count int) {
	n.StatisticNode.IncreaseExceptionQPS(count)
	if c := n.ClusterNode(); c != nil {
		c.IncreaseExceptionQPS(count)
	}
}

func (n *DefaultNode) IncreaseConcurrency() {
	n.StatisticNode.IncreaseConcurrency()
	if c := n.ClusterNode(); c != nil {
		c.IncreaseConcurrency()
	}
}

func (n *DefaultNode) DecreaseConcurrency() {
	n.StatisticNode.DecreaseConcurrency()
	if c := n.ClusterNode(); c != nil {
		c.DecreaseConcurrency()
	}
}
