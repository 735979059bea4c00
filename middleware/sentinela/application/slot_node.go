package application

import (
	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// nodeSelectorSlot cria (uma vez por nome de contexto) o DefaultNode do
// recurso e o pendura no nó pai da árvore.
type nodeSelectorSlot struct {
	LinkedSlot
	g     *Guard
	nodes infra.CopyOnWriteMap[*infra.DefaultNode]
}

func newNodeSelectorSlot(g *Guard) *nodeSelectorSlot { return &nodeSelectorSlot{g: g} }

func (s *nodeSelectorSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, _ domain.TreeNode, count int, prioritized bool, args ...any) error {
	node, created := s.nodes.LoadOrCreate(c.Name(), func() *infra.DefaultNode {
		return infra.NewDefaultNode(rw, nil, s.g.statCfg, s.g.clk)
	})
	if created {
		if parent := c.LastNode(); parent != nil {
			parent.AddChild(node)
		}
	}
	if e := c.CurEntry(); e != nil {
		e.SetCurNode(node)
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *nodeSelectorSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}

// clusterBuilderSlot liga o DefaultNode ao ClusterNode do recurso e resolve o
// nó da origem do contexto.
type clusterBuilderSlot struct {
	LinkedSlot
	g *Guard
}

func newClusterBuilderSlot(g *Guard) *clusterBuilderSlot { return &clusterBuilderSlot{g: g} }

func (s *clusterBuilderSlot) Entry(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, prioritized bool, args ...any) error {
	cluster := s.g.nodes.GetOrCreate(rw)
	if dn, ok := node.(*infra.DefaultNode); ok && dn.ClusterNode() == nil {
		dn.SetClusterNode(cluster)
	}
	if origin := c.Origin(); origin != "" {
		if e := c.CurEntry(); e != nil {
			e.SetOriginNode(cluster.OriginNode(origin))
		}
	}
	return s.FireEntry(c, rw, node, count, prioritized, args...)
}

func (s *clusterBuilderSlot) Exit(c *domain.Context, rw domain.ResourceWrapper, count int, args ...any) {
	s.FireExit(c, rw, count, args...)
}
