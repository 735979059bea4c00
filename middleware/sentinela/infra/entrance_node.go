package infra

import (
	"github.com/benbjohnson/clock"

	"fronteira/middleware/sentinela/domain"
)

// EntranceNode é a raiz de um contexto (e a raiz da máquina). As leituras
// somam os filhos diretos.
type EntranceNode struct {
	*DefaultNode
}

func NewEntranceNode(name string, cfg StatConfig, clk clock.Clock) *EntranceNode {
	rw, _ := domain.NewResourceWrapper(name, domain.Inbound, domain.KindCommon)
	return &EntranceNode{DefaultNode: NewDefaultNode(rw, nil, cfg, clk)}
}

func (n *EntranceNode) sumInt(f func(domain.TreeNode) int64) int64 {
	var total int64
	for _, c := range n.Children() {
		total += f(c)
	}
	return total
}

func (n *EntranceNode) sumFloat(f func(domain.TreeNode) float64) float64 {
	var total float64
	for _, c := range n.Children() {
		total += f(c)
	}
	return total
}

// AvgRT é a média dos filhos ponderada pelo success QPS de cada um.
func (n *EntranceNode) AvgRT() float64 {
	var total, success float64
	for _, c := range n.Children() {
		s := c.SuccessQPS()
		total += c.AvgRT() * s
		success += s
	}
	if success == 0 {
		return 0
	}
	return total / success
}

func (n *EntranceNode) BlockQPS() float64 {
	return n.sumFloat(func(c domain.TreeNode) float64 { return c.BlockQPS() })
}

func (n *EntranceNode) PassQPS() float64 {
	return n.sumFloat(func(c domain.TreeNode) float64 { return c.PassQPS() })
}

func (n *EntranceNode) SuccessQPS() float64 {
	return n.sumFloat(func(c domain.TreeNode) float64 { return c.SuccessQPS() })
}

func (n *EntranceNode) TotalQPS() float64 {
	return n.sumFloat(func(c domain.TreeNode) float64 { return c.TotalQPS() })
}

func (n *EntranceNode) BlockRequest() int64 {
	return n.sumInt(func(c domain.TreeNode) int64 { return c.BlockRequest() })
}

func (n *EntranceNode) TotalRequest() int64 {
	return n.sumInt(func(c domain.TreeNode) int64 { return c.TotalRequest() })
}

func (n *EntranceNode) TotalPass() int64 {
	return n.sumInt(func(c domain.TreeNode) int64 { return c.TotalPass() })
}

func (n *EntranceNode) CurConcurrency() int64 {
	return n.sumInt(func(c domain.TreeNode) int64 { return c.CurConcurrency() })
}
