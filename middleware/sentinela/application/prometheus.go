package application

import (
	"github.com/prometheus/client_golang/prometheus"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

const prometheusCallbackKey = "prometheus"

// RegisterPrometheus expõe os nós da Guard e um contador de bloqueios
// (alimentado pelo callback de bloqueio do slot de estatística).
func RegisterPrometheus(g *Guard, reg prometheus.Registerer) error {
	blocks := infra.NewBlockCounter()
	if err := reg.Register(infra.NewResourceCollector(g.ClusterNodes())); err != nil {
		return err
	}
	if err := reg.Register(blocks); err != nil {
		return err
	}
	g.Callbacks().AddBlocked(prometheusCallbackKey, func(_ *domain.Context, rw domain.ResourceWrapper, _ domain.TreeNode, count int, be *domain.BlockError, _ ...any) {
		blocks.WithLabelValues(rw.Name(), be.BlockType().String()).Add(float64(count))
	})
	return nil
}
