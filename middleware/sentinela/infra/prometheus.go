package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	descResourcePassQPS = prometheus.NewDesc(
		"sentinela_resource_pass_qps",
		"Chamadas admitidas por segundo (janela de segundo).",
		[]string{"resource"}, nil,
	)
	descResourceBlockQPS = prometheus.NewDesc(
		"sentinela_resource_block_qps",
		"Chamadas bloqueadas por segundo (janela de segundo).",
		[]string{"resource"}, nil,
	)
	descResourceSuccessQPS = prometheus.NewDesc(
		"sentinela_resource_success_qps",
		"Chamadas concluídas por segundo (janela de segundo).",
		[]string{"resource"}, nil,
	)
	descResourceExceptionQPS = prometheus.NewDesc(
		"sentinela_resource_exception_qps",
		"Erros de negócio por segundo (janela de segundo).",
		[]string{"resource"}, nil,
	)
	descResourceAvgRT = prometheus.NewDesc(
		"sentinela_resource_avg_rt_ms",
		"Tempo médio de resposta em ms (janela de segundo).",
		[]string{"resource"}, nil,
	)
	descResourceConcurrency = prometheus.NewDesc(
		"sentinela_resource_concurrency",
		"Chamadas em andamento.",
		[]string{"resource"}, nil,
	)
)

type resourceCollector struct {
	nodes *ClusterNodeRegistry
}

var _ prometheus.Collector = &resourceCollector{}

// NewResourceCollector expõe as janelas de todos os ClusterNodes como gauges.
// Os valores são lidos a cada scrape, sem cópia intermediária.
func NewResourceCollector(nodes *ClusterNodeRegistry) prometheus.Collector {
	return &resourceCollector{nodes: nodes}
}

func (c *resourceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descResourcePassQPS
	ch <- descResourceBlockQPS
	ch <- descResourceSuccessQPS
	ch <- descResourceExceptionQPS
	ch <- descResourceAvgRT
	ch <- descResourceConcurrency
}

func (c *resourceCollector) Collect(ch chan<- prometheus.Metric) {
	for name, n := range c.nodes.All() {
		ch <- prometheus.MustNewConstMetric(descResourcePassQPS, prometheus.GaugeValue, n.PassQPS(), name)
		ch <- prometheus.MustNewConstMetric(descResourceBlockQPS, prometheus.GaugeValue, n.BlockQPS(), name)
		ch <- prometheus.MustNewConstMetric(descResourceSuccessQPS, prometheus.GaugeValue, n.SuccessQPS(), name)
		ch <- prometheus.MustNewConstMetric(descResourceExceptionQPS, prometheus.GaugeValue, n.ExceptionQPS(), name)
		ch <- prometheus.MustNewConstMetric(descResourceAvgRT, prometheus.GaugeValue, n.AvgRT(), name)
		ch <- prometheus.MustNewConstMetric(descResourceConcurrency, prometheus.GaugeValue, float64(n.CurConcurrency()), name)
	}
}

// NewBlockCounter cria o contador de bloqueios por recurso e tipo de regra.
func NewBlockCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinela_block_total",
		Help: "Total de chamadas bloqueadas, por recurso e tipo de regra.",
	}, []string{"resource", "block_type"})
}
