package application

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// MetricTimer junta, a cada intervalo, os segundos fechados de todos os
// ClusterNodes (e do total de entrada) e grava nos sinks. Best-effort: erro de
// sink só vira log.
type MetricTimer struct {
	g      *Guard
	sinks  []domain.MetricSink
	logger *zap.Logger
}

func NewMetricTimer(g *Guard, sinks ...domain.MetricSink) *MetricTimer {
	return &MetricTimer{g: g, sinks: sinks, logger: g.logger.Named("metric")}
}

func metricItems(name string, kind domain.ResourceKind, n *infra.ClusterNode) []domain.MetricItem {
	details := n.Metrics()
	out := make([]domain.MetricItem, 0, len(details))
	for start, b := range details {
		it := domain.MetricItem{
			Resource:        name,
			Kind:            kind,
			Timestamp:       time.UnixMilli(start),
			PassQPS:         b.Pass,
			BlockQPS:        b.Block,
			SuccessQPS:      b.Success,
			ExceptionQPS:    b.Exception,
			OccupiedPassQPS: b.OccupiedPass,
			Concurrency:     n.CurConcurrency(),
		}
		if b.Success > 0 {
			it.RT = b.RT / b.Success
		}
		out = append(out, it)
	}
	return out
}

// Collect devolve os itens ainda não lidos, ordenados por instante e recurso.
func (t *MetricTimer) Collect() []domain.MetricItem {
	var items []domain.MetricItem
	for name, n := range t.g.nodes.All() {
		items = append(items, metricItems(name, n.Kind(), n)...)
	}
	items = append(items, metricItems(TotalInboundNodeName, domain.KindCommon, t.g.inbound)...)

	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].Resource < items[j].Resource
	})
	return items
}

// Flush coleta e grava em todos os sinks.
func (t *MetricTimer) Flush(ctx context.Context) {
	items := t.Collect()
	if len(items) == 0 {
		return
	}
	for _, s := range t.sinks {
		if err := s.Write(ctx, items); err != nil {
			t.logger.Warn("metric sink write failed", zap.Int("items", len(items)), zap.Error(err))
		}
	}
}

// Start roda Flush a cada intervalo até ctx ser cancelado.
func (t *MetricTimer) Start(ctx context.Context) {
	every := t.g.metricInterval
	if every <= 0 {
		return
	}
	tk := t.g.clk.Ticker(every)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				t.Flush(ctx)
			}
		}
	}()
}
