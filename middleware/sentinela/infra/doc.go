// Package infra contém as implementações concretas para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - LeapArray/ArrayMetric: janela deslizante em buckets com rollover por CAS
//   - StatisticNode, DefaultNode, EntranceNode, ClusterNode: nós estatísticos
//   - Snapshot: troca atômica de conjuntos de regras
//   - MemoryMetricSink / RedisMetricSink / ResourceCollector: saída das métricas
//   - ProcfsSystemStatus: load e CPU lidos de /proc (github.com/prometheus/procfs)
//   - ChanPool, LimiterStore: semáforo e token bucket por chave (golang.org/x/time/rate)
package infra
