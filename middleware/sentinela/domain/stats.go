package domain

import (
	"context"
	"time"
)

// MetricItem é o agregado de um recurso em um segundo fechado.
//
// Ele é propositalmente "agnóstico de transporte": serve para Redis,
// Prometheus, arquivo, etc.
//
// Observação: cuidado com cardinalidade (um recurso por path dinâmico pode
// explodir o número de séries/chaves numa base como Redis/Prometheus).
type MetricItem struct {
	Resource  string
	Kind      ResourceKind
	Timestamp time.Time

	PassQPS         int64
	BlockQPS        int64
	SuccessQPS      int64
	ExceptionQPS    int64
	OccupiedPassQPS int64
	// RT é o tempo médio de resposta em ms no segundo.
	RT          int64
	Concurrency int64
}

// MetricSink é a estratégia de persistência das métricas por segundo.
//
// Implementações podem gravar em Redis, memória, etc.
// Quem chama trata erro como best-effort (nunca derruba uma chamada protegida).
type MetricSink interface {
	Write(ctx context.Context, items []MetricItem) error
}
