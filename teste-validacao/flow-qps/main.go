package main

import (
	"context"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/domain"
)

// Dispara N goroutines contra uma regra de QPS e imprime pass/block por segundo.
func main() {
	workers := flag.Int("workers", 16, "goroutines chamando o recurso")
	qps := flag.Float64("qps", 20, "limite da regra")
	behavior := flag.String("behavior", "reject", "reject|warm_up|rate_limiter|warm_up_rate_limiter")
	dur := flag.Duration("duration", 10*time.Second, "duração do teste")
	flag.Parse()

	var cb domain.ControlBehavior
	if err := cb.UnmarshalText([]byte(*behavior)); err != nil {
		fmt.Println("behavior inválido:", err)
		return
	}

	g, err := application.NewGuard(application.WithLogger(zap.NewNop()))
	if err != nil {
		fmt.Println("guard:", err)
		return
	}
	if err := g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "alvo", Grade: domain.FlowGradeQPS, Count: *qps, ControlBehavior: cb, MaxQueueingTimeMs: 1000},
	}); err != nil {
		fmt.Println("regra:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *dur)
	defer cancel()

	var pass, block atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *workers; i++ {
		eg.Go(func() error {
			for ctx.Err() == nil {
				e, err := g.Entry(nil, "alvo")
				if err != nil {
					block.Add(1)
					time.Sleep(time.Millisecond)
					continue
				}
				pass.Add(1)
				time.Sleep(2 * time.Millisecond)
				_ = e.Exit()
			}
			return nil
		})
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	fmt.Printf("regra: qps=%.1f behavior=%s workers=%d\n", *qps, cb, *workers)
	var totalPass, totalBlock int64
	for sec := 1; ; sec++ {
		select {
		case <-ctx.Done():
			_ = eg.Wait()
			totalPass += pass.Load()
			totalBlock += block.Load()
			fmt.Printf("fim: pass=%d block=%d\n", totalPass, totalBlock)
			return
		case <-tick.C:
			p, b := pass.Swap(0), block.Swap(0)
			totalPass += p
			totalBlock += b
			fmt.Printf("t=%02ds pass=%d block=%d\n", sec, p, b)
		}
	}
}
