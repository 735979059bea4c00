package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fronteira/middleware/sentinela"
	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink := infra.NewMemoryMetricSink(infra.WithKeepLast(120))
	g, err := application.NewGuard(
		application.WithLogger(logger),
		application.WithMetricSinks(sink),
	)
	if err != nil {
		logger.Fatal("guard", zap.Error(err))
	}
	g.Start(ctx)

	if err := g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "GET /", Grade: domain.FlowGradeQPS, Count: 5},
		{Resource: "GET /slow", Grade: domain.FlowGradeQPS, Count: 2, ControlBehavior: domain.BehaviorRateLimiter},
	}); err != nil {
		logger.Fatal("flow rules", zap.Error(err))
	}
	if err := g.DegradeRules().LoadRules([]domain.DegradeRule{
		{Resource: "GET /flaky", Grade: domain.DegradeErrorRatio, Count: 0.5, TimeWindow: 5},
	}); err != nil {
		logger.Fatal("degrade rules", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("slow ok\n"))
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if time.Now().UnixNano()%2 == 0 {
			http.Error(w, "falhou", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("flaky ok\n"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		for name, c := range sink.ByResource() {
			logger.Info("stats", zap.String("resource", name),
				zap.Int64("pass", c.Pass), zap.Int64("block", c.Block), zap.Int64("exception", c.Exception))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	h := sentinela.Middleware(sentinela.Options{
		Guard:              g,
		OriginHeader:       "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor: true,
		AddBlockHeaders:    true,
		Logger:             logger,
	})(mux)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
