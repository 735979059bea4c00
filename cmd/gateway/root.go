package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fronteira/middleware/sentinela"
	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/datasource"
	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

func newRootCmd() *cobra.Command {
	cfg := &config{}
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Reverse proxy protegido pelo sentinela (fluxo, degrade, sistema, autoridade).",
		Example: `UPSTREAM_URL=http://localhost:8081 gateway --rules ./rules.yaml

# regras só por ambiente: concorrência de entrada e limite por cliente
UPSTREAM_URL=http://localhost:8081 CONCURRENCY_MAX=50 CLIENT_RPS=5 gateway`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), *cfg)
		},
	}
	bindFlags(cmd, cfg)
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(parent context.Context, cfg config) error {
	logger, err := newLogger(cfg.logDev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []application.Option{
		application.WithLogger(logger.Named("sentinela")),
		application.WithSystemStatus(infra.NewProcfsSystemStatus(infra.WithProcMount(cfg.procMount))),
		application.WithMetricInterval(cfg.metricEvery),
	}
	if cfg.statsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}
		opts = append(opts, application.WithMetricSinks(infra.NewRedisMetricSink(rdb,
			infra.WithSinkPrefix(cfg.statsPrefix),
			infra.WithSinkTTL(cfg.statsTTL),
			infra.WithSinkBucket(cfg.statsBucket),
			infra.WithSinkTrackResources(cfg.statsTrackResources),
		)))
	}

	g, err := application.NewGuard(opts...)
	if err != nil {
		return err
	}
	g.Start(ctx)

	if err := loadRules(ctx, g, cfg, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := application.RegisterPrometheus(g, reg); err != nil {
		return fmt.Errorf("prometheus: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	var clientLimiter *infra.LimiterStore
	if cfg.clientRPS > 0 {
		clientLimiter = infra.NewLimiterStore(cfg.clientRPS, cfg.clientBurst)
		clientLimiter.StartJanitor(ctx)
	}

	h := sentinela.Middleware(sentinela.Options{
		Guard:              g,
		OriginHeader:       cfg.originHeader,
		TrustXForwardedFor: cfg.trustXFF,
		ClientLimiter:      clientLimiter,
		RetryAfter:         cfg.retryAfter,
		AddBlockHeaders:    cfg.addHeaders,
		Logger:             logger.Named("http"),
	})(proxy)

	servers := []*http.Server{newServer(cfg.listenAddr, h)}
	if cfg.adminAddr != "" {
		servers = append(servers, newServer(cfg.adminAddr, newAdminMux(g, reg, logger.Named("admin"))))
	}

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr), zap.Stringer("upstream", target),
		zap.String("admin", cfg.adminAddr), zap.String("rules", cfg.rulesFile),
		zap.Float64("clientRps", cfg.clientRPS), zap.Int("clientBurst", cfg.clientBurst),
		zap.Bool("stats", cfg.statsEnabled))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return eg.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// loadRules carrega o arquivo (e passa a acompanhá-lo) ou, sem arquivo,
// transforma CONCURRENCY_MAX numa regra de sistema.
func loadRules(ctx context.Context, g *application.Guard, cfg config, logger *zap.Logger) error {
	if cfg.rulesFile == "" {
		if cfg.concurrencyMax > 0 {
			return g.SystemRules().LoadRules([]domain.SystemRule{{MaxConcurrency: int64(cfg.concurrencyMax)}})
		}
		return nil
	}
	src := datasource.NewFileSource(cfg.rulesFile, g,
		datasource.WithLogger(logger.Named("rules")),
		datasource.WithPollEvery(cfg.rulesPoll))
	if err := src.Load(); err != nil {
		return fmt.Errorf("rules file: %w", err)
	}
	src.Watch(ctx)
	return nil
}
