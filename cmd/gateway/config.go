package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type config struct {
	listenAddr  string
	adminAddr   string
	upstreamURL string

	rulesFile    string
	rulesPoll    time.Duration
	originHeader string
	trustXFF     bool
	retryAfter   time.Duration
	addHeaders   bool

	// limite por cliente antes das regras (0 desliga)
	clientRPS   float64
	clientBurst int
	// vira uma regra de sistema quando não há arquivo de regras
	concurrencyMax int

	procMount   string
	metricEvery time.Duration
	logDev      bool

	statsEnabled        bool
	statsRedisAddr      string
	statsRedisPassword  string
	statsRedisDB        int
	statsPrefix         string
	statsTTL            time.Duration
	statsBucket         string
	statsTrackResources bool
}

// bindFlags registra as flags com o valor padrão vindo do ambiente.
func bindFlags(cmd *cobra.Command, cfg *config) {
	f := cmd.Flags()
	f.StringVar(&cfg.listenAddr, "listen", getenvDefault("LISTEN_ADDR", ":8080"), "endereço do proxy (LISTEN_ADDR)")
	f.StringVar(&cfg.adminAddr, "admin", getenvDefault("ADMIN_ADDR", ":9090"), "endereço de /metrics e /rules, vazio desliga (ADMIN_ADDR)")
	f.StringVar(&cfg.upstreamURL, "upstream", os.Getenv("UPSTREAM_URL"), "URL do serviço protegido (UPSTREAM_URL)")

	f.StringVar(&cfg.rulesFile, "rules", os.Getenv("SENTINELA_RULES_FILE"), "arquivo YAML de regras (SENTINELA_RULES_FILE)")
	f.DurationVar(&cfg.rulesPoll, "rules-poll", getenvDurationDefault("SENTINELA_RULES_POLL", 3*time.Second), "intervalo de verificação do arquivo de regras")
	f.StringVar(&cfg.originHeader, "origin-header", os.Getenv("ORIGIN_HEADER"), "header com a origem do chamador (ORIGIN_HEADER)")
	f.BoolVar(&cfg.trustXFF, "trust-xff", getenvBoolDefault("TRUST_XFF", false), "usa o primeiro IP do X-Forwarded-For como origem (TRUST_XFF)")
	f.DurationVar(&cfg.retryAfter, "retry-after", getenvDurationDefault("RETRY_AFTER", time.Second), "Retry-After das respostas 429 (RETRY_AFTER)")
	f.BoolVar(&cfg.addHeaders, "block-headers", getenvBoolDefault("ADD_BLOCK_HEADERS", false), "adiciona X-Sentinela-* nas respostas bloqueadas (ADD_BLOCK_HEADERS)")

	f.Float64Var(&cfg.clientRPS, "client-rps", getenvFloatDefault("CLIENT_RPS", 0), "limite por cliente em req/s, 0 desliga (CLIENT_RPS)")
	f.IntVar(&cfg.clientBurst, "client-burst", getenvIntDefault("CLIENT_BURST", 20), "rajada por cliente (CLIENT_BURST)")
	f.IntVar(&cfg.concurrencyMax, "concurrency-max", getenvIntDefault("CONCURRENCY_MAX", 100), "concorrência máxima de entrada sem arquivo de regras (CONCURRENCY_MAX)")

	f.StringVar(&cfg.procMount, "proc", getenvDefault("PROC_MOUNT", "/proc"), "ponto de montagem do procfs (PROC_MOUNT)")
	f.DurationVar(&cfg.metricEvery, "metric-interval", getenvDurationDefault("METRIC_INTERVAL", time.Second), "intervalo de gravação das métricas (METRIC_INTERVAL)")
	f.BoolVar(&cfg.logDev, "log-dev", getenvBoolDefault("LOG_DEV", false), "logger de desenvolvimento (LOG_DEV)")

	f.BoolVar(&cfg.statsEnabled, "stats", getenvBoolDefault("SENTINELA_STATS_ENABLED", false), "grava métricas por segundo no redis")
	f.StringVar(&cfg.statsRedisAddr, "stats-redis-addr", os.Getenv("SENTINELA_STATS_REDIS_ADDR"), "endereço do redis de métricas")
	f.StringVar(&cfg.statsRedisPassword, "stats-redis-password", os.Getenv("SENTINELA_STATS_REDIS_PASSWORD"), "senha do redis de métricas")
	f.IntVar(&cfg.statsRedisDB, "stats-redis-db", getenvIntDefault("SENTINELA_STATS_REDIS_DB", 0), "db do redis de métricas")
	f.StringVar(&cfg.statsPrefix, "stats-prefix", getenvDefault("SENTINELA_STATS_PREFIX", "sentinela:metrics"), "prefixo das chaves")
	f.DurationVar(&cfg.statsTTL, "stats-ttl", getenvDurationDefault("SENTINELA_STATS_TTL", 24*time.Hour), "TTL dos buckets")
	f.StringVar(&cfg.statsBucket, "stats-bucket", getenvDefault("SENTINELA_STATS_BUCKET", "minute"), "granularidade dos buckets (minute|hour)")
	f.BoolVar(&cfg.statsTrackResources, "stats-track-resources", getenvBoolDefault("SENTINELA_STATS_TRACK_RESOURCES", false), "mantém um hash por recurso")
}

func (cfg config) validate() error {
	if cfg.upstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if cfg.statsEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return errors.New("SENTINELA_STATS_REDIS_ADDR is required when stats are enabled")
	}
	if cfg.clientRPS < 0 {
		return errors.New("CLIENT_RPS must be >= 0")
	}
	if cfg.clientRPS > 0 && cfg.clientBurst <= 0 {
		return errors.New("CLIENT_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
