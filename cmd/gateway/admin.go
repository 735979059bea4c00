package main

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/datasource"
)

const maxRulesBody = 1 << 20

// newAdminMux expõe /metrics, /rules (GET lista, PUT troca tudo) e /healthz.
func newAdminMux(g *application.Guard, reg *prometheus.Registry, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			out, err := datasource.Marshal(datasource.Current(g))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(out)

		case http.MethodPut:
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRulesBody))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rs, err := datasource.Parse(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := datasource.Apply(g, rs); err != nil {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			logger.Info("rules replaced via admin",
				zap.Int("flow", len(rs.Flow)), zap.Int("degrade", len(rs.Degrade)),
				zap.Int("system", len(rs.System)), zap.Int("authority", len(rs.Authority)))
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, PUT")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/switch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		on := r.URL.Query().Get("enabled") != "false"
		g.SetEnabled(on)
		logger.Info("guard switch", zap.Bool("enabled", on))
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
