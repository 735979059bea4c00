package sentinela

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

// WebContextName é o nome do Context de entrada usado pelo middleware.
const WebContextName = "sentinela_web_context"

// BlockHandler escreve a resposta de uma requisição bloqueada.
type BlockHandler func(w http.ResponseWriter, r *http.Request, be *domain.BlockError)

type Options struct {
	Guard *application.Guard

	ResourceFn         ResourceFunc
	OriginFn           OriginFunc
	OriginHeader       string
	TrustXForwardedFor bool
	ContextName        string

	// ClientLimiter, se definido, limita cada origem antes das regras.
	ClientLimiter *infra.LimiterStore

	RetryAfter      time.Duration
	AddBlockHeaders bool
	OnBlocked       BlockHandler
	Logger          *zap.Logger
}

// StatusFor traduz o tipo de bloqueio para o status HTTP.
func StatusFor(t domain.BlockType) int {
	switch t {
	case domain.BlockTypeFlow:
		return http.StatusTooManyRequests
	case domain.BlockTypeAuthority:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// statusRecorder guarda o status escrito pelo próximo handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Guard == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.ResourceFn == nil {
		opts.ResourceFn = DefaultResourceFunc
	}
	if opts.OriginFn == nil {
		opts.OriginFn = DefaultOriginFunc(opts.OriginHeader, opts.TrustXForwardedFor)
	}
	if opts.ContextName == "" {
		opts.ContextName = WebContextName
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnBlocked == nil {
		opts.OnBlocked = defaultBlockHandler(opts)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := opts.OriginFn(r)

			if opts.ClientLimiter != nil && !opts.ClientLimiter.Allow(origin) {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(opts.RetryAfter.Milliseconds())))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			resource := opts.ResourceFn(r)
			ctx, c := opts.Guard.EnterContext(r.Context(), opts.ContextName, origin)
			owned := ctx != r.Context()

			e, err := opts.Guard.Entry(c, resource,
				application.WithEntryType(domain.Inbound),
				application.WithResourceKind(domain.KindWeb))
			if err != nil {
				if owned {
					c.Exit()
				}
				if be, ok := domain.AsBlockError(err); ok {
					opts.OnBlocked(w, r, be)
					return
				}
				opts.Logger.Error("entry failed", zap.String("resource", resource), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					e.SetError(fmt.Errorf("panic: %v", p))
					_ = e.Exit()
					if owned {
						c.Exit()
					}
					panic(p)
				}
				if rec.status >= http.StatusInternalServerError {
					e.SetError(fmt.Errorf("http status %d", rec.status))
				}
				if err := e.Exit(); err != nil {
					opts.Logger.Warn("entry exit", zap.String("resource", resource), zap.Error(err))
				}
				if owned {
					c.Exit()
				}
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))
		})
	}
}

func defaultBlockHandler(opts Options) BlockHandler {
	return func(w http.ResponseWriter, _ *http.Request, be *domain.BlockError) {
		status := StatusFor(be.BlockType())
		if opts.AddBlockHeaders {
			w.Header().Set("X-Sentinela-Block", be.BlockType().String())
			w.Header().Set("X-Sentinela-Resource", be.Resource())
			if v, ok := be.Snapshot().(float64); ok {
				w.Header().Set("X-Sentinela-Observed", formatFloat(v))
			}
		}
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", formatInt(retryAfterSeconds(opts.RetryAfter.Milliseconds())))
		}
		http.Error(w, http.StatusText(status), status)
	}
}
