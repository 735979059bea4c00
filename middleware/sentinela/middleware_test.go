package sentinela

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"fronteira/middleware/sentinela/application"
	"fronteira/middleware/sentinela/domain"
	"fronteira/middleware/sentinela/infra"
)

func newGuard(t *testing.T) (*application.Guard, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(1_000_000_250))
	g, err := application.NewGuard(application.WithClock(clk), application.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return g, clk
}

func do(h http.Handler, method, target, remote string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_FlowRuleRejectsWith429(t *testing.T) {
	g, _ := newGuard(t)
	if err := g.FlowRules().LoadRules([]domain.FlowRule{
		{Resource: "GET /showTela", Grade: domain.FlowGradeQPS, Count: 1},
	}); err != nil {
		t.Fatalf("load rules: %v", err)
	}

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Guard:           g,
		RetryAfter:      2 * time.Second,
		AddBlockHeaders: true,
	})(next)

	// 1) primeira passa
	w1 := do(h, http.MethodGet, "http://example/showTela", "10.0.0.1:1234")
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}

	// 2) segunda estoura o limite de 1 QPS
	w2 := do(h, http.MethodGet, "http://example/showTela", "10.0.0.1:1234")
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if got := w2.Header().Get("X-Sentinela-Block"); got != "flow" {
		t.Fatalf("expected X-Sentinela-Block flow, got %q", got)
	}
	if got := w2.Header().Get("X-Sentinela-Observed"); got != "1" {
		t.Fatalf("expected X-Sentinela-Observed 1, got %q", got)
	}

	// outro recurso não é afetado
	if w := do(h, http.MethodGet, "http://example/other", "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on other resource, got %d", w.Code)
	}

	if calls != 2 {
		t.Fatalf("expected next handler to be called twice, got %d", calls)
	}
}

func TestMiddleware_AuthorityUsesOriginHeader(t *testing.T) {
	g, _ := newGuard(t)
	if err := g.AuthorityRules().LoadRules([]domain.AuthorityRule{
		{Resource: "GET /admin", LimitApp: "ops", Strategy: domain.AuthorityWhite},
	}); err != nil {
		t.Fatalf("load rules: %v", err)
	}

	h := Middleware(Options{Guard: g, OriginHeader: "X-Origin"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/admin", nil)
	r.Header.Set("X-Origin", "ops")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for ops, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "http://example/admin", nil)
	r.Header.Set("X-Origin", "guest")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for guest, got %d", w.Code)
	}
}

func TestMiddleware_ServerErrorsOpenCircuitBreaker(t *testing.T) {
	g, _ := newGuard(t)
	if err := g.DegradeRules().LoadRules([]domain.DegradeRule{
		{Resource: "GET /flaky", Grade: domain.DegradeErrorCount, Count: 1, TimeWindow: 10, MinRequestAmount: 1},
	}); err != nil {
		t.Fatalf("load rules: %v", err)
	}

	h := Middleware(Options{Guard: g})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	for i := 0; i < 2; i++ {
		if w := do(h, http.MethodGet, "http://example/flaky", "10.0.0.1:1"); w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502 from handler, got %d", w.Code)
		}
	}
	if w := do(h, http.MethodGet, "http://example/flaky", "10.0.0.1:1"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from open breaker, got %d", w.Code)
	}

	cn, ok := g.ClusterNode("GET /flaky")
	if !ok {
		t.Fatalf("expected cluster node")
	}
	if got := cn.TotalException(); got != 2 {
		t.Fatalf("expected 2 exceptions, got %d", got)
	}
}

func TestMiddleware_BindsContextAndCountsInbound(t *testing.T) {
	g, _ := newGuard(t)

	var depth int
	h := Middleware(Options{Guard: g})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := domain.FromContext(r.Context())
		if !ok {
			t.Errorf("expected bound context")
			return
		}
		depth = c.Depth()

		// chamada de saída aninhada no mesmo Context
		e, err := g.Entry(c, "db:query")
		if err != nil {
			t.Errorf("nested entry: %v", err)
			return
		}
		_ = e.Exit()
		w.WriteHeader(http.StatusOK)
	}))

	if w := do(h, http.MethodGet, "http://example/users", "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if depth != 1 {
		t.Fatalf("expected depth 1 inside handler, got %d", depth)
	}
	if got := g.InboundNode().TotalPass(); got != 1 {
		t.Fatalf("expected 1 inbound pass, got %d", got)
	}
	if got := g.InboundNode().CurConcurrency(); got != 0 {
		t.Fatalf("expected concurrency back to 0, got %d", got)
	}
	cn, ok := g.ClusterNode("db:query")
	if !ok || cn.TotalPass() != 1 {
		t.Fatalf("expected nested resource to be counted")
	}
}

func TestMiddleware_ClientLimiterPerOrigin(t *testing.T) {
	g, _ := newGuard(t)
	store := infra.NewLimiterStore(0.02, 1)

	h := Middleware(Options{Guard: g, ClientLimiter: store})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if w := do(h, http.MethodGet, "http://example/", "10.0.0.1:1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "http://example/", "10.0.0.1:1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same client, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "http://example/", "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for other client, got %d", w.Code)
	}
}

func TestMiddleware_NilGuardIsPassThrough(t *testing.T) {
	h := Middleware(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	if w := do(h, http.MethodGet, "http://example/", "10.0.0.1:1"); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.BlockType]int{
		domain.BlockTypeFlow:      http.StatusTooManyRequests,
		domain.BlockTypeDegrade:   http.StatusServiceUnavailable,
		domain.BlockTypeSystem:    http.StatusServiceUnavailable,
		domain.BlockTypeAuthority: http.StatusForbidden,
	}
	for bt, want := range cases {
		if got := StatusFor(bt); got != want {
			t.Fatalf("%s: expected %d, got %d", bt, want, got)
		}
	}
}
