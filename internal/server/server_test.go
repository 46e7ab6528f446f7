package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r4ven-labs/ragpipe/internal/faults"
	"github.com/r4ven-labs/ragpipe/internal/rag"
	"github.com/r4ven-labs/ragpipe/internal/vectorindex"
)

// fakeService implements queryService with scripted responses.
type fakeService struct {
	result     *rag.Result
	err        error
	calls      int
	lastReq    rag.Request
	components map[string]string
	healthy    bool
}

func (f *fakeService) ProcessQuery(_ context.Context, req rag.Request) (*rag.Result, error) {
	f.calls++
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeService) HealthCheck(context.Context) (map[string]string, bool) {
	return f.components, f.healthy
}

// fakeStats implements statser.
type fakeStats struct {
	stats vectorindex.Stats
	err   error
}

func (f *fakeStats) Stats(context.Context) (vectorindex.Stats, error) { return f.stats, f.err }

// fakePinger implements Pinger with a fixed outcome.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }
func (f *fakePinger) Name() string               { return f.name }

func newTestServer(t *testing.T, svc queryService, stats statser, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	s, err := New(svc, stats, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()
	svc := &fakeService{result: &rag.Result{
		Answer:      "Blue.",
		Query:       "What color is the sky?",
		Sources:     []rag.Source{{Source: "sky.txt", SimilarityScore: 0.91}},
		ChunksFound: 1,
	}}
	s := newTestServer(t, svc, nil, nil)

	rec := postQuery(t, s, `{"query": "What color is the sky?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result rag.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if result.Answer != "Blue." || result.ChunksFound != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleQuery_ValidationRejections(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank query", `{"query": "   "}`},
		{"oversized query", fmt.Sprintf(`{"query": %q}`, strings.Repeat("x", 1001))},
		{"max_chunks too large", `{"query": "q", "max_chunks": 21}`},
		{"negative max_chunks", `{"query": "q", "max_chunks": -1}`},
		{"threshold above one", `{"query": "q", "similarity_threshold": 1.5}`},
		{"threshold below zero", `{"query": "q", "similarity_threshold": -0.1}`},
		{"malformed json", `{"query": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{result: &rag.Result{}}
			s := newTestServer(t, svc, nil, nil)

			rec := postQuery(t, s, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if svc.calls != 0 {
				t.Errorf("pipeline invoked %d times for an invalid request", svc.calls)
			}
		})
	}
}

func TestHandleQuery_ServiceValidationError(t *testing.T) {
	t.Parallel()
	svc := &fakeService{err: fmt.Errorf("rag: %w: query must not be empty", faults.ErrValidation)}
	s := newTestServer(t, svc, nil, nil)

	rec := postQuery(t, s, `{"query": "q"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuery_UpstreamFailure(t *testing.T) {
	t.Parallel()
	svc := &fakeService{err: errors.New("index offline")}
	s := newTestServer(t, svc, nil, nil)

	rec := postQuery(t, s, `{"query": "q"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	t.Parallel()
	svc := &fakeService{
		components: map[string]string{"vector_index": "healthy", "embedder": "unhealthy"},
		healthy:    false,
	}
	s := newTestServer(t, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["embedder"] != "unhealthy" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()
	svc := &fakeService{components: map[string]string{"vector_index": "healthy"}, healthy: true}
	s := newTestServer(t, svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleReady_FailingDependency(t *testing.T) {
	t.Parallel()
	svc := &fakeService{healthy: true}
	cfg := &Config{Pingers: []Pinger{
		&fakePinger{name: "qdrant"},
		&fakePinger{name: "embedder", err: errors.New("connection refused")},
	}}
	s := newTestServer(t, svc, nil, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Ready {
		t.Error("ready = true, want false")
	}
	if len(resp.Checks) != 2 || resp.Checks[0].Name != "qdrant" || !resp.Checks[0].OK {
		t.Errorf("checks = %+v", resp.Checks)
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()
	svc := &fakeService{healthy: true}
	stats := &fakeStats{stats: vectorindex.Stats{TotalVectors: 7, Dimension: 1024, Status: "ok"}}
	s := newTestServer(t, svc, stats, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got vectorindex.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TotalVectors != 7 || got.Dimension != 1024 {
		t.Errorf("stats = %+v", got)
	}
}

func TestHandleStats_DegradedStillResponds(t *testing.T) {
	t.Parallel()
	svc := &fakeService{healthy: true}
	stats := &fakeStats{
		stats: vectorindex.Stats{Dimension: 1024, Status: "unavailable"},
		err:   errors.New("info rpc failed"),
	}
	s := newTestServer(t, svc, stats, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with placeholder", rec.Code)
	}
	var got vectorindex.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "unavailable" {
		t.Errorf("status = %q, want unavailable", got.Status)
	}
}

func TestAuth_Enforced(t *testing.T) {
	t.Parallel()
	svc := &fakeService{result: &rag.Result{Answer: "ok"}}
	s := newTestServer(t, svc, nil, &Config{APIKey: "secret-token"})

	// Missing header.
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"q"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, `realm="ragpipe"`) {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	// Wrong token.
	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	// Correct token.
	req = httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("correct token: status = %d, want 200", rec.Code)
	}

	// Health stays open without auth.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Error("health endpoint must not require auth")
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	t.Parallel()
	svc := &fakeService{result: &rag.Result{Answer: "ok"}}
	s := newTestServer(t, svc, nil, &Config{RateLimit: 1, RateBurst: 2})

	var last int
	for range 5 {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"q"}`))
		req.RemoteAddr = "10.0.0.9:4321"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
