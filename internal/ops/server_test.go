package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"castbot/internal/metrics"
	"castbot/internal/services/broadcast"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeJobs map[string]broadcast.JobStatus

func (f fakeJobs) Status(id string) (broadcast.JobStatus, bool) {
	st, ok := f[id]
	return st, ok
}

func (f fakeJobs) Last() (broadcast.JobStatus, bool) { return f.Status("last") }

func serve(t *testing.T, s *Server, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ping error
		code int
		body string
	}{
		{"ok", nil, http.StatusOK, `"status":"ok"`},
		{"store down", errors.New("database is locked"), http.StatusServiceUnavailable, `"failed_check":"storage"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(Config{}, Deps{Store: pingFunc(func(context.Context) error { return tt.ping })})
			rec := serve(t, s, "/healthz", "")
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	s := New(Config{Token: "s3cret"}, Deps{})
	tests := []struct {
		name   string
		target string
		token  string
		code   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong", "/healthz", "nope", http.StatusUnauthorized},
		{"header", "/healthz", "s3cret", http.StatusOK},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
	}
	for _, tt := range tests {
		if rec := serve(t, s, tt.target, tt.token); rec.Code != tt.code {
			t.Fatalf("%s: code = %d, want %d", tt.name, rec.Code, tt.code)
		}
	}
}

func TestJobStatus(t *testing.T) {
	t.Parallel()
	jobs := fakeJobs{
		"01J": {ID: "01J", State: broadcast.StateCompleted, Total: 3, Delivered: 2, Unreachable: 1},
	}
	jobs["last"] = jobs["01J"]
	s := New(Config{}, Deps{Jobs: jobs})

	rec := serve(t, s, "/api/broadcasts/01J", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got broadcast.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "01J" || got.Delivered != 2 || got.State != broadcast.StateCompleted {
		t.Fatalf("status = %+v", got)
	}

	if rec := serve(t, s, "/api/broadcasts/last", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"01J"`) {
		t.Fatalf("last: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, s, "/api/broadcasts/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: code = %d", rec.Code)
	}
}

func TestLastJobEmpty(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Deps{Jobs: fakeJobs{}})
	if rec := serve(t, s, "/api/broadcasts/last", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	s := New(Config{}, Deps{Gatherer: reg})

	rec := serve(t, s, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "castbot_broadcast_inflight") {
		t.Fatalf("metrics body missing castbot collectors:\n%s", rec.Body.String())
	}
}

func TestPprofRoutes(t *testing.T) {
	t.Parallel()
	off := New(Config{}, Deps{})
	if rec := serve(t, off, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled: code = %d", rec.Code)
	}
	on := New(Config{Pprof: true}, Deps{})
	if rec := serve(t, on, "/debug/pprof/goroutine?debug=1", ""); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled: code = %d", rec.Code)
	}
}

func TestStartRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, Deps{})
	if err := s.Start(context.Background()); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("want ErrInsecureBind, got %v", err)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no bound addr")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = client.Get("http://" + addr + "/healthz")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthz: %d %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("addr kept after stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:80":   true,
		"[::1]:9090":     true,
		"0.0.0.0:9090":   false,
		":9090":          false,
		"10.0.0.1:9090":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
