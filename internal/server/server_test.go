package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/config"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/environment"
	"github.com/yz4230/bluegreen/internal/inject"
	"github.com/yz4230/bluegreen/internal/runtime"
	"github.com/yz4230/bluegreen/internal/storage"
)

// listenerRuntime "runs" a workload by listening on its host port, which is
// enough for the tcp health strategy.
type listenerRuntime struct {
	mu      sync.Mutex
	seq     int
	running map[string]*listenerWorkload
}

type listenerWorkload struct {
	runtime.Workload
	ln net.Listener
}

func newListenerRuntime() *listenerRuntime {
	return &listenerRuntime{running: map[string]*listenerWorkload{}}
}

func (r *listenerRuntime) Ping(ctx context.Context) error { return nil }

func (r *listenerRuntime) Start(ctx context.Context, spec runtime.WorkloadSpec) (runtime.Workload, error) {
	if strings.Contains(spec.Image, "broken") {
		return runtime.Workload{}, errors.New("image has no entrypoint")
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", spec.HostIP, spec.HostPort))
	if err != nil {
		return runtime.Workload{}, err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	w := runtime.Workload{ID: fmt.Sprintf("w%d", r.seq), Name: spec.Name, Image: spec.Image, State: "running", Labels: spec.Labels}
	r.running[w.ID] = &listenerWorkload{Workload: w, ln: ln}
	return w, nil
}

func (r *listenerRuntime) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.running[id]; ok {
		w.ln.Close()
		delete(r.running, id)
	}
	return nil
}

func (r *listenerRuntime) List(ctx context.Context, labels map[string]string) ([]runtime.Workload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []runtime.Workload
	for _, w := range r.running {
		match := true
		for k, v := range labels {
			if w.Labels[k] != v {
				match = false
			}
		}
		if match {
			res = append(res, w.Workload)
		}
	}
	return res, nil
}

func (r *listenerRuntime) images() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []string
	for _, w := range r.running {
		res = append(res, w.Image)
	}
	return res
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

type testServer struct {
	t       *testing.T
	srv     *Server
	rt      *listenerRuntime
	cfg     *config.Config
	ports   map[entity.SlotID]int
	logger  zerolog.Logger
	routerD string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	ports := map[entity.SlotID]int{entity.SlotA: freePort(t), entity.SlotB: freePort(t)}
	routerDir := filepath.Join(dir, "nginx")
	catalog := fmt.Sprintf(`
environments:
  staging:
    ports: {A: %d, B: %d}
    container_port: 80
    health:
      strategy: tcp
      request_timeout: 200ms
    router:
      dir: %s
      verify_command: ["true"]
      reload_command: ["true"]
`, ports[entity.SlotA], ports[entity.SlotB], routerDir)
	catalogPath := filepath.Join(dir, "environments.yaml")
	if err := os.WriteFile(catalogPath, []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		StateDir:      filepath.Join(dir, "state"),
		Catalog:       catalogPath,
		StartTimeout:  5 * time.Second,
		ProbeTimeout:  5 * time.Second,
		ProbeInterval: 20 * time.Millisecond,
		SwitchTimeout: 5 * time.Second,
		StopTimeout:   time.Second,
	}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	injector := inject.New(cfg, logger)
	rt := newListenerRuntime()
	do.OverrideValue[runtime.Runtime](injector, rt)
	t.Cleanup(func() {
		for _, w := range rt.running {
			w.ln.Close()
		}
		injector.Shutdown()
	})

	return &testServer{
		t:       t,
		srv:     New(&Config{Logger: logger, Injector: injector}),
		rt:      rt,
		cfg:     cfg,
		ports:   ports,
		logger:  logger,
		routerD: routerDir,
	}
}

func (s *testServer) do(method, path, body string, out any) int {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}

	var attempt entity.DeploymentAttempt
	if code := s.do(http.MethodPost, "/api/environments/staging/deployments", `{"image":"ghcr.io/acme/web:v1"}`, &attempt); code != http.StatusCreated {
		t.Fatalf("release = %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	for _, name := range []string{"bluegreen_release_attempts_total", "bluegreen_routing_active_slot"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

func TestReleaseLifecycle(t *testing.T) {
	s := newTestServer(t)

	var status environment.Status
	if code := s.do(http.MethodGet, "/api/environments/staging", "", &status); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if status.Routing != nil || !status.InSync {
		t.Errorf("fresh status = %+v", status)
	}

	var first, second entity.DeploymentAttempt
	if code := s.do(http.MethodPost, "/api/environments/staging/deployments", `{"image":"ghcr.io/acme/web:v1"}`, &first); code != http.StatusCreated {
		t.Fatalf("first release = %d (%+v)", code, first)
	}
	if first.TargetSlot != entity.SlotA || first.Outcome != entity.OutcomeSucceeded {
		t.Errorf("first = %+v", first)
	}
	if code := s.do(http.MethodPost, "/api/environments/staging/deployments", `{"image":"ghcr.io/acme/web:v2","gate_exit_code":0}`, &second); code != http.StatusCreated {
		t.Fatalf("second release = %d (%+v)", code, second)
	}
	if second.TargetSlot != entity.SlotB || second.PreviousSlot != entity.SlotA {
		t.Errorf("second = %+v", second)
	}
	if images := s.rt.images(); len(images) != 1 || images[0] != "ghcr.io/acme/web:v2" {
		t.Errorf("running images = %v; want only v2", images)
	}

	if code := s.do(http.MethodGet, "/api/environments/staging", "", &status); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if status.Routing == nil || status.Routing.ActiveSlot != entity.SlotB || status.RouterSlot != entity.SlotB || !status.InSync {
		t.Errorf("status = %+v", status)
	}
	if target, err := os.Readlink(filepath.Join(s.routerD, "staging.conf")); err != nil || target != "staging-b.conf" {
		t.Errorf("router link = %q, %v", target, err)
	}

	var history struct {
		Deployments []*entity.DeploymentAttempt `json:"deployments"`
	}
	if code := s.do(http.MethodGet, "/api/environments/staging/deployments", "", &history); code != http.StatusOK {
		t.Fatalf("history = %d", code)
	}
	if len(history.Deployments) != 2 || history.Deployments[0].ID != second.ID {
		t.Errorf("history = %+v", history.Deployments)
	}
	if code := s.do(http.MethodGet, "/api/environments/staging/deployments?limit=1", "", &history); code != http.StatusOK || len(history.Deployments) != 1 {
		t.Errorf("limited history = %d, %d entries", code, len(history.Deployments))
	}

	var got entity.DeploymentAttempt
	if code := s.do(http.MethodGet, "/api/deployments/"+first.ID.String(), "", &got); code != http.StatusOK {
		t.Fatalf("get attempt = %d", code)
	}
	if got.ID != first.ID || len(got.Transitions) != len(first.Transitions) {
		t.Errorf("got = %+v", got)
	}
}

func TestReleaseRollbackOverHTTP(t *testing.T) {
	s := newTestServer(t)

	var attempt entity.DeploymentAttempt
	if code := s.do(http.MethodPost, "/api/environments/staging/deployments", `{"image":"ghcr.io/acme/broken:v1"}`, &attempt); code != http.StatusUnprocessableEntity {
		t.Fatalf("release = %d", code)
	}
	if attempt.Outcome != entity.OutcomeRolledBack || attempt.State != entity.StateIdle {
		t.Errorf("attempt = %+v", attempt)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.StateDir, "staging", "routing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("routing state written after rollback: %v", err)
	}
}

func TestAPIErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"InvalidImage", http.MethodPost, "/api/environments/staging/deployments", `{"image":"Not A Ref"}`, http.StatusBadRequest},
		{"MissingImage", http.MethodPost, "/api/environments/staging/deployments", `{}`, http.StatusBadRequest},
		{"MalformedBody", http.MethodPost, "/api/environments/staging/deployments", `{"image":`, http.StatusBadRequest},
		{"GateRejected", http.MethodPost, "/api/environments/staging/deployments", `{"image":"ghcr.io/acme/web:v1","gate_exit_code":2}`, http.StatusPreconditionFailed},
		{"BadEnvironment", http.MethodGet, "/api/environments/PROD", "", http.StatusBadRequest},
		{"BadLimit", http.MethodGet, "/api/environments/staging/deployments?limit=x", "", http.StatusBadRequest},
		{"UnknownAttempt", http.MethodGet, "/api/deployments/0b4c2d8e-unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp struct {
				Error string `json:"error"`
			}
			if code := s.do(tt.method, tt.path, tt.body, &resp); code != tt.want {
				t.Errorf("%s %s = %d; want %d (%s)", tt.method, tt.path, code, tt.want, resp.Error)
			}
			if resp.Error == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestConcurrentReleaseIsRejected(t *testing.T) {
	s := newTestServer(t)

	registry := storage.NewSlotRegistry(s.cfg.StateDir, "staging", s.ports, s.logger)
	unlock, err := registry.Lock()
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	var resp struct {
		Error string `json:"error"`
	}
	if code := s.do(http.MethodPost, "/api/environments/staging/deployments", `{"image":"ghcr.io/acme/web:v1"}`, &resp); code != http.StatusConflict {
		t.Fatalf("release = %d (%s); want 409", code, resp.Error)
	}
	if images := s.rt.images(); len(images) != 0 {
		t.Errorf("workloads started: %v", images)
	}
}
