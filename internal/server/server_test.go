package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/testutil"
)

const (
	repo      = "https://example.com/app.git"
	tunnelURL = "https://calm-brook-silver-fox.trycloudflare.com"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	env     *testutil.TestEnv
	backend Backend
	api     *API
	srv     *httptest.Server
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()

	env := testutil.NewTestEnv(t, 2)
	events := broadcast.New(broadcast.WithLogger(quietLogger))
	auditLog := audit.NewLogger(env.TmpDir)
	m := metrics.New()

	coord, err := provision.New(env.Manager, env.Pool, events, env.Config,
		provision.WithAudit(auditLog),
		provision.WithMetrics(m),
		provision.WithLogger(quietLogger),
	)
	if err != nil {
		t.Fatalf("provision.New failed: %v", err)
	}

	b := Backend{
		Coordinator: coord,
		Manager:     env.Manager,
		Pool:        env.Pool,
		Events:      events,
		Audit:       auditLog,
		Metrics:     m,
		Tunnel:      env.Config.Tunnel.Enabled,
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Logger = quietLogger
	a := New(cfg, b)
	srv := httptest.NewServer(a)

	t.Cleanup(func() {
		a.Close()
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		coord.Close(ctx)
		events.Close()
	})

	return &fixture{env: env, backend: b, api: a, srv: srv}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, f.srv.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// run provisions a sandbox whose tunnel announces tunnelURL.
func (f *fixture) run(t *testing.T) api.RunResponse {
	t.Helper()

	type result struct {
		resp *http.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := http.Post(f.srv.URL+api.PathRun, "application/json",
			strings.NewReader(`{"repoUrl":"`+repo+`","kind":"vite"}`))
		ch <- result{resp, err}
	}()

	f.env.NextExec(testutil.RoleBuild)
	tunnel := f.env.NextExec(testutil.RoleTunnel)
	tunnel.Stream.Write("INF |  " + tunnelURL + "  |\n")

	var r result
	select {
	case r = <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("POST /run did not return")
	}
	if r.err != nil {
		t.Fatalf("POST /run failed: %v", r.err)
	}
	defer r.resp.Body.Close()

	if r.resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", r.resp.StatusCode)
	}
	var out api.RunResponse
	if err := json.NewDecoder(r.resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return out
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorDetail {
	t.Helper()
	var body api.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body failed: %v", err)
	}
	return body.Error
}

func TestRun_ResolvesWithTunnelURL(t *testing.T) {
	f := newFixture(t, nil)

	out := f.run(t)
	if out.TunnelURL != tunnelURL {
		t.Errorf("TunnelURL = %q, want %q", out.TunnelURL, tunnelURL)
	}
	if out.Kind != "vite" || out.Port != 3005 {
		t.Errorf("got kind %q port %d", out.Kind, out.Port)
	}
	if out.Address != "localhost:3005" {
		t.Errorf("Address = %q", out.Address)
	}
	if !strings.HasPrefix(out.Message, "Container started and application running.") {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"missing repo", `{"kind":"react"}`, http.StatusBadRequest, "MissingField"},
		{"bad repo", `{"repoUrl":"-oProxyCommand=x"}`, http.StatusBadRequest, "InvalidField"},
		{"unknown kind", `{"repoUrl":"` + repo + `","kind":"cobol"}`, http.StatusBadRequest, "InvalidProjectKind"},
		{"not json", `{repoUrl`, http.StatusBadRequest, "InvalidField"},
	}

	f := newFixture(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, api.PathRun, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := decodeError(t, resp); got.Type != tt.kind {
				t.Errorf("type = %q, want %q (message %q)", got.Type, tt.kind, got.Message)
			}
		})
	}

	if f.env.Pool.Free() != 2 {
		t.Errorf("Free() = %d, want 2", f.env.Pool.Free())
	}
}

func TestRun_PoolExhausted(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t)
	f.run(t)

	resp := f.post(t, api.PathRun, `{"repoUrl":"`+repo+`"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if got := decodeError(t, resp); got.Type != "PoolExhausted" {
		t.Errorf("type = %q, want PoolExhausted", got.Type)
	}
}

func TestRun_RateLimited(t *testing.T) {
	f := newFixture(t, &Config{RateLimit: 1})

	first := f.post(t, api.PathRun, `{}`)
	if first.StatusCode != http.StatusBadRequest {
		t.Errorf("first status = %d, want 400", first.StatusCode)
	}

	second := f.post(t, api.PathRun, `{}`)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.StatusCode)
	}
	if got := decodeError(t, second); got.Type != "RateLimited" {
		t.Errorf("type = %q, want RateLimited", got.Type)
	}

	// Other routes are not limited.
	if resp := f.do(t, http.MethodGet, api.PathHealth); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, 50*time.Millisecond)
	defer rl.stop()

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.allow("b") {
		t.Error("other clients have their own budget")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.allow("a") {
		t.Error("budget should refill after the window")
	}

	rl.cleanup()
	rl.mu.Lock()
	_, ok := rl.requests["b"]
	rl.mu.Unlock()
	if ok {
		t.Error("cleanup should drop quiet clients")
	}
}

// readFrame reads one server-sent event and returns its data.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event failed: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return data
		}
		data += strings.TrimPrefix(line, "data: ")
	}
}

func TestEvents_SSE(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+api.PathEvents, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if got := readFrame(t, r); got != `{"message":null}` {
		t.Errorf("first frame = %q", got)
	}

	testutil.Eventually(t, 2*time.Second, func() bool { return f.backend.Events.Len() == 1 }, "observer subscribed")
	f.backend.Events.Publish(broadcast.TunnelFound(tunnelURL))

	if got := readFrame(t, r); got != `{"message":"`+tunnelURL+`"}` {
		t.Errorf("frame = %q", got)
	}

	cancel()
	testutil.Eventually(t, 2*time.Second, func() bool { return f.backend.Events.Len() == 0 }, "observer removed after disconnect")
}

func TestEvents_WebSocket(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+api.PathEventsWS, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, first, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(first) != `{"message":null}` {
		t.Errorf("first message = %s", first)
	}

	testutil.Eventually(t, 2*time.Second, func() bool { return f.backend.Events.Len() == 1 }, "observer subscribed")
	f.backend.Events.Publish(broadcast.TunnelFound(tunnelURL))

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(msg) != `{"message":"`+tunnelURL+`"}` {
		t.Errorf("message = %s", msg)
	}

	conn.Close(websocket.StatusNormalClosure, "bye")
	testutil.Eventually(t, 2*time.Second, func() bool { return f.backend.Events.Len() == 0 }, "observer removed after close")
}

func TestSandboxes(t *testing.T) {
	f := newFixture(t, nil)
	out := f.run(t)

	resp := f.do(t, http.MethodGet, api.PathSandboxes)
	var list []api.Sandbox
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d sandboxes, want 1", len(list))
	}
	sb := list[0]
	if sb.ID != out.ID || sb.State != "running" || sb.Request != "running" {
		t.Errorf("sandbox = %+v", sb)
	}
	if sb.RepoURL != repo || sb.TunnelURL != tunnelURL {
		t.Errorf("sandbox = %+v", sb)
	}
	if sb.Health == "" {
		t.Error("Health should be set")
	}

	resp = f.do(t, http.MethodGet, api.PathSandboxes+"/"+out.ID)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET sandbox status = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodDelete, api.PathSandboxes+"/"+out.ID)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if f.env.Pool.Free() != 2 {
		t.Errorf("Free() = %d, want 2 after delete", f.env.Pool.Free())
	}

	resp = f.do(t, http.MethodGet, api.PathSandboxes+"/"+out.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET deleted sandbox status = %d, want 404", resp.StatusCode)
	}
	if got := decodeError(t, resp); got.Type != "SandboxNotFound" {
		t.Errorf("type = %q", got.Type)
	}

	resp = f.do(t, http.MethodDelete, api.PathSandboxes+"/"+out.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, nil)
	out := f.run(t)

	resp := f.do(t, http.MethodGet, api.PathSandboxes+"/"+out.ID+"/events")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var events []api.AuditEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []string{"request", "acquire", "create", "exec", "exec", "tunnel"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("event types = %v, want %v", types, want)
	}

	resp = f.do(t, http.MethodGet, api.PathSandboxes+"/react-00000000/events")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown history status = %d, want 404", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, api.PathSandboxes+"/..%2Fetc/events")
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		t.Errorf("traversal status = %d", resp.StatusCode)
	}
}

func TestKinds(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, api.PathKinds)
	var kinds []api.Kind
	if err := json.NewDecoder(resp.Body).Decode(&kinds); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	ports := map[string]int{}
	for _, k := range kinds {
		ports[k.Name] = k.Port
	}
	want := map[string]int{"react": 3000, "vite": 4173, "next": 3000}
	for name, p := range want {
		if ports[name] != p {
			t.Errorf("kind %s port = %d, want %d", name, ports[name], p)
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t)

	resp := f.do(t, http.MethodGet, api.PathHealth)
	var h api.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if h.Status != "ok" || h.Runtime != "mock" {
		t.Errorf("health = %+v", h)
	}
	if h.Sandboxes != 1 || h.PortsFree != 1 || h.PortsTotal != 2 {
		t.Errorf("health = %+v", h)
	}
	if !h.Tunnel {
		t.Error("Tunnel should be enabled by default")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t)

	resp := f.do(t, http.MethodGet, api.PathMetrics)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`forage_launch_provisions_total{kind="vite",outcome="success"} 1`)) {
		t.Errorf("metrics output missing provision counter:\n%s", body)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"any origin", []string{"*"}, "https://app.example.com", "*"},
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &Config{CORSOrigins: tt.origins})

			req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+api.PathRun, nil)
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("OPTIONS failed: %v", err)
			}
			resp.Body.Close()

			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServer_StopEndsEventStreams(t *testing.T) {
	f := newFixture(t, nil)
	s := NewServer(&Config{Logger: quietLogger}, f.backend)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + api.PathEvents)
	if err != nil {
		t.Fatalf("GET /events failed: %v", err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	readFrame(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if _, err := io.ReadAll(r); err != nil {
		t.Logf("stream ended with %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after Stop")
	}
	if f.backend.Events.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.backend.Events.Len())
	}
}
