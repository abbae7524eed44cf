package provision

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/testutil"
)

const repo = "https://example.com/app.git"

type call struct {
	res *Result
	err error
}

type fixture struct {
	env      *testutil.TestEnv
	coord    *Coordinator
	messages chan string
}

func newFixture(t *testing.T, ports int, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithEnv(t, testutil.NewTestEnv(t, ports), opts...)
}

func newFixtureWithEnv(t *testing.T, env *testutil.TestEnv, opts ...Option) *fixture {
	t.Helper()

	bc := broadcast.New()
	messages := make(chan string, 16)
	bc.Subscribe(broadcast.SinkFunc(func(ctx context.Context, payload []byte) error {
		messages <- string(payload)
		return nil
	}))

	coord, err := New(env.Manager, env.Pool, bc, env.Config, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		coord.Close(ctx)
		bc.Close()
	})

	return &fixture{env: env, coord: coord, messages: messages}
}

func (f *fixture) provision(ctx context.Context, req Request) <-chan call {
	ch := make(chan call, 1)
	go func() {
		res, err := f.coord.Provision(ctx, req)
		ch <- call{res, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan call) call {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("Provision did not return")
		return call{}
	}
}

func (f *fixture) message(t *testing.T) string {
	t.Helper()
	select {
	case m := <-f.messages:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no event published")
		return ""
	}
}

func TestProvision_ResolvesWithFirstTunnelURL(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})

	build := f.env.NextExec(testutil.RoleBuild)
	tunnel := f.env.NextExec(testutil.RoleTunnel)

	if !strings.Contains(build.Command, "git clone -- "+repo+" /app") {
		t.Errorf("build command = %q", build.Command)
	}
	if !strings.Contains(tunnel.Command, "http://localhost:3000") {
		t.Errorf("tunnel command = %q, want container port 3000", tunnel.Command)
	}

	tunnel.Stream.Write("building...\n")
	tunnel.Stream.Write("tunnel ready: https://abc-def.trycloudflare.com now\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}

	res := c.res
	if res.Port != 3005 {
		t.Errorf("Port = %d, want 3005", res.Port)
	}
	if res.Address != "localhost:3005" {
		t.Errorf("Address = %q", res.Address)
	}
	if res.TunnelURL != "https://abc-def.trycloudflare.com" {
		t.Errorf("TunnelURL = %q", res.TunnelURL)
	}
	if !strings.HasSuffix(res.Message, "Access it at https://abc-def.trycloudflare.com") {
		t.Errorf("Message = %q", res.Message)
	}
	if !strings.HasPrefix(res.ID, "react-") {
		t.Errorf("ID = %q", res.ID)
	}

	if got := f.message(t); got != `{"message":"https://abc-def.trycloudflare.com"}` {
		t.Errorf("published %s", got)
	}

	st, err := f.coord.Status(res.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != StateRunning || st.TunnelURL != res.TunnelURL || st.RepoURL != repo {
		t.Errorf("Status = %+v", st)
	}
	if f.env.Pool.Free() != 0 {
		t.Errorf("Free() = %d, want 0 while running", f.env.Pool.Free())
	}
}

func TestProvision_LaterURLsOnlyPublished(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "vite"})
	tunnel := f.env.NextExec(testutil.RoleTunnel)

	tunnel.Stream.Write("https://first.trycloudflare.com\n")
	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}

	tunnel.Stream.Write("https://second.trycloudflare.com\n")

	want := []string{
		`{"message":"https://first.trycloudflare.com"}`,
		`{"message":"https://second.trycloudflare.com"}`,
	}
	for _, w := range want {
		if got := f.message(t); got != w {
			t.Errorf("published %s, want %s", got, w)
		}
	}
	if c.res.TunnelURL != "https://first.trycloudflare.com" {
		t.Errorf("TunnelURL = %q, want the first", c.res.TunnelURL)
	}
}

func TestProvision_PoolExhausted(t *testing.T) {
	f := newFixture(t, 1)

	first := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	f.env.NextExec(testutil.RoleTunnel).Stream.Write("https://abc-def.trycloudflare.com\n")
	if c := await(t, first); c.err != nil {
		t.Fatalf("first Provision failed: %v", c.err)
	}

	creates := len(f.env.Runtime.GetCallsFor("Create"))

	_, err := f.coord.Provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	if !errors.IsKind(err, errors.KindPoolExhausted) {
		t.Fatalf("second Provision error = %v, want PoolExhausted", err)
	}
	if f.env.Pool.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", f.env.Pool.InUse())
	}
	if got := len(f.env.Runtime.GetCallsFor("Create")); got != creates {
		t.Errorf("rejected request reached the engine")
	}
}

func TestProvision_ValidationTouchesNothing(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		kind errors.Kind
	}{
		{"missing repo", Request{Kind: "react"}, errors.KindMissingField},
		{"blank repo", Request{RepoURL: "   ", Kind: "react"}, errors.KindMissingField},
		{"option injection", Request{RepoURL: "--upload-pack=touch /tmp/x", Kind: "react"}, errors.KindInvalidField},
		{"unsupported scheme", Request{RepoURL: "file:///etc", Kind: "react"}, errors.KindInvalidField},
		{"unknown kind", Request{RepoURL: repo, Kind: "angular"}, errors.KindInvalidProjectKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)

			_, err := f.coord.Provision(context.Background(), tt.req)
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("error = %v, want %s", err, tt.kind)
			}
			if f.env.Pool.Free() != 1 {
				t.Error("validation failure consumed a port")
			}
			if calls := f.env.Runtime.GetCalls(); len(calls) != 0 {
				t.Errorf("engine calls = %v, want none", calls)
			}
		})
	}
}

func TestProvision_DefaultKind(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo})
	f.env.NextExec(testutil.RoleTunnel).Stream.Write("https://abc-def.trycloudflare.com\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	if c.res.Kind != DefaultKind {
		t.Errorf("Kind = %q, want %q", c.res.Kind, DefaultKind)
	}
}

func TestProvision_CreateFailureReleasesPort(t *testing.T) {
	f := newFixture(t, 1)
	f.env.Runtime.SetError("Create", fmt.Errorf("pull access denied"))

	_, err := f.coord.Provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	if !errors.IsKind(err, errors.KindEngineError) {
		t.Fatalf("error = %v, want EngineError", err)
	}
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1 before the error is returned", f.env.Pool.Free())
	}
}

func TestProvision_ExecFailureTearsDown(t *testing.T) {
	f := newFixture(t, 1)
	f.env.Runtime.SetError("ExecStream", fmt.Errorf("exec rejected"))

	_, err := f.coord.Provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	if !errors.IsKind(err, errors.KindEngineError) {
		t.Fatalf("error = %v, want EngineError", err)
	}
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1", f.env.Pool.Free())
	}
	if f.env.Manager.Len() != 0 {
		t.Errorf("Manager.Len() = %d, want 0", f.env.Manager.Len())
	}
	if len(f.coord.Active()) != 0 {
		t.Error("failed request still tracked")
	}
}

func TestProvision_TunnelTimeout(t *testing.T) {
	env := testutil.NewTestEnv(t, 1)
	env.Config.Tunnel.Timeout = 50 * time.Millisecond
	f := newFixtureWithEnv(t, env)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	tunnel := env.NextExec(testutil.RoleTunnel)

	c := await(t, ch)
	if !errors.IsKind(c.err, errors.KindTunnelTimeout) {
		t.Fatalf("error = %v, want TunnelTimeout", c.err)
	}
	if env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1 before the error is returned", env.Pool.Free())
	}
	testutil.Eventually(t, time.Second, tunnel.Stream.Closed, "tunnel stream closed after teardown")
}

func TestProvision_TimeoutIgnoredAfterResolution(t *testing.T) {
	env := testutil.NewTestEnv(t, 1)
	env.Config.Tunnel.Timeout = 50 * time.Millisecond
	f := newFixtureWithEnv(t, env)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	env.NextExec(testutil.RoleTunnel).Stream.Write("https://abc-def.trycloudflare.com\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}

	time.Sleep(150 * time.Millisecond)

	sb, err := env.Manager.Get(c.res.ID)
	if err != nil {
		t.Fatalf("sandbox gone after timeout elapsed: %v", err)
	}
	if !sb.Live() {
		t.Error("resolved sandbox torn down by the tunnel timeout")
	}
}

func TestProvision_BuildFailureBeforeResolution(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "next"})
	build := f.env.NextExec(testutil.RoleBuild)
	tunnel := f.env.NextExec(testutil.RoleTunnel)

	build.Stream.Write("npm ERR! missing script: build\n")
	build.Stream.Finish(fmt.Errorf("exit status 1"))

	c := await(t, ch)
	if !errors.IsKind(c.err, errors.KindEngineError) {
		t.Fatalf("error = %v, want EngineError", c.err)
	}
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1", f.env.Pool.Free())
	}
	testutil.Eventually(t, time.Second, tunnel.Stream.Closed, "tunnel stream closed after teardown")
}

func TestProvision_TunnelEndsWithoutURL(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	tunnel := f.env.NextExec(testutil.RoleTunnel)

	tunnel.Stream.Write("failed to request quick tunnel\n")
	tunnel.Stream.Finish(nil)

	c := await(t, ch)
	if !errors.IsKind(c.err, errors.KindEngineError) {
		t.Fatalf("error = %v, want EngineError", c.err)
	}
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1", f.env.Pool.Free())
	}
}

func TestProvision_TunnelStreamBreaks(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	f.env.NextExec(testutil.RoleTunnel).Stream.Fail(fmt.Errorf("connection reset"))

	c := await(t, ch)
	if !errors.IsKind(c.err, errors.KindStreamError) {
		t.Fatalf("error = %v, want StreamError", c.err)
	}
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1", f.env.Pool.Free())
	}
}

func TestProvision_TunnelDisabled(t *testing.T) {
	env := testutil.NewTestEnv(t, 1)
	env.Config.Tunnel.Enabled = false
	f := newFixtureWithEnv(t, env)

	c := await(t, f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"}))
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	if c.res.TunnelURL != "" {
		t.Errorf("TunnelURL = %q, want empty", c.res.TunnelURL)
	}
	if c.res.Message != "Container started and application running. Access it at http://localhost:3005" {
		t.Errorf("Message = %q", c.res.Message)
	}
	if n := len(env.Runtime.GetCallsFor("ExecStream")); n != 1 {
		t.Errorf("ExecStream calls = %d, want 1", n)
	}
}

func TestProvision_CompletesWhenStreamsEnd(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	build := f.env.NextExec(testutil.RoleBuild)
	tunnel := f.env.NextExec(testutil.RoleTunnel)
	tunnel.Stream.Write("https://abc-def.trycloudflare.com\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	sb, _ := f.env.Manager.Get(c.res.ID)

	tunnel.Stream.Finish(nil)
	build.Stream.Finish(nil)

	select {
	case <-sb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sandbox not torn down after both streams ended")
	}
	if sb.Reason() != sandbox.ReasonCompleted {
		t.Errorf("Reason() = %q, want completed", sb.Reason())
	}
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1", f.env.Pool.Free())
	}
	testutil.Eventually(t, time.Second, func() bool {
		_, err := f.coord.Status(c.res.ID)
		return errors.IsKind(err, errors.KindSandboxNotFound)
	}, "finished request untracked")
}

func TestProvision_BuildCrashAfterResolution(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	build := f.env.NextExec(testutil.RoleBuild)
	f.env.NextExec(testutil.RoleTunnel).Stream.Write("https://abc-def.trycloudflare.com\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	sb, _ := f.env.Manager.Get(c.res.ID)

	build.Stream.Finish(fmt.Errorf("exit status 137"))

	select {
	case <-sb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sandbox not torn down after the app died")
	}
	if sb.State() != sandbox.StateFailed {
		t.Errorf("State() = %q, want failed", sb.State())
	}
}

func TestProvision_ExternalTeardown(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	build := f.env.NextExec(testutil.RoleBuild)
	tunnel := f.env.NextExec(testutil.RoleTunnel)
	tunnel.Stream.Write("https://abc-def.trycloudflare.com\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	sb, _ := f.env.Manager.Get(c.res.ID)

	if err := f.env.Manager.Teardown(context.Background(), sb, sandbox.ReasonRequested); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	testutil.Eventually(t, time.Second, func() bool {
		return build.Stream.Closed() && tunnel.Stream.Closed()
	}, "streams closed")
	testutil.Eventually(t, time.Second, func() bool {
		return len(f.coord.Active()) == 0
	}, "request untracked")
	if f.env.Pool.Free() != 1 {
		t.Errorf("Free() = %d, want 1", f.env.Pool.Free())
	}
}

func TestProvision_TeardownBeforeResolution(t *testing.T) {
	f := newFixture(t, 1)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	build := f.env.NextExec(testutil.RoleBuild)
	f.env.NextExec(testutil.RoleTunnel)

	sb, err := f.env.Manager.Get(build.Sandbox)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	f.env.Manager.Teardown(context.Background(), sb, sandbox.ReasonExpired)

	c := await(t, ch)
	if !errors.IsKind(c.err, errors.KindEngineError) {
		t.Fatalf("error = %v, want EngineError", c.err)
	}
}

func TestProvision_CallerGoneKeepsSandbox(t *testing.T) {
	f := newFixture(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	ch := f.provision(ctx, Request{RepoURL: repo, Kind: "react"})
	tunnel := f.env.NextExec(testutil.RoleTunnel)

	cancel()
	c := await(t, ch)
	if c.err != context.Canceled {
		t.Fatalf("error = %v, want context.Canceled", c.err)
	}

	if f.env.Manager.Len() != 1 {
		t.Fatalf("Manager.Len() = %d, want 1", f.env.Manager.Len())
	}

	tunnel.Stream.Write("https://late.trycloudflare.com\n")
	if got := f.message(t); got != `{"message":"https://late.trycloudflare.com"}` {
		t.Errorf("published %s", got)
	}
}

func TestProvision_ConcurrentRequestsGetDistinctPorts(t *testing.T) {
	const n = 3
	f := newFixture(t, n)

	chans := make([]<-chan call, n)
	for i := range chans {
		chans[i] = f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	}
	for i := 0; i < n; i++ {
		tunnel := f.env.NextExec(testutil.RoleTunnel)
		tunnel.Stream.Write(fmt.Sprintf("https://t%d.trycloudflare.com\n", i))
	}

	seen := make(map[int]bool)
	for _, ch := range chans {
		c := await(t, ch)
		if c.err != nil {
			t.Fatalf("Provision failed: %v", c.err)
		}
		if seen[c.res.Port] {
			t.Errorf("port %d handed out twice", c.res.Port)
		}
		seen[c.res.Port] = true
	}
	if f.env.Pool.Free() != 0 {
		t.Errorf("Free() = %d, want 0", f.env.Pool.Free())
	}
}

func TestProvision_AuditTrail(t *testing.T) {
	env := testutil.NewTestEnv(t, 1)
	log := audit.NewLogger(env.TmpDir)
	f := newFixtureWithEnv(t, env, WithAudit(log))

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	build := env.NextExec(testutil.RoleBuild)
	tunnel := env.NextExec(testutil.RoleTunnel)
	tunnel.Stream.Write("https://abc-def.trycloudflare.com\n")

	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	tunnel.Stream.Finish(nil)
	build.Stream.Finish(nil)

	testutil.Eventually(t, 2*time.Second, func() bool {
		events, _ := log.Events(c.res.ID)
		return len(events) > 0 && events[len(events)-1].Type == audit.EventComplete
	}, "complete event written")

	events, _ := log.Events(c.res.ID)
	var types []audit.EventType
	for _, e := range events {
		types = append(types, e.Type)
		if e.Port != 3005 {
			t.Errorf("%s event port = %d", e.Type, e.Port)
		}
	}
	want := []audit.EventType{
		audit.EventRequest, audit.EventAcquire, audit.EventCreate,
		audit.EventExec, audit.EventExec, audit.EventTunnel, audit.EventComplete,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestProvision_Metrics(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, 1, WithMetrics(m))

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	f.env.NextExec(testutil.RoleTunnel).Stream.Write("https://abc-def.trycloudflare.com\n")
	if c := await(t, ch); c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}
	f.coord.Provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	f.coord.Provision(context.Background(), Request{RepoURL: repo, Kind: "cobol"})

	n, err := promtest.GatherAndCount(m.Registry(), "forage_launch_provisions_total")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("provisions_total series = %d, want 3 (success, PoolExhausted, InvalidProjectKind)", n)
	}
}

type memArchiver struct {
	mu      sync.Mutex
	streams map[string]*strings.Builder
}

func (a *memArchiver) Writer(ctx context.Context, sandbox, stream string) io.WriteCloser {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := &strings.Builder{}
	a.streams[sandbox+"/"+stream] = b
	return &lockedWriter{mu: &a.mu, b: b}
}

func (a *memArchiver) get(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.streams[key]; ok {
		return b.String()
	}
	return ""
}

type lockedWriter struct {
	mu *sync.Mutex
	b  *strings.Builder
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *lockedWriter) Close() error { return nil }

func TestProvision_ArchivesStreams(t *testing.T) {
	arch := &memArchiver{streams: make(map[string]*strings.Builder)}
	f := newFixture(t, 1, WithArchiver(arch))

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	build := f.env.NextExec(testutil.RoleBuild)
	tunnel := f.env.NextExec(testutil.RoleTunnel)

	build.Stream.Write("added 312 packages\n")
	tunnel.Stream.Write("https://abc-def.trycloudflare.com\n")
	c := await(t, ch)
	if c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}

	testutil.Eventually(t, time.Second, func() bool {
		return arch.get(c.res.ID+"/build") == "added 312 packages\n" &&
			arch.get(c.res.ID+"/tunnel") == "https://abc-def.trycloudflare.com\n"
	}, "both streams archived")
}

func TestCoordinator_CloseTearsDownEverything(t *testing.T) {
	f := newFixture(t, 2)

	ch := f.provision(context.Background(), Request{RepoURL: repo, Kind: "react"})
	f.env.NextExec(testutil.RoleTunnel).Stream.Write("https://abc-def.trycloudflare.com\n")
	if c := await(t, ch); c.err != nil {
		t.Fatalf("Provision failed: %v", c.err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.coord.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if f.env.Pool.Free() != 2 {
		t.Errorf("Free() = %d, want 2", f.env.Pool.Free())
	}
	if len(f.coord.Active()) != 0 {
		t.Error("requests still tracked after Close")
	}
}
