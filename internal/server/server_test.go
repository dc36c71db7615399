package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/bengal-ssg/bengal/internal/build"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/incremental"
	"github.com/bengal-ssg/bengal/internal/render"
)

// fakeExecutor returns canned build results and records the inputs it saw.
type fakeExecutor struct {
	mu    sync.Mutex
	stats *build.Stats
	err   error
	calls []build.Input
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Build(_ context.Context, in build.Input) (*build.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	return f.stats, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testServer(t *testing.T, liveReload bool) (*Server, *fakeExecutor) {
	t.Helper()
	cfg := config.Default()
	cfg.RootPath = t.TempDir()
	fake := &fakeExecutor{stats: &build.Stats{}}
	srv := New(cfg, Options{
		Host:       "localhost",
		Port:       1313,
		LiveReload: liveReload,
		Executor:   fake,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return srv, fake
}

func writeOutput(t *testing.T, srv *Server, name, content string) {
	t.Helper()
	full := filepath.Join(srv.cfg.OutputPath(), filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ---------- Client Injection Tests ----------

func TestInjectClientBeforeBody(t *testing.T) {
	html := []byte("<html><body><p>Hello</p></body></html>")
	result := InjectClient(html, "testnonce")

	if !bytes.Contains(result, []byte("ws://")) {
		t.Error("expected WebSocket script to be injected")
	}
	if !bytes.Contains(result, []byte(WSPath)) {
		t.Errorf("expected %s in WebSocket URL", WSPath)
	}
	if !bytes.Contains(result, []byte(`<script nonce="testnonce">`)) {
		t.Error("expected script tag to carry the nonce")
	}

	bodyIdx := bytes.Index(result, []byte("</body>"))
	scriptIdx := bytes.Index(result, []byte("<script nonce="))
	if scriptIdx == -1 || bodyIdx == -1 {
		t.Fatal("expected both <script nonce=...> and </body> in result")
	}
	if scriptIdx >= bodyIdx {
		t.Error("expected script to be injected before </body>")
	}
}

func TestInjectClientMissingBody(t *testing.T) {
	html := []byte("<html><p>No body tag</p></html>")
	result := InjectClient(html, "testnonce")

	if !bytes.Contains(result, []byte("ws://")) {
		t.Error("expected WebSocket script to be appended")
	}
	if !bytes.HasSuffix(result, []byte("</script>")) {
		t.Error("expected script to be appended at end when no </body> tag")
	}
}

func TestInjectClientEmptyHTML(t *testing.T) {
	result := InjectClient(nil, "testnonce")
	if !bytes.Contains(result, []byte("<script nonce=")) {
		t.Error("expected script to be added even to empty HTML")
	}
}

func TestInjectClientHandlesAllEventTypes(t *testing.T) {
	// The client script must switch on every event type the hub emits.
	result := InjectClient([]byte("<body></body>"), "n")
	for _, evType := range []string{`"reload"`, `"reload-css"`, `"error"`, `"none"`} {
		if !bytes.Contains(result, []byte("case "+evType)) {
			t.Errorf("client script does not handle %s events", evType)
		}
	}
}

// ---------- Script Nonce Tests ----------

func TestInjectScriptNonces(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"inline script",
			`<script>alert("hi")</script>`,
			`<script nonce="abc123">alert("hi")</script>`,
		},
		{
			"skips src scripts",
			`<script src="/js/app.js"></script>`,
			`<script src="/js/app.js"></script>`,
		},
		{
			"keeps existing nonce",
			`<script nonce="existing">code()</script>`,
			`<script nonce="existing">code()</script>`,
		},
		{
			"mixed scripts",
			`<script>inline()</script><script src="/ext.js"></script><script>another()</script>`,
			`<script nonce="abc123">inline()</script><script src="/ext.js"></script><script nonce="abc123">another()</script>`,
		},
		{
			"no scripts",
			`<html><body><p>Hello</p></body></html>`,
			`<html><body><p>Hello</p></body></html>`,
		},
		{
			"json data block untouched",
			`<script type="application/ld+json">{"@type":"WebPage"}</script>`,
			`<script type="application/ld+json">{"@type":"WebPage"}</script>`,
		},
		{
			"text/javascript gets nonce",
			`<script type="text/javascript">code()</script>`,
			`<script nonce="abc123" type="text/javascript">code()</script>`,
		},
		{
			"module gets nonce",
			`<script type="module">import x from './x'</script>`,
			`<script nonce="abc123" type="module">import x from './x'</script>`,
		},
		{
			"uppercase tag",
			`<SCRIPT>code()</SCRIPT>`,
			`<SCRIPT nonce="abc123">code()</SCRIPT>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InjectScriptNonces([]byte(tt.in), "abc123")
			if string(got) != tt.want {
				t.Errorf("InjectScriptNonces:\ngot:  %s\nwant: %s", got, tt.want)
			}
		})
	}
}

// ---------- HTTP Handler Tests ----------

func TestHandleRequestServesFiles(t *testing.T) {
	srv, _ := testServer(t, false)
	writeOutput(t, srv, "index.html", "<html><body><h1>Home</h1></body></html>")

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("<h1>Home</h1>")) {
		t.Error("expected file content in response")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options: nosniff")
	}
}

func TestHandleRequestCleanURLs(t *testing.T) {
	srv, _ := testServer(t, false)
	writeOutput(t, srv, "blog/my-post/index.html", "<html><body><h1>Post</h1></body></html>")
	writeOutput(t, srv, "docs.html", "<html><body><h1>Docs</h1></body></html>")

	tests := []struct {
		name string
		path string
		want string
	}{
		{"with trailing slash", "/blog/my-post/", "<h1>Post</h1>"},
		{"without trailing slash", "/blog/my-post", "<h1>Post</h1>"},
		{"extensionless html", "/docs", "<h1>Docs</h1>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rr := httptest.NewRecorder()
			srv.handleRequest(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rr.Code)
			}
			if !bytes.Contains(rr.Body.Bytes(), []byte(tt.want)) {
				t.Errorf("expected %q in response", tt.want)
			}
		})
	}
}

func TestHandleRequest404(t *testing.T) {
	srv, _ := testServer(t, false)

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleRequestCustom404(t *testing.T) {
	srv, _ := testServer(t, false)
	writeOutput(t, srv, "404.html", "<html><body><h1>Custom Not Found</h1></body></html>")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("Custom Not Found")) {
		t.Error("expected custom 404 page content")
	}
}

func TestHandleRequestLiveReloadInjection(t *testing.T) {
	srv, _ := testServer(t, true)
	writeOutput(t, srv, "index.html", "<html><body><h1>Home</h1></body></html>")

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(WSPath)) {
		t.Error("expected live reload script to be injected")
	}
}

func TestHandleRequestNoClientWithoutLiveReload(t *testing.T) {
	srv, _ := testServer(t, false)
	writeOutput(t, srv, "index.html", "<html><body><h1>Home</h1></body></html>")

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if bytes.Contains(rr.Body.Bytes(), []byte(WSPath)) {
		t.Error("live reload script injected with live reload disabled")
	}
	// The CSP still protects HTML even without the reload client.
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("expected Content-Security-Policy header")
	}
}

func TestHandleRequestSecurityHeaders(t *testing.T) {
	srv, _ := testServer(t, true)
	writeOutput(t, srv, "index.html", "<html><body><h1>Hi</h1></body></html>")

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	csp := rr.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Fatal("expected Content-Security-Policy header")
	}
	if !strings.Contains(csp, "default-src") {
		t.Error("expected default-src in CSP")
	}
	if !strings.Contains(csp, "nonce-") {
		t.Error("expected nonce in CSP script-src")
	}
	if !strings.Contains(csp, "ws:") {
		t.Error("expected ws: in CSP connect-src for the reload socket")
	}

	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options: DENY")
	}
	if rr.Header().Get("Referrer-Policy") != "strict-origin-when-cross-origin" {
		t.Error("expected Referrer-Policy header")
	}
	if rr.Header().Get("Permissions-Policy") == "" {
		t.Error("expected Permissions-Policy header")
	}
}

func TestHandleRequestSecurityHeadersOnlyForHTML(t *testing.T) {
	srv, _ := testServer(t, true)
	writeOutput(t, srv, "style.css", "body { color: red; }")

	req := httptest.NewRequest("GET", "/style.css", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Header().Get("Content-Security-Policy") != "" {
		t.Error("CSS response should not have Content-Security-Policy header")
	}
	if rr.Header().Get("X-Frame-Options") != "" {
		t.Error("CSS response should not have X-Frame-Options header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("CSS response should still have X-Content-Type-Options: nosniff")
	}
	if bytes.Contains(rr.Body.Bytes(), []byte(WSPath)) {
		t.Error("live reload script should not be injected into CSS files")
	}
}

func TestHandleRequestUniqueNoncePerRequest(t *testing.T) {
	srv, _ := testServer(t, true)
	writeOutput(t, srv, "index.html", "<html><body><h1>Hi</h1></body></html>")

	var csps [2]string
	for i := range csps {
		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		srv.handleRequest(rr, req)
		csps[i] = rr.Header().Get("Content-Security-Policy")
	}

	if csps[0] == csps[1] {
		t.Error("expected different nonces (and thus different CSP headers) per request")
	}
}

func TestHandleRequestMIMETypes(t *testing.T) {
	srv, _ := testServer(t, false)
	writeOutput(t, srv, "style.css", "body{}")
	writeOutput(t, srv, "app.js", "console.log('hello')")
	writeOutput(t, srv, "index.html", "<html></html>")

	tests := []struct {
		path        string
		contentType string
	}{
		{"/style.css", "text/css"},
		{"/app.js", "text/javascript"},
		{"/index.html", "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rr := httptest.NewRecorder()
			srv.handleRequest(rr, req)

			ct := rr.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("expected Content-Type containing %q, got %q", tt.contentType, ct)
			}
		})
	}
}

func TestHandleRequestDirectoryTraversal(t *testing.T) {
	srv, _ := testServer(t, false)
	writeOutput(t, srv, "index.html", "<html></html>")

	req := httptest.NewRequest("GET", "/../../../etc/passwd", nil)
	rr := httptest.NewRecorder()
	srv.handleRequest(rr, req)

	if rr.Code == http.StatusOK && bytes.Contains(rr.Body.Bytes(), []byte("root:")) {
		t.Error("should not serve files outside the output directory")
	}
}

// ---------- WebSocket Hub Tests ----------

// dialHub connects a test client to a running hub and returns the connection.
func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decoding event %q: %v", msg, err)
	}
	return ev
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)

	hub.Broadcast(Event{Type: "reload", Paths: []string{"about/index.html"}})

	ev := readEvent(t, conn)
	if ev.Type != "reload" {
		t.Errorf("expected reload event, got %q", ev.Type)
	}
	if len(ev.Paths) != 1 || ev.Paths[0] != "about/index.html" {
		t.Errorf("unexpected paths: %v", ev.Paths)
	}
}

func TestHubBroadcastCarriesDiagnostics(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	conn := dialHub(t, hub)

	diag := diagnostics.New(diagnostics.TemplateRenderError, "missing partial").
		WithPhase("render").
		WithPath("content/about.md")
	hub.Broadcast(Event{Type: "error", Errors: []*diagnostics.Diagnostic{diag}})

	ev := readEvent(t, conn)
	if ev.Type != "error" {
		t.Fatalf("expected error event, got %q", ev.Type)
	}
	if len(ev.Errors) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(ev.Errors))
	}
	got := ev.Errors[0]
	if got.Kind != diagnostics.TemplateRenderError || got.Path != "content/about.md" {
		t.Errorf("diagnostic did not survive the round trip: %+v", got)
	}
}

func TestHubBroadcastDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.Broadcast(Event{Type: "reload"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Broadcast blocked with no clients")
	}
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	conn := dialHub(t, hub)

	hub.Stop()
	hub.Stop() // idempotent

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read to fail after hub stop")
	}
}

// ---------- Rebuild Plumbing Tests ----------

func TestChangesFromEvents(t *testing.T) {
	srv, _ := testServer(t, false)
	root := srv.cfg.RootPath

	events := map[string]fsnotify.Op{}
	events[filepath.Join(root, "content", "post.md")] = fsnotify.Write
	events[filepath.Join(root, "templates", "base.html")] = fsnotify.Create
	events[filepath.Join(root, "assets", "site.css")] = fsnotify.Write | fsnotify.Create
	events[filepath.Join(root, "README.md")] = fsnotify.Write
	events[filepath.Join(root, "public", "index.html")] = fsnotify.Write
	events[filepath.Join(root, "content", "old.md")] = fsnotify.Rename

	changes := srv.changesFromEvents(events)

	want := []incremental.Change{
		{Path: "assets/site.css", Op: incremental.OpCreate, Kind: incremental.KindAsset},
		{Path: "content/old.md", Op: incremental.OpRename, Kind: incremental.KindContent},
		{Path: "content/post.md", Op: incremental.OpWrite, Kind: incremental.KindContent},
		{Path: "templates/base.html", Op: incremental.OpCreate, Kind: incremental.KindTemplate},
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %d: %+v", len(want), len(changes), changes)
	}
	for i, w := range want {
		if changes[i] != w {
			t.Errorf("change[%d] = %+v, want %+v", i, changes[i], w)
		}
	}
}

func TestOpFor(t *testing.T) {
	tests := []struct {
		name string
		op   fsnotify.Op
		want incremental.Op
	}{
		{"write", fsnotify.Write, incremental.OpWrite},
		{"create", fsnotify.Create, incremental.OpCreate},
		{"remove", fsnotify.Remove, incremental.OpRemove},
		{"rename", fsnotify.Rename, incremental.OpRename},
		{"chmod only", fsnotify.Chmod, incremental.OpWrite},
		{"create then write", fsnotify.Create | fsnotify.Write, incremental.OpCreate},
		{"write then remove", fsnotify.Write | fsnotify.Remove, incremental.OpRemove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := opFor(tt.op); got != tt.want {
				t.Errorf("opFor(%v) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestReloadDelay(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		last time.Time
		want time.Duration
	}{
		{"never reloaded", time.Time{}, 0},
		{"well past the window", now.Add(-time.Second), 0},
		{"mid window", now.Add(-50 * time.Millisecond), 150 * time.Millisecond},
		{"window boundary", now.Add(-reloadThrottle), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reloadDelay(tt.last, now); got != tt.want {
				t.Errorf("reloadDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRebuildBroadcastsDecision(t *testing.T) {
	srv, fake := testServer(t, true)
	fake.stats = &build.Stats{
		Rendered: 1,
		Reload: build.ReloadDecision{
			Action:  build.ReloadFull,
			Changed: []string{"about/index.html"},
		},
	}

	go srv.hub.Run()
	defer srv.hub.Stop()
	conn := dialHub(t, srv.hub)

	events := map[string]fsnotify.Op{
		filepath.Join(srv.cfg.RootPath, "content", "about.md"): fsnotify.Write,
	}
	srv.rebuild(context.Background(), events)

	if ev := readEvent(t, conn); ev.Type != "building" {
		t.Fatalf("expected building event first, got %q", ev.Type)
	}
	ev := readEvent(t, conn)
	if ev.Type != "reload" {
		t.Fatalf("expected reload event, got %q", ev.Type)
	}
	if len(ev.Paths) != 1 || ev.Paths[0] != "about/index.html" {
		t.Errorf("unexpected reload paths: %v", ev.Paths)
	}

	if fake.callCount() != 1 {
		t.Fatalf("expected 1 build, got %d", fake.callCount())
	}
	in := fake.calls[0]
	if len(in.Changes) != 1 || in.Changes[0].Path != "content/about.md" {
		t.Errorf("unexpected build input changes: %+v", in.Changes)
	}
}

func TestRebuildBroadcastsPageErrors(t *testing.T) {
	srv, fake := testServer(t, true)
	diag := diagnostics.New(diagnostics.TemplateRenderError, "boom").WithPath("content/bad.md")
	fake.stats = &build.Stats{
		PageErrors: []render.PageError{{Key: "content/bad.md", Diag: diag}},
	}

	go srv.hub.Run()
	defer srv.hub.Stop()
	conn := dialHub(t, srv.hub)

	events := map[string]fsnotify.Op{
		filepath.Join(srv.cfg.RootPath, "content", "bad.md"): fsnotify.Write,
	}
	srv.rebuild(context.Background(), events)

	if ev := readEvent(t, conn); ev.Type != "building" {
		t.Fatalf("expected building event first, got %q", ev.Type)
	}
	ev := readEvent(t, conn)
	if ev.Type != "error" {
		t.Fatalf("expected error event, got %q", ev.Type)
	}
	if len(ev.Errors) != 1 || ev.Errors[0].Path != "content/bad.md" {
		t.Errorf("unexpected diagnostics: %+v", ev.Errors)
	}
}

func TestRebuildIgnoresIrrelevantEvents(t *testing.T) {
	srv, fake := testServer(t, true)

	// Nothing in any source area: no build, no broadcast.
	events := map[string]fsnotify.Op{
		filepath.Join(srv.cfg.RootPath, "README.md"): fsnotify.Write,
	}
	srv.rebuild(context.Background(), events)

	if fake.callCount() != 0 {
		t.Errorf("expected no builds for irrelevant events, got %d", fake.callCount())
	}
}

// ---------- Executor Selection Tests ----------

func TestNewExecutorDefaultsToInProcess(t *testing.T) {
	t.Setenv(EnvExecutor, "")
	cfg := config.Default()
	cfg.RootPath = t.TempDir()

	exec := NewExecutor(build.New(cfg, build.Options{}), cfg.RootPath)
	if exec.Name() != "inprocess" {
		t.Errorf("expected inprocess executor, got %q", exec.Name())
	}
}

func TestNewExecutorSubprocess(t *testing.T) {
	t.Setenv(EnvExecutor, "subprocess")
	cfg := config.Default()
	cfg.RootPath = t.TempDir()

	exec := NewExecutor(build.New(cfg, build.Options{}), cfg.RootPath)
	if exec.Name() != "subprocess" {
		t.Errorf("expected subprocess executor, got %q", exec.Name())
	}
}

// ---------- Watcher Tests ----------

// collectBatch waits for the next event batch or fails the test.
func collectBatch(t *testing.T, w *Watcher, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Batches():
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event batch")
		return nil
	}
}

func TestWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(testFile, []byte("initial"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher([]WatchRoot{{Path: dir, Recursive: true}}, nil, nil)
	go func() { _ = w.Start() }()
	defer w.Stop()

	// Give the watcher time to register the root.
	time.Sleep(250 * time.Millisecond)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(testFile, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	batch := collectBatch(t, w, 2*time.Second)
	found := false
	for _, ev := range batch {
		if ev.Path == testFile && ev.Op&fsnotify.Write != 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a write event for %s, got %+v", testFile, batch)
	}

	// Five rapid writes must coalesce into far fewer batches.
	batches := 1
	drain := time.After(500 * time.Millisecond)
	for {
		select {
		case <-w.Batches():
			batches++
		case <-drain:
			if batches >= 5 {
				t.Errorf("expected debouncing to coalesce writes, got %d batches", batches)
			}
			return
		}
	}
}

func TestWatcherIgnoresPrefixes(t *testing.T) {
	dir := t.TempDir()
	public := filepath.Join(dir, "public")
	if err := os.MkdirAll(public, 0o755); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher([]WatchRoot{{Path: dir, Recursive: true}}, []string{public}, nil)
	go func() { _ = w.Start() }()
	defer w.Stop()

	time.Sleep(250 * time.Millisecond)

	// The ignored output tree never produces events; the source file does.
	if err := os.WriteFile(filepath.Join(public, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "note.md"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	batch := collectBatch(t, w, 2*time.Second)
	for _, ev := range batch {
		if strings.HasPrefix(ev.Path, public) {
			t.Errorf("event leaked from ignored prefix: %+v", ev)
		}
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()

	w := NewWatcher([]WatchRoot{{Path: dir, Recursive: true}}, nil, nil)
	go func() { _ = w.Start() }()
	defer w.Stop()

	time.Sleep(250 * time.Millisecond)

	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Wait for the directory itself to be picked up and watched.
	time.Sleep(300 * time.Millisecond)

	inner := filepath.Join(sub, "file.txt")
	if err := os.WriteFile(inner, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case batch := <-w.Batches():
			for _, ev := range batch {
				if ev.Path == inner {
					return
				}
			}
		case <-time.After(200 * time.Millisecond):
		}
	}
	t.Errorf("never saw an event for %s", inner)
}

func TestWatcherSkip(t *testing.T) {
	w := NewWatcher(nil, []string{"/site/public"}, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"/site/public", true},
		{"/site/public/index.html", true},
		{"/site/publicity/post.md", false},
		{"/site/content/post.md", false},
		{"/site/content/.post.md.swx", true},
		{"/site/content/.hidden.md", true},
		{"/site/content/post.md~", true},
		{"/site/content/post.md.swp", true},
		{"/site/content/post.md.tmp", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := w.skip(tt.path); got != tt.want {
				t.Errorf("skip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWatcherNonexistentRoots(t *testing.T) {
	w := NewWatcher([]WatchRoot{{Path: "/nonexistent/path/that/does/not/exist", Recursive: true}}, nil, nil)

	done := make(chan error, 1)
	go func() { done <- w.Start() }()

	time.Sleep(50 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := NewWatcher(nil, nil, nil)
	go func() { _ = w.Start() }()

	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop()
}

// ---------- Server Construction Tests ----------

func TestNewServerDefaults(t *testing.T) {
	t.Setenv(EnvExecutor, "")
	cfg := config.Default()
	cfg.RootPath = t.TempDir()

	srv := New(cfg, Options{Host: "localhost", Port: 1313})
	if srv.hub == nil {
		t.Error("expected hub to be initialized")
	}
	if srv.exec == nil || srv.exec.Name() != "inprocess" {
		t.Error("expected default in-process executor")
	}
	if srv.cls == nil {
		t.Error("expected classifier to be initialized")
	}
}

func TestDisplayURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost", "http://localhost:1313"},
		{"", "http://localhost:1313"},
		{"0.0.0.0", "http://localhost:1313"},
		{"127.0.0.1", "http://127.0.0.1:1313"},
	}
	for _, tt := range tests {
		t.Run("host "+tt.host, func(t *testing.T) {
			srv, _ := testServer(t, false)
			srv.opts.Host = tt.host
			if got := srv.displayURL(); got != tt.want {
				t.Errorf("displayURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatchRootsCoverSourceAreas(t *testing.T) {
	srv, _ := testServer(t, false)
	srv.cfg.Content.WatchPaths = []string{"notes"}

	roots := srv.watchRoots()

	byPath := make(map[string]WatchRoot, len(roots))
	for _, r := range roots {
		byPath[r.Path] = r
	}

	if r, ok := byPath[srv.cfg.RootPath]; !ok || r.Recursive {
		t.Error("expected non-recursive watch on the site root for config edits")
	}
	for _, p := range []string{
		srv.cfg.ContentPath(),
		srv.cfg.TemplatesPath(),
		srv.cfg.DataPath(),
		srv.cfg.AssetsPath(),
		srv.cfg.GeneratedPath(),
		filepath.Join(srv.cfg.RootPath, "notes"),
	} {
		if r, ok := byPath[p]; !ok || !r.Recursive {
			t.Errorf("expected recursive watch root for %s", p)
		}
	}
}
