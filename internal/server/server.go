package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bengal-ssg/bengal/internal/build"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/incremental"
	"github.com/bengal-ssg/bengal/internal/security"
)

// ErrBind marks a failure to bind the listen address, so the CLI can map it
// to its own exit code.
var ErrBind = errors.New("binding dev server address")

// reloadThrottle is the minimum spacing between two full reload events.
const reloadThrottle = 200 * time.Millisecond

// Options configure one dev-server run.
type Options struct {
	Host       string
	Port       int
	Open       bool
	Watch      bool
	LiveReload bool
	Drafts     bool
	Future     bool

	// Profile is the flag preset applied to every build this server runs.
	Profile string

	// Executor overrides the environment-selected build executor.
	Executor Executor
	Logger   *slog.Logger
}

// Server serves the output tree, watches sources, and drives rebuilds.
type Server struct {
	cfg  *config.Config
	opts Options
	exec Executor
	hub  *Hub
	cls  *incremental.Classifier
	log  *slog.Logger

	httpSrv *http.Server
	watcher *Watcher

	// lastReload is only touched by the rebuild loop goroutine.
	lastReload time.Time
}

// New creates a dev server for the given site.
func New(cfg *config.Config, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	exec := opts.Executor
	if exec == nil {
		exec = NewExecutor(build.New(cfg, build.Options{Logger: log}), cfg.RootPath)
	}
	return &Server{
		cfg:  cfg,
		opts: opts,
		exec: exec,
		hub:  NewHub(log),
		cls:  incremental.NewClassifier(cfg),
		log:  log,
	}
}

// Start binds the listen address, runs the initial build, and serves until
// the context is cancelled. Bind failures are returned wrapped in ErrBind.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBind, err)
	}

	stats, err := s.exec.Build(ctx, s.input(nil))
	if err != nil {
		ln.Close()
		return err
	}
	if stats.Failed() {
		s.log.Warn("initial build finished with page errors", "count", len(stats.PageErrors))
	}

	go s.hub.Run()
	defer s.hub.Stop()

	if s.opts.Watch {
		s.watcher = NewWatcher(s.watchRoots(), s.ignorePrefixes(), s.log)
		defer s.watcher.Stop()
		go func() {
			if err := s.watcher.Start(); err != nil {
				s.log.Error("watcher gave up", "error", err)
				s.hub.Broadcast(Event{Type: "error", Errors: []*diagnostics.Diagnostic{
					diagnostics.Newf(diagnostics.WatcherError, "%v", err).WithPhase("watch").
						WithHint("restart the dev server"),
				}})
			}
		}()
		go s.rebuildLoop(ctx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, s.hub.HandleWS)
	mux.HandleFunc("/", s.handleRequest)
	s.httpSrv = &http.Server{Handler: mux}

	url := s.displayURL()
	s.log.Info("dev server listening", "url", url, "executor", s.exec.Name(), "watch", s.opts.Watch)
	if s.opts.Open {
		openBrowser(url, s.log)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dev server: %w", err)
	}
	return nil
}

func (s *Server) input(changes []incremental.Change) build.Input {
	return build.Input{
		Drafts:  s.opts.Drafts,
		Future:  s.opts.Future,
		Profile: s.opts.Profile,
		Changes: changes,
	}
}

// rebuildLoop consumes debounced watcher batches one at a time. Batches that
// queue up while a build runs are unioned into the next one, so a burst of
// edits costs a single rebuild.
func (s *Server) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.watcher.Batches():
			if !ok {
				return
			}
			events := make(map[string]fsnotify.Op, len(batch))
			mergeEvents(events, batch)
			for drained := false; !drained; {
				select {
				case more := <-s.watcher.Batches():
					mergeEvents(events, more)
				default:
					drained = true
				}
			}
			s.rebuild(ctx, events)
		}
	}
}

func mergeEvents(into map[string]fsnotify.Op, batch []FileEvent) {
	for _, ev := range batch {
		into[ev.Path] |= ev.Op
	}
}

func (s *Server) rebuild(ctx context.Context, events map[string]fsnotify.Op) {
	changes := s.changesFromEvents(events)
	if len(changes) == 0 {
		return
	}

	s.hub.Broadcast(Event{Type: "building"})
	s.log.Info("sources changed, rebuilding", "changes", len(changes))

	stats, err := s.exec.Build(ctx, s.input(changes))
	if err != nil {
		// The previous output tree stays live; the browser shows the failure.
		s.log.Error("rebuild failed", "error", err)
		s.hub.Broadcast(Event{Type: "error", Errors: rebuildDiags(err)})
		return
	}
	if stats.Failed() {
		diags := make([]*diagnostics.Diagnostic, 0, len(stats.PageErrors))
		for _, pe := range stats.PageErrors {
			diags = append(diags, pe.Diag)
		}
		s.hub.Broadcast(Event{Type: "error", Errors: diags})
		return
	}

	s.log.Info("rebuild complete",
		"rendered", stats.Rendered,
		"skipped", stats.Skipped,
		"action", stats.Reload.Action,
		"duration", stats.Duration,
	)
	s.notify(stats.Reload)
}

// notify pushes the reload decision to clients, holding full reloads so two
// are never sent inside the throttle window.
func (s *Server) notify(d build.ReloadDecision) {
	switch d.Action {
	case build.ReloadCSS:
		s.hub.Broadcast(Event{Type: string(build.ReloadCSS), Paths: d.CSS})
	case build.ReloadFull:
		if wait := reloadDelay(s.lastReload, time.Now()); wait > 0 {
			time.Sleep(wait)
		}
		s.lastReload = time.Now()
		s.hub.Broadcast(Event{Type: string(build.ReloadFull), Paths: d.Changed})
	default:
		s.hub.Broadcast(Event{Type: string(build.ReloadNone)})
	}
}

// reloadDelay returns how long a full reload must wait to stay outside the
// throttle window that started at last.
func reloadDelay(last, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	if since := now.Sub(last); since < reloadThrottle {
		return reloadThrottle - since
	}
	return 0
}

// changesFromEvents classifies watcher events into build changes. Paths
// outside every source area are dropped.
func (s *Server) changesFromEvents(events map[string]fsnotify.Op) []incremental.Change {
	changes := make([]incremental.Change, 0, len(events))
	for path, op := range events {
		rel, err := s.cls.Rel(path)
		if err != nil {
			continue
		}
		kind := s.cls.Classify(rel)
		if kind == incremental.KindOther {
			continue
		}
		changes = append(changes, incremental.Change{Path: rel, Op: opFor(op), Kind: kind})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// opFor collapses a coalesced fsnotify bitmask to one change op. Removal
// wins over everything: a file that was written then deleted is gone.
func opFor(op fsnotify.Op) incremental.Op {
	switch {
	case op&fsnotify.Remove != 0:
		return incremental.OpRemove
	case op&fsnotify.Rename != 0:
		return incremental.OpRename
	case op&fsnotify.Create != 0:
		return incremental.OpCreate
	default:
		return incremental.OpWrite
	}
}

func rebuildDiags(err error) []*diagnostics.Diagnostic {
	var d *diagnostics.Diagnostic
	if errors.As(err, &d) {
		return []*diagnostics.Diagnostic{d}
	}
	return []*diagnostics.Diagnostic{
		diagnostics.Newf(diagnostics.WatcherError, "rebuild failed: %v", err).WithPhase("rebuild"),
	}
}

// watchRoots lists the directories whose changes trigger rebuilds. The site
// root is watched non-recursively for config edits.
func (s *Server) watchRoots() []WatchRoot {
	cfg := s.cfg
	roots := []WatchRoot{
		{Path: cfg.RootPath},
		{Path: cfg.ContentPath(), Recursive: true},
		{Path: cfg.TemplatesPath(), Recursive: true},
		{Path: filepath.Join(cfg.ThemePath(), "templates"), Recursive: true},
		{Path: cfg.DataPath(), Recursive: true},
		{Path: cfg.AssetsPath(), Recursive: true},
		{Path: cfg.GeneratedPath(), Recursive: true},
	}
	for _, wp := range cfg.Content.WatchPaths {
		p := wp
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.RootPath, p)
		}
		roots = append(roots, WatchRoot{Path: p, Recursive: true})
	}
	return roots
}

func (s *Server) ignorePrefixes() []string {
	return []string{s.cfg.OutputPath(), s.cfg.CachePath()}
}

// handleRequest serves the output tree with clean URLs. HTML responses get
// a per-request nonce CSP, and the live-reload client when enabled.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	filePath := s.resolveFilePath(r.URL.Path)
	if filePath == "" {
		s.handle404(w)
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		s.handle404(w)
		return
	}

	ext := filepath.Ext(filePath)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")

	if isHTML(ext, contentType) {
		if nonce, err := security.GenerateNonce(); err == nil {
			data = InjectScriptNonces(data, nonce)
			if s.opts.LiveReload {
				data = InjectClient(data, nonce)
			}
			w.Header().Set("Content-Security-Policy", security.DevPolicy(nonce).String())
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// resolveFilePath maps a URL path onto the output tree: exact file,
// directory index, or extensionless .html fallback. Empty means not found.
func (s *Server) resolveFilePath(urlPath string) string {
	cleaned := filepath.Clean(urlPath)
	if strings.Contains(cleaned, "..") {
		return ""
	}
	full := filepath.Join(s.cfg.OutputPath(), filepath.FromSlash(cleaned))

	if info, err := os.Stat(full); err == nil {
		if !info.IsDir() {
			return full
		}
		index := filepath.Join(full, "index.html")
		if _, err := os.Stat(index); err == nil {
			return index
		}
		return ""
	}

	if _, err := os.Stat(full + ".html"); err == nil {
		return full + ".html"
	}
	index := filepath.Join(full, "index.html")
	if _, err := os.Stat(index); err == nil {
		return index
	}
	return ""
}

func (s *Server) handle404(w http.ResponseWriter) {
	data, err := os.ReadFile(filepath.Join(s.cfg.OutputPath(), "404.html"))
	if err == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write(data)
		return
	}
	http.Error(w, "404 page not found", http.StatusNotFound)
}

func isHTML(ext, contentType string) bool {
	if ext == ".html" || ext == ".htm" {
		return true
	}
	return bytes.Contains([]byte(contentType), []byte("text/html"))
}

func (s *Server) displayURL() string {
	host := s.opts.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(s.opts.Port)))
}

// openBrowser is best effort; a failure only logs.
func openBrowser(url string, log *slog.Logger) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("opening browser", "url", url, "error", err)
	}
}
