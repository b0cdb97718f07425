// Package server is the development web server: it serves the built site,
// injects the live-reload client into pages and pushes reload messages when
// the output directory changes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/config"
	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/fsutil"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/validation"
	"github.com/conneroisu/sitepipe/internal/version"
	"github.com/conneroisu/sitepipe/internal/watcher"
	"github.com/conneroisu/sitepipe/internal/websocket"
)

// Reserved paths. Everything else is looked up in the site root.
const (
	wsPath     = "/__sitepipe/ws"
	healthPath = "/__sitepipe/health"
	clientPath = "/__sitepipe/reload.js"
)

const shutdownTimeout = 5 * time.Second

// Options configures the server.
type Options struct {
	Host     string
	Port     int
	Root     string
	Open     bool
	Debounce time.Duration

	// Failures, when set, is shown to connected browsers as an overlay.
	Failures *siteerrors.ErrorCollector
}

// OptionsFromConfig maps the server section of the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Root:     cfg.Server.Root,
		Open:     cfg.Server.Open,
		Debounce: cfg.Watch.Debounce,
	}
}

// Server serves one directory with live reload.
type Server struct {
	opts   Options
	root   string
	hub    *websocket.Hub
	logger logging.Logger
	open   func(url string) error

	mu    sync.RWMutex
	addr  string
	ready chan struct{}
}

// New validates opts and creates the reload hub.
func New(opts Options, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Root == "" {
		return nil, siteerrors.ErrConfigInvalid("server.root", "cannot be empty")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, siteerrors.ErrConfigInvalid("server.port", "%d is out of range", opts.Port)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to resolve site root", err).WithPath(opts.Root)
	}

	logger = logger.WithComponent("server")
	s := &Server{
		opts:   opts,
		root:   root,
		hub:    websocket.NewHub(websocket.AllowedHosts(validation.LocalHosts(opts.Host, opts.Port)), logger),
		logger: logger,
		open:   openURL,
		ready:  make(chan struct{}),
	}
	if opts.Failures != nil {
		opts.Failures.OnChange(func(failures []siteerrors.Failure) {
			s.hub.Broadcast(websocket.Message{Type: websocket.TypeErrors, Failures: failures})
		})
	}
	return s, nil
}

// Handler returns the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(wsPath, s.hub)
	mux.HandleFunc(healthPath, s.handleHealth)
	mux.HandleFunc(clientPath, s.handleClient)
	mux.HandleFunc("/", s.handleStatic)
	return s.logRequests(mux)
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address, empty before Ready.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Serve listens, watches the root for changes and serves until ctx is
// done. Cancellation is a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := fsutil.EnsureDir(s.root); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port)))
	if err != nil {
		return siteerrors.NewNetworkError(siteerrors.ErrCodeServer, "failed to listen", err).
			WithContext("host", s.opts.Host).WithContext("port", s.opts.Port)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	url := s.url(ln.Addr())
	s.logger.Info(ctx, "Serving site", "url", url, "root", s.root)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := s.watch(watchCtx); err != nil {
			s.logger.Error(ctx, err, "Output watcher stopped, browsers will not reload")
		}
	}()

	if s.opts.Open {
		go s.openBrowser(ctx, url)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return siteerrors.NewNetworkError(siteerrors.ErrCodeServer, "shutdown failed", err)
		}
		s.logger.Info(context.Background(), "Server stopped")
		return nil
	case err := <-serveErr:
		s.hub.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return siteerrors.NewNetworkError(siteerrors.ErrCodeServer, "server error", err)
	}
}

func (s *Server) url(addr net.Addr) string {
	host := s.opts.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := strconv.Itoa(s.opts.Port)
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
	}
	return "http://" + net.JoinHostPort(host, port)
}

// watch broadcasts a message for every debounced batch of output changes.
func (s *Server) watch(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.opts.Debounce, s.logger)
	if err != nil {
		return siteerrors.NewInternalError(siteerrors.ErrCodeWatch, "failed to create watcher", err)
	}
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		if msg, ok := s.changeMessage(events); ok {
			s.logger.Debug(ctx, "Notifying browsers", "type", msg.Type, "changes", len(events))
			s.hub.Broadcast(msg)
		}
		return nil
	})
	if err := fw.AddRecursive(s.root); err != nil {
		return siteerrors.NewIOError(siteerrors.ErrCodeWatch, "failed to watch site root", err).WithPath(s.root)
	}
	return fw.Run(ctx)
}

// changeMessage picks a stylesheet swap when only stylesheets changed and
// a full reload otherwise. Source maps alone trigger nothing.
func (s *Server) changeMessage(events []watcher.ChangeEvent) (websocket.Message, bool) {
	var sheets []string
	reload := false
	for _, e := range events {
		switch strings.ToLower(filepath.Ext(e.Path)) {
		case ".map":
			continue
		case ".css":
			if e.Type == watcher.EventTypeDeleted {
				reload = true
				continue
			}
			sheets = append(sheets, s.urlPath(e.Path))
		default:
			reload = true
		}
	}

	switch {
	case reload:
		return websocket.Message{Type: websocket.TypeReload}, true
	case len(sheets) > 0:
		return websocket.Message{Type: websocket.TypeCSS, Paths: sheets}, true
	}
	return websocket.Message{}, false
}

func (s *Server) urlPath(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "/" + filepath.Base(path)
	}
	return "/" + filepath.ToSlash(rel)
}

type health struct {
	Status   string               `json:"status"`
	Version  string               `json:"version"`
	Root     string               `json:"root"`
	Clients  int                  `json:"clients"`
	Failures []siteerrors.Failure `json:"failures"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := health{
		Status:   "ok",
		Version:  version.GetShortVersion(),
		Root:     s.root,
		Clients:  s.hub.Clients(),
		Failures: []siteerrors.Failure{},
	}
	if s.opts.Failures != nil && s.opts.Failures.HasFailures() {
		h.Status = "failing"
		h.Failures = s.opts.Failures.Failures()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "Not opening browser")
		return
	}
	if err := s.open(url); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
	}
}

func openURL(url string) error {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
