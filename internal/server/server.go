// Package server is the development web server: it serves the build root,
// injects the live reload client into pages and pushes reload messages to
// connected browsers over a websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/assetflow/internal/build"
	"github.com/conneroisu/assetflow/internal/config"
	"github.com/conneroisu/assetflow/internal/errors"
	"github.com/conneroisu/assetflow/internal/logging"
	"github.com/conneroisu/assetflow/internal/validation"
	"github.com/conneroisu/assetflow/internal/version"
)

// ReloadKind selects how browsers react to a rebuild.
type ReloadKind int

const (
	// FullReload reloads the page.
	FullReload ReloadKind = iota
	// StyleOnly swaps the stylesheet in place.
	StyleOnly
)

func (k ReloadKind) String() string {
	if k == StyleOnly {
		return "style_only"
	}
	return "full"
}

// Message types understood by the reload client.
const (
	MessageFullReload = "full_reload"
	MessageCSSUpdate  = "css_update"
	MessageBuildError = "build_error"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Targets   []string  `json:"targets,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusSource exposes the build state shown by the status endpoints.
type StatusSource interface {
	Metrics() build.BuildMetrics
	CacheStats() build.CacheStats
}

// DevServer serves the build root with live reload.
type DevServer struct {
	config      config.ServerConfig
	root        string
	status      StatusSource
	logger      logging.Logger
	hub         *hub
	httpServer  *http.Server
	serverMutex sync.RWMutex

	errorsMutex sync.RWMutex
	lastErrors  []string

	shutdownOnce sync.Once
}

// New creates a dev server serving root, the absolute build directory.
// status may be nil.
func New(cfg config.ServerConfig, root string, status StatusSource, logger logging.Logger) *DevServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("server")

	return &DevServer{
		config: cfg,
		root:   root,
		status: status,
		logger: logger,
		hub:    newHub(logger),
	}
}

// Handler returns the routes of the server.
func (s *DevServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/__assetflow/status", templ.Handler(statusPage(s.snapshot())))
	mux.Handle("/", s.staticHandler())
	return s.addMiddleware(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *DevServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *DevServer) Serve(ctx context.Context, listener net.Listener) error {
	go s.hub.run(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	url := "http://" + listener.Addr().String()
	s.logger.Info(ctx, "dev server listening", "url", url, "root", s.root)
	if s.config.Open {
		go s.openBrowser(ctx, url)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "dev server shutdown")
		}
	}()

	if err := server.Serve(listener); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	<-done
	return nil
}

// Shutdown closes every websocket client and stops the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.hub.closeAll()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

// Notify tells connected browsers that target was rebuilt. StyleOnly carries
// the new stylesheet in content. Notify never blocks: without clients, or
// with a full queue, the message is dropped.
func (s *DevServer) Notify(kind ReloadKind, target string, content []byte) {
	msg := UpdateMessage{Type: MessageFullReload, Timestamp: time.Now()}
	if kind == StyleOnly {
		msg.Type = MessageCSSUpdate
		msg.Target = target
		msg.Targets = stylesheetVariants(target)
		msg.Content = string(content)
	}
	s.broadcastMessage(msg)
}

// ReportErrors records the outcome of the last build. A nil err clears the
// recorded errors; otherwise every leaf error is kept for the status page
// and pushed to browsers.
func (s *DevServer) ReportErrors(err error) {
	var lines []string
	for _, leaf := range errors.Flatten(err) {
		lines = append(lines, leaf.Error())
	}

	s.errorsMutex.Lock()
	s.lastErrors = lines
	s.errorsMutex.Unlock()

	if len(lines) == 0 {
		return
	}
	s.broadcastMessage(UpdateMessage{
		Type:      MessageBuildError,
		Content:   fmt.Sprintf("%d build error(s):\n%s", len(lines), strings.Join(lines, "\n")),
		Timestamp: time.Now(),
	})
}

// LastErrors returns the errors recorded by the last ReportErrors call.
func (s *DevServer) LastErrors() []string {
	s.errorsMutex.RLock()
	defer s.errorsMutex.RUnlock()
	return append([]string(nil), s.lastErrors...)
}

// Clients returns the number of connected browsers.
func (s *DevServer) Clients() int {
	return s.hub.count()
}

func (s *DevServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "failed to marshal reload message")
		data = []byte(`{"type":"full_reload"}`)
	}
	s.hub.publish(data)
}

func (s *DevServer) snapshot() func() status {
	return func() status {
		st := status{
			Version: version.GetShortVersion(),
			Root:    s.root,
			Errors:  s.LastErrors(),
			Clients: s.Clients(),
		}
		if s.status != nil {
			m := s.status.Metrics()
			st.Builds = m.TotalBuilds
			st.FailedBuilds = m.FailedBuilds
			st.SuccessRate = m.GetSuccessRate()
			st.FilesWritten = m.FilesWritten
			st.AverageDuration = m.AverageDuration
			st.Cache = s.status.CacheStats()
		}
		return st
	}
}

func (s *DevServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.snapshot()()
	state := "healthy"
	if len(st.Errors) > 0 {
		state = "build_errors"
	}
	health := map[string]interface{}{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"version":   st.Version,
		"clients":   st.Clients,
		"errors":    len(st.Errors),
		"build": map[string]interface{}{
			"total_builds":  st.Builds,
			"failed_builds": st.FailedBuilds,
			"success_rate":  st.SuccessRate,
			"files_written": st.FilesWritten,
		},
		"cache": map[string]interface{}{
			"hits":     st.Cache.Hits,
			"misses":   st.Cache.Misses,
			"hit_rate": st.Cache.HitRate(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "failed to encode health response")
	}
}

func (s *DevServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *DevServer) openBrowser(ctx context.Context, url string) {
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "browser open failed due to invalid URL")
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(ctx, err, "failed to open browser")
	}
}
