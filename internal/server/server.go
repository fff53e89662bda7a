// Package server is the development server: it serves the project tree
// through the pipeline, injects the live-reload client into HTML responses
// and turns file changes into reload messages.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/middleware"
	"github.com/conneroisu/pagesmith/internal/pipeline"
	"github.com/conneroisu/pagesmith/internal/router"
	"github.com/conneroisu/pagesmith/internal/validation"
	"github.com/conneroisu/pagesmith/internal/version"
	"github.com/conneroisu/pagesmith/internal/watcher"
	"github.com/conneroisu/pagesmith/internal/websocket"
)

const (
	debounceDelay   = 100 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Server serves a project with live reload.
type Server struct {
	pipeline *pipeline.Pipeline
	cfg      *config.Resolved
	fs       afero.Fs
	ws       *websocket.Manager
	watcher  *watcher.FileWatcher
	logger   logging.Logger

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New creates a dev server for a configured pipeline. Files are read from
// fsys.
func New(p *pipeline.Pipeline, fsys afero.Fs, logger logging.Logger) (*Server, error) {
	cfg := p.Config()
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeNotConfigured, "pipeline is not configured")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		pipeline: p,
		cfg:      cfg,
		fs:       fsys,
		logger:   logger.WithComponent("server"),
	}
	s.ws = websocket.NewManager(websocket.OriginValidatorFunc(s.isAllowedOrigin), logger)
	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	srv := s.cfg.Server()
	return net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port))
}

// DevServer returns the live channel the server broadcasts on.
func (s *Server) DevServer() errors.DevServer {
	return s.ws
}

// Handler returns the HTTP handler of the dev server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.ws.HandleWebSocket)
	mux.HandleFunc(ClientPath, s.handleClient)
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.HandleFunc("/", s.handleFile)
	return middleware.NewChain(
		middleware.Logging(s.logger),
		middleware.CORS(s.isAllowedOrigin),
		middleware.SecurityHeaders(),
	).Apply(mux)
}

// Start watches the project and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startWatcher(ctx); err != nil {
		return err
	}

	addr := s.Addr()
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "shutdown incomplete")
		}
	}()

	if s.cfg.Server().Open {
		go s.openBrowser("http://" + addr)
	}

	s.logger.Info(ctx, "dev server listening", "addr", "http://"+addr, "root", s.cfg.ProjectRoot())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) startWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(debounceDelay, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.ExcludeDirFilter(filepath.Join(s.cfg.ProjectRoot(), filepath.FromSlash(s.cfg.Build().OutDir))))
	fw.AddHandler(s.handleChanges)

	if err := fw.AddRecursive(s.cfg.ProjectRoot()); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("failed to watch %s: %w", s.cfg.ProjectRoot(), err)
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}

	s.serverMutex.Lock()
	s.watcher = fw
	s.serverMutex.Unlock()
	return nil
}

// handleChanges asks the pipeline about every changed file. At most one
// reload is sent per batch.
func (s *Server) handleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	var dev errors.DevServer = s.ws
	for _, event := range events {
		s.logger.Debug(ctx, "file changed", "path", event.Path, "type", event.Type.String())
		if s.pipeline.FileChanged(ctx, event.Path, dev) {
			dev = nil
		}
	}
	return nil
}

// Shutdown stops the watcher, the live channel and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		fw, server := s.watcher, s.httpServer
		s.serverMutex.RUnlock()

		if fw != nil {
			if err := fw.Stop(); err != nil {
				s.logger.Warn(ctx, err, "failed to stop watcher")
			}
		}
		if err := s.ws.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				shutdownErr = err
			}
		}
		s.logger.Info(ctx, "dev server stopped")
	})
	return shutdownErr
}

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(clientScript))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"version": version.GetShortVersion(),
		"clients": s.ws.ConnectedClients(),
	})
}

// handleFile serves a project file, rendered through the pipeline when the
// pipeline accepts it.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	filename, ok := s.resolveFile(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	info, err := s.fs.Stat(filename)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	raw, err := afero.ReadFile(s.fs, filename)
	if err != nil {
		s.logger.Error(r.Context(), err, "failed to read file", "file", filename)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	urlPath := s.urlPathOf(filename)
	body := string(raw)
	content, transformed, err := s.pipeline.Transform(r.Context(), urlPath, filename, body, s.ws)
	if transformed {
		body = content
	}

	contentType := contentTypeOf(filename, raw)
	isHTML := strings.HasPrefix(contentType, "text/html")

	if err != nil {
		if !errors.IsRenderError(err) {
			// Render errors were already reported by the pipeline.
			s.ws.Send(websocket.UpdateMessage{
				Type:    websocket.MessageError,
				Message: err.Error(),
				Source:  pipeline.Source,
				Path:    urlPath,
			})
		}
		s.logger.Warn(r.Context(), err, "transform failed", "path", urlPath)
		if !isHTML {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body = InjectBeforeClose(body, errors.FormatOverlay(err, pipeline.Source))
	}

	if isHTML {
		body = InjectBeforeClose(body, clientTag)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", info.ModTime(), strings.NewReader(body))
}

// resolveFile maps a request path to a file under the project root. A
// directory serves its index.html; a missing file is retried with the
// ".html" wrapper so that /feed.xml serves feed.xml.html and /about serves
// about.html.
func (s *Server) resolveFile(urlPath string) (string, bool) {
	base, err := validation.ContainedPath(s.cfg.ProjectRoot(), urlPath)
	if err != nil {
		return "", false
	}

	candidates := []string{base, base + ".html"}
	if info, err := s.fs.Stat(base); err == nil && info.IsDir() {
		candidates = []string{filepath.Join(base, "index.html")}
	}

	for _, candidate := range candidates {
		if info, err := s.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func (s *Server) urlPathOf(filename string) string {
	rel, err := filepath.Rel(s.cfg.ProjectRoot(), filename)
	if err != nil {
		return "/" + filepath.Base(filename)
	}
	return "/" + filepath.ToSlash(rel)
}

// contentTypeOf types a response by its served name, so feed.xml.html is
// served as XML. A JSON page renders its named template and stays HTML.
func contentTypeOf(filename string, content []byte) string {
	if suffix, wrapped := router.LogicalSuffix(filename); wrapped && suffix == ".json" {
		return "text/html; charset=utf-8"
	}
	name := router.StripWrapper(filename)
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".njk":
		return "text/html; charset=utf-8"
	}
	return http.DetectContentType(content)
}

// isAllowedOrigin accepts configured, loopback and same-host origins.
func (s *Server) isAllowedOrigin(origin string) bool {
	srv := s.cfg.Server()
	return validation.ValidateOrigin(origin, srv.AllowedOrigins, srv.Host) == nil
}

func (s *Server) openBrowser(target string) {
	time.Sleep(100 * time.Millisecond)

	if err := validation.ValidateURL(target); err != nil {
		s.logger.Warn(context.Background(), err, "refusing to open invalid URL", "url", target)
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", target).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	case "darwin":
		err = exec.Command("open", target).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(context.Background(), err, "failed to open browser")
	}
}
