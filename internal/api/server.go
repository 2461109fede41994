package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ipsix/geopolis/internal/analysis"
	"github.com/ipsix/geopolis/internal/config"
	"github.com/ipsix/geopolis/internal/logging"
	"github.com/ipsix/geopolis/internal/plugin"
	"github.com/ipsix/geopolis/internal/scheduler"
	"github.com/ipsix/geopolis/internal/state"
	"github.com/ipsix/geopolis/internal/storage"
)

const (
	Name    = "GEOPOLIS"
	Version = "3.0.0"
)

// Reloader rescans the plugin directory and swaps the live plugin set.
type Reloader func(ctx context.Context) (plugin.DiscoveryReport, error)

// Deps are the collaborators the HTTP layer reads from. Journal, Results,
// Scheduler and Reload may be nil.
type Deps struct {
	Registry  *plugin.Registry
	Executor  *plugin.Executor
	Journal   *storage.Journal
	Results   *state.ResultCache
	Scheduler *scheduler.Scheduler
	RSS       *analysis.Reader
	Reload    Reloader
}

type Server struct {
	cfg     config.ServerConfig
	logger  *logging.Logger
	deps    Deps
	server  *http.Server
	handler http.Handler
	started time.Time
}

func New(cfg config.ServerConfig, logger *logging.Logger, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		deps:    deps,
		started: time.Now(),
	}
}

// Start serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("api server starting", logging.Field{Key: "addr", Value: addr})
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeoutDuration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Handler() http.Handler {
	if s.handler == nil {
		s.handler = s.buildHandler()
	}
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	register := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, handler)
	}
	register("GET /api/health", s.handleHealth)
	register("GET /api/info", s.handleInfo)
	register("GET /api/status", s.handleStatus)

	register("GET /api/plugins/list", s.handlePluginList)
	register("GET /api/plugins/status", s.handlePluginStatus)
	register("GET /api/plugins/history", s.handlePluginHistory)
	register("POST /api/plugins/reload", s.handlePluginReload)
	register("POST /api/plugins/{id}/run", s.handlePluginRun)

	register("POST /api/analyse/text", s.handleAnalyseText)
	register("POST /api/analyse/rss", s.handleAnalyseRSS)
	register("GET /api/analyse/keywords", s.handleAnalyseKeywords)
	register("GET /api/analyse/sources", s.handleAnalyseSources)
	register("GET /api/analyse/status", s.moduleStatus("Analyse Thématique"))

	register("POST /api/tuteur/analyze", s.handleTutorAnalyze)
	register("GET /api/tuteur/providers", s.handleTutorProviders)
	register("GET /api/tuteur/status", s.moduleStatus("Tuteur IA"))

	register("/", s.handleNotFound)

	return s.withRecover(s.withCORS(s.withBodyLimit(s.withAccessLog(mux))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":           Name,
		"version":        Version,
		"modules_loaded": []string{"analyse_thematique", "tuteur_ia", "plugins"},
		"plugins_loaded": s.deps.Registry.Len(),
		"status":         "operational",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{
		"status":         "operational",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if s.deps.Scheduler != nil {
		body["jobs"] = s.deps.Scheduler.Jobs()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) moduleStatus(module string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"module":  module,
			"version": Version,
			"status":  "operational",
		})
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "endpoint not found",
		"path":  r.URL.Path,
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("request panic recovered",
				logging.Field{Key: "method", Value: r.Method},
				logging.Field{Key: "path", Value: r.URL.Path},
				logging.Field{Key: "panic", Value: fmt.Sprint(rec)},
				logging.Field{Key: "stack", Value: string(debug.Stack())},
			)
			body := map[string]interface{}{"success": false, "error": "internal server error"}
			if s.cfg.Debug {
				body["details"] = fmt.Sprint(rec)
			}
			writeJSON(w, http.StatusInternalServerError, body)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func (s *Server) withBodyLimit(next http.Handler) http.Handler {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("request served",
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "status", Value: rec.status},
			logging.Field{Key: "duration", Value: time.Since(started).String()},
		)
	})
}

// decodeJSON decodes the request body into dst. Errors are phrased for clients.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
