package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ipsix/geopolis/internal/logging"
	"github.com/ipsix/geopolis/internal/plugin"
	"github.com/ipsix/geopolis/internal/state"
)

const defaultHistoryLimit = 50

func (s *Server) handlePluginList(w http.ResponseWriter, _ *http.Request) {
	plugins := s.deps.Registry.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"plugins": plugins,
		"count":   len(plugins),
	})
}

func (s *Server) handlePluginStatus(w http.ResponseWriter, _ *http.Request) {
	lastRuns := []state.ResultSummary{}
	if s.deps.Results != nil {
		lastRuns = s.deps.Results.Latest()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"module":         "Plugins",
		"version":        Version,
		"status":         "operational",
		"plugins_loaded": s.deps.Registry.Len(),
		"last_runs":      lastRuns,
	})
}

func (s *Server) handlePluginRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	payload := readPayload(r)

	result := s.deps.Executor.Run(r.Context(), id, payload)
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusInternalServerError
		s.logger.Warn("plugin run failed",
			logging.Field{Key: "plugin", Value: id},
			logging.Field{Key: "error", Value: result.Message},
		)
	}
	writeJSON(w, status, result)
}

// readPayload extracts the "payload" object from a run request. An absent or
// malformed body yields an empty payload.
func readPayload(r *http.Request) plugin.Payload {
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		return plugin.Payload{}
	}
	var body struct {
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Payload == nil {
		return plugin.Payload{}
	}
	return plugin.Payload(body.Payload)
}

func (s *Server) handlePluginReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reload == nil {
		writeError(w, http.StatusServiceUnavailable, "plugin reload is not available")
		return
	}
	report, err := s.deps.Reload(r.Context())
	if err != nil {
		s.logger.Error("plugin reload failed", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(report.Loaded),
		"loaded":  report.Loaded,
		"skipped": report.Skipped,
	})
}

func (s *Server) handlePluginHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "result journal is not configured")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	results, err := s.deps.Journal.List(r.URL.Query().Get("plugin"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []plugin.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": results,
		"count":   len(results),
	})
}
