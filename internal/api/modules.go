package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ipsix/geopolis/internal/analysis"
	"github.com/ipsix/geopolis/internal/tutor"
)

const (
	minInputLength = 10
	previewLength  = 200
)

func (s *Server) handleAnalyseText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := req.Text
	if utf8.RuneCountInString(text) < minInputLength {
		writeError(w, http.StatusBadRequest, "text too short (minimum 10 characters)")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"text":     preview(text),
		"analysis": analysis.AnalyzeText(text),
	})
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

func (s *Server) handleAnalyseRSS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	feedURL := strings.TrimSpace(req.URL)
	if feedURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	parsed, err := url.Parse(feedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	if s.deps.RSS == nil {
		writeError(w, http.StatusServiceUnavailable, "feed reader is not configured")
		return
	}
	articles := s.deps.RSS.Fetch(r.Context(), feedURL)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"status":   "ok",
		"source":   feedURL,
		"articles": articles,
		"count":    len(articles),
	})
}

func (s *Server) handleAnalyseKeywords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"keywords": analysis.Keywords(),
	})
}

func (s *Server) handleAnalyseSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"sources": analysis.Sources(),
	})
}

func (s *Server) handleTutorAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Provider string `json:"provider"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if utf8.RuneCountInString(req.Code) < minInputLength {
		writeError(w, http.StatusBadRequest, "code too short (minimum 10 characters)")
		return
	}
	result, err := tutor.Analyze(req.Code, req.Provider)
	if errors.Is(err, tutor.ErrUnknownProvider) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"backend":     result.Backend,
		"analysis":    result.Analysis,
		"issues":      result.Issues,
		"suggestions": result.Suggestions,
		"fixed_code":  result.FixedCode,
	})
}

func (s *Server) handleTutorProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"providers": tutor.Providers(),
	})
}
