package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipsix/geopolis/internal/analysis"
	"github.com/ipsix/geopolis/internal/config"
	"github.com/ipsix/geopolis/internal/logging"
	"github.com/ipsix/geopolis/internal/plugin"
	"github.com/ipsix/geopolis/internal/plugins/geo"
	"github.com/ipsix/geopolis/internal/state"
	"github.com/ipsix/geopolis/internal/storage"
)

func issUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/iss-now.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"success","timestamp":1700000000,"iss_position":{"latitude":"48.8566","longitude":"2.3522"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	server  *Server
	handler http.Handler
	journal *storage.Journal
	results *state.ResultCache
}

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	upstream := issUpstream(t)
	logger := logging.New("text")

	settings := plugin.NewSettings(nil, nil, map[string]string{"open_notify": upstream.URL})
	reg := plugin.NewRegistry(settings, logger)
	require.NoError(t, geo.Register(reg))
	require.NoError(t, reg.RegisterBuiltins().Err())

	store, err := storage.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	journal := storage.NewJournal(store)
	results := state.NewResultCache()

	exec := plugin.NewExecutor(reg, plugin.Recorders{journal, results}, logger)
	server := New(cfg, logger, Deps{
		Registry: reg,
		Executor: exec,
		Journal:  journal,
		Results:  results,
		RSS:      analysis.NewReader(time.Second, 5, logger),
		Reload: func(context.Context) (plugin.DiscoveryReport, error) {
			return reg.RegisterBuiltins(), nil
		},
	})
	return &testEnv{server: server, handler: server.Handler(), journal: journal, results: results}
}

func defaultServerConfig() config.ServerConfig {
	return config.Default().Server
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	decoded := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded), rr.Body.String())
	return rr, decoded
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	_, body = env.do(t, http.MethodGet, "/api/info", "")
	assert.Equal(t, "GEOPOLIS", body["name"])
	assert.Equal(t, float64(7), body["plugins_loaded"])
	assert.Equal(t, "operational", body["status"])
}

func TestPluginListIsStable(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	_, first := env.do(t, http.MethodGet, "/api/plugins/list", "")
	_, second := env.do(t, http.MethodGet, "/api/plugins/list", "")
	assert.Equal(t, first, second)
	assert.Equal(t, true, first["success"])
	assert.Equal(t, float64(7), first["count"])
	plugins := first["plugins"].([]interface{})
	require.Len(t, plugins, 7)
	assert.Equal(t, "narrative-tracking", plugins[0].(map[string]interface{})["id"])
	assert.Equal(t, "water-security", plugins[6].(map[string]interface{})["id"])
}

func TestRunPluginReturnsNumericCoordinates(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodPost, "/api/plugins/nasa-space-activity/run", `{"payload":{"activity_type":"iss"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "success", body["status"])
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.InDelta(t, 48.8566, row["latitude"], 1e-9)
	assert.InDelta(t, 2.3522, row["longitude"], 1e-9)

	summary, ok := env.results.Get("nasa-space-activity")
	require.True(t, ok)
	assert.Equal(t, 1, summary.Runs)

	_, history := env.do(t, http.MethodGet, "/api/plugins/history?plugin=nasa-space-activity", "")
	assert.Equal(t, float64(1), history["count"])
}

func TestRunPluginMalformedBodyUsesEmptyPayload(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	for _, body := range []string{"", "{not json", `{"payload":"nope"}`} {
		rr, decoded := env.do(t, http.MethodPost, "/api/plugins/water-security/run", body)
		assert.Equal(t, http.StatusOK, rr.Code, "body %q", body)
		assert.Equal(t, "success", decoded["status"])
	}
}

func TestRunPluginFailures(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodPost, "/api/plugins/ghost/run", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "ghost")

	rr, body = env.do(t, http.MethodPost, "/api/plugins/water-security/run", `{"payload":{"risk_type":"floods"}}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "error", body["status"])
	assert.Empty(t, body["data"])
}

func TestUnknownPluginIsNotRecorded(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	for _, id := range []string{"ghost-1", "ghost-2", "ghost-3"} {
		rr, _ := env.do(t, http.MethodPost, "/api/plugins/"+id+"/run", `{}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, id)
	}

	assert.Empty(t, env.results.Latest())
	history, err := env.journal.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, body := env.do(t, http.MethodGet, "/api/plugins/status", "")
	assert.Empty(t, body["last_runs"])
}

func TestPluginHistoryRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodGet, "/api/plugins/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestPluginReload(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodPost, "/api/plugins/reload", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(7), body["count"])
}

func TestAnalyseText(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodPost, "/api/analyse/text", `{"text":"court"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])

	rr, body = env.do(t, http.MethodPost, "/api/analyse/text", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = env.do(t, http.MethodPost, "/api/analyse/text", `{"text":"   paix   "}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "   paix   ", body["text"])

	long := strings.Repeat("la guerre et la crise ", 20)
	rr, body = env.do(t, http.MethodPost, "/api/analyse/text", `{"text":"`+long+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasSuffix(body["text"].(string), "..."))
	result := body["analysis"].(map[string]interface{})
	assert.Equal(t, "geopolitique", result["theme"])
}

func TestAnalyseRSSRequiresURL(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, _ := env.do(t, http.MethodPost, "/api/analyse/rss", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/analyse/rss", `{"url":"ftp://example.com/feed"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAnalyseRSSFetchesFeed(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>` +
			`<item><title>Un</title><link>http://example.com/1</link></item>` +
			`<item><title>Deux</title><link>http://example.com/2</link></item>` +
			`</channel></rss>`))
	}))
	defer feed.Close()
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodPost, "/api/analyse/rss", `{"url":"`+feed.URL+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, feed.URL, body["source"])
}

func TestTutorEndpoints(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, _ := env.do(t, http.MethodPost, "/api/tuteur/analyze", `{"code":"x=1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/tuteur/analyze", `{"code":"if x == None:\n    pass","provider":"mystery"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body := env.do(t, http.MethodPost, "/api/tuteur/analyze", `{"code":"if x == None:\n    pass"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "local", body["backend"])
	assert.Contains(t, body["fixed_code"], "is None")

	_, body = env.do(t, http.MethodGet, "/api/tuteur/providers", "")
	providers := body["providers"].(map[string]interface{})
	assert.Contains(t, providers, "local")
}

func TestModuleStatus(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	for _, path := range []string{"/api/analyse/status", "/api/tuteur/status", "/api/plugins/status"} {
		rr, body := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "operational", body["status"], path)
		assert.Equal(t, Version, body["version"], path)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultServerConfig())

	rr, body := env.do(t, http.MethodGet, "/api/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "/api/nowhere", body["path"])
	assert.NotEmpty(t, body["error"])
}

func TestRecoverHidesDetailsUnlessDebug(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	for _, debug := range []bool{false, true} {
		cfg := defaultServerConfig()
		cfg.Debug = debug
		server := New(cfg, logging.New("text"), Deps{})
		rr := httptest.NewRecorder()
		server.withRecover(boom).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/x", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "internal server error", body["error"])
		if debug {
			assert.Equal(t, "boom", body["details"])
		} else {
			assert.NotContains(t, body, "details")
		}
	}
}

func TestCORS(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.CORSOrigins = []string{"https://geo.example"}
	env := newTestEnv(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/plugins/list", nil)
	req.Header.Set("Origin", "https://geo.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://geo.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.MaxBodyBytes = 32
	env := newTestEnv(t, cfg)

	rr, body := env.do(t, http.MethodPost, "/api/analyse/text", `{"text":"`+strings.Repeat("a", 64)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "exceeds")
}
