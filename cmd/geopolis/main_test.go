package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipsix/geopolis/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "GEOPOLIS 3.0.0")
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.yaml", resolveConfigPath("explicit.yaml"))

	t.Setenv("GEOPOLIS_CONFIG", "from-env.json")
	assert.Equal(t, "from-env.json", resolveConfigPath(""))

	t.Setenv("GEOPOLIS_CONFIG", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	assert.Equal(t, "", resolveConfigPath(""))

	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, config.DefaultConfigPath)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultConfigPath), []byte("{}"), 0o600))
	assert.Equal(t, config.DefaultConfigPath, resolveConfigPath(""))
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(good, []byte("server:\n  port: 8080\n"), 0o600))

	out, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "secret_key is the default")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server:\n  port: 0\n"), 0o600))
	_, err = execute(t, "validate", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateCommandEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{}`), 0o600))
	env := filepath.Join(dir, "geopolis.env")
	require.NoError(t, os.WriteFile(env, []byte("# comment\nPORT=70000\n"), 0o600))

	before, hadBefore := os.LookupEnv("PORT")
	_, err := execute(t, "validate", "--config", cfg, "--env-file", env)
	require.Error(t, err)
	after, hasAfter := os.LookupEnv("PORT")
	assert.Equal(t, hadBefore, hasAfter)
	assert.Equal(t, before, after)
}

func TestCtlRunPostsPayload(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		buf := &bytes.Buffer{}
		_, _ = buf.ReadFrom(r.Body)
		gotBody = buf.Bytes()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","plugin":"nasa-space-activity"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "ctl", "--addr", srv.URL, "run", "nasa-space-activity", "--payload", `{"activity_type":"iss"}`)
	require.NoError(t, err)
	assert.Equal(t, "/api/plugins/nasa-space-activity/run", gotPath)
	assert.JSONEq(t, `{"payload":{"activity_type":"iss"}}`, string(gotBody))
	assert.Contains(t, out, `"status":"success"`)
}

func TestCtlRunRejectsBadPayload(t *testing.T) {
	_, err := execute(t, "ctl", "--addr", "http://127.0.0.1:1", "run", "x", "--payload", "[1,2]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON object")
}

func TestCtlReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"plugin \"ghost\" not found"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "ctl", "--addr", srv.URL, "--pretty", "run", "ghost")
	require.Error(t, err)
	assert.Contains(t, out, "not found")
}
