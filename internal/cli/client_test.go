package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestClientRunPluginWrapsPayload(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if req.URL.Path != "/api/plugins/water-security/run" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		var body map[string]map[string]interface{}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["payload"]["risk_type"] != "stress" {
			t.Fatalf("expected payload to be wrapped, got %v", body)
		}
		return jsonResponse(http.StatusOK, `{"status":"success"}`), nil
	})

	client := NewClient("http://127.0.0.1:5000/", time.Second)
	client.Client = &http.Client{Transport: transport}
	raw, err := client.RunPlugin(context.Background(), "water-security", map[string]interface{}{"risk_type": "stress"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !strings.Contains(string(raw), "success") {
		t.Fatalf("expected response body, got %s", string(raw))
	}
}

func TestClientHistoryQuery(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.URL.Query().Get("plugin"); got != "space-activity" {
			t.Fatalf("expected plugin filter, got %q", got)
		}
		if got := req.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("expected limit 5, got %q", got)
		}
		return jsonResponse(http.StatusOK, `{"results":[]}`), nil
	})

	client := NewClient("http://127.0.0.1:5000", time.Second)
	client.Client = &http.Client{Transport: transport}
	if _, err := client.History(context.Background(), "space-activity", 5); err != nil {
		t.Fatalf("request failed: %v", err)
	}
}

func TestClientErrorOnNon2xxKeepsBody(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(http.StatusInternalServerError, `{"status":"error","message":"boom"}`)
		resp.Status = "500 Internal Server Error"
		return resp, nil
	})

	client := NewClient("http://127.0.0.1:5000", time.Second)
	client.Client = &http.Client{Transport: transport}
	raw, err := client.RunPlugin(context.Background(), "ghost", nil)
	if err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
	if !strings.Contains(string(raw), "boom") {
		t.Fatalf("expected error body to be returned, got %s", string(raw))
	}
}

func TestPrettyJSON(t *testing.T) {
	got := string(PrettyJSON([]byte(`{"a":1}`)))
	if got != "{\n  \"a\": 1\n}\n" {
		t.Fatalf("unexpected pretty output %q", got)
	}
	if got := string(PrettyJSON([]byte("plain"))); got != "plain" {
		t.Fatalf("expected non-JSON input to pass through, got %q", got)
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (rt roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req)
}
