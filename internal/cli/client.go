package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Client talks to a running geopolis API.
type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	client := cleanhttp.DefaultClient()
	client.Timeout = timeout
	return &Client{
		BaseURL: baseURL,
		Client:  client,
	}
}

func (c *Client) Health(ctx context.Context) ([]byte, error) {
	return c.DoJSON(ctx, http.MethodGet, "/api/health", nil)
}

func (c *Client) Info(ctx context.Context) ([]byte, error) {
	return c.DoJSON(ctx, http.MethodGet, "/api/info", nil)
}

func (c *Client) ListPlugins(ctx context.Context) ([]byte, error) {
	return c.DoJSON(ctx, http.MethodGet, "/api/plugins/list", nil)
}

// RunPlugin posts payload to the plugin's run endpoint. A failed run is
// reported as an error carrying the result body.
func (c *Client) RunPlugin(ctx context.Context, id string, payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body := map[string]interface{}{"payload": payload}
	return c.DoJSON(ctx, http.MethodPost, "/api/plugins/"+url.PathEscape(id)+"/run", body)
}

func (c *Client) History(ctx context.Context, pluginID string, limit int) ([]byte, error) {
	query := url.Values{}
	if pluginID != "" {
		query.Set("plugin", pluginID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/plugins/history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return c.DoJSON(ctx, http.MethodGet, path, nil)
}

func (c *Client) Reload(ctx context.Context) ([]byte, error) {
	return c.DoJSON(ctx, http.MethodPost, "/api/plugins/reload", nil)
}

func (c *Client) DoJSON(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return raw, fmt.Errorf("request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// PrettyJSON indents raw when it holds a JSON object or array and returns it
// unchanged otherwise.
func PrettyJSON(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return raw
	}
	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return raw
	}
	out.WriteByte('\n')
	return out.Bytes()
}
