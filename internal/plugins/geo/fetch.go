package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"
)

const userAgent = "geopolis/3.0 (+https://github.com/ipsix/geopolis)"

const maxBodyBytes = 32 << 20

type fetcher struct {
	client *http.Client
}

func newFetcher(timeout time.Duration) *fetcher {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &fetcher{client: client}
}

// getJSON fetches rawURL with query and returns the parsed document.
func (f *fetcher) getJSON(ctx context.Context, rawURL string, query url.Values) (gjson.Result, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("fetch %s: %w", redactQuery(rawURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("fetch %s: status %d", redactQuery(rawURL), resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s: %w", redactQuery(rawURL), err)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("fetch %s: invalid JSON body", redactQuery(rawURL))
	}
	return gjson.ParseBytes(raw), nil
}

// redactQuery drops the query string so API keys never reach logs or results.
func redactQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.RawQuery = ""
	return parsed.String()
}

func optionDuration(options map[string]interface{}, key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := options[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("option %s must be a duration string", key)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("option %s must be positive", key)
	}
	return parsed, nil
}

func stringOr(v gjson.Result, fallback string) string {
	if !v.Exists() || v.String() == "" {
		return fallback
	}
	return v.String()
}
