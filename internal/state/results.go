package state

import (
	"sort"
	"sync"

	"github.com/ipsix/geopolis/internal/plugin"
)

type ResultSummary struct {
	Plugin     string        `json:"plugin"`
	Status     plugin.Status `json:"status"`
	Records    int           `json:"records"`
	Message    string        `json:"message"`
	Timestamp  string        `json:"timestamp"`
	DurationMS int64         `json:"duration_ms"`
	Runs       int           `json:"runs"`
	Failures   int           `json:"failures"`
}

// ResultCache remembers the latest outcome of every plugin for status views.
type ResultCache struct {
	mu     sync.RWMutex
	latest map[string]ResultSummary
}

func NewResultCache() *ResultCache {
	return &ResultCache{latest: make(map[string]ResultSummary)}
}

func (c *ResultCache) Record(result plugin.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.latest[result.Plugin]
	summary := summarize(result)
	summary.Runs = prev.Runs + 1
	summary.Failures = prev.Failures
	if !result.OK() {
		summary.Failures++
	}
	c.latest[result.Plugin] = summary
	return nil
}

func (c *ResultCache) Latest() []ResultSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ResultSummary, 0, len(c.latest))
	for _, res := range c.latest {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plugin < out[j].Plugin })
	return out
}

func (c *ResultCache) Get(pluginID string) (ResultSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.latest[pluginID]
	return res, ok
}

func summarize(res plugin.Result) ResultSummary {
	return ResultSummary{
		Plugin:     res.Plugin,
		Status:     res.Status,
		Records:    len(res.Data),
		Message:    res.Message,
		Timestamp:  res.Timestamp,
		DurationMS: res.DurationMS,
	}
}
