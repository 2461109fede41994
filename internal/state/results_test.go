package state

import (
	"testing"

	"github.com/ipsix/geopolis/internal/plugin"
)

func TestResultCacheTracksLatestPerPlugin(t *testing.T) {
	cache := NewResultCache()
	_ = cache.Record(plugin.Result{Plugin: "water-security", Status: plugin.StatusSuccess, Data: []plugin.Record{{}, {}}})
	_ = cache.Record(plugin.Result{Plugin: "space-activity", Status: plugin.StatusError, Message: "offline"})
	_ = cache.Record(plugin.Result{Plugin: "water-security", Status: plugin.StatusError, Message: "boom"})

	latest := cache.Latest()
	if len(latest) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(latest))
	}
	if latest[0].Plugin != "space-activity" {
		t.Fatalf("expected sorted summaries, got %s first", latest[0].Plugin)
	}
	water, ok := cache.Get("water-security")
	if !ok {
		t.Fatalf("expected water-security summary")
	}
	if water.Runs != 2 || water.Failures != 1 || water.Status != plugin.StatusError || water.Records != 0 {
		t.Fatalf("unexpected summary %+v", water)
	}
	if _, ok := cache.Get("ghost"); ok {
		t.Fatalf("unexpected summary for unknown plugin")
	}
}
