package geo

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/ipsix/geopolis/internal/plugin"
)

// Factories maps manifest kinds to plugin constructors.
var Factories = map[string]plugin.Factory{
	"nasa-space-activity":   NewNASASpaceActivity,
	"space-activity":        NewSpaceActivity,
	"threat-intelligence":   NewThreatIntelligence,
	"water-security":        NewWaterSecurity,
	"social-cohesion-index": NewSocialCohesion,
	"tech-sovereignty":      NewTechSovereignty,
	"narrative-tracking":    NewNarrativeTracking,
}

// Register installs every factory in a stable order.
func Register(reg *plugin.Registry) error {
	for _, kind := range sortedCopy(lo.Keys(Factories)) {
		if err := reg.RegisterFactory(kind, Factories[kind]); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return nil
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
