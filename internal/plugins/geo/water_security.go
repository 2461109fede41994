package geo

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/ipsix/geopolis/internal/plugin"
)

type waterStress struct {
	Country    string
	Region     string
	Stress     float64
	RiskLevel  string
	Population int64
}

type waterConflict struct {
	Basin     string
	Parties   []string
	Intensity string
	Issue     string
}

type riverBasin struct {
	Name      string
	Countries int
	AreaKM2   int64
	Agreement string
}

var waterStressTable = []waterStress{
	{Country: "India", Region: "South Asia", Stress: 4.12, RiskLevel: "Very high", Population: 1_400_000_000},
	{Country: "Israel", Region: "Middle East", Stress: 4.82, RiskLevel: "Very high", Population: 9_000_000},
	{Country: "South Africa", Region: "Southern Africa", Stress: 3.64, RiskLevel: "High", Population: 58_000_000},
	{Country: "Spain", Region: "Europe", Stress: 3.45, RiskLevel: "High", Population: 47_000_000},
}

var waterConflictTable = []waterConflict{
	{Basin: "Nile", Parties: []string{"Egypt", "Ethiopia", "Sudan"}, Intensity: "High tensions", Issue: "Grand Ethiopian Renaissance Dam"},
	{Basin: "Indus", Parties: []string{"India", "Pakistan"}, Intensity: "Growing tensions", Issue: "Indus Waters Treaty"},
	{Basin: "Tigris-Euphrates", Parties: []string{"Turkey", "Syria", "Iraq"}, Intensity: "Latent conflict", Issue: "Upstream dam construction"},
}

var riverBasinTable = []riverBasin{
	{Name: "Danube", Countries: 19, AreaKM2: 801_463, Agreement: "Danube River Protection Convention"},
	{Name: "Nile", Countries: 11, AreaKM2: 3_254_555, Agreement: "Nile Basin Initiative"},
	{Name: "Mekong", Countries: 6, AreaKM2: 795_000, Agreement: "Mekong Agreement 1995"},
	{Name: "Amazon", Countries: 8, AreaKM2: 6_100_000, Agreement: "Amazon Cooperation Treaty"},
}

// WaterSecurity reports water stress, water conflicts and shared basins.
type WaterSecurity struct{}

func NewWaterSecurity(*plugin.Settings, map[string]interface{}) (plugin.Plugin, error) {
	return &WaterSecurity{}, nil
}

func (w *WaterSecurity) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		ID:           "water-security",
		Name:         "Water Security",
		Version:      "1.0.0",
		Description:  "Water stress, water conflicts and transboundary basins",
		Capabilities: []string{"water_stress", "water_conflicts", "transboundary_basins"},
	}
}

func (w *WaterSecurity) Execute(_ context.Context, payload plugin.Payload) (*plugin.Output, error) {
	focus := strings.ToLower(payload.String("risk_type", "all"))
	switch focus {
	case "all", "stress", "conflict", "basin":
	default:
		return nil, fmt.Errorf("unknown risk type %q", focus)
	}

	data := []plugin.Record{}
	if focus == "all" || focus == "stress" {
		for _, s := range lo.Slice(waterStressTable, 0, 6) {
			data = append(data, plugin.Record{
				"type":       "Water stress",
				"country":    s.Country,
				"region":     s.Region,
				"stress":     s.Stress,
				"risk_level": s.RiskLevel,
				"population": s.Population,
			})
		}
	}
	if focus == "all" || focus == "conflict" {
		for _, c := range lo.Slice(waterConflictTable, 0, 5) {
			data = append(data, plugin.Record{
				"type":      "Water conflict",
				"basin":     c.Basin,
				"parties":   strings.Join(c.Parties, ", "),
				"intensity": c.Intensity,
				"issue":     c.Issue,
			})
		}
	}
	if focus == "all" || focus == "basin" {
		for _, b := range lo.Slice(riverBasinTable, 0, 4) {
			data = append(data, plugin.Record{
				"type":      "Transboundary basin",
				"basin":     b.Name,
				"countries": b.Countries,
				"area_km2":  b.AreaKM2,
				"agreement": b.Agreement,
			})
		}
	}

	highStress := lo.Filter(waterStressTable, func(s waterStress, _ int) bool {
		return s.RiskLevel == "High" || s.RiskLevel == "Very high"
	})
	active := lo.CountBy(waterConflictTable, func(c waterConflict) bool {
		i := strings.ToLower(c.Intensity)
		return strings.Contains(i, "tension") || strings.Contains(i, "conflict")
	})
	population := lo.SumBy(highStress, func(s waterStress) int64 { return s.Population })

	return &plugin.Output{
		Message: fmt.Sprintf("%d high stress countries, %d active water conflicts", len(highStress), active),
		Data:    data,
		Metrics: plugin.Metrics{
			"high_stress_countries":  len(highStress),
			"active_water_conflicts": active,
			"transboundary_basins":   len(riverBasinTable),
			"affected_population":    humanize.Comma(population),
			"conflict_risk":          conflictRisk(len(highStress)+active, len(waterStressTable)+len(waterConflictTable)),
		},
	}, nil
}

func conflictRisk(hits, total int) string {
	if total == 0 {
		return "Low"
	}
	score := float64(hits) / float64(total)
	switch {
	case score > 0.6:
		return "Very high"
	case score > 0.4:
		return "High"
	case score > 0.2:
		return "Moderate"
	default:
		return "Low"
	}
}
