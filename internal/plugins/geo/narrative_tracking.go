package geo

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/ipsix/geopolis/internal/plugin"
)

type narrative struct {
	Source         string
	Title          string
	Intensity      int
	Polarity       string
	Actors         []string
	Keywords       []string
	Trend          string
	Impact         string
	Recommendation string
}

// Only France has tracked narratives; other countries report empty tables.
var narrativeTables = map[string][]narrative{
	"France": {
		{Source: "Traditional media", Title: "Cost of living crisis", Intensity: 85, Polarity: "Negative",
			Actors:   []string{"Government", "Opposition", "Consumer groups"},
			Keywords: []string{"inflation", "purchasing power", "energy prices", "household budget"},
			Trend:    "Stable, high intensity", Impact: "Economic anxiety, social mobilisation",
			Recommendation: "Monitor economic indicators and public sentiment"},
		{Source: "Traditional media", Title: "Ecological transition and its constraints", Intensity: 70, Polarity: "Mixed",
			Actors:   []string{"Environmentalists", "Industry", "Government", "Citizens"},
			Keywords: []string{"ecology", "constraint", "transition", "sobriety", "innovation"},
			Trend:    "Moderate growth", Impact: "Public debate, acceptability friction",
			Recommendation: "Analyse perception of measures and local resistance"},
		{Source: "Social media", Title: "Technological and digital sovereignty", Intensity: 78, Polarity: "Positive",
			Actors:   []string{"Tech leaders", "Sovereigntists", "Cybersecurity experts"},
			Keywords: []string{"#DigitalSovereignty", "#FrenchTech", "#TechIndependence"},
			Trend:    "Fast", Impact: "Active communities, technical debate",
			Recommendation: "Promote initiatives and answer concerns"},
		{Source: "Social media", Title: "Generational divide and housing", Intensity: 65, Polarity: "Negative",
			Actors:   []string{"Young workers", "Urban planners", "Economists"},
			Keywords: []string{"#PrecariousGeneration", "#ExpensiveHousing", "#GenerationalDivide"},
			Trend:    "Steady", Impact: "Anger among young people, intergenerational debate",
			Recommendation: "Listen to concerns and propose concrete measures"},
		{Source: "Political discourse", Title: "European sovereignty and strategic autonomy", Intensity: 80, Polarity: "Centrist/cross-party",
			Actors:   []string{"President", "European Commission", "Governing parties"},
			Keywords: []string{"Independence", "Autonomy", "European cooperation", "Resilience"},
			Trend:    "High", Impact: "Industrial, defence and energy policy",
			Recommendation: "Tie to economic realities and involve social partners"},
		{Source: "Political discourse", Title: "Republican meritocracy versus egalitarianism", Intensity: 65, Polarity: "Left/right divide",
			Actors:   []string{"Opposition", "Intellectuals", "Traditional parties"},
			Keywords: []string{"Merit", "Equality", "Social justice", "Republic"},
			Trend:    "Stable", Impact: "Education, taxation and public services",
			Recommendation: "Look for common ground and avoid excessive polarisation"},
	},
}

var (
	sourceLimits = map[string]int{"Traditional media": 5, "Social media": 4, "Political discourse": 3}

	polarityScores = map[string]float64{"Positive": 1, "Mixed": 2, "Negative": 3}

	highImpactWords = []string{"anxiety", "anger", "tension", "fracture", "crisis"}
)

// NarrativeTracking follows dominant societal narratives across media,
// social networks and political discourse.
type NarrativeTracking struct{}

func NewNarrativeTracking(*plugin.Settings, map[string]interface{}) (plugin.Plugin, error) {
	return &NarrativeTracking{}, nil
}

func (n *NarrativeTracking) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		ID:           "narrative-tracking",
		Name:         "Narrative Tracking",
		Version:      "1.0.0",
		Description:  "Dominant societal narratives in media, social networks and political discourse",
		Capabilities: []string{"narrative_analysis", "social_media", "political_discourse", "emerging_narratives"},
	}
}

func (n *NarrativeTracking) Execute(_ context.Context, payload plugin.Payload) (*plugin.Output, error) {
	country := payload.String("country", "France")
	timeframe := payload.String("timeframe", "7d")

	tracked := narrativeTables[country]
	kept := []narrative{}
	seen := map[string]int{}
	for _, nr := range tracked {
		if seen[nr.Source] < sourceLimits[nr.Source] {
			kept = append(kept, nr)
		}
		seen[nr.Source]++
	}

	data := lo.Map(kept, func(nr narrative, _ int) plugin.Record {
		return plugin.Record{
			"narrative":       nr.Title,
			"source_type":     nr.Source,
			"intensity":       nr.Intensity,
			"polarity":        nr.Polarity,
			"key_actors":      strings.Join(nr.Actors, ", "),
			"keywords":        strings.Join(lo.Slice(nr.Keywords, 0, 5), ", "),
			"trend":           nr.Trend,
			"societal_impact": nr.Impact,
			"recommendation":  nr.Recommendation,
		}
	})

	emerging := emergingKeywords(tracked)
	metrics := plugin.Metrics{
		"country":              country,
		"timeframe":            timeframe,
		"dominant_narratives":  len(tracked),
		"emerging_narratives":  0,
		"average_polarization": averagePolarization(kept),
		"diffusion_speed":      diffusionSpeed(tracked),
		"societal_impact":      societalImpact(kept),
	}
	if len(emerging) > 0 {
		metrics["emerging_narratives"] = 1
		metrics["emerging_signal"] = "Emerging: " + strings.Join(lo.Slice(emerging, 0, 3), ", ")
	}

	return &plugin.Output{
		Message: fmt.Sprintf("%d narratives tracked for %s", len(kept), country),
		Data:    data,
		Metrics: metrics,
	}, nil
}

// emergingKeywords returns keywords seen exactly once, in first-seen order.
func emergingKeywords(tracked []narrative) []string {
	all := lo.FlatMap(tracked, func(nr narrative, _ int) []string { return nr.Keywords })
	counts := lo.CountValues(all)
	return lo.Filter(lo.Uniq(all), func(k string, _ int) bool { return counts[k] == 1 })
}

func averagePolarization(kept []narrative) float64 {
	if len(kept) == 0 {
		return 0
	}
	total := lo.SumBy(kept, func(nr narrative) float64 {
		if score, ok := polarityScores[nr.Polarity]; ok {
			return score
		}
		return 2
	})
	return round1(total / float64(len(kept)))
}

func diffusionSpeed(tracked []narrative) string {
	social := lo.Filter(tracked, func(nr narrative, _ int) bool { return nr.Source == "Social media" })
	if len(social) == 0 {
		return "Slow"
	}
	avg := float64(lo.SumBy(social, func(nr narrative) int { return nr.Intensity })) / float64(len(social))
	switch {
	case avg > 70:
		return "Very fast"
	case avg > 50:
		return "Fast"
	case avg > 30:
		return "Moderate"
	default:
		return "Slow"
	}
}

func societalImpact(kept []narrative) string {
	if len(kept) == 0 {
		return "Unknown"
	}
	high := lo.CountBy(kept, func(nr narrative) bool {
		impact := strings.ToLower(nr.Impact)
		return lo.SomeBy(highImpactWords, func(w string) bool { return strings.Contains(impact, w) })
	})
	ratio := float64(high) / float64(len(kept))
	switch {
	case ratio > 0.6:
		return "High"
	case ratio > 0.3:
		return "Moderate"
	default:
		return "Low"
	}
}
