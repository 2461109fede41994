package geo

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/ipsix/geopolis/internal/plugin"
)

const (
	dependencyVeryHigh = "Very high"
	dependencyHigh     = "High"
	dependencyMedium   = "Medium"
)

type techItem struct {
	Technology  string
	Leader      string
	MarketShare string
	Dependency  string
	Initiatives []string
	Risks       string
	Outlook     string
}

type techDomain struct {
	Key   string
	Label string
	Limit int
	Items []techItem
}

var techDomains = []techDomain{
	{Key: "semiconductors", Label: "Semiconductors", Limit: 4, Items: []techItem{
		{Technology: "Advanced chips (<7nm)", Leader: "Taiwan", MarketShare: "TSMC: 54% worldwide", Dependency: dependencyVeryHigh,
			Initiatives: []string{"EU Chips Act", "US CHIPS Act", "Made in China 2025"},
			Risks:       "Production concentrated in Taiwan, geopolitical tension", Outlook: "Geographic diversification, new US and EU fabs"},
		{Technology: "Semiconductor manufacturing equipment", Leader: "Netherlands", MarketShare: "ASML: 100% of EUV lithography", Dependency: dependencyHigh,
			Initiatives: []string{"Alternative lithography research", "Local capability building"},
			Risks:       "Technology monopoly, export restrictions", Outlook: "Emerging competition, alternative techniques"},
		{Technology: "Semiconductor materials (wafers)", Leader: "Japan", MarketShare: "Shin-Etsu: 30% worldwide", Dependency: dependencyMedium,
			Initiatives: []string{"Silicon recycling", "New materials"},
			Risks:       "Raw material shortages, logistics", Outlook: "Stable with gradual diversification"},
	}},
	{Key: "ai", Label: "Artificial intelligence", Limit: 3, Items: []techItem{
		{Technology: "Foundation models (LLMs)", Leader: "USA", MarketShare: "OpenAI, Google, Anthropic: 70% of market", Dependency: dependencyHigh,
			Initiatives: []string{"EU AI Act", "National AI strategies", "Open source models"},
			Risks:       "US cloud dependency, intellectual property, algorithmic bias", Outlook: "More competition, regulation, sovereign models"},
		{Technology: "AI chips (GPU/TPU)", Leader: "USA", MarketShare: "Nvidia: 80% of AI training market", Dependency: dependencyVeryHigh,
			Initiatives: []string{"European chip development", "RISC-V alternatives", "Sovereign cloud"},
			Risks:       "Technology embargo, compute shortages", Outlook: "Supplier diversification, alternative architectures"},
		{Technology: "AI training data", Leader: "USA/China", MarketShare: "US and Chinese platforms dominate", Dependency: dependencyMedium,
			Initiatives: []string{"GDPR-like regulations", "Data sovereignty laws", "Federated learning"},
			Risks:       "Data quality, bias, regulatory compliance", Outlook: "Tighter regulation, data standards"},
	}},
	{Key: "quantum", Label: "Quantum technologies", Limit: 3, Items: []techItem{
		{Technology: "Quantum computing", Leader: "USA", MarketShare: "IBM, Google, IonQ: research leadership", Dependency: dependencyHigh,
			Initiatives: []string{"EU Quantum Flagship", "National quantum initiatives", "Quantum startups"},
			Risks:       "Technology race, cryptographic break, heavy investment required", Outlook: "Intense competition, niche applications first"},
		{Technology: "Post-quantum cryptography", Leader: "Multi-country (standardisation)", MarketShare: "NIST standardisation process", Dependency: dependencyMedium,
			Initiatives: []string{"Infrastructure migration", "Standardised algorithms", "Expert training"},
			Risks:       "Slow transition, exposure during migration", Outlook: "Gradual migration over 5-10 years"},
	}},
	{Key: "space", Label: "Space", Limit: 3, Items: []techItem{
		{Technology: "Launch vehicles", Leader: "USA", MarketShare: "SpaceX: 60% of commercial launches", Dependency: dependencyHigh,
			Initiatives: []string{"Ariane 6", "Vulcain Europe", "New national launch capabilities"},
			Risks:       "Dependency on US launchers, cost of access to space", Outlook: "More competition, new entrants"},
		{Technology: "Earth observation satellites", Leader: "Multi-country (USA, EU, China)", MarketShare: "Shared between space agencies", Dependency: dependencyMedium,
			Initiatives: []string{"Copernicus", "Sovereign constellations", "Open data"},
			Risks:       "Dependency on foreign data, information security", Outlook: "Growing constellations, strategic data"},
		{Technology: "GPS/Galileo navigation", Leader: "USA (GPS), EU (Galileo)", MarketShare: "GPS: 80% of worldwide use", Dependency: dependencyMedium,
			Initiatives: []string{"Galileo operational", "Other systems (GLONASS, BeiDou)"},
			Risks:       "Jamming, spoofing, dependency on foreign systems", Outlook: "Multi-constellation, more resilience"},
	}},
}

// TechSovereignty tracks strategic technology dependencies by domain.
type TechSovereignty struct{}

func NewTechSovereignty(*plugin.Settings, map[string]interface{}) (plugin.Plugin, error) {
	return &TechSovereignty{}, nil
}

func (t *TechSovereignty) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		ID:           "tech-sovereignty",
		Name:         "Tech Sovereignty",
		Version:      "1.0.0",
		Description:  "Semiconductors, AI, quantum and space: leaders and strategic dependencies",
		Capabilities: []string{"tech_sovereignty", "dependency_analysis", "strategic_tech_watch"},
	}
}

func (t *TechSovereignty) Execute(_ context.Context, payload plugin.Payload) (*plugin.Output, error) {
	focus := strings.ToLower(payload.String("tech_domain", "all"))
	if focus != "all" && !lo.ContainsBy(techDomains, func(d techDomain) bool { return d.Key == focus }) {
		return nil, fmt.Errorf("unknown tech domain %q", focus)
	}

	data := []plugin.Record{}
	for _, domain := range techDomains {
		if focus != "all" && focus != domain.Key {
			continue
		}
		for _, item := range lo.Slice(domain.Items, 0, domain.Limit) {
			data = append(data, plugin.Record{
				"technology":         item.Technology,
				"domain":             domain.Label,
				"leading_country":    item.Leader,
				"market_share":       item.MarketShare,
				"dependency_level":   item.Dependency,
				"sovereignty_effort": strings.Join(item.Initiatives, ", "),
				"key_risks":          item.Risks,
				"five_year_outlook":  item.Outlook,
			})
		}
	}

	all := lo.FlatMap(techDomains, func(d techDomain, _ int) []techItem { return d.Items })
	return &plugin.Output{
		Message: fmt.Sprintf("tech sovereignty analysed for %d technologies", len(data)),
		Data:    data,
		Metrics: plugin.Metrics{
			"tracked_technologies":   len(all),
			"very_high_dependencies": lo.CountBy(all, func(i techItem) bool { return i.Dependency == dependencyVeryHigh }),
			"leading_countries":      len(lo.Uniq(lo.Map(all, func(i techItem, _ int) string { return i.Leader }))),
			"active_initiatives":     lo.SumBy(all, func(i techItem) int { return len(i.Initiatives) }),
			"geopolitical_risk":      dependencyRisk(all),
		},
	}, nil
}

func dependencyRisk(items []techItem) string {
	if len(items) == 0 {
		return "Unknown"
	}
	high := lo.CountBy(items, func(i techItem) bool {
		return i.Dependency == dependencyVeryHigh || i.Dependency == dependencyHigh
	})
	ratio := float64(high) / float64(len(items))
	switch {
	case ratio >= 0.7:
		return "Very high"
	case ratio >= 0.5:
		return "High"
	case ratio >= 0.3:
		return "Moderate"
	default:
		return "Low"
	}
}
