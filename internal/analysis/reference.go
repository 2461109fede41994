package analysis

type Source struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// Keywords returns the published keyword table per theme.
func Keywords() map[string][]string {
	return map[string][]string{
		"geopolitique":  {"conflit", "diplomatie", "sanction", "alliance"},
		"economie":      {"inflation", "croissance", "commerce", "dette"},
		"social":        {"manifestation", "grève", "réforme", "social"},
		"environnement": {"climat", "pollution", "énergie", "écologie"},
		"technologie":   {"intelligence", "numérique", "cyber", "innovation"},
	}
}

// Sources returns the default RSS feeds.
func Sources() []Source {
	return []Source{
		{Name: "Le Monde - International", URL: "https://www.lemonde.fr/international/rss_full.xml", Category: "geopolitique"},
		{Name: "Le Figaro - Économie", URL: "https://www.lefigaro.fr/rss/figaro_economie.xml", Category: "economie"},
		{Name: "Les Échos", URL: "https://www.lesechos.fr/rss.xml", Category: "economie"},
	}
}
