package analysis

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

const maxKeywords = 10

type theme struct {
	Name     string
	Keywords []string
}

// Declaration order breaks ties between equally scored themes.
var themes = []theme{
	{Name: "geopolitique", Keywords: []string{"guerre", "conflit", "diplomatie", "sanction", "alliance", "tension"}},
	{Name: "economie", Keywords: []string{"inflation", "croissance", "commerce", "dette", "marché", "économie"}},
	{Name: "social", Keywords: []string{"manifestation", "grève", "réforme", "social", "protestation"}},
	{Name: "environnement", Keywords: []string{"climat", "pollution", "énergie", "écologie", "carbone"}},
	{Name: "technologie", Keywords: []string{"intelligence", "numérique", "cyber", "innovation", "tech"}},
}

var (
	positiveWords = []string{"succès", "accord", "paix", "coopération", "progrès", "victoire"}
	negativeWords = []string{"crise", "conflit", "guerre", "tension", "échec", "problème"}
	riskWords     = []string{"crise", "conflit", "guerre", "sanction", "tension"}
)

type Sentiment struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

type Analysis struct {
	Theme          string    `json:"theme"`
	Sentiment      Sentiment `json:"sentiment"`
	RiskLevel      string    `json:"risk_level"`
	Keywords       []string  `json:"keywords"`
	WordCount      int       `json:"word_count"`
	CharacterCount int       `json:"character_count"`
}

// AnalyzeText scores text against the keyword tables. Matching is by
// case-insensitive substring, so "tensions" counts for "tension".
func AnalyzeText(text string) Analysis {
	lower := strings.ToLower(text)

	mainTheme, best := "general", 0
	found := []string{}
	for _, th := range themes {
		hits := matches(lower, th.Keywords)
		if len(hits) > best {
			mainTheme, best = th.Name, len(hits)
		}
		found = append(found, hits...)
	}

	keywords := lo.Uniq(found)
	sort.Strings(keywords)
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}

	return Analysis{
		Theme:          mainTheme,
		Sentiment:      sentiment(lower),
		RiskLevel:      riskLevel(len(matches(lower, riskWords))),
		Keywords:       keywords,
		WordCount:      len(strings.Fields(text)),
		CharacterCount: utf8.RuneCountInString(text),
	}
}

func sentiment(lower string) Sentiment {
	pos := len(matches(lower, positiveWords))
	neg := len(matches(lower, negativeWords))
	switch {
	case pos > neg:
		return Sentiment{Label: "positif", Score: min(50+pos*10, 90)}
	case neg > pos:
		return Sentiment{Label: "négatif", Score: max(50-neg*10, 10)}
	default:
		return Sentiment{Label: "neutre", Score: 50}
	}
}

func riskLevel(hits int) string {
	switch {
	case hits >= 3:
		return "high"
	case hits >= 1:
		return "medium"
	default:
		return "low"
	}
}

func matches(lower string, words []string) []string {
	return lo.Filter(words, func(w string, _ int) bool { return strings.Contains(lower, w) })
}
