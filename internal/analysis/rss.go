package analysis

import (
	"context"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/mmcdole/gofeed"

	"github.com/ipsix/geopolis/internal/logging"
)

const DefaultMaxItems = 20

type Article struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Published   string `json:"published"`
	Source      string `json:"source"`
}

type Reader struct {
	parser   *gofeed.Parser
	maxItems int
	logger   *logging.Logger
}

func NewReader(timeout time.Duration, maxItems int, logger *logging.Logger) *Reader {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "geopolis/3.0"
	return &Reader{parser: parser, maxItems: maxItems, logger: logger}
}

// Fetch downloads and parses an RSS or Atom feed. Failures are logged and
// yield an empty list.
func (r *Reader) Fetch(ctx context.Context, url string) []Article {
	feed, err := r.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		r.logger.Warn("rss fetch failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err},
		)
		return []Article{}
	}

	source := feed.Title
	if source == "" {
		source = "Unknown source"
	}
	articles := []Article{}
	for _, item := range feed.Items {
		if len(articles) == r.maxItems {
			break
		}
		title := item.Title
		if title == "" {
			title = "Untitled"
		}
		description := item.Description
		if description == "" {
			description = item.Content
		}
		articles = append(articles, Article{
			Title:       title,
			Link:        item.Link,
			Description: description,
			Published:   item.Published,
			Source:      source,
		})
	}
	r.logger.Info("rss feed parsed",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "articles", Value: len(articles)},
	)
	return articles
}
