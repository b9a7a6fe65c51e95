package collector

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

const (
	HackerNewsSource     = "Hacker News"
	HackerNewsAPIBaseURL = "https://hacker-news.firebaseio.com/v0"
	HackerNewsItemURL    = "https://news.ycombinator.com/item?id=%d"
	DefaultMaxScan       = 120
)

// businessKeywords selects stories about launches, funding and deals.
var businessKeywords = regexp.MustCompile(
	`(?i)\b(launch|show.hn|funding|startup|revenue|acquisition|series.a|raised|pricing|acquired|y.combinator)\b`,
)

// HackerNewsConfig configures the Hacker News collector.
type HackerNewsConfig struct {
	HTTPClient *http.Client
	Now        func() time.Time
	BaseURL    string
	MaxScan    int
	Lookback   time.Duration
}

// HackerNews collects recent business stories from the top stories list.
type HackerNews struct {
	client   *http.Client
	now      func() time.Time
	baseURL  string
	maxScan  int
	lookback time.Duration
}

type hnItem struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
	ID    int64  `json:"id"`
	Time  int64  `json:"time"`
}

// NewHackerNews creates a Hacker News collector.
func NewHackerNews(cfg HackerNewsConfig) *HackerNews {
	h := &HackerNews{
		client:   defaultClient(cfg.HTTPClient),
		now:      cfg.Now,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxScan:  cfg.MaxScan,
		lookback: cfg.Lookback,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.baseURL == "" {
		h.baseURL = HackerNewsAPIBaseURL
	}
	if h.maxScan <= 0 {
		h.maxScan = DefaultMaxScan
	}
	if h.lookback <= 0 {
		h.lookback = DefaultLookback
	}
	return h
}

// Name implements Collector.
func (h *HackerNews) Name() string { return HackerNewsSource }

// Collect implements Collector. Failing item lookups are skipped; only a
// failure to list top stories is returned.
func (h *HackerNews) Collect(ctx context.Context) ([]models.Article, error) {
	cutoff := h.now().Add(-h.lookback)

	body, err := fetch(ctx, h.client, h.baseURL+"/topstories.json")
	if err != nil {
		return nil, fmt.Errorf("list top stories: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decode top stories: %w", err)
	}
	if len(ids) > h.maxScan {
		ids = ids[:h.maxScan]
	}

	articles := make([]models.Article, 0)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return articles, err
		}

		item, err := h.item(ctx, id)
		if err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("Skipping Hacker News item")
			continue
		}
		if item == nil || item.Type != "story" {
			continue
		}

		published := time.Unix(item.Time, 0).UTC()
		if published.Before(cutoff) {
			continue
		}
		if !businessKeywords.MatchString(item.Title) {
			continue
		}

		url := item.URL
		if url == "" {
			url = fmt.Sprintf(HackerNewsItemURL, id)
		}
		snippet := item.Text
		if snippet == "" {
			snippet = item.Title
		}

		articles = append(articles, models.Article{
			Title:          item.Title,
			URL:            url,
			Source:         HackerNewsSource,
			PublishedAt:    published,
			ContentSnippet: truncateRunes(snippet, MaxSnippetRunes),
			SimilarSources: []string{},
		})
	}

	return articles, nil
}

func (h *HackerNews) item(ctx context.Context, id int64) (*hnItem, error) {
	body, err := fetch(ctx, h.client, fmt.Sprintf("%s/item/%d.json", h.baseURL, id))
	if err != nil {
		return nil, err
	}
	var item *hnItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode item %d: %w", id, err)
	}
	return item, nil
}
