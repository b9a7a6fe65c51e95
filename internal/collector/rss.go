package collector

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

// UntitledTitle replaces missing entry titles.
const UntitledTitle = "無標題"

var errUnknownFeedFormat = errors.New("unknown feed format")

// dateLayouts are the timestamp formats seen in the wild, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 Z",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// RSSConfig configures the feed collector.
type RSSConfig struct {
	HTTPClient *http.Client
	Now        func() time.Time
	Feeds      []models.Feed
	Lookback   time.Duration
}

// RSS collects recent entries from RSS 2.0 and Atom feeds.
type RSS struct {
	client   *http.Client
	now      func() time.Time
	policy   *bluemonday.Policy
	feeds    []models.Feed
	lookback time.Duration
}

// NewRSS creates a feed collector.
func NewRSS(cfg RSSConfig) *RSS {
	r := &RSS{
		client:   defaultClient(cfg.HTTPClient),
		now:      cfg.Now,
		policy:   bluemonday.StrictPolicy(),
		feeds:    cfg.Feeds,
		lookback: cfg.Lookback,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.lookback <= 0 {
		r.lookback = DefaultLookback
	}
	return r
}

// Name implements Collector.
func (r *RSS) Name() string { return "RSS Feeds" }

// Collect implements Collector. A failing feed is logged and skipped.
func (r *RSS) Collect(ctx context.Context) ([]models.Article, error) {
	cutoff := r.now().Add(-r.lookback)
	articles := make([]models.Article, 0)

	for _, feed := range r.feeds {
		if err := ctx.Err(); err != nil {
			return articles, err
		}

		body, err := fetch(ctx, r.client, feed.URL)
		if err != nil {
			log.Warn().Err(err).Str("feed", feed.Name).Msg("Failed to fetch feed")
			continue
		}
		entries, err := parseFeed(body)
		if err != nil {
			log.Warn().Err(err).Str("feed", feed.Name).Msg("Failed to parse feed")
			continue
		}

		kept := 0
		for _, e := range entries {
			if e.published.IsZero() || e.published.Before(cutoff) {
				continue
			}
			title := strings.TrimSpace(e.title)
			if title == "" {
				title = UntitledTitle
			}
			articles = append(articles, models.Article{
				Title:          title,
				URL:            strings.TrimSpace(e.link),
				Source:         feed.Name,
				PublishedAt:    e.published,
				ContentSnippet: truncateRunes(r.plainText(e.summary), MaxSnippetRunes),
				SimilarSources: []string{},
			})
			kept++
		}
		log.Debug().Str("feed", feed.Name).Int("entries", len(entries)).Int("kept", kept).Msg("Feed parsed")
	}

	return articles, nil
}

// plainText strips markup from a feed summary and decodes entities.
func (r *RSS) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(r.policy.Sanitize(s)))
}

type feedEntry struct {
	published time.Time
	title     string
	link      string
	summary   string
}

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			Content     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
			PubDate     string `xml:"pubDate"`
			DCDate      string `xml:"http://purl.org/dc/elements/1.1/ date"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDocument struct {
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary   string `xml:"summary"`
		Content   string `xml:"content"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

// parseFeed decodes an RSS 2.0 or Atom document into entries.
func parseFeed(body []byte) ([]feedEntry, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, err
	}

	switch root {
	case "rss", "RDF":
		var doc rssDocument
		if err := decodeXML(body, &doc); err != nil {
			return nil, fmt.Errorf("decode rss: %w", err)
		}
		entries := make([]feedEntry, 0, len(doc.Channel.Items))
		for _, it := range doc.Channel.Items {
			summary := it.Description
			if summary == "" {
				summary = it.Content
			}
			entries = append(entries, feedEntry{
				title:     it.Title,
				link:      it.Link,
				summary:   summary,
				published: firstDate(it.PubDate, it.DCDate),
			})
		}
		return entries, nil

	case "feed":
		var doc atomDocument
		if err := decodeXML(body, &doc); err != nil {
			return nil, fmt.Errorf("decode atom: %w", err)
		}
		entries := make([]feedEntry, 0, len(doc.Entries))
		for _, en := range doc.Entries {
			summary := en.Summary
			if summary == "" {
				summary = en.Content
			}
			entries = append(entries, feedEntry{
				title:     en.Title,
				link:      atomLink(en.Links),
				summary:   summary,
				published: firstDate(en.Published, en.Updated),
			})
		}
		return entries, nil
	}

	return nil, fmt.Errorf("%w: <%s>", errUnknownFeedFormat, root)
}

func newDecoder(body []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false
	d.CharsetReader = charset.NewReaderLabel
	d.Entity = xml.HTMLEntity
	return d
}

func decodeXML(body []byte, v any) error {
	return newDecoder(body).Decode(v)
}

func rootElement(body []byte) (string, error) {
	d := newDecoder(body)
	for {
		tok, err := d.Token()
		if err != nil {
			return "", fmt.Errorf("read root element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func atomLink(links []struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

// firstDate returns the first value that parses, in UTC.
func firstDate(values ...string) time.Time {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
