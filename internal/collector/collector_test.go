package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// --- Hacker News ---

func newHNServer(t *testing.T, items map[int]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1, 2, 3, 4, 5, 6]`))
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/item/"), "%d.json", &id)
		body, ok := items[id]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHackerNews_Collect(t *testing.T) {
	recent := fixedNow.Add(-2 * time.Hour).Unix()
	stale := fixedNow.Add(-48 * time.Hour).Unix()

	srv := newHNServer(t, map[int]string{
		1: fmt.Sprintf(`{"id":1,"type":"story","title":"Acme raised $20M Series A","url":"https://acme.dev","time":%d}`, recent),
		2: fmt.Sprintf(`{"id":2,"type":"story","title":"Show HN: a tiny compiler","text":"<p>Built this over a weekend</p>","time":%d}`, recent),
		3: fmt.Sprintf(`{"id":3,"type":"story","title":"Startup funding round closes","time":%d}`, stale),
		4: fmt.Sprintf(`{"id":4,"type":"comment","title":"launch","time":%d}`, recent),
		5: fmt.Sprintf(`{"id":5,"type":"story","title":"Why I love Rust","time":%d}`, recent),
		// 6 is missing and fails with 404.
	})

	hn := NewHackerNews(HackerNewsConfig{BaseURL: srv.URL, Now: clock})
	articles, err := hn.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "Acme raised $20M Series A", articles[0].Title)
	assert.Equal(t, "https://acme.dev", articles[0].URL)
	assert.Equal(t, HackerNewsSource, articles[0].Source)
	assert.Equal(t, "Acme raised $20M Series A", articles[0].ContentSnippet, "snippet falls back to title")
	assert.Equal(t, time.Unix(recent, 0).UTC(), articles[0].PublishedAt)

	assert.Equal(t, "https://news.ycombinator.com/item?id=2", articles[1].URL)
	assert.Equal(t, "<p>Built this over a weekend</p>", articles[1].ContentSnippet)
}

func TestHackerNews_MaxScan(t *testing.T) {
	recent := fixedNow.Add(-time.Hour).Unix()
	items := map[int]string{}
	for i := 1; i <= 6; i++ {
		items[i] = fmt.Sprintf(`{"id":%d,"type":"story","title":"Launch number %d","time":%d}`, i, i, recent)
	}
	srv := newHNServer(t, items)

	hn := NewHackerNews(HackerNewsConfig{BaseURL: srv.URL, Now: clock, MaxScan: 3})
	articles, err := hn.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, articles, 3)
}

func TestHackerNews_ListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHackerNews(HackerNewsConfig{BaseURL: srv.URL, Now: clock}).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestBusinessKeywords(t *testing.T) {
	tests := []struct {
		title string
		match bool
	}{
		{"Show HN: my side project", true},
		{"Show-HN: punctuation variant", true},
		{"OpenAI acquired a robotics lab", true},
		{"New pricing for GPT", true},
		{"Y Combinator W24 demo day", true},
		{"LAUNCH day", true},
		{"Relaunched the blog", false},
		{"Fundings are up", false},
		{"Why I love Rust", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.match, businessKeywords.MatchString(tt.title))
		})
	}
}

// --- RSS / Atom ---

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example</title>
  <item>
    <title>Model launch &amp; pricing</title>
    <link>https://example.com/a</link>
    <description><![CDATA[<p>New <b>model</b> ships &amp; costs less</p>]]></description>
    <pubDate>Thu, 02 May 2024 09:00:00 +0000</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://example.com/b</link>
    <content:encoded><![CDATA[<div>Body only in content</div>]]></content:encoded>
    <pubDate>Thu, 2 May 2024 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Old news</title>
    <link>https://example.com/old</link>
    <pubDate>Mon, 29 Apr 2024 09:00:00 +0000</pubDate>
  </item>
  <item>
    <title>No date</title>
    <link>https://example.com/nodate</link>
  </item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <entry>
    <title>Atom entry</title>
    <link rel="alternate" href="https://atom.example.com/1"/>
    <link rel="self" href="https://atom.example.com/1.xml"/>
    <summary type="html">&lt;p&gt;Summary text&lt;/p&gt;</summary>
    <updated>2024-05-02T10:00:00Z</updated>
  </entry>
  <entry>
    <title>Stale atom entry</title>
    <link href="https://atom.example.com/2"/>
    <published>2024-04-01T10:00:00Z</published>
  </entry>
</feed>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	})
	mux.HandleFunc("/atom", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atomFixture))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>not a feed</body></html>`))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRSS_Collect(t *testing.T) {
	srv := newFeedServer(t)

	r := NewRSS(RSSConfig{
		Now: clock,
		Feeds: []models.Feed{
			{Name: "Down Feed", URL: srv.URL + "/down"},
			{Name: "Example RSS", URL: srv.URL + "/rss"},
			{Name: "Broken", URL: srv.URL + "/broken"},
			{Name: "Example Atom", URL: srv.URL + "/atom"},
		},
	})

	articles, err := r.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 3)

	assert.Equal(t, "Model launch & pricing", articles[0].Title)
	assert.Equal(t, "https://example.com/a", articles[0].URL)
	assert.Equal(t, "New model ships & costs less", articles[0].ContentSnippet)
	assert.Equal(t, "Example RSS", articles[0].Source)
	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), articles[0].PublishedAt)

	assert.Equal(t, UntitledTitle, articles[1].Title)
	assert.Equal(t, "Body only in content", articles[1].ContentSnippet)

	assert.Equal(t, "Atom entry", articles[2].Title)
	assert.Equal(t, "https://atom.example.com/1", articles[2].URL)
	assert.Equal(t, "Summary text", articles[2].ContentSnippet)
	assert.Equal(t, "Example Atom", articles[2].Source)
}

func TestParseFeed_UnknownFormat(t *testing.T) {
	_, err := parseFeed([]byte(`<html></html>`))
	assert.ErrorIs(t, err, errUnknownFeedFormat)
}

func TestFirstDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), firstDate("", "2024-05-02T11:00:00+02:00"))
	assert.True(t, firstDate("yesterday").IsZero())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "新聞", truncateRunes("新聞標題", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Len(t, []rune(truncateRunes(strings.Repeat("字", 600), MaxSnippetRunes)), MaxSnippetRunes)
}

// --- Gather ---

type fakeCollector struct {
	err      error
	name     string
	articles []models.Article
	delay    time.Duration
}

func (f fakeCollector) Name() string { return f.name }

func (f fakeCollector) Collect(ctx context.Context) ([]models.Article, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.articles, f.err
}

func TestGather(t *testing.T) {
	slow := fakeCollector{
		name:     "slow",
		delay:    20 * time.Millisecond,
		articles: []models.Article{{Title: "first"}},
	}
	failing := fakeCollector{name: "failing", err: errors.New("boom")}
	fast := fakeCollector{name: "fast", articles: []models.Article{{Title: "second"}, {Title: "third"}}}

	articles, results := Gather(context.Background(), slow, failing, fast)

	require.Len(t, articles, 3)
	assert.Equal(t, "first", articles[0].Title, "collector order is preserved")
	assert.Equal(t, "second", articles[1].Title)

	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Articles)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "fast", results[2].Name)
}
