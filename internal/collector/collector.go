// Package collector fetches recent articles from external news sources.
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

const (
	// DefaultRequestTimeout bounds every outbound request.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultLookback is how far back articles are collected.
	DefaultLookback = 24 * time.Hour

	// MaxSnippetRunes caps content snippets.
	MaxSnippetRunes = 500

	userAgent = "daily-ai-news/1.0"
)

// Collector gathers articles from one source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]models.Article, error)
}

// Result is the outcome of one collector within Gather.
type Result struct {
	Err      error
	Name     string
	Articles int
}

// Gather runs every collector concurrently and concatenates their articles in
// collector order. A failing collector is logged and contributes nothing.
func Gather(ctx context.Context, collectors ...Collector) ([]models.Article, []Result) {
	batches := make([][]models.Article, len(collectors))
	results := make([]Result, len(collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range collectors {
		g.Go(func() error {
			start := time.Now()
			articles, err := c.Collect(gctx)
			results[i] = Result{Name: c.Name(), Articles: len(articles), Err: err}
			if err != nil {
				log.Warn().Err(err).Str("source", c.Name()).Msg("Collector failed")
				return nil
			}
			batches[i] = articles
			log.Info().
				Str("source", c.Name()).
				Int("articles", len(articles)).
				Dur("took", time.Since(start)).
				Msg("Collector finished")
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	all := make([]models.Article, 0, total)
	for _, b := range batches {
		all = append(all, b...)
	}
	return all, results
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// fetch issues a GET and returns the response body, failing on non-2xx.
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultRequestTimeout}
}
