// Package dedup collapses near-duplicate articles into representative events.
//
// A Filter normalizes each article, drops degenerate ones, embeds the
// survivors in one batch and clusters them greedily in input order. Each
// cluster is reported once, through its first-seen member, which carries the
// sources of the duplicates it absorbed.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/cj4yoyo1228/daily-ai-news/internal/textnorm"
	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
	"github.com/cj4yoyo1228/daily-ai-news/pkg/similarity"
)

const (
	// DefaultThreshold is the cosine similarity an item must exceed to join a cluster.
	DefaultThreshold = similarity.DefaultThreshold

	// DefaultMinTextLength is the minimum rune count of "title snippet" after
	// normalization. Shorter articles are dropped.
	DefaultMinTextLength = 30
)

var (
	// ErrEmbedding is returned when the batch embedding call fails.
	ErrEmbedding = errors.New("dedup: embedding failed")

	// ErrInvalidThreshold is returned by New for thresholds outside [-1, 1].
	ErrInvalidThreshold = errors.New("dedup: threshold must be within [-1, 1]")
)

// Embedder maps texts to vectors, one per text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes the filter. The zero value is not valid; start from DefaultConfig.
type Config struct {
	Threshold     float64
	MinTextLength int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		MinTextLength: DefaultMinTextLength,
	}
}

// Report summarizes one Process call.
type Report struct {
	Input       int           `json:"input"`
	Dropped     int           `json:"dropped"`
	Survivors   int           `json:"survivors"`
	Clusters    int           `json:"clusters"`
	Merged      int           `json:"merged"`
	Comparisons int           `json:"comparisons"`
	Took        time.Duration `json:"took_ns"`
}

// Filter removes near-duplicate articles. It holds no per-call state and is
// safe for concurrent use when its Embedder is.
type Filter struct {
	embedder Embedder
	metrics  *filterMetrics
	cfg      Config
}

// New creates a Filter over the given embedder.
func New(embedder Embedder, cfg Config) (*Filter, error) {
	if embedder == nil {
		return nil, errors.New("dedup: embedder is required")
	}
	if cfg.Threshold < -1 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, cfg.Threshold)
	}
	if cfg.MinTextLength < 0 {
		cfg.MinTextLength = 0
	}

	return &Filter{
		embedder: embedder,
		cfg:      cfg,
		metrics:  newFilterMetrics(),
	}, nil
}

// Config returns the settings the filter runs with.
func (f *Filter) Config() Config {
	return f.cfg
}

// Process returns one article per cluster, in cluster creation order.
// The input slice and its articles are never modified.
func (f *Filter) Process(ctx context.Context, articles []models.Article) ([]models.Article, error) {
	out, _, err := f.ProcessDetailed(ctx, articles)
	return out, err
}

// ProcessDetailed is Process plus a Report of what happened.
func (f *Filter) ProcessDetailed(ctx context.Context, articles []models.Article) ([]models.Article, Report, error) {
	start := time.Now()
	report := Report{Input: len(articles)}

	if len(articles) == 0 {
		log.Info().Msg("Dedup skipped: no articles")
		return []models.Article{}, report, nil
	}

	survivors, texts := f.normalize(articles)
	report.Survivors = len(survivors)
	report.Dropped = len(articles) - len(survivors)

	if len(survivors) == 0 {
		report.Took = time.Since(start)
		f.metrics.record(ctx, report)
		log.Info().
			Int("input", report.Input).
			Int("min_length", f.cfg.MinTextLength).
			Msg("Dedup skipped: every article below minimum length")
		return []models.Article{}, report, nil
	}

	vectors, err := f.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, report, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, report, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}

	assignment := similarity.Cluster(vectors, f.cfg.Threshold)
	out := collapse(survivors, assignment)

	report.Clusters = len(out)
	report.Merged = report.Survivors - report.Clusters
	report.Comparisons = assignment.Comparisons
	report.Took = time.Since(start)
	f.metrics.record(ctx, report)

	log.Info().
		Int("input", report.Input).
		Int("dropped", report.Dropped).
		Int("clusters", report.Clusters).
		Int("merged", report.Merged).
		Dur("took", report.Took).
		Msg("Dedup complete")

	return out, report, nil
}

// normalize builds cleaned copies of the articles long enough to keep, along
// with the combined text each one is embedded by. Survivors start with no
// similar sources; only this run's merges fill them.
func (f *Filter) normalize(articles []models.Article) ([]models.Article, []string) {
	survivors := make([]models.Article, 0, len(articles))
	texts := make([]string, 0, len(articles))

	for i := range articles {
		title := textnorm.Normalize(articles[i].Title)
		snippet := textnorm.Normalize(articles[i].ContentSnippet)
		combined := title + " " + snippet

		if utf8.RuneCountInString(combined) < f.cfg.MinTextLength {
			log.Debug().
				Str("source", articles[i].Source).
				Str("title", title).
				Msg("Dropping article below minimum length")
			continue
		}

		survivor := articles[i].WithText(title, snippet)
		survivor.SimilarSources = []string{}
		survivors = append(survivors, survivor)
		texts = append(texts, combined)
	}

	return survivors, texts
}

// collapse folds every non-representative into its representative's sources.
func collapse(items []models.Article, a similarity.Assignment) []models.Article {
	slot := make(map[int]int, len(a.Representatives))
	out := make([]models.Article, len(a.Representatives))
	for i, rep := range a.Representatives {
		slot[rep] = i
		out[i] = items[rep]
	}

	for i, rep := range a.RepresentativeOf {
		if i == rep {
			continue
		}
		out[slot[rep]].AddSimilarSource(items[i].Source)
	}
	return out
}
