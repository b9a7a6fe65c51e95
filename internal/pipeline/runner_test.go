package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cj4yoyo1228/daily-ai-news/internal/collector"
	"github.com/cj4yoyo1228/daily-ai-news/internal/db/sqlite"
	"github.com/cj4yoyo1228/daily-ai-news/internal/dedup"
	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

type stubCollector struct {
	err      error
	name     string
	articles []models.Article
}

func (c stubCollector) Name() string { return c.name }
func (c stubCollector) Collect(context.Context) ([]models.Article, error) {
	return c.articles, c.err
}

// passthroughDedup keeps every article and reports each as its own cluster.
type passthroughDedup struct {
	err error
}

func (d passthroughDedup) ProcessDetailed(_ context.Context, articles []models.Article) ([]models.Article, dedup.Report, error) {
	if d.err != nil {
		return nil, dedup.Report{}, d.err
	}
	out := make([]models.Article, len(articles))
	for i, a := range articles {
		out[i] = a.Clone()
	}
	return out, dedup.Report{Input: len(articles), Survivors: len(articles), Clusters: len(articles)}, nil
}

// titleScorer scores by a fixed table keyed on title; unknown titles fail.
type titleScorer map[string]int

func (s titleScorer) Evaluate(_ context.Context, articles []models.Article) []models.ScoredArticle {
	var out []models.ScoredArticle
	for _, a := range articles {
		score, ok := s[a.Title]
		if !ok {
			continue
		}
		out = append(out, models.ScoredArticle{
			Article: a,
			Evaluation: models.Evaluation{
				TotalScore:  score,
				IsQualified: score >= models.QualifyingScore,
				Reasoning:   "reason for " + a.Title,
			},
		})
	}
	// Best first, matching the real evaluator.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Evaluation.TotalScore > out[j-1].Evaluation.TotalScore; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

type recordingBroadcaster struct {
	err      error
	messages []string
	mu       sync.Mutex
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	return b.err
}

func article(title, source string) models.Article {
	return models.Article{
		Title:          title,
		URL:            "https://example.com/" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		Source:         source,
		ContentSnippet: "snippet for " + title,
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.Deduplicator == nil {
		cfg.Deduplicator = passthroughDedup{}
	}
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = &recordingBroadcaster{}
	}
	cfg.Now = fixedNow
	r, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Scorer: titleScorer{}, Broadcaster: &recordingBroadcaster{}}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Deduplicator: passthroughDedup{}, Broadcaster: &recordingBroadcaster{}}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Deduplicator: passthroughDedup{}, Scorer: titleScorer{}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRun_QualifiedBriefing(t *testing.T) {
	b := &recordingBroadcaster{}
	r := newRunner(t, Config{
		Collectors: []collector.Collector{
			stubCollector{name: "hn", articles: []models.Article{article("Alpha raises Series A", "Hacker News")}},
			stubCollector{name: "rss", articles: []models.Article{
				article("Beta launches pricing", "TechCrunch AI"),
				article("Gamma blog post", "Meta AI"),
				article("Delta acquisition", "The Verge Tech"),
			}},
		},
		Scorer:      titleScorer{"Alpha raises Series A": 80, "Beta launches pricing": 70, "Gamma blog post": 20, "Delta acquisition": 90},
		Broadcaster: b,
		TopN:        2,
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 4, res.Collected)
	assert.Equal(t, 4, res.Scored)
	assert.Equal(t, 3, res.Qualified)
	assert.False(t, res.Downgraded)
	assert.True(t, res.Broadcast)
	require.Len(t, res.Selected, 2)
	assert.Equal(t, "Delta acquisition", res.Selected[0].Article.Title)
	assert.Equal(t, "Alpha raises Series A", res.Selected[1].Article.Title)

	require.Len(t, b.messages, 1)
	assert.Equal(t, res.Message, b.messages[0])
	assert.Contains(t, res.Message, "2024-05-02")
	assert.Contains(t, res.Message, "Delta acquisition")
	assert.NotContains(t, res.Message, "Gamma blog post")
}

func TestRun_DowngradesWhenNothingQualifies(t *testing.T) {
	r := newRunner(t, Config{
		Collectors: []collector.Collector{stubCollector{name: "rss", articles: []models.Article{
			article("One", "A"), article("Two", "B"), article("Three", "C"), article("Four", "D"),
		}}},
		Scorer: titleScorer{"One": 10, "Two": 40, "Three": 30, "Four": 20},
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Downgraded)
	require.Len(t, res.Selected, DefaultTopN)
	assert.Equal(t, "Two", res.Selected[0].Article.Title)
	assert.Equal(t, "Three", res.Selected[1].Article.Title)
	assert.Equal(t, "Four", res.Selected[2].Article.Title)
	assert.Contains(t, res.Message, "Top 3")
}

func TestRun_NoArticles(t *testing.T) {
	b := &recordingBroadcaster{}
	r := newRunner(t, Config{
		Collectors: []collector.Collector{
			stubCollector{name: "hn", err: errors.New("down")},
			stubCollector{name: "rss"},
		},
		Scorer:      titleScorer{},
		Broadcaster: b,
	})

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoArticles)
	require.NotNil(t, res)
	require.Len(t, res.Sources, 2)
	assert.Error(t, res.Sources[0].Err)
	assert.Empty(t, b.messages)
}

func TestRun_DedupFailure(t *testing.T) {
	embedErr := errors.New("model offline")
	r := newRunner(t, Config{
		Collectors:   []collector.Collector{stubCollector{name: "rss", articles: []models.Article{article("One", "A")}}},
		Deduplicator: passthroughDedup{err: embedErr},
		Scorer:       titleScorer{},
	})

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, embedErr)
}

func TestRun_DryRunSkipsBroadcast(t *testing.T) {
	b := &recordingBroadcaster{}
	r := newRunner(t, Config{
		Collectors:  []collector.Collector{stubCollector{name: "rss", articles: []models.Article{article("One", "A")}}},
		Scorer:      titleScorer{"One": 90},
		Broadcaster: b,
		DryRun:      true,
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Broadcast)
	assert.NotEmpty(t, res.Message)
	assert.Empty(t, b.messages)
}

func TestRun_BroadcastFailure(t *testing.T) {
	r := newRunner(t, Config{
		Collectors:  []collector.Collector{stubCollector{name: "rss", articles: []models.Article{article("One", "A")}}},
		Scorer:      titleScorer{"One": 90},
		Broadcaster: &recordingBroadcaster{err: errors.New("all chats failed")},
	})

	res, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrBroadcast)
	assert.False(t, res.Broadcast)
}

func TestRun_ArchivesRunAndEvents(t *testing.T) {
	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	merged := article("One", "A")
	merged.SimilarSources = []string{"B"}
	r := newRunner(t, Config{
		Collectors: []collector.Collector{stubCollector{name: "rss", articles: []models.Article{
			merged, article("Two", "C"), article("Unscored", "D"),
		}}},
		Scorer:  titleScorer{"One": 90, "Two": 30},
		Archive: store,
		TopN:    1,
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Collected)
	assert.Equal(t, 3, run.Deduplicated)
	assert.Equal(t, 2, run.Scored)
	assert.Equal(t, 1, run.Qualified)
	assert.Equal(t, res.Message, run.Message)

	events, err := store.RunEvents(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "One", events[0].Title)
	assert.Equal(t, []string{"B"}, events[0].SimilarSources)
	require.NotNil(t, events[0].TotalScore)
	assert.Equal(t, 90, *events[0].TotalScore)
	assert.True(t, events[0].Selected)

	assert.False(t, events[1].Selected)
	assert.Nil(t, events[2].TotalScore)
}

func TestRun_ArchivesFailedRun(t *testing.T) {
	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r := newRunner(t, Config{Scorer: titleScorer{}, Archive: store})

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoArticles)

	run, err := store.GetRun(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, sqlite.RunStatusFailed, run.Status)
	assert.Equal(t, ErrNoArticles.Error(), run.Error)
}

func TestSelect(t *testing.T) {
	scored := func(scores ...int) []models.ScoredArticle {
		out := make([]models.ScoredArticle, len(scores))
		for i, s := range scores {
			out[i].Evaluation = models.Evaluation{TotalScore: s, IsQualified: s >= models.QualifyingScore}
		}
		return out
	}

	tests := []struct {
		name       string
		in         []models.ScoredArticle
		n          int
		wantScores []int
		downgraded bool
	}{
		{name: "qualified capped at n", in: scored(90, 80, 70, 66), n: 3, wantScores: []int{90, 80, 70}},
		{name: "fewer qualified than n", in: scored(90, 50, 40), n: 3, wantScores: []int{90}},
		{name: "none qualified", in: scored(50, 40, 30, 20), n: 3, wantScores: []int{50, 40, 30}, downgraded: true},
		{name: "short list", in: scored(10), n: 3, wantScores: []int{10}, downgraded: true},
		{name: "empty", in: nil, n: 3, wantScores: []int{}, downgraded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, downgraded := Select(tt.in, tt.n)
			assert.Equal(t, tt.downgraded, downgraded)
			scores := make([]int, 0, len(got))
			for _, s := range got {
				scores = append(scores, s.Evaluation.TotalScore)
			}
			assert.Equal(t, tt.wantScores, scores)
		})
	}
}
