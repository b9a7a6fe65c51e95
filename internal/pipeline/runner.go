// Package pipeline runs one daily briefing batch end to end:
// collect, deduplicate, score, select, format, broadcast and archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cj4yoyo1228/daily-ai-news/internal/collector"
	"github.com/cj4yoyo1228/daily-ai-news/internal/db/sqlite"
	"github.com/cj4yoyo1228/daily-ai-news/internal/dedup"
	"github.com/cj4yoyo1228/daily-ai-news/internal/notify"
	"github.com/cj4yoyo1228/daily-ai-news/internal/scoring"
	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

// DefaultTopN is how many articles a briefing carries.
const DefaultTopN = 3

var (
	// ErrNoArticles is returned when no collector produced anything.
	ErrNoArticles = errors.New("no articles collected")
	// ErrBroadcast wraps a failed delivery of the briefing.
	ErrBroadcast = errors.New("broadcast failed")
)

// Deduplicator collapses near-duplicate articles.
type Deduplicator interface {
	ProcessDetailed(ctx context.Context, articles []models.Article) ([]models.Article, dedup.Report, error)
}

// Scorer rates articles and returns them best first.
type Scorer interface {
	Evaluate(ctx context.Context, articles []models.Article) []models.ScoredArticle
}

// Archive records finished runs.
type Archive interface {
	SaveRun(ctx context.Context, run sqlite.RunRecord, events []sqlite.EventRecord) error
}

// Config wires the runner's collaborators. Archive may be nil.
type Config struct {
	Deduplicator Deduplicator
	Scorer       Scorer
	Broadcaster  notify.Broadcaster
	Archive      Archive
	Now          func() time.Time
	Collectors   []collector.Collector
	TopN         int
	DryRun       bool
}

// RunResult describes one completed or failed run.
type RunResult struct {
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	ID         string                 `json:"id"`
	Message    string                 `json:"message"`
	Sources    []collector.Result     `json:"-"`
	Selected   []models.ScoredArticle `json:"selected"`
	Dedup      dedup.Report           `json:"dedup"`
	Collected  int                    `json:"collected"`
	Scored     int                    `json:"scored"`
	Qualified  int                    `json:"qualified"`
	Downgraded bool                   `json:"downgraded"`
	Broadcast  bool                   `json:"broadcast"`
}

// Runner executes pipeline runs. It is safe to call Run concurrently when the
// collaborators are.
type Runner struct {
	cfg    Config
	logger zerolog.Logger
}

// New validates the configuration and creates a runner.
func New(cfg Config, logger zerolog.Logger) (*Runner, error) {
	if cfg.Deduplicator == nil {
		return nil, errors.New("pipeline: deduplicator required")
	}
	if cfg.Scorer == nil {
		return nil, errors.New("pipeline: scorer required")
	}
	if cfg.Broadcaster == nil {
		return nil, errors.New("pipeline: broadcaster required")
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		cfg:    cfg,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run executes one batch. The returned result is non-nil even on error and
// carries whatever the run got to before failing.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		ID:        uuid.NewString(),
		StartedAt: r.cfg.Now(),
	}
	logger := r.logger.With().Str("run_id", res.ID).Logger()
	logger.Info().Int("collectors", len(r.cfg.Collectors)).Bool("dry_run", r.cfg.DryRun).Msg("Run started")

	articles, sources := collector.Gather(ctx, r.cfg.Collectors...)
	res.Sources = sources
	res.Collected = len(articles)
	if len(articles) == 0 {
		return res, r.fail(ctx, res, nil, ErrNoArticles)
	}

	unique, report, err := r.cfg.Deduplicator.ProcessDetailed(ctx, articles)
	if err != nil {
		return res, r.fail(ctx, res, nil, fmt.Errorf("dedup: %w", err))
	}
	res.Dedup = report

	scored := r.cfg.Scorer.Evaluate(ctx, unique)
	res.Scored = len(scored)
	res.Qualified = scoring.CountQualified(scored)
	res.Selected, res.Downgraded = Select(scored, r.cfg.TopN)
	if res.Downgraded {
		logger.Warn().Int("top", len(res.Selected)).Msg("No qualified article, downgrading briefing")
	}

	res.Message = notify.FormatBriefing(res.Selected, res.Downgraded, res.StartedAt)
	events := buildEvents(unique, scored, res.Selected)

	if r.cfg.DryRun {
		logger.Info().Msg("Dry run, broadcast skipped")
	} else {
		if err := r.cfg.Broadcaster.Broadcast(ctx, res.Message); err != nil {
			return res, r.fail(ctx, res, events, fmt.Errorf("%w: %w", ErrBroadcast, err))
		}
		res.Broadcast = true
	}

	res.FinishedAt = r.cfg.Now()
	r.archive(ctx, res, events, nil)

	logger.Info().
		Int("collected", res.Collected).
		Int("unique", len(unique)).
		Int("scored", res.Scored).
		Int("qualified", res.Qualified).
		Bool("downgraded", res.Downgraded).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Run complete")
	return res, nil
}

func (r *Runner) fail(ctx context.Context, res *RunResult, events []sqlite.EventRecord, err error) error {
	res.FinishedAt = r.cfg.Now()
	r.logger.Error().Err(err).Str("run_id", res.ID).Msg("Run failed")
	r.archive(ctx, res, events, err)
	return err
}

// archive stores the run. Archive failures are logged and never fail the run.
func (r *Runner) archive(ctx context.Context, res *RunResult, events []sqlite.EventRecord, runErr error) {
	if r.cfg.Archive == nil {
		return
	}

	record := sqlite.RunRecord{
		ID:           res.ID,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Collected:    res.Collected,
		Deduplicated: res.Dedup.Clusters,
		Scored:       res.Scored,
		Qualified:    res.Qualified,
		Downgraded:   res.Downgraded,
		Message:      res.Message,
		Status:       sqlite.RunStatusCompleted,
	}
	if runErr != nil {
		record.Status = sqlite.RunStatusFailed
		record.Error = runErr.Error()
	}

	// The run context may already be canceled; the record is still worth keeping.
	if err := r.cfg.Archive.SaveRun(context.WithoutCancel(ctx), record, events); err != nil {
		r.logger.Warn().Err(err).Str("run_id", res.ID).Msg("Failed to archive run")
	}
}

// Select picks the briefing articles from scored articles sorted best first.
// Up to n qualified articles are chosen; when none qualified, the top n
// overall are returned and downgraded is true.
func Select(scored []models.ScoredArticle, n int) (selected []models.ScoredArticle, downgraded bool) {
	qualified := make([]models.ScoredArticle, 0, n)
	for _, s := range scored {
		if s.Evaluation.IsQualified {
			qualified = append(qualified, s)
			if len(qualified) == n {
				break
			}
		}
	}
	if len(qualified) > 0 {
		return qualified, false
	}
	return scored[:min(n, len(scored))], true
}

type articleKey struct {
	title, url, source string
}

func keyOf(a models.Article) articleKey {
	return articleKey{title: a.Title, url: a.URL, source: a.Source}
}

// buildEvents lists the deduplicated articles in dedup order with their
// scores and whether they made the briefing.
func buildEvents(unique []models.Article, scored, selected []models.ScoredArticle) []sqlite.EventRecord {
	evals := make(map[articleKey]models.Evaluation, len(scored))
	for _, s := range scored {
		evals[keyOf(s.Article)] = s.Evaluation
	}
	chosen := make(map[articleKey]bool, len(selected))
	for _, s := range selected {
		chosen[keyOf(s.Article)] = true
	}

	events := make([]sqlite.EventRecord, 0, len(unique))
	for i, a := range unique {
		ev := sqlite.EventRecord{
			Position:       i,
			Title:          a.Title,
			URL:            a.URL,
			Source:         a.Source,
			PublishedAt:    a.PublishedAt,
			SimilarSources: a.SimilarSources,
			Selected:       chosen[keyOf(a)],
		}
		if eval, ok := evals[keyOf(a)]; ok {
			score, qualified := eval.TotalScore, eval.IsQualified
			ev.TotalScore = &score
			ev.IsQualified = &qualified
		}
		events = append(events, ev)
	}
	return events
}
