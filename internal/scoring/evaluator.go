// Package scoring rates deduplicated articles for commercial signal with an LLM.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

// SystemPrompt instructs the model how to rate one article.
const SystemPrompt = `You are a top Silicon Valley venture investor and Wall Street technology analyst.
Rate the news item you receive strictly, looking for alpha signals with strong commercial potential that can reshape a market.

Scoring dimensions (100 points total):
1. Commercial impact and capital momentum (impact_score, 0-40): large funding rounds, major acquisitions, or products that cut enterprise costs score high; routine software updates and toy projects without a business model score low.
2. Market specificity (specificity_score, 0-35): a clear target customer, concrete use cases or a pricing strategy score high; pure research or vague visions score low. Early products with sharply defined, disruptive use cases may score high without revenue or funding data.
3. Product novelty and moat (novelty_score, 0-25): new business models, launches that solve real pain points, or surprise strategic moves by large companies score high.

If total_score >= 65, is_qualified must be true.
If total_score < 65, is_qualified is false and executive_summary is null.

All text you write must be in Traditional Chinese (zh-TW). Do not copy English summaries verbatim.
Structure executive_summary as two lines separated by \n:
🎯 白話解讀：one sentence a non-technical CEO understands, saying what this is and which pain point it solves
💰 商業衝擊：whose business this threatens, whose costs it cuts, or which new monetization model it demonstrates

Reply with this JSON object only:
{"reasoning": "...", "impact_score": 0, "specificity_score": 0, "novelty_score": 0, "total_score": 0, "is_qualified": false, "executive_summary": null}`

// Completer returns the JSON content of a chat completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Evaluator scores articles one by one.
type Evaluator struct {
	completer Completer
	logger    zerolog.Logger
}

// NewEvaluator creates an evaluator over the given completer.
func NewEvaluator(completer Completer, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		completer: completer,
		logger:    logger.With().Str("component", "scoring").Logger(),
	}
}

type articlePayload struct {
	Title          string `json:"title"`
	Source         string `json:"source"`
	ContentSnippet string `json:"content_snippet"`
}

// Evaluate scores every article and returns the successes sorted by total
// score, highest first. Articles whose evaluation fails are logged and left out.
func (e *Evaluator) Evaluate(ctx context.Context, articles []models.Article) []models.ScoredArticle {
	start := time.Now()
	scored := make([]models.ScoredArticle, 0, len(articles))

	for i, article := range articles {
		if ctx.Err() != nil {
			e.logger.Warn().Err(ctx.Err()).Int("remaining", len(articles)-i).Msg("Scoring interrupted")
			break
		}

		eval, err := e.EvaluateOne(ctx, article)
		if err != nil {
			e.logger.Warn().Err(err).
				Int("index", i+1).
				Int("total", len(articles)).
				Str("title", article.Title).
				Msg("Scoring failed")
			continue
		}

		e.logger.Debug().
			Int("index", i+1).
			Int("total", len(articles)).
			Int("score", eval.TotalScore).
			Bool("qualified", eval.IsQualified).
			Msg("Article scored")
		scored = append(scored, models.ScoredArticle{Article: article, Evaluation: eval})
	}

	SortByScore(scored)

	e.logger.Info().
		Int("scored", len(scored)).
		Int("qualified", CountQualified(scored)).
		Dur("took", time.Since(start)).
		Msg("Scoring complete")
	return scored
}

// EvaluateOne scores a single article.
func (e *Evaluator) EvaluateOne(ctx context.Context, article models.Article) (models.Evaluation, error) {
	payload, err := json.Marshal(articlePayload{
		Title:          article.Title,
		Source:         article.Source,
		ContentSnippet: article.ContentSnippet,
	})
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("encode article: %w", err)
	}

	content, err := e.completer.CompleteJSON(ctx, SystemPrompt, string(payload))
	if err != nil {
		return models.Evaluation{}, err
	}

	var eval models.Evaluation
	if err := decodeJSON(content, &eval); err != nil {
		return models.Evaluation{}, fmt.Errorf("parse evaluation: %w", err)
	}
	eval.Normalize()
	return eval, nil
}

// SortByScore orders articles by total score, highest first. Ties keep their order.
func SortByScore(scored []models.ScoredArticle) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Evaluation.TotalScore > scored[j].Evaluation.TotalScore
	})
}

// CountQualified returns how many articles reached the qualifying score.
func CountQualified(scored []models.ScoredArticle) int {
	n := 0
	for _, s := range scored {
		if s.Evaluation.IsQualified {
			n++
		}
	}
	return n
}
