package models

// Scoring dimension limits. The total is out of 100.
const (
	MaxImpactScore      = 40
	MaxSpecificityScore = 35
	MaxNoveltyScore     = 25

	// QualifyingScore is the minimum total for an article to be qualified.
	QualifyingScore = 65
)

// Evaluation is the relevance judgment assigned to a deduplicated article.
type Evaluation struct {
	ExecutiveSummary *string `json:"executive_summary"`
	Reasoning        string  `json:"reasoning"`
	ImpactScore      int     `json:"impact_score"`
	SpecificityScore int     `json:"specificity_score"`
	NoveltyScore     int     `json:"novelty_score"`
	TotalScore       int     `json:"total_score"`
	IsQualified      bool    `json:"is_qualified"`
}

// Summary returns the executive summary, or an empty string if none was given.
func (e Evaluation) Summary() string {
	if e.ExecutiveSummary == nil {
		return ""
	}
	return *e.ExecutiveSummary
}

// Normalize clamps each dimension to its range, recomputes the total when the
// dimensions disagree with it, and derives qualification from the total.
func (e *Evaluation) Normalize() {
	e.ImpactScore = clamp(e.ImpactScore, 0, MaxImpactScore)
	e.SpecificityScore = clamp(e.SpecificityScore, 0, MaxSpecificityScore)
	e.NoveltyScore = clamp(e.NoveltyScore, 0, MaxNoveltyScore)

	sum := e.ImpactScore + e.SpecificityScore + e.NoveltyScore
	if e.TotalScore != sum {
		e.TotalScore = sum
	}
	e.IsQualified = e.TotalScore >= QualifyingScore
	if !e.IsQualified {
		e.ExecutiveSummary = nil
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScoredArticle pairs a deduplicated article with its evaluation.
type ScoredArticle struct {
	Article    Article    `json:"article"`
	Evaluation Evaluation `json:"evaluation"`
}
