package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticle_Clone(t *testing.T) {
	orig := Article{
		Title:          "OpenAI launches agents",
		Source:         "X",
		PublishedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SimilarSources: []string{"Y"},
	}

	c := orig.Clone()
	c.SimilarSources = append(c.SimilarSources, "Z")
	c.SimilarSources[0] = "changed"

	assert.Equal(t, []string{"Y"}, orig.SimilarSources)
	assert.Equal(t, orig.PublishedAt, c.PublishedAt)
}

func TestArticle_Clone_NilSources(t *testing.T) {
	c := Article{Title: "t"}.Clone()
	require.NotNil(t, c.SimilarSources)
	assert.Empty(t, c.SimilarSources)
}

func TestArticle_WithText(t *testing.T) {
	orig := Article{Title: "<b>raw</b>", ContentSnippet: "raw body", Source: "X"}

	c := orig.WithText("raw", "clean body")

	assert.Equal(t, "raw", c.Title)
	assert.Equal(t, "clean body", c.ContentSnippet)
	assert.Equal(t, "X", c.Source)
	assert.Equal(t, "<b>raw</b>", orig.Title, "original must not change")
}

func TestArticle_AddSimilarSource(t *testing.T) {
	a := Article{Source: "X"}

	assert.False(t, a.AddSimilarSource("X"), "own source is ignored")
	assert.False(t, a.AddSimilarSource(""), "empty source is ignored")
	assert.True(t, a.AddSimilarSource("Y"))
	assert.False(t, a.AddSimilarSource("Y"), "duplicates are ignored")
	assert.True(t, a.AddSimilarSource("Z"))

	assert.Equal(t, []string{"Y", "Z"}, a.SimilarSources)
	assert.Equal(t, 3, a.CorroborationCount())
}

func TestEvaluation_Normalize(t *testing.T) {
	summary := "summary"
	tests := []struct {
		name          string
		in            Evaluation
		wantTotal     int
		wantQualified bool
		wantSummary   string
	}{
		{
			name:          "consistent qualified",
			in:            Evaluation{ImpactScore: 30, SpecificityScore: 25, NoveltyScore: 15, TotalScore: 70, ExecutiveSummary: &summary},
			wantTotal:     70,
			wantQualified: true,
			wantSummary:   "summary",
		},
		{
			name:          "model flag contradicts total",
			in:            Evaluation{ImpactScore: 10, SpecificityScore: 10, NoveltyScore: 10, TotalScore: 30, IsQualified: true, ExecutiveSummary: &summary},
			wantTotal:     30,
			wantQualified: false,
		},
		{
			name:          "total recomputed from dimensions",
			in:            Evaluation{ImpactScore: 35, SpecificityScore: 30, NoveltyScore: 20, TotalScore: 50},
			wantTotal:     85,
			wantQualified: true,
		},
		{
			name:          "dimensions clamped",
			in:            Evaluation{ImpactScore: 99, SpecificityScore: -5, NoveltyScore: 40, TotalScore: 65},
			wantTotal:     65,
			wantQualified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.in
			e.Normalize()
			assert.Equal(t, tt.wantTotal, e.TotalScore)
			assert.Equal(t, tt.wantQualified, e.IsQualified)
			assert.Equal(t, tt.wantSummary, e.Summary())
		})
	}
}
