// Package models contains domain models for daily-ai-news.
package models

import (
	"slices"
	"time"
)

// Article is a short news record produced by a collector.
// SimilarSources lists the sources whose reports were merged into this one
// during deduplication.
type Article struct {
	PublishedAt    time.Time `json:"published_at"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	ContentSnippet string    `json:"content_snippet"`
	SimilarSources []string  `json:"similar_sources"`
}

// Clone returns a deep copy of the article.
// The SimilarSources slice is never shared with the original.
func (a Article) Clone() Article {
	c := a
	c.SimilarSources = slices.Clone(a.SimilarSources)
	if c.SimilarSources == nil {
		c.SimilarSources = []string{}
	}
	return c
}

// WithText returns a copy of the article with title and snippet replaced.
func (a Article) WithText(title, snippet string) Article {
	c := a.Clone()
	c.Title = title
	c.ContentSnippet = snippet
	return c
}

// AddSimilarSource records a corroborating source.
// Empty sources, the article's own source and already listed sources are ignored.
// Returns true if the source was appended.
func (a *Article) AddSimilarSource(source string) bool {
	if source == "" || source == a.Source {
		return false
	}
	if slices.Contains(a.SimilarSources, source) {
		return false
	}
	a.SimilarSources = append(a.SimilarSources, source)
	return true
}

// CorroborationCount returns the number of distinct sources reporting the event,
// including the article's own source.
func (a Article) CorroborationCount() int {
	return len(a.SimilarSources) + 1
}
