package dedup

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cj4yoyo1228/daily-ai-news/internal/dedup"

// filterMetrics holds the counters recorded after every Process call.
// Instruments come from the global meter provider, which is a noop until the
// host installs one.
type filterMetrics struct {
	articlesIn      metric.Int64Counter
	articlesDropped metric.Int64Counter
	clusters        metric.Int64Counter
	merged          metric.Int64Counter
}

func newFilterMetrics() *filterMetrics {
	meter := otel.Meter(meterName)
	m := &filterMetrics{}

	var err error
	if m.articlesIn, err = meter.Int64Counter("dedup.articles.in",
		metric.WithDescription("Articles received by the dedup filter")); err != nil {
		log.Warn().Err(err).Msg("Failed to create dedup.articles.in counter")
	}
	if m.articlesDropped, err = meter.Int64Counter("dedup.articles.dropped",
		metric.WithDescription("Articles dropped below the minimum text length")); err != nil {
		log.Warn().Err(err).Msg("Failed to create dedup.articles.dropped counter")
	}
	if m.clusters, err = meter.Int64Counter("dedup.clusters",
		metric.WithDescription("Representative events produced")); err != nil {
		log.Warn().Err(err).Msg("Failed to create dedup.clusters counter")
	}
	if m.merged, err = meter.Int64Counter("dedup.duplicates.merged",
		metric.WithDescription("Articles folded into an existing event")); err != nil {
		log.Warn().Err(err).Msg("Failed to create dedup.duplicates.merged counter")
	}
	return m
}

func (m *filterMetrics) record(ctx context.Context, r Report) {
	add(ctx, m.articlesIn, r.Input)
	add(ctx, m.articlesDropped, r.Dropped)
	add(ctx, m.clusters, r.Clusters)
	add(ctx, m.merged, r.Merged)
}

func add(ctx context.Context, c metric.Int64Counter, n int) {
	if c == nil || n == 0 {
		return
	}
	c.Add(ctx, int64(n))
}
