package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// probeText is embedded once at acquisition to verify the model answers.
const probeText = "daily ai news embedding probe"

// Service provides text embedding generation over an acquired model.
// A Service is created once per process and shared read-only; it is safe for
// concurrent use when the underlying model is.
type Service struct {
	model EmbeddingModel
}

// ServiceConfig selects and configures the model to acquire.
type ServiceConfig struct {
	// Version is the registry key; empty selects the registry default.
	Version string
	// Options are passed to the model factory.
	Options Options
	// Probe embeds a short text during acquisition so that an unreachable
	// endpoint fails at startup instead of mid-run.
	Probe bool
	// Registry overrides DefaultRegistry.
	Registry *ModelRegistry
}

// NewService acquires the configured model. Failures wrap ErrModelUnavailable.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry
	}
	version := cfg.Version
	if version == "" {
		version = registry.Default()
	}

	start := time.Now()
	model, err := registry.Get(version, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("%w: get model %s: %v", ErrModelUnavailable, version, err)
	}

	if cfg.Probe {
		if _, err := model.Embed(ctx, probeText); err != nil {
			_ = model.Close()
			return nil, fmt.Errorf("%w: probe model %s: %v", ErrModelUnavailable, version, err)
		}
	}

	log.Info().
		Str("model", model.Name()).
		Str("version", model.Version()).
		Int("dimensions", model.Dimensions()).
		Dur("took", time.Since(start)).
		Msg("Embedding model acquired")

	return &Service{model: model}, nil
}

// NewServiceWithModel wraps an already constructed model.
func NewServiceWithModel(model EmbeddingModel) *Service {
	return &Service{model: model}
}

// Name returns the human-readable model name.
func (s *Service) Name() string {
	return s.model.Name()
}

// Version returns the registry key of the model.
func (s *Service) Version() string {
	return s.model.Version()
}

// Dimensions returns the embedding vector size.
func (s *Service) Dimensions() int {
	return s.model.Dimensions()
}

// Embed generates an embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.model.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
// Either every vector is returned, in input order, or an error wrapping
// ErrEmbeddingFailed.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := s.model.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(texts))
	}
	return vecs, nil
}

// Close releases model resources.
func (s *Service) Close() error {
	return s.model.Close()
}
