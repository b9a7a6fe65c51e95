// Package embedding provides text embedding generation with swappable models.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

var (
	// ErrModelUnavailable is returned when a model cannot be acquired.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrEmbeddingFailed is returned when a batch embedding call fails.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// EmbeddingModel represents a text embedding model.
type EmbeddingModel interface {
	// Name returns the human-readable model name (e.g., "all-MiniLM-L6-v2").
	Name() string

	// Version returns the registry key of the model (e.g., "openai").
	Version() string

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The i-th vector corresponds to the i-th text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases model resources.
	Close() error
}

// Options carries the settings a model factory may need.
// Factories ignore fields that do not apply to them.
type Options struct {
	// HTTPClient overrides the client used by remote models.
	HTTPClient *http.Client
	// Vectors is the lookup table for the static model.
	Vectors map[string][]float32

	// BaseURL is the OpenAI-compatible API root (without /embeddings).
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// ModelName is the remote model identifier.
	ModelName string
	// VectorsPath is a JSON file of {"text": [..vector..]} for the static model.
	VectorsPath string

	// Dimensions is the expected vector size; 0 lets the model decide.
	Dimensions int
	// MaxInputTokens truncates longer inputs before they are sent; 0 uses the default.
	MaxInputTokens int
	// Timeout bounds each remote request.
	Timeout time.Duration
}

// ModelMetadata describes an embedding model for UI/config.
type ModelMetadata struct {
	Name        string `json:"name"`        // Human-readable name
	Version     string `json:"version"`     // Registry key
	Description string `json:"description"` // Brief description
	Dimensions  int    `json:"dimensions"`  // Default vector size, 0 when model-defined
	Default     bool   `json:"default"`     // Is this the default model?
}

// ModelFactory creates a new instance of an embedding model.
type ModelFactory func(opts Options) (EmbeddingModel, error)

// ModelRegistry provides model lookup by version.
// It holds factories only; model instances are owned by their callers.
type ModelRegistry struct {
	models       map[string]ModelFactory
	metadata     map[string]ModelMetadata
	defaultModel string
	mu           sync.RWMutex
}

// NewModelRegistry creates a new model registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models:   make(map[string]ModelFactory),
		metadata: make(map[string]ModelMetadata),
	}
}

// Register adds a model factory to the registry.
func (r *ModelRegistry) Register(meta ModelMetadata, factory ModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[meta.Version] = factory
	r.metadata[meta.Version] = meta

	if meta.Default {
		r.defaultModel = meta.Version
	}
}

// Get creates a new instance of the model with the given version.
func (r *ModelRegistry) Get(version string, opts Options) (EmbeddingModel, error) {
	r.mu.RLock()
	factory, ok := r.models[version]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown model version: %s", version)
	}

	return factory(opts)
}

// Default returns the default model version.
func (r *ModelRegistry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel
}

// List returns metadata for all registered models, sorted by version.
func (r *ModelRegistry) List() []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ModelMetadata, 0, len(r.metadata))
	for _, meta := range r.metadata {
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result
}

// DefaultRegistry is the global model registry with all available models.
var DefaultRegistry = NewModelRegistry()

// RegisterModel adds a model to the default registry.
func RegisterModel(meta ModelMetadata, factory ModelFactory) {
	DefaultRegistry.Register(meta, factory)
}

// GetModel creates a model instance from the default registry.
func GetModel(version string, opts Options) (EmbeddingModel, error) {
	return DefaultRegistry.Get(version, opts)
}

// GetDefaultModel returns the default model version from the default registry.
func GetDefaultModel() string {
	return DefaultRegistry.Default()
}

// ListModels returns metadata for all models in the default registry.
func ListModels() []ModelMetadata {
	return DefaultRegistry.List()
}
