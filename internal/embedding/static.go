package embedding

import (
	"context"
	"fmt"
	"os"
	"slices"

	json "github.com/goccy/go-json"
)

// StaticModelVersion is the registry key of the lookup-table model.
const StaticModelVersion = "static"

// staticModel returns precomputed vectors for known texts.
// It backs offline fixtures and tests; unknown texts are an error.
type staticModel struct {
	vectors    map[string][]float32
	dimensions int
}

func init() {
	RegisterModel(ModelMetadata{
		Name:        "Static Lookup",
		Version:     StaticModelVersion,
		Description: "Precomputed vectors loaded from a JSON file (offline fixtures)",
	}, newStaticModel)
}

func newStaticModel(opts Options) (EmbeddingModel, error) {
	vectors := opts.Vectors
	if vectors == nil && opts.VectorsPath != "" {
		data, err := os.ReadFile(opts.VectorsPath)
		if err != nil {
			return nil, fmt.Errorf("read vectors file: %w", err)
		}
		if err := json.Unmarshal(data, &vectors); err != nil {
			return nil, fmt.Errorf("parse vectors file %s: %w", opts.VectorsPath, err)
		}
	}
	return NewStaticModel(vectors)
}

// NewStaticModel builds a lookup-table model. All vectors must share one dimension.
func NewStaticModel(vectors map[string][]float32) (EmbeddingModel, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("static model needs at least one vector")
	}

	dim := -1
	table := make(map[string][]float32, len(vectors))
	for text, vec := range vectors {
		if dim < 0 {
			dim = len(vec)
		}
		if len(vec) == 0 || len(vec) != dim {
			return nil, fmt.Errorf("static vector for %q has dimension %d, want %d", text, len(vec), dim)
		}
		table[text] = slices.Clone(vec)
	}

	return &staticModel{vectors: table, dimensions: dim}, nil
}

func (m *staticModel) Name() string    { return "static-lookup" }
func (m *staticModel) Version() string { return StaticModelVersion }
func (m *staticModel) Dimensions() int { return m.dimensions }
func (m *staticModel) Close() error    { return nil }

func (m *staticModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, ok := m.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no static vector for %q", text)
	}
	return slices.Clone(vec), nil
}

func (m *staticModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}
