package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tiktoken-go/tokenizer"
)

const (
	OpenAIModelVersion      = "openai"
	OpenAIDefaultBaseURL    = "https://api.openai.com/v1"
	OpenAIDefaultModel      = "text-embedding-3-small"
	OpenAIDefaultMaxTokens  = 8191
	openAIHTTPTimeout       = 30 * time.Second
	openAIErrorSnippetBytes = 512
)

type openAIModel struct {
	client     *http.Client
	codec      tokenizer.Codec
	codecErr   error
	baseURL    string
	apiKey     string
	modelName  string
	dimensions int
	requested  int
	maxTokens  int
	codecOnce  sync.Once
	dimMu      sync.RWMutex
}

type openAIEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func init() {
	RegisterModel(ModelMetadata{
		Name:        "OpenAI Compatible",
		Version:     OpenAIModelVersion,
		Description: "OpenAI-compatible embedding via REST API (OpenAI, LiteLLM, Ollama, TEI)",
		Default:     true,
	}, newOpenAIModel)
}

func newOpenAIModel(opts Options) (EmbeddingModel, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = OpenAIDefaultBaseURL
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	// Self-hosted endpoints usually run without auth; the public API never does.
	if apiKey == "" && baseURL == OpenAIDefaultBaseURL {
		return nil, fmt.Errorf("API key is required for %s", OpenAIDefaultBaseURL)
	}
	modelName := strings.TrimSpace(opts.ModelName)
	if modelName == "" {
		modelName = OpenAIDefaultModel
	}
	maxTokens := opts.MaxInputTokens
	if maxTokens <= 0 {
		maxTokens = OpenAIDefaultMaxTokens
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = openAIHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &openAIModel{
		client:     client,
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelName:  modelName,
		dimensions: opts.Dimensions,
		requested:  opts.Dimensions,
		maxTokens:  maxTokens,
	}, nil
}

func (m *openAIModel) Name() string    { return m.modelName }
func (m *openAIModel) Version() string { return OpenAIModelVersion }
func (m *openAIModel) Close() error    { return nil }

// Dimensions returns the configured size, or the size observed on the first
// response when none was configured.
func (m *openAIModel) Dimensions() int {
	m.dimMu.RLock()
	defer m.dimMu.RUnlock()
	return m.dimensions
}

func (m *openAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (m *openAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = m.truncate(t)
	}

	results, err := m.embedRequest(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d results for %d inputs (model=%s)",
			len(results), len(texts), m.modelName)
	}

	dim := len(results[0])
	for i, vec := range results {
		if len(vec) == 0 || len(vec) != dim {
			return nil, fmt.Errorf("embedding API returned inconsistent vector %d (len=%d, want %d)", i, len(vec), dim)
		}
	}
	m.observeDimensions(dim)
	return results, nil
}

func (m *openAIModel) observeDimensions(dim int) {
	m.dimMu.Lock()
	defer m.dimMu.Unlock()
	if m.dimensions == 0 {
		m.dimensions = dim
	}
}

// truncate cuts text to the model's token budget. Texts are sent unchanged
// when the tokenizer is unavailable.
func (m *openAIModel) truncate(text string) string {
	// Every token is at least one byte, so short texts never need encoding.
	if len(text) <= m.maxTokens {
		return text
	}

	m.codecOnce.Do(func() {
		m.codec, m.codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if m.codecErr != nil {
		return text
	}

	ids, _, err := m.codec.Encode(text)
	if err != nil || len(ids) <= m.maxTokens {
		return text
	}
	out, err := m.codec.Decode(ids[:m.maxTokens])
	if err != nil {
		return text
	}
	return strings.ToValidUTF8(out, "")
}

func (m *openAIModel) embedRequest(ctx context.Context, input []string) ([][]float32, error) {
	reqBody := openAIEmbedRequest{
		Input:          input,
		Model:          m.modelName,
		EncodingFormat: "float",
		Dimensions:     m.requestedDimensions(),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request to %s: %w", m.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, openAIErrorSnippetBytes))
		return nil, fmt.Errorf("embedding API error (model=%s, status=%d): %s",
			m.modelName, resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode embedding response from %s: %w", m.baseURL, err)
	}

	// Sort by index to preserve order
	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	results := make([][]float32, len(embedResp.Data))
	for i, d := range embedResp.Data {
		results[i] = d.Embedding
	}
	return results, nil
}

// requestedDimensions is only sent when explicitly configured; most
// self-hosted servers reject the field.
func (m *openAIModel) requestedDimensions() int {
	if m.baseURL == OpenAIDefaultBaseURL {
		return m.requested
	}
	return 0
}
