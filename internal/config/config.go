// Package config provides configuration management for daily-ai-news.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

const (
	// DefaultServerAddr is the default listen address for the HTTP server.
	DefaultServerAddr = "127.0.0.1:37780"

	// DefaultEmbeddingModel is the registry key of the default embedding model.
	DefaultEmbeddingModel = "openai"

	// DefaultSimilarityThreshold is the cosine similarity above which two
	// articles are reported as the same event.
	DefaultSimilarityThreshold = 0.75

	// DefaultMinTextLength is the minimum rune length of title + snippet.
	DefaultMinTextLength = 30

	// DefaultLLMModel is the chat model used for scoring.
	DefaultLLMModel = "gpt-4o-mini"

	// DefaultLLMTemperature is the sampling temperature used for scoring.
	DefaultLLMTemperature = 0.3

	// DefaultTopN is the number of articles in a briefing.
	DefaultTopN = 3
)

// Config holds the application configuration.
type Config struct {
	// Embedding settings
	EmbeddingModel       string `json:"embedding_model"` // registry key, e.g. "openai" or "static"
	EmbeddingBaseURL     string `json:"embedding_base_url"`
	EmbeddingAPIKey      string `json:"-"`
	EmbeddingModelName   string `json:"embedding_model_name"`
	EmbeddingVectorsPath string `json:"embedding_vectors_path"`
	EmbeddingDimensions  int    `json:"embedding_dimensions"`

	// Dedup settings
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MinTextLength       int     `json:"min_text_length"`

	// Collection settings
	FeedsPath     string `json:"feeds_path"`
	LookbackHours int    `json:"lookback_hours"`
	HNMaxScan     int    `json:"hn_max_scan"`

	// Scoring settings
	LLMBaseURL     string  `json:"llm_base_url"`
	LLMModel       string  `json:"llm_model"`
	LLMAPIKey      string  `json:"-"`
	LLMTemperature float64 `json:"llm_temperature"`
	TopN           int     `json:"top_n"`

	// Notification settings
	TelegramToken   string   `json:"-"`
	TelegramChatIDs []string `json:"telegram_chat_ids"`

	// Archive and server settings
	ArchivePath    string `json:"archive_path"` // empty disables the run archive
	ArchiveEnabled bool   `json:"archive_enabled"`
	ServerAddr     string `json:"server_addr"`

	// Per-client dedup request rate for the server; 0 disables limiting.
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.daily-ai-news).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".daily-ai-news")
}

// ArchivePath returns the default run archive file path.
func ArchivePath() string {
	return filepath.Join(DataDir(), "runs.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// FeedsPath returns the default feed list path.
func FeedsPath() string {
	return filepath.Join(DataDir(), "feeds.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaultSettings := `{
  "DAILY_AI_NEWS_EMBEDDING_MODEL": "openai",
  "DAILY_AI_NEWS_SIMILARITY_THRESHOLD": 0.75,
  "DAILY_AI_NEWS_MIN_TEXT_LENGTH": 30,
  "DAILY_AI_NEWS_LOOKBACK_HOURS": 24,
  "DAILY_AI_NEWS_TOP_N": 3
}
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	if err := EnsureSettings(); err != nil {
		return err
	}
	return nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		EmbeddingModel:      DefaultEmbeddingModel,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MinTextLength:       DefaultMinTextLength,
		FeedsPath:           FeedsPath(),
		LookbackHours:       24,
		HNMaxScan:           120,
		LLMModel:            DefaultLLMModel,
		LLMTemperature:      DefaultLLMTemperature,
		TopN:                DefaultTopN,
		ArchivePath:         ArchivePath(),
		ArchiveEnabled:      true,
		ServerAddr:          DefaultServerAddr,
		RateLimit:           2,
		RateBurst:           5,
	}
}

// Load loads configuration from the settings file, merging with defaults,
// then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile(SettingsPath())
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// LoadFile reads one settings file over the defaults. A missing file yields
// the defaults; an unparsable one is ignored.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return cfg, nil
	}

	if v, ok := settings["DAILY_AI_NEWS_EMBEDDING_MODEL"].(string); ok && v != "" {
		cfg.EmbeddingModel = v
	}
	if v, ok := settings["DAILY_AI_NEWS_EMBEDDING_BASE_URL"].(string); ok {
		cfg.EmbeddingBaseURL = v
	}
	if v, ok := settings["DAILY_AI_NEWS_EMBEDDING_API_KEY"].(string); ok {
		cfg.EmbeddingAPIKey = v
	}
	if v, ok := settings["DAILY_AI_NEWS_EMBEDDING_MODEL_NAME"].(string); ok {
		cfg.EmbeddingModelName = v
	}
	if v, ok := settings["DAILY_AI_NEWS_EMBEDDING_VECTORS_PATH"].(string); ok {
		cfg.EmbeddingVectorsPath = v
	}
	if v, ok := settings["DAILY_AI_NEWS_EMBEDDING_DIMENSIONS"].(float64); ok && v >= 0 {
		cfg.EmbeddingDimensions = int(v)
	}
	if v, ok := settings["DAILY_AI_NEWS_SIMILARITY_THRESHOLD"].(float64); ok && v >= -1 && v <= 1 {
		cfg.SimilarityThreshold = v
	}
	if v, ok := settings["DAILY_AI_NEWS_MIN_TEXT_LENGTH"].(float64); ok && v >= 0 {
		cfg.MinTextLength = int(v)
	}
	if v, ok := settings["DAILY_AI_NEWS_FEEDS_PATH"].(string); ok && v != "" {
		cfg.FeedsPath = v
	}
	if v, ok := settings["DAILY_AI_NEWS_LOOKBACK_HOURS"].(float64); ok && v > 0 {
		cfg.LookbackHours = int(v)
	}
	if v, ok := settings["DAILY_AI_NEWS_HN_MAX_SCAN"].(float64); ok && v > 0 {
		cfg.HNMaxScan = int(v)
	}
	if v, ok := settings["DAILY_AI_NEWS_LLM_BASE_URL"].(string); ok {
		cfg.LLMBaseURL = v
	}
	if v, ok := settings["DAILY_AI_NEWS_LLM_MODEL"].(string); ok && v != "" {
		cfg.LLMModel = v
	}
	if v, ok := settings["DAILY_AI_NEWS_LLM_API_KEY"].(string); ok {
		cfg.LLMAPIKey = v
	}
	if v, ok := settings["DAILY_AI_NEWS_LLM_TEMPERATURE"].(float64); ok && v >= 0 && v <= 2 {
		cfg.LLMTemperature = v
	}
	if v, ok := settings["DAILY_AI_NEWS_TOP_N"].(float64); ok && v > 0 {
		cfg.TopN = int(v)
	}
	if v, ok := settings["DAILY_AI_NEWS_TELEGRAM_TOKEN"].(string); ok {
		cfg.TelegramToken = v
	}
	switch v := settings["DAILY_AI_NEWS_TELEGRAM_CHAT_IDS"].(type) {
	case string:
		cfg.TelegramChatIDs = splitTrim(v)
	case []any:
		cfg.TelegramChatIDs = cfg.TelegramChatIDs[:0]
		for _, id := range v {
			switch id := id.(type) {
			case string:
				if id = strings.TrimSpace(id); id != "" {
					cfg.TelegramChatIDs = append(cfg.TelegramChatIDs, id)
				}
			case float64:
				cfg.TelegramChatIDs = append(cfg.TelegramChatIDs, strconv.FormatInt(int64(id), 10))
			}
		}
	}
	if v, ok := settings["DAILY_AI_NEWS_ARCHIVE_PATH"].(string); ok && v != "" {
		cfg.ArchivePath = v
	}
	if v, ok := settings["DAILY_AI_NEWS_ARCHIVE_ENABLED"].(bool); ok {
		cfg.ArchiveEnabled = v
	}
	if v, ok := settings["DAILY_AI_NEWS_SERVER_ADDR"].(string); ok && v != "" {
		cfg.ServerAddr = v
	}
	if v, ok := settings["DAILY_AI_NEWS_RATE_LIMIT"].(float64); ok && v >= 0 {
		cfg.RateLimit = v
	}
	if v, ok := settings["DAILY_AI_NEWS_RATE_BURST"].(float64); ok && v >= 1 {
		cfg.RateBurst = int(v)
	}

	return cfg, nil
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := firstEnv(getenv, "DAILY_AI_NEWS_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := firstEnv(getenv, "DAILY_AI_NEWS_TELEGRAM_CHAT_IDS", "TARGET_CHAT_IDS"); v != "" {
		cfg.TelegramChatIDs = splitTrim(v)
	}
	if v := firstEnv(getenv, "DAILY_AI_NEWS_LLM_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := firstEnv(getenv, "DAILY_AI_NEWS_EMBEDDING_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := getenv("DAILY_AI_NEWS_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := getenv("DAILY_AI_NEWS_SERVER_ADDR"); v != "" {
		cfg.ServerAddr = v
	}
	if v := getenv("DAILY_AI_NEWS_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= -1 && f <= 1 {
			cfg.SimilarityThreshold = f
		}
	}
}

func firstEnv(getenv func(string) string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// splitTrim splits a comma-separated string and trims whitespace.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
			ApplyEnv(globalConfig, os.Getenv)
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
