package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cj4yoyo1228/daily-ai-news/internal/collector"
	"github.com/cj4yoyo1228/daily-ai-news/internal/config"
	"github.com/cj4yoyo1228/daily-ai-news/internal/db/sqlite"
	"github.com/cj4yoyo1228/daily-ai-news/internal/dedup"
	"github.com/cj4yoyo1228/daily-ai-news/internal/embedding"
	"github.com/cj4yoyo1228/daily-ai-news/internal/notify"
	"github.com/cj4yoyo1228/daily-ai-news/internal/scoring"
)

type commandContext struct {
	settingsFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(settingsFlag *string) *commandContext {
	return &commandContext{settingsFlag: settingsFlag}
}

func (c *commandContext) settingsPath() string {
	if c.settingsFlag != nil {
		if path := strings.TrimSpace(*c.settingsFlag); path != "" {
			return path
		}
	}
	return config.SettingsPath()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.settingsFlag == nil || strings.TrimSpace(*c.settingsFlag) == "" {
			if err := config.EnsureAll(); err != nil {
				c.configErr = fmt.Errorf("prepare data dir: %w", err)
				return
			}
		}
		cfg, err := config.LoadFile(c.settingsPath())
		if err != nil {
			c.configErr = fmt.Errorf("load settings: %w", err)
			return
		}
		config.ApplyEnv(cfg, os.Getenv)
		c.config = cfg
	})
	return c.config, c.configErr
}

// embeddingService acquires the configured model. Remote models are probed so
// that a bad endpoint fails here rather than mid-run.
func (c *commandContext) embeddingService(ctx context.Context, cfg *config.Config) (*embedding.Service, error) {
	return embedding.NewService(ctx, embedding.ServiceConfig{
		Version: cfg.EmbeddingModel,
		Probe:   cfg.EmbeddingModel != embedding.StaticModelVersion,
		Options: embedding.Options{
			BaseURL:     cfg.EmbeddingBaseURL,
			APIKey:      cfg.EmbeddingAPIKey,
			ModelName:   cfg.EmbeddingModelName,
			VectorsPath: cfg.EmbeddingVectorsPath,
			Dimensions:  cfg.EmbeddingDimensions,
		},
	})
}

func (c *commandContext) filter(svc *embedding.Service, cfg *config.Config) (*dedup.Filter, error) {
	return dedup.New(svc, dedup.Config{
		Threshold:     cfg.SimilarityThreshold,
		MinTextLength: cfg.MinTextLength,
	})
}

func (c *commandContext) collectors(cfg *config.Config) ([]collector.Collector, error) {
	feeds, err := config.LoadFeeds(cfg.FeedsPath)
	if err != nil {
		return nil, err
	}
	lookback := time.Duration(cfg.LookbackHours) * time.Hour

	return []collector.Collector{
		collector.NewHackerNews(collector.HackerNewsConfig{
			MaxScan:  cfg.HNMaxScan,
			Lookback: lookback,
		}),
		collector.NewRSS(collector.RSSConfig{
			Feeds:    feeds,
			Lookback: lookback,
		}),
	}, nil
}

func (c *commandContext) scorer(cfg *config.Config) *scoring.Evaluator {
	client := scoring.NewClient(scoring.ClientConfig{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Temperature: &cfg.LLMTemperature,
	})
	return scoring.NewEvaluator(client, log.Logger)
}

func (c *commandContext) broadcaster(cfg *config.Config) notify.Broadcaster {
	return notify.NewBroadcaster(notify.TelegramConfig{
		Token:   cfg.TelegramToken,
		ChatIDs: cfg.TelegramChatIDs,
	}, log.Logger)
}

// archive opens the run archive, or returns nil when it is disabled.
func (c *commandContext) archive(cfg *config.Config) (*sqlite.Store, error) {
	if !cfg.ArchiveEnabled || cfg.ArchivePath == "" {
		return nil, nil
	}
	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: cfg.ArchivePath})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return store, nil
}
