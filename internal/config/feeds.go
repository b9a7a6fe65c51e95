package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

// DefaultFeeds are the RSS/Atom sources used when no feed file exists.
var DefaultFeeds = []models.Feed{
	{Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
	{Name: "Product Hunt", URL: "https://www.producthunt.com/feed"},
	{Name: "The Verge Tech", URL: "https://www.theverge.com/rss/technology/index.xml"},
	{Name: "Microsoft AI Blog", URL: "https://blogs.microsoft.com/ai/feed/"},
	{Name: "Google AI Blog", URL: "https://blog.google/technology/ai/rss/"},
	{Name: "Meta AI", URL: "https://ai.meta.com/blog/rss/"},
	{Name: "NVIDIA Newsroom", URL: "https://nvidianews.nvidia.com/releases.xml"},
}

type feedFile struct {
	Feeds []models.Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file of the form
//
//	feeds:
//	  - name: TechCrunch AI
//	    url: https://techcrunch.com/category/artificial-intelligence/feed/
//
// A missing file returns DefaultFeeds. Entries without a URL are skipped and a
// missing name falls back to the URL.
func LoadFeeds(path string) ([]models.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return append([]models.Feed(nil), DefaultFeeds...), nil
		}
		return nil, fmt.Errorf("read feeds: %w", err)
	}

	var file feedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse feeds %s: %w", path, err)
	}

	feeds := make([]models.Feed, 0, len(file.Feeds))
	for _, f := range file.Feeds {
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" {
			continue
		}
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			f.Name = f.URL
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}
