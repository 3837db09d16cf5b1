// Package config loads the pipeline's file-based configuration.
// Defaults ship in defaults.yaml; an optional user.yaml in the same
// directory is deep-merged on top, so users only override what they change.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"research-pipeline/internal/domain/entity"
)

// Config is the merged file configuration for the pipeline.
type Config struct {
	Vault      VaultConfig       `yaml:"vault"`
	Folders    map[string]string `yaml:"folders"`
	Processing ProcessingConfig  `yaml:"processing"`
	Notify     NotifyConfig      `yaml:"notify"`
}

// VaultConfig locates the note vault on disk.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// ProcessingConfig holds per-category processing timeouts and the
// post-processing batch parameters.
type ProcessingConfig struct {
	ArticleTimeout time.Duration `yaml:"article_timeout"`
	YouTubeTimeout time.Duration `yaml:"youtube_timeout"`
	PodcastTimeout time.Duration `yaml:"podcast_timeout"`

	EvaluateBatchSize    int           `yaml:"evaluate_batch_size"`
	EvaluateBatchTimeout time.Duration `yaml:"evaluate_batch_timeout"`
}

// NotifyConfig holds optional webhook URLs for run notifications.
// Empty URLs disable the corresponding channel.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// SkillSpec describes how one category of entry is processed.
type SkillSpec struct {
	Skill        string
	Timeout      time.Duration
	OutputFolder string
}

// Default returns the built-in configuration used when no defaults file exists.
func Default() *Config {
	return &Config{
		Folders: map[string]string{
			"article":   "Clippings/Article extractions",
			"youtube":   "Clippings/Youtube extractions",
			"clippings": "Clippings",
		},
		Processing: ProcessingConfig{
			ArticleTimeout:       5 * time.Minute,
			YouTubeTimeout:       10 * time.Minute,
			PodcastTimeout:       10 * time.Minute,
			EvaluateBatchSize:    6,
			EvaluateBatchTimeout: 10 * time.Minute,
		},
	}
}

// Load reads defaults.yaml from dir, deep-merged with user.yaml if present.
// A missing defaults.yaml falls back to the built-in defaults; a missing
// user.yaml is not an error.
func Load(dir string) (*Config, error) {
	merged, err := loadYAMLMap(filepath.Join(dir, "defaults.yaml"))
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	user, err := loadYAMLMap(filepath.Join(dir, "user.yaml"))
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	merged = deepMerge(merged, user)

	cfg := Default()
	if len(merged) > 0 {
		raw, err := yaml.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("Load: remarshal merged config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Load: decode merged config: %w", err)
		}
	}

	return cfg, nil
}

// loadYAMLMap reads a YAML file into a generic map. A missing file yields
// an empty map.
func loadYAMLMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// deepMerge merges override into base recursively. Nested maps merge
// key by key; any other value in override replaces the base value.
func deepMerge(base, override map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if baseMap, ok := result[k].(map[string]interface{}); ok {
			if overrideMap, ok := v.(map[string]interface{}); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// VaultPath returns the vault path with a leading "~" expanded to the
// user's home directory. Returns an error when the vault is not configured.
func (c *Config) VaultPath() (string, error) {
	if c.Vault.Path == "" {
		return "", fmt.Errorf("VaultPath: vault path not configured, run setup first")
	}
	return expandHome(c.Vault.Path), nil
}

// Folder returns a configured folder path by name (e.g. "youtube", "article").
func (c *Config) Folder(name string) string {
	return c.Folders[name]
}

// SkillFor returns the processing spec for a category.
func (c *Config) SkillFor(category entity.Category) (SkillSpec, error) {
	switch category {
	case entity.CategoryArticles:
		return SkillSpec{
			Skill:        "article",
			Timeout:      c.Processing.ArticleTimeout,
			OutputFolder: c.Folder("article"),
		}, nil
	case entity.CategoryYouTube:
		return SkillSpec{
			Skill:        "youtube",
			Timeout:      c.Processing.YouTubeTimeout,
			OutputFolder: c.Folder("youtube"),
		}, nil
	case entity.CategoryPodcasts:
		return SkillSpec{
			Skill:        "podcast",
			Timeout:      c.Processing.PodcastTimeout,
			OutputFolder: c.Folder("clippings"),
		}, nil
	default:
		return SkillSpec{}, fmt.Errorf("SkillFor: %w: unknown category %q", entity.ErrInvalidInput, category)
	}
}

func expandHome(path string) string {
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
