package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

// DefaultsConfig carries the fallback durations used when a request omits
// an explicit value. All are hours.
type DefaultsConfig struct {
	DiscussionHours int `yaml:"discussion_hours"`
	OverrideHours   int `yaml:"override_hours"`
	FreezeHours     int `yaml:"freeze_hours"`
}

type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Defaults DefaultsConfig  `yaml:"defaults"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:     ":8787",
			BasePath: "/api/v1",
		},
		Defaults: DefaultsConfig{
			DiscussionHours: 24,
			OverrideHours:   2,
			FreezeHours:     24,
		},
	}
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Defaults.DiscussionHours < 1 || c.Defaults.DiscussionHours > 168 {
		return fmt.Errorf("defaults.discussion_hours must be between 1 and 168, got %d", c.Defaults.DiscussionHours)
	}
	if c.Defaults.OverrideHours < 1 || c.Defaults.OverrideHours > 24 {
		return fmt.Errorf("defaults.override_hours must be between 1 and 24, got %d", c.Defaults.OverrideHours)
	}
	if c.Defaults.FreezeHours < 1 || c.Defaults.FreezeHours > 168 {
		return fmt.Errorf("defaults.freeze_hours must be between 1 and 168, got %d", c.Defaults.FreezeHours)
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhooks[%d].url must not be empty", i)
		}
	}
	return nil
}

// Load reads and validates a config file, layered over defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional behaves like Load but falls back to defaults when the file
// does not exist.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}
