// Package config loads non-secret, ambient tunables for the chat client:
// HTTP timeouts, the idle-chunk timeout, the view poll interval, the trash
// retention window, and the store's data-file path. API keys never flow
// through this package — those are discovered exclusively by
// internal/credential from the process environment (spec §4.1).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces tunable overrides away from the SCRIPT_KIT_* secret
// variables internal/credential reads; AICHAT_ENGINE_IDLE_TIMEOUT is
// unambiguously a tunable, never a credential.
const envPrefix = "AICHAT_"

// Config is the top-level set of ambient tunables.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Provider ProviderConfig `koanf:"provider"`
	Engine   EngineConfig   `koanf:"engine"`
}

// StoreConfig locates the Conversation Store's backing file.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ProviderConfig holds the HTTP policy shared by every adapter (spec
// §4.4.4).
type ProviderConfig struct {
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
}

// EngineConfig holds Streaming Session Engine timing knobs (spec §4.6).
type EngineConfig struct {
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	PollInterval   time.Duration `koanf:"poll_interval"`
	TrashPurgeDays int           `koanf:"trash_purge_days"`
}

func defaults() Config {
	return Config{
		Store: StoreConfig{Path: defaultStorePath()},
		Provider: ProviderConfig{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    120 * time.Second,
		},
		Engine: EngineConfig{
			IdleTimeout:    60 * time.Second,
			PollInterval:   50 * time.Millisecond,
			TrashPurgeDays: 30,
		},
	}
}

// defaultStorePath returns "<user-data>/ai/ai-chats.db" (spec §6). Falling
// back to the current directory if the platform's user-config directory
// can't be determined is preferable to failing startup outright.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "ai", "ai-chats.db")
}

// Load reads tunables from an optional YAML file, then layers AICHAT_*
// environment variable overrides on top. path may be empty, in which case
// only environment overrides and defaults apply.
func Load(path string) (*Config, error) {
	// Loads a .env file into the process environment, if present; this is
	// also how a developer supplies SCRIPT_KIT_*_API_KEY locally without
	// exporting it in their shell.
	_ = godotenv.Load()

	cfg := defaults()

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// Only the first "_" separates section from key, so
		// AICHAT_ENGINE_IDLE_TIMEOUT maps to engine.idle_timeout.
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".", 1,
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
