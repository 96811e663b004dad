// Command aichat wires the Credential Registry, Model Catalog, Provider
// Adapters, Conversation Store, and Streaming Session Engine together.
// It has no CLI surface of its own — the chat view widgets the engine
// drives are treated as an external collaborator (spec §1's explicit
// non-goal) and are wired in by whatever embeds this package.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scriptkit/aichat/internal/chatstore"
	"github.com/scriptkit/aichat/internal/clock"
	"github.com/scriptkit/aichat/internal/config"
	"github.com/scriptkit/aichat/internal/credential"
	"github.com/scriptkit/aichat/internal/engine"
	"github.com/scriptkit/aichat/internal/provider"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("AICHAT_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := credential.FromEnvironment()
	if !registry.HasAny() {
		log.Warn().Msg("no provider credentials found; the engine will run in mock mode")
	}

	providers := buildProviders(registry, cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to create store directory")
	}

	ctx := context.Background()

	store, err := chatstore.Open(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open conversation store")
	}
	defer store.Close()

	eng, err := engine.NewEngine(ctx, store, registry, providers, clock.Real{}, engine.Options{
		IdleTimeout: cfg.Engine.IdleTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct engine")
	}

	log.Info().
		Strs("available_providers", registry.AvailableSlugs()).
		Str("store_path", cfg.Store.Path).
		Msg("aichat engine ready")

	_ = eng // the embedding view layer drives eng.Submit/Abort/View from here.
}

// buildProviders constructs one adapter per provider family the registry
// holds a credential for, plus the Mock provider, which is always present
// so the Engine can fall back to it per submit protocol step 7.
func buildProviders(registry *credential.Registry, cfg *config.Config) map[string]provider.Provider {
	client := provider.NewHTTPClient(cfg.Provider.ConnectTimeout, cfg.Provider.ReadTimeout)

	providers := map[string]provider.Provider{
		provider.MockSlug: provider.NewMockProvider(),
	}

	if key, ok := registry.Get(credential.SlugOpenAI); ok {
		providers[credential.SlugOpenAI] = provider.NewOpenAIProvider(key, "", client)
	}
	if key, ok := registry.Get(credential.SlugAnthropic); ok {
		providers[credential.SlugAnthropic] = provider.NewAnthropicProvider(key, "", client)
	}
	if key, ok := registry.Get(credential.SlugGoogle); ok {
		providers[credential.SlugGoogle] = provider.NewGoogleProvider(key, "", client)
	}
	if key, ok := registry.Get(credential.SlugGroq); ok {
		providers[credential.SlugGroq] = provider.NewGroqProvider(key, "", client)
	}
	if key, ok := registry.Get(credential.SlugOpenRouter); ok {
		providers[credential.SlugOpenRouter] = provider.NewOpenRouterProvider(key, "", client)
	}

	return providers
}
