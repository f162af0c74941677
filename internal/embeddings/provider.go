// Package embeddings turns text into vectors through pluggable providers.
//
// A Provider wraps one embedding backend (Ollama, OpenAI, Google, or any
// OpenAI-compatible endpoint). Providers are constructed through a Registry
// so callers select the backend by configuration name.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownProvider indicates a provider name with no registered factory.
var ErrUnknownProvider = errors.New("unknown embedding provider")

// Provider generates embedding vectors for text.
//
// Embed returns a nil vector without error for empty or whitespace-only
// input. EmbedBatch returns one entry per input text; a nil entry means
// that text failed or was empty, without failing the whole batch.
type Provider interface {
	// Name returns a human-readable provider name.
	Name() string
	// MaxChars is the maximum input length in runes; longer inputs are
	// truncated before embedding.
	MaxChars() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Ping probes connectivity and returns a human-readable status message.
	Ping(ctx context.Context) (string, error)
}

// Config carries the settings a provider factory needs.
type Config struct {
	// Model is the embedding model identifier, provider-specific.
	Model string
	// Dimensions is the expected vector size. Providers that support
	// requesting a dimension pass it through; others ignore it.
	Dimensions int
	// Timeout bounds a single embedding HTTP call.
	Timeout time.Duration

	OllamaURL     string
	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// Factory constructs a Provider from configuration.
type Factory func(cfg Config) (Provider, error)

// Registry maps provider names to factories. Construct one with
// NewRegistry and pass it where providers are created; there is no
// package-level mutable registry.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry with the built-in providers: "ollama",
// "openai", "google", and "custom" (an OpenAI-compatible endpoint at
// Config.OpenAIBaseURL).
func NewRegistry() Registry {
	return Registry{factories: map[string]Factory{
		"ollama": newOllamaProvider,
		"openai": func(cfg Config) (Provider, error) { return newOpenAIProvider(cfg, false) },
		"custom": func(cfg Config) (Provider, error) { return newOpenAIProvider(cfg, true) },
		"google": newGoogleProvider,
	}}
}

// Register adds or replaces a factory under name.
func (r Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// New constructs the provider registered under name.
func (r Registry) New(name string, cfg Config) (Provider, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)",
			ErrUnknownProvider, name, strings.Join(r.Providers(), ", "))
	}
	return factory(cfg)
}

// Providers returns the registered provider names, sorted.
func (r Registry) Providers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// truncate caps text at maxChars runes.
func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
