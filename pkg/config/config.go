// Package config loads the read-only runtime configuration: agent defaults,
// provider credentials, and front-end credentials. A JSON file on disk is
// layered under environment-variable fallbacks for credentials the file omits.
package config

import (
	"encoding/json"
	"os"

	"github.com/caarlos0/env/v11"
)

// AgentDefaults holds the agent-wide behavior knobs.
type AgentDefaults struct {
	Model           string `json:"model"`
	EmbeddingModel  string `json:"embeddingModel,omitempty"`
	DisableRag      bool   `json:"disableRag,omitempty"`
	LoadChatHistory bool   `json:"loadChatHistory,omitempty"`
	MaxChatHistory  int    `json:"maxChatHistory,omitempty"`
}

// ProviderCredential holds the API key and optional base URL override for a provider.
type ProviderCredential struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
}

// Providers groups credentials for every provider the router knows about.
type Providers struct {
	OpenRouter *ProviderCredential `json:"openrouter,omitempty"`
	Anthropic  *ProviderCredential `json:"anthropic,omitempty"`
	OpenAI     *ProviderCredential `json:"openai,omitempty"`
	Groq       *ProviderCredential `json:"groq,omitempty"`
}

// TelegramConfig holds the bot token and default chat id for the Telegram front-end.
type TelegramConfig struct {
	BotToken string `json:"botToken,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
}

// Tools groups front-end-specific credentials.
type Tools struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// Agents is the top-level agents section of the config file.
type Agents struct {
	Defaults AgentDefaults `json:"defaults"`
}

// Config is the full read-only configuration snapshot. It is loaded once at
// startup, passed by value thereafter, and never mutated during a run.
type Config struct {
	Agents    Agents    `json:"agents"`
	Providers Providers `json:"providers"`
	Tools     Tools     `json:"tools"`
}

// envCredentials mirrors the four fallback environment variables, bound via
// caarlos0/env so a missing config file still yields usable credentials.
type envCredentials struct {
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	GroqAPIKey       string `env:"GROQ_API_KEY"`
}

// Default returns the built-in configuration used when no config file exists:
// no provider credentials, local embedding model, history loading disabled.
func Default() Config {
	return Config{
		Agents: Agents{
			Defaults: AgentDefaults{
				Model:          "gpt-4o-mini",
				EmbeddingModel: "local",
			},
		},
	}
}

// Load reads the JSON config file at path, falling back to Default() if the
// file does not exist, then layers environment-variable credentials onto any
// provider whose apiKey the file left unset.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if cfg.Agents.Defaults.EmbeddingModel == "" {
		cfg.Agents.Defaults.EmbeddingModel = "local"
	}

	var envCreds envCredentials
	if err := env.Parse(&envCreds); err != nil {
		return Config{}, err
	}
	applyEnvFallback(&cfg, envCreds)

	return cfg, nil
}

func applyEnvFallback(cfg *Config, creds envCredentials) {
	fill := func(slot **ProviderCredential, key string) {
		if key == "" {
			return
		}
		if *slot == nil {
			*slot = &ProviderCredential{}
		}
		if (*slot).APIKey == "" {
			(*slot).APIKey = key
		}
	}
	fill(&cfg.Providers.OpenRouter, creds.OpenRouterAPIKey)
	fill(&cfg.Providers.Anthropic, creds.AnthropicAPIKey)
	fill(&cfg.Providers.OpenAI, creds.OpenAIAPIKey)
	fill(&cfg.Providers.Groq, creds.GroqAPIKey)
}
