package providers

import (
	"strings"

	"github.com/satibot/satibot/pkg/config"
)

// Route selects the adapter for model: a model name containing "claude"
// goes to the Anthropic adapter, everything else to the OpenAI-compatible
// adapter (OpenRouter/OpenAI/Groq distinguished by which credential the
// config carries).
//
// Route never special-cases providers beyond construction: once built, both
// adapters are used identically via LLMProvider.
func Route(cfg config.Config, model string) (LLMProvider, error) {
	if strings.Contains(strings.ToLower(model), "claude") {
		cred := cfg.Providers.Anthropic
		if cred == nil || cred.APIKey == "" {
			return nil, &ProviderError{Kind: NoApiKey, Provider: "anthropic", Model: model, Message: "no Anthropic API key configured"}
		}
		return NewAnthropicProvider(cred.APIKey, cred.APIBase), nil
	}

	name, cred := pickOpenAICompat(cfg)
	if cred == nil || cred.APIKey == "" {
		return nil, &ProviderError{Kind: NoApiKey, Provider: name, Model: model, Message: "no API key configured for " + name}
	}
	return NewOpenAICompatProvider(name, cred.APIKey, cred.APIBase), nil
}

// PickEmbeddingCredential exposes pickOpenAICompat's selection for callers
// that need an API key/base for a remote embedding call (pkg/agent's
// tool_ctx.get_embeddings) without routing a chat model name.
func PickEmbeddingCredential(cfg config.Config) (string, *config.ProviderCredential) {
	return pickOpenAICompat(cfg)
}

// pickOpenAICompat chooses whichever OpenAI-compatible credential is
// configured, preferring OpenRouter (the multi-model gateway) then OpenAI
// then Groq, the order the config's providers section lists them.
func pickOpenAICompat(cfg config.Config) (string, *config.ProviderCredential) {
	if cfg.Providers.OpenRouter != nil && cfg.Providers.OpenRouter.APIKey != "" {
		cred := *cfg.Providers.OpenRouter
		if cred.APIBase == "" {
			cred.APIBase = "https://openrouter.ai/api/v1"
		}
		return "openrouter", &cred
	}
	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		return "openai", cfg.Providers.OpenAI
	}
	if cfg.Providers.Groq != nil && cfg.Providers.Groq.APIKey != "" {
		cred := *cfg.Providers.Groq
		if cred.APIBase == "" {
			cred.APIBase = "https://api.groq.com/openai/v1"
		}
		return "groq", &cred
	}
	return "openai", cfg.Providers.OpenAI
}
