package generation

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Credentials holds per-provider keys and overrides. An empty key leaves that
// provider out of the chain.
type Credentials struct {
	GeminiAPIKey string
	GeminiModel  string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	KimiAPIKey  string
	KimiBaseURL string
	KimiModel   string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
}

// BuildProviders returns the configured providers in chain order: Gemini,
// Anthropic, Kimi, OpenRouter.
func BuildProviders(ctx context.Context, creds Credentials, httpClient *http.Client, logger *zap.Logger) []Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []Provider
	if GeminiConfigured(creds.GeminiAPIKey) {
		g, err := NewGemini(ctx, creds.GeminiAPIKey, creds.GeminiModel)
		if err != nil {
			logger.Warn("gemini provider disabled", zap.Error(err))
		} else {
			out = append(out, g)
		}
	}
	if configured(creds.AnthropicAPIKey) {
		out = append(out, NewAnthropic(creds.AnthropicAPIKey, creds.AnthropicBaseURL, creds.AnthropicModel, httpClient))
	}
	if configured(creds.KimiAPIKey) {
		out = append(out, NewKimi(creds.KimiAPIKey, creds.KimiBaseURL, creds.KimiModel, httpClient))
	}
	if configured(creds.OpenRouterAPIKey) {
		out = append(out, NewOpenRouter(creds.OpenRouterAPIKey, creds.OpenRouterBaseURL, creds.OpenRouterModel, httpClient))
	}
	names := make([]string, 0, len(out))
	for _, p := range out {
		names = append(names, p.Name())
	}
	logger.Info("generation providers", zap.Strings("providers", names))
	return out
}

func configured(key string) bool {
	return strings.TrimSpace(key) != ""
}
