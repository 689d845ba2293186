package openai

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
)

// NewOpenRouter targets OpenRouter. Responses are prefixed "openrouter/";
// siteURL and siteName, when set, are sent as the HTTP-Referer and X-Title
// attribution headers.
func NewOpenRouter(apiKey, siteURL, siteName string, opts ...Option) *Provider {
	base := []Option{
		WithBaseURL(OpenRouterBaseURL),
		WithName("openrouter"),
		WithLegacyMaxTokens(),
		WithHeader("HTTP-Referer", siteURL),
		WithHeader("X-Title", siteName),
	}
	return New(apiKey, append(base, opts...)...)
}

// NewGroq targets Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey string, opts ...Option) *Provider {
	base := []Option{
		WithBaseURL(GroqBaseURL),
		WithName("groq"),
		WithLegacyMaxTokens(),
	}
	return New(apiKey, append(base, opts...)...)
}
