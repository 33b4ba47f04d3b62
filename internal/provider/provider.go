// Package provider abstracts the wire formats of the supported LLM
// backends. A Provider knows how to build a request body, where to send it,
// how to authenticate, and how to read the reply; it never performs the
// HTTP call itself.
package provider

import "fmt"

// Kind identifies a supported backend. The set is closed: adding a backend
// means adding a Provider implementation, not configuration.
type Kind string

const (
	KindOpenRouter Kind = "openrouter"
	KindRequesty   Kind = "requesty"
	KindOpenAI     Kind = "openai"
	KindCustom     Kind = "custom"
	KindGemini     Kind = "gemini"
)

// Config carries per-call provider settings. Endpoint is only consulted by
// the custom backend; everyone else has a fixed URL.
type Config struct {
	Kind     Kind
	APIKey   string
	Model    string
	Endpoint string
}

// Message is one chat turn on the wire.
type Message struct {
	Role    string
	Content string
}

// Request is the provider-neutral request form.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	TopK        int
	TopP        float32
	MaxTokens   int
}

// Reply is the provider-neutral response form: the assistant's text plus
// the backend's reported total token usage (0 when not reported).
type Reply struct {
	Content     string
	TotalTokens int
}

// Provider translates between the neutral forms and one backend's wire
// format.
type Provider interface {
	Name() string
	Endpoint(cfg Config) string
	AuthHeader(cfg Config) (key, value string)
	BuildPayload(req Request) ([]byte, error)
	ParseResponse(body []byte) (Reply, error)
}

// New returns the Provider for a backend kind.
func New(kind Kind) (Provider, error) {
	switch kind {
	case KindOpenRouter:
		return &openAICompat{name: "OpenRouter", endpoint: "https://openrouter.ai/api/v1/chat/completions"}, nil
	case KindRequesty:
		return &openAICompat{name: "RequestyAI", endpoint: "https://router.requesty.ai/v1/chat/completions"}, nil
	case KindOpenAI:
		return &openAICompat{name: "OpenAI", endpoint: "https://api.openai.com/v1/chat/completions"}, nil
	case KindCustom:
		return &openAICompat{name: "Custom"}, nil
	case KindGemini:
		return &gemini{}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", kind)
	}
}
