package provider

import (
	"encoding/json"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// openAICompat speaks the chat-completions dialect shared by OpenRouter,
// RequestyAI, OpenAI, and custom OpenAI-compatible servers. Only the
// endpoint differs between them.
type openAICompat struct {
	name     string
	endpoint string
}

func (p *openAICompat) Name() string { return p.name }

func (p *openAICompat) Endpoint(cfg Config) string {
	if p.endpoint != "" {
		return p.endpoint
	}
	return cfg.Endpoint
}

func (p *openAICompat) AuthHeader(cfg Config) (string, string) {
	return "Authorization", "Bearer " + cfg.APIKey
}

func (p *openAICompat) BuildPayload(req Request) ([]byte, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	body := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		body.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	return json.Marshal(body)
}

// chatErrorEnvelope is the error shape OpenAI-compatible servers return in
// place of a completion. The SDK's response struct does not carry it.
type chatErrorEnvelope struct {
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

func (p *openAICompat) ParseResponse(body []byte) (Reply, error) {
	var envelope chatErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return Reply{}, &APIError{
			Provider: p.name,
			Message:  envelope.Error.Message,
			Code:     string(envelope.Error.Code),
		}
	}

	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, &ParseError{Provider: p.name, Reason: "invalid JSON", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Reply{}, &ParseError{Provider: p.name, Reason: "response has no choices"}
	}

	return Reply{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
