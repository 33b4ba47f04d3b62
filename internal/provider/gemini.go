package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// gemini speaks the generateContent dialect. System-role messages do not
// exist on this wire; they are merged into systemInstruction and dropped
// from contents.
type gemini struct{}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *gemini) Name() string { return "Gemini" }

func (g *gemini) Endpoint(cfg Config) string {
	return fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
}

func (g *gemini) AuthHeader(cfg Config) (string, string) {
	return "x-goog-api-key", cfg.APIKey
}

func (g *gemini) BuildPayload(req Request) ([]byte, error) {
	var systemParts []string
	var contents []geminiContent

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, m.Content)
		case "assistant":
			contents = append(contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}

	body := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopK:            req.TopK,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if len(systemParts) > 0 {
		body.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: strings.Join(systemParts, "\n")}},
		}
	}
	return json.Marshal(body)
}

func (g *gemini) ParseResponse(body []byte) (Reply, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, &ParseError{Provider: g.Name(), Reason: "invalid JSON", Err: err}
	}
	if resp.Error != nil {
		code := resp.Error.Status
		if code == "" && resp.Error.Code != 0 {
			code = fmt.Sprintf("%d", resp.Error.Code)
		}
		return Reply{}, &APIError{Provider: g.Name(), Message: resp.Error.Message, Code: code}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Reply{}, &ParseError{Provider: g.Name(), Reason: "response has no candidates"}
	}

	return Reply{
		Content:     resp.Candidates[0].Content.Parts[0].Text,
		TotalTokens: resp.UsageMetadata.TotalTokenCount,
	}, nil
}
