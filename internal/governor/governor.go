// Package governor decides whether, and how, a prompt becomes a provider
// request. It estimates the token and cost footprint before any network
// traffic, gates over-budget requests behind an explicit confirmation, and
// persists both sides of the exchange on the session.
package governor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clio-ai/clio/internal/provider"
	"github.com/clio-ai/clio/internal/session"
)

// Settings mirrors the provider configuration consumed per dispatch.
type Settings struct {
	Provider       provider.Kind
	APIKey         string
	Model          string
	CustomEndpoint string
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float32
}

// RequestAnalysis is the pre-flight footprint of one request. It is
// computed fresh per dispatch and never persisted.
type RequestAnalysis struct {
	InputTokens           int
	EstimatedOutputTokens int
	EstimatedCost         float64
	WithinLimits          bool
}

// Confirmer gates requests that blow the model's context limit. Returning
// false aborts the dispatch before any network call.
type Confirmer interface {
	Confirm(analysis RequestAnalysis) bool
}

// Response is the normalized outcome of a successful dispatch.
type Response struct {
	SessionID   string
	Content     string
	TotalTokens int
	Analysis    RequestAnalysis
}

// Governor owns the dispatch pipeline. It keeps track of the current
// session so consecutive calls without an explicit id land in the same
// conversation.
type Governor struct {
	sessions  *session.Store
	settings  Settings
	confirmer Confirmer
	client    *http.Client
	log       *zap.Logger
	current   string
}

func New(sessions *session.Store, settings Settings, log *zap.Logger) *Governor {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := time.Duration(settings.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Governor{
		sessions: sessions,
		settings: settings,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// SetConfirmer installs the confirmation gate. Without one, over-limit
// requests are declined outright.
func (g *Governor) SetConfirmer(c Confirmer) { g.confirmer = c }

// CurrentSession returns the session id the next dispatch will default to.
func (g *Governor) CurrentSession() string { return g.current }

// Analyze computes the pre-flight footprint for a prompt against the
// configured model. callerMaxTokens caps the output estimate when positive.
func (g *Governor) Analyze(systemInstruction, prompt string, callerMaxTokens int) RequestAnalysis {
	input := EstimateTokens(systemInstruction + prompt)

	output := input / 2
	if g.settings.MaxTokens > 0 && output > g.settings.MaxTokens {
		output = g.settings.MaxTokens
	}
	if callerMaxTokens > 0 {
		output = callerMaxTokens
	}

	record := LookupModel(g.settings.Model)
	cost := float64(input)/1000*record.InputPer1K + float64(output)/1000*record.OutputPer1K

	return RequestAnalysis{
		InputTokens:           input,
		EstimatedOutputTokens: output,
		EstimatedCost:         cost,
		WithinLimits:          input+output <= record.MaxContextTokens,
	}
}

// Dispatch runs the full pipeline: resolve the session, persist the user
// turn, pre-flight, single POST, parse, persist the assistant turn. There
// is no retry; any failure is terminal for this request.
func (g *Governor) Dispatch(ctx context.Context, prompt, sessionID, systemInstruction string, temperature float32) (*Response, error) {
	id, err := g.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	sess, err := g.sessions.Load(id)
	if err != nil {
		return nil, err
	}

	messages := buildMessages(systemInstruction, sess.Entries, prompt)

	// The user turn is persisted before dispatch so a failed request never
	// loses the prompt.
	if err := g.sessions.AppendEntry(id, session.RoleUser, prompt); err != nil {
		return nil, fmt.Errorf("failed to record user turn: %w", err)
	}

	analysis := g.Analyze(systemInstruction, prompt, 0)
	if !analysis.WithinLimits {
		if g.confirmer == nil || !g.confirmer.Confirm(analysis) {
			g.log.Info("request declined at confirmation gate",
				zap.Int("input_tokens", analysis.InputTokens),
				zap.Float64("estimated_cost", analysis.EstimatedCost))
			return nil, fmt.Errorf("request exceeds model context limit: %w", provider.ErrUserDeclined)
		}
	}

	reply, err := g.send(ctx, messages, temperature)
	if err != nil {
		return nil, err
	}

	if err := g.sessions.AppendEntry(id, session.RoleAssistant, reply.Content); err != nil {
		return nil, fmt.Errorf("failed to record assistant turn: %w", err)
	}
	if reply.TotalTokens > 0 {
		if err := g.sessions.AddTokens(id, reply.TotalTokens); err != nil {
			g.log.Warn("failed to record token usage", zap.String("session", id), zap.Error(err))
		}
	}

	return &Response{
		SessionID:   id,
		Content:     reply.Content,
		TotalTokens: reply.TotalTokens,
		Analysis:    analysis,
	}, nil
}

func (g *Governor) resolveSession(explicit string) (string, error) {
	if explicit != "" {
		if !g.sessions.Exists(explicit) {
			return "", fmt.Errorf("%w: %s", session.ErrNotFound, explicit)
		}
		g.current = explicit
		return explicit, nil
	}
	if g.current != "" && g.sessions.Exists(g.current) {
		return g.current, nil
	}

	id, err := g.sessions.Create()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	g.current = id
	return id, nil
}

func buildMessages(systemInstruction string, history []session.HistoryEntry, prompt string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+2)
	if systemInstruction != "" {
		messages = append(messages, provider.Message{Role: string(session.RoleSystem), Content: systemInstruction})
	}
	for _, e := range history {
		messages = append(messages, provider.Message{Role: string(e.Role), Content: e.Content})
	}
	return append(messages, provider.Message{Role: string(session.RoleUser), Content: prompt})
}

func (g *Governor) send(ctx context.Context, messages []provider.Message, temperature float32) (provider.Reply, error) {
	p, err := provider.New(g.settings.Provider)
	if err != nil {
		return provider.Reply{}, err
	}

	cfg := provider.Config{
		Kind:     g.settings.Provider,
		APIKey:   g.settings.APIKey,
		Model:    g.settings.Model,
		Endpoint: g.settings.CustomEndpoint,
	}

	if temperature <= 0 {
		temperature = g.settings.Temperature
	}
	payload, err := p.BuildPayload(provider.Request{
		Model:       g.settings.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   g.settings.MaxTokens,
	})
	if err != nil {
		return provider.Reply{}, fmt.Errorf("failed to build %s payload: %w", p.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(cfg), bytes.NewReader(payload))
	if err != nil {
		return provider.Reply{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	key, value := p.AuthHeader(cfg)
	req.Header.Set(key, value)

	resp, err := g.client.Do(req)
	if err != nil {
		return provider.Reply{}, fmt.Errorf("request to %s failed: %w", p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Reply{}, fmt.Errorf("failed to read %s response: %w", p.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.Reply{}, &provider.HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	return p.ParseResponse(body)
}
