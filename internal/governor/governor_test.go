package governor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clio-ai/clio/internal/provider"
	"github.com/clio-ai/clio/internal/session"
)

func newChatServer(t *testing.T, replies []string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		reply := replies[int(n-1)%len(replies)]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "` + reply + `"}}],
			"usage": {"total_tokens": 10}
		}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestGovernor(t *testing.T, endpoint string) (*Governor, *session.Store) {
	t.Helper()
	sessions := session.NewStore(t.TempDir(), nil)
	g := New(sessions, Settings{
		Provider:       provider.KindCustom,
		APIKey:         "test-key",
		Model:          "gpt-4o-mini",
		CustomEndpoint: endpoint,
		MaxTokens:      256,
		Temperature:    0.7,
	}, nil)
	return g, sessions
}

func TestDispatchPersistsBothTurns(t *testing.T) {
	server, _ := newChatServer(t, []string{"first answer", "second answer"})
	g, sessions := newTestGovernor(t, server.URL)

	resp, err := g.Dispatch(context.Background(), "hi", "", "you are terse", 0)
	require.NoError(t, err)
	assert.Equal(t, "first answer", resp.Content)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, g.CurrentSession())

	resp2, err := g.Dispatch(context.Background(), "again", resp.SessionID, "you are terse", 0)
	require.NoError(t, err)
	assert.Equal(t, "second answer", resp2.Content)
	assert.Equal(t, resp.SessionID, resp2.SessionID)

	sess, err := sessions.Load(resp.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Entries, 4)
	assert.Equal(t, session.RoleUser, sess.Entries[0].Role)
	assert.Equal(t, "hi", sess.Entries[0].Content)
	assert.Equal(t, session.RoleAssistant, sess.Entries[1].Role)
	assert.Equal(t, "first answer", sess.Entries[1].Content)
	assert.Equal(t, "again", sess.Entries[2].Content)
	assert.Equal(t, "second answer", sess.Entries[3].Content)
	assert.Equal(t, 20, sess.TotalTokens)
}

func TestDispatchReusesCurrentSession(t *testing.T) {
	server, _ := newChatServer(t, []string{"ok"})
	g, _ := newTestGovernor(t, server.URL)

	resp, err := g.Dispatch(context.Background(), "one", "", "", 0)
	require.NoError(t, err)
	resp2, err := g.Dispatch(context.Background(), "two", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, resp2.SessionID)
}

func TestDispatchUnknownSession(t *testing.T) {
	server, calls := newChatServer(t, []string{"ok"})
	g, _ := newTestGovernor(t, server.URL)

	_, err := g.Dispatch(context.Background(), "hi", "session_missing", "", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNotFound))
	assert.EqualValues(t, 0, *calls)
}

type declineAll struct{}

func (declineAll) Confirm(RequestAnalysis) bool { return false }

type acceptAll struct{}

func (acceptAll) Confirm(RequestAnalysis) bool { return true }

func TestDispatchDeclinedKeepsUserTurn(t *testing.T) {
	server, calls := newChatServer(t, []string{"ok"})
	g, sessions := newTestGovernor(t, server.URL)
	g.settings.Model = "tiny-test-model"
	g.settings.MaxTokens = 0
	g.SetConfirmer(declineAll{})

	// defaultRecord allows 32000 context tokens; this prompt overshoots it.
	huge := make([]byte, 300000)
	for i := range huge {
		huge[i] = 'a'
	}

	_, err := g.Dispatch(context.Background(), string(huge), "", "", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrUserDeclined))
	assert.EqualValues(t, 0, *calls, "no network call after decline")

	sess, err := sessions.Load(g.CurrentSession())
	require.NoError(t, err)
	require.Len(t, sess.Entries, 1, "declined dispatch still keeps the prompt")
	assert.Equal(t, session.RoleUser, sess.Entries[0].Role)
}

func TestDispatchConfirmedProceeds(t *testing.T) {
	server, calls := newChatServer(t, []string{"went through"})
	g, _ := newTestGovernor(t, server.URL)
	g.settings.Model = "tiny-test-model"
	g.settings.MaxTokens = 0
	g.SetConfirmer(acceptAll{})

	huge := make([]byte, 300000)
	for i := range huge {
		huge[i] = 'a'
	}

	resp, err := g.Dispatch(context.Background(), string(huge), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "went through", resp.Content)
	assert.False(t, resp.Analysis.WithinLimits)
	assert.EqualValues(t, 1, *calls)
}

func TestDispatchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	g, _ := newTestGovernor(t, server.URL)

	_, err := g.Dispatch(context.Background(), "hi", "", "", 0)
	require.Error(t, err)
	var httpErr *provider.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
}

func TestAnalyzeMath(t *testing.T) {
	g, _ := newTestGovernor(t, "http://unused")

	// 4000 characters estimate to 1000 input tokens; output is capped by
	// MaxTokens at 256.
	prompt := make([]byte, 4000)
	for i := range prompt {
		prompt[i] = 'x'
	}
	analysis := g.Analyze("", string(prompt[:len(prompt)-3]), 0)
	assert.Equal(t, 1000, analysis.InputTokens)
	assert.Equal(t, 256, analysis.EstimatedOutputTokens)
	assert.True(t, analysis.WithinLimits)
	assert.InDelta(t, 1000.0/1000*0.00015+256.0/1000*0.0006, analysis.EstimatedCost, 1e-9)

	analysis = g.Analyze("", "short", 64)
	assert.Equal(t, 64, analysis.EstimatedOutputTokens, "caller cap wins")
}

func TestLookupModel(t *testing.T) {
	rec := LookupModel("gpt-4o-mini")
	assert.Equal(t, 0.00015, rec.InputPer1K)

	routed := LookupModel("openai/gpt-4o-mini")
	assert.Equal(t, rec, routed, "provider route prefix is stripped")

	fallback := LookupModel("some-unknown-model")
	assert.Equal(t, 32000, fallback.MaxContextTokens)
}
