package modelengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/prompt"
)

func TestHTTPEngine_CompleteSendsMessagesAndParsesResponse(t *testing.T) {
	var gotBody chatRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponseBody{
			Choices: []struct {
				Message      chatMessage `json:"message"`
				FinishReason string      `json:"finish_reason"`
			}{{Message: chatMessage{Role: "assistant", Content: "hi there"}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, "secret", "test-model")
	resp, err := engine.Complete(context.Background(), prompt.Request{
		SystemPrompt: "be helpful",
		History:      []prompt.Turn{{Role: "user", Content: "earlier turn"}},
		UserInput:    "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)

	require.Len(t, gotBody.Messages, 3)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
	assert.Equal(t, "hello", gotBody.Messages[2].Content)
}

func TestHTTPEngine_NonSuccessStatusWrapsUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, "", "test-model")
	_, err := engine.Complete(context.Background(), prompt.Request{UserInput: "hello"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrUpstreamUnavailable))
}

func TestEchoEngine_ReflectsUserInput(t *testing.T) {
	resp, err := EchoEngine{}.Complete(context.Background(), prompt.Request{UserInput: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}
