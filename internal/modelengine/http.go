// Package modelengine implements the model-engine boundary (§6): the
// out-of-scope LLM itself, specified here only as an adapter translating
// a prompt.Request into a call against a configured OpenAI-compatible
// chat-completions endpoint and back into a prompt.Response.
//
// Grounded on goclaw's internal/providers.OpenAIProvider for the HTTP
// client shape (bearer auth, JSON request/response, a bounded
// *http.Client) and request-body construction, generalized from a
// tool-calling ChatRequest down to this system's simpler
// system-prompt/history/user-input triple.
package modelengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/prompt"
)

// HTTPEngine implements prompt.ModelEngine against any OpenAI-compatible
// /chat/completions endpoint (OpenAI itself, Groq, OpenRouter, a local
// vLLM server, ...).
type HTTPEngine struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
}

func NewHTTPEngine(apiBase, apiKey, model string) *HTTPEngine {
	apiBase = strings.TrimRight(apiBase, "/")
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &HTTPEngine{
		apiBase: apiBase,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

type chatResponseBody struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete translates req into an OpenAI-compatible chat-completions call.
// A non-2xx response or transport failure surfaces as
// apierr.ErrUpstreamUnavailable, a transient (retriable) error; the engine
// itself makes a single attempt and does not retry.
func (e *HTTPEngine) Complete(ctx context.Context, req prompt.Request) (prompt.Response, error) {
	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserInput})

	body := chatRequestBody{
		Model:            e.model,
		Messages:         messages,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		PresencePenalty:  req.Params.PresencePenalty,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return prompt.Response{}, apierr.ErrUpstreamUnavailable.Wrap(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return prompt.Response{}, apierr.ErrUpstreamUnavailable.Wrap(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return prompt.Response{}, apierr.ErrUpstreamUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return prompt.Response{}, apierr.ErrUpstreamUnavailable.Wrap(fmt.Errorf("model engine: status %d: %s", resp.StatusCode, raw))
	}

	var parsed chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return prompt.Response{}, apierr.ErrUpstreamUnavailable.Wrap(err)
	}
	if len(parsed.Choices) == 0 {
		return prompt.Response{}, apierr.ErrUpstreamUnavailable.Wrap(fmt.Errorf("model engine: empty choices"))
	}

	return prompt.Response{
		Text:         parsed.Choices[0].Message.Content,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

// EchoEngine is a dependency-free ModelEngine used when no endpoint is
// configured (local dev, tests): it reflects the user's input back as the
// response rather than failing every request outright.
type EchoEngine struct{}

func (EchoEngine) Complete(_ context.Context, req prompt.Request) (prompt.Response, error) {
	return prompt.Response{
		Text:         "echo: " + req.UserInput,
		TokensUsed:   0,
		FinishReason: "stop",
	}, nil
}
