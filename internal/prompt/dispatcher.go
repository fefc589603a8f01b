package prompt

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/ingress"
	"github.com/raidcore/raidcore/internal/memory"
)

// ModelEngine is the injected boundary to whatever LLM backend is
// configured. internal/modelengine's HTTPEngine and EchoEngine implement
// it and are wired in the composition root (internal/app); Dispatcher
// never imports a concrete engine package.
type ModelEngine interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Dispatcher performs the model-engine call the Composer deliberately
// doesn't, then humanizes, persists, and publishes the result.
type Dispatcher struct {
	composer     *Composer
	engine       ModelEngine
	memory       *memory.Store
	bus          *bus.Bus
	timeout      time.Duration
	humanization HumanizationConfig
	rngMu        sync.Mutex
	rng          *rand.Rand
	logger       *slog.Logger
}

func NewDispatcher(composer *Composer, engine ModelEngine, store *memory.Store, eventBus *bus.Bus, timeout time.Duration, humanization HumanizationConfig, seed int64, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		composer:     composer,
		engine:       engine,
		memory:       store,
		bus:          eventBus,
		timeout:      timeout,
		humanization: humanization,
		rng:          rand.New(rand.NewSource(seed)),
		logger:       logger,
	}
}

// Dispatch composes the request, calls the model engine under a bounded
// timeout, humanizes the response, persists both sides of the turn to
// Memory Store, and publishes session.message on the bus. Persistence
// happens before publish, and a publish failure never unwinds it — the
// bus is a best-effort fan-out, not the system of record.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	session SessionView,
	incomingText string,
	classification ingress.Classification,
	recentMemory []MemoryTurn,
	semanticMemory []SemanticMatch,
	ident Identity,
	personality PersonalityConfig,
) (Response, error) {
	req := d.composer.Compose(session, incomingText, classification, recentMemory, semanticMemory, ident, personality)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.engine.Complete(callCtx, req)
	if err != nil {
		return Response{}, apierr.ErrUpstreamUnavailable.Wrap(err)
	}

	humanization := personality.Humanization
	if humanization == (HumanizationConfig{}) {
		humanization = d.humanization
	}
	d.rngMu.Lock()
	resp.Text = Humanize(resp.Text, humanization, d.rng)
	d.rngMu.Unlock()

	if err := d.persistTurn(ctx, session, incomingText, resp); err != nil {
		d.logger.Warn("prompt.dispatch: persist turn failed", "session_id", session.ID, "error", err)
	}

	d.publishTurn(session, resp)
	return resp, nil
}

func (d *Dispatcher) persistTurn(ctx context.Context, session SessionView, incomingText string, resp Response) error {
	now := time.Now().UTC()
	return d.memory.PutMany(ctx, []memory.Item{
		{
			AgentID:  session.AgentID,
			RoomID:   session.RoomID,
			Kind:     memory.KindConversationTurn,
			BodyText: incomingText,
			BodyFields: map[string]any{
				"role":       "user",
				"session_id": session.ID.String(),
			},
			CreatedAt: now,
		},
		{
			AgentID:  session.AgentID,
			RoomID:   session.RoomID,
			Kind:     memory.KindConversationTurn,
			BodyText: resp.Text,
			BodyFields: map[string]any{
				"role":          "assistant",
				"session_id":    session.ID.String(),
				"tokens_used":   resp.TokensUsed,
				"finish_reason": resp.FinishReason,
			},
			CreatedAt: now.Add(time.Nanosecond),
		},
	})
}

func (d *Dispatcher) publishTurn(session SessionView, response Response) {
	topic := bus.SessionTopic(session.ID.String())
	d.bus.Publish(topic, bus.Event{
		Name:  "session.message",
		Topic: topic,
		Payload: map[string]any{
			"text":          response.Text,
			"finish_reason": response.FinishReason,
			"tokens_used":   response.TokensUsed,
		},
	})
}
