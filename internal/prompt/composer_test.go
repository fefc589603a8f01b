package prompt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/raidcore/raidcore/internal/identity"
	"github.com/raidcore/raidcore/internal/ingress"
)

func testSession() SessionView {
	return SessionView{
		ID:        uuid.New(),
		AgentID:   "agent-1",
		Kind:      "conversation",
		RoomID:    "room-1",
		CreatedAt: time.Now(),
	}
}

func TestCompose_OrdersHistoryOldestFirstAndTrimsToLimit(t *testing.T) {
	c := NewComposer(Params{Temperature: 0.5}, 2)

	recent := []MemoryTurn{
		{Role: "assistant", Content: "third"},  // newest
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: "first"}, // oldest, should be dropped by the limit of 2
	}

	req := c.Compose(testSession(), "hello", ingress.Classification{Category: ingress.CategoryCommunityChat}, recent, nil, Identity{}, PersonalityConfig{})

	assert.Len(t, req.History, 2)
	assert.Equal(t, "second", req.History[0].Content)
	assert.Equal(t, "third", req.History[1].Content)
	assert.Equal(t, "hello", req.UserInput)
	assert.Equal(t, 0.5, req.Params.Temperature)
}

func TestCompose_CapabilityFlagsReflectPersonaAllowList(t *testing.T) {
	c := NewComposer(Params{}, 10)
	personality := PersonalityConfig{AllowedCapabilities: []string{"raid_actions", "market_data"}}

	req := c.Compose(testSession(), "hi", ingress.Classification{Category: ingress.CategoryRaidControl}, nil, nil, Identity{}, personality)

	assert.True(t, req.CapabilityFlags["raid_actions"])
	assert.True(t, req.CapabilityFlags["market_data"])
	assert.False(t, req.CapabilityFlags["unrelated"])
}

func TestCompose_EmergencyClassificationSetsEmotionalStateHint(t *testing.T) {
	c := NewComposer(Params{}, 10)

	req := c.Compose(testSession(), "server is down", ingress.Classification{Category: ingress.CategoryEmergency, Confidence: 1}, nil, nil, Identity{}, PersonalityConfig{})

	assert.Equal(t, "distressed", req.Hints.EmotionalState)
	assert.Equal(t, ingress.CategoryEmergency, req.Hints.Classification)
}

func TestCompose_SystemPromptIncludesPersonaAndIdentityAndSemanticMemory(t *testing.T) {
	c := NewComposer(Params{}, 10)
	personality := PersonalityConfig{
		SystemPromptPreamble: "You are Raidbot.",
		Tone:                 "upbeat and terse",
		AllowedCapabilities:  []string{"raid_actions"},
	}
	ident := Identity{
		InternalID: uuid.New(),
		Bindings:   []identity.Binding{{Platform: "discord", Verified: true}},
	}
	semantic := []SemanticMatch{{Text: "user previously completed raid #42", Similarity: 0.91}}

	req := c.Compose(testSession(), "what's next", ingress.Classification{}, nil, semantic, ident, personality)

	assert.Contains(t, req.SystemPrompt, "You are Raidbot.")
	assert.Contains(t, req.SystemPrompt, "upbeat and terse")
	assert.Contains(t, req.SystemPrompt, "discord")
	assert.Contains(t, req.SystemPrompt, "verified")
	assert.Contains(t, req.SystemPrompt, "raid #42")
	assert.Contains(t, req.SystemPrompt, "raid_actions")
}
