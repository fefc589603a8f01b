// Package discord implements the Discord ingress adapter: interaction
// webhook signature verification, payload normalization, and replies via
// the REST API.
package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/raidcore/raidcore/internal/ingress"
)

// Adapter implements ingress.Adapter for Discord's interactions webhook
// model: Discord signs every webhook delivery with Ed25519 over
// timestamp+body, per its documented interaction signature scheme.
type Adapter struct {
	publicKey ed25519.PublicKey
	session   *discordgo.Session
}

// New creates a Discord adapter. botToken drives the discordgo.Session
// used for replies; publicKeyHex is the application's interactions
// public key used for signature verification.
func New(botToken, publicKeyHex string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord ingress: create session: %w", err)
	}
	pk, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("discord ingress: decode public key: %w", err)
	}
	return &Adapter{publicKey: ed25519.PublicKey(pk), session: session}, nil
}

func (a *Adapter) Platform() string { return "discord" }

// Verify checks Discord's Ed25519 interaction signature: the signed
// message is the request timestamp concatenated with the raw body.
func (a *Adapter) Verify(rawRequest []byte, headers map[string]string) error {
	sigHex := headers["X-Signature-Ed25519"]
	timestamp := headers["X-Signature-Timestamp"]
	if sigHex == "" || timestamp == "" {
		return fmt.Errorf("discord ingress: missing signature headers")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("discord ingress: malformed signature: %w", err)
	}
	msg := append([]byte(timestamp), rawRequest...)
	if !ed25519.Verify(a.publicKey, msg, sig) {
		return fmt.Errorf("discord ingress: signature mismatch")
	}
	return nil
}

// interactionPayload is a minimal decode target covering the fields
// normalization needs, independent of discordgo's gateway-event types
// (which model socket events, not the interactions-webhook HTTP shape).
type interactionPayload struct {
	ID        string `json:"id" validate:"required"`
	Type      int    `json:"type" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	Member    *struct {
		User struct {
			ID string `json:"id" validate:"required"`
		} `json:"user" validate:"required"`
	} `json:"member"`
	User *struct {
		ID string `json:"id" validate:"required"`
	} `json:"user"`
	Data *struct {
		Name    string `json:"name"`
		CustomID string `json:"custom_id"`
	} `json:"data"`
}

func (a *Adapter) decode(rawRequest []byte) (interactionPayload, error) {
	var p interactionPayload
	if err := json.Unmarshal(rawRequest, &p); err != nil {
		return interactionPayload{}, err
	}
	return p, nil
}

func (a *Adapter) ValidatePayload(rawRequest []byte) []ingress.ValidationError {
	p, err := a.decode(rawRequest)
	if err != nil {
		return []ingress.ValidationError{{Message: err.Error()}}
	}
	return ingress.Validate(p)
}

func (a *Adapter) Parse(rawRequest []byte, _ map[string]string) (ingress.InboundMessage, error) {
	p, err := a.decode(rawRequest)
	if err != nil {
		return ingress.InboundMessage{}, err
	}

	userID := ""
	switch {
	case p.Member != nil:
		userID = p.Member.User.ID
	case p.User != nil:
		userID = p.User.ID
	}

	text := ""
	if p.Data != nil {
		if p.Data.Name != "" {
			text = p.Data.Name
		} else {
			text = p.Data.CustomID
		}
	}

	return ingress.InboundMessage{
		SourcePlatform: "discord",
		SourceUserKey:  userID,
		RoomKey:        p.ChannelID,
		Text:           text,
		RawRef:         p.ID,
		ReceivedAt:     time.Now().UTC(),
	}, nil
}

// Reply posts a message back to the originating channel via the REST API.
func (a *Adapter) Reply(_ context.Context, target string, text string, attachments []string) error {
	_, err := a.session.ChannelMessageSend(target, text)
	if err != nil {
		return fmt.Errorf("discord ingress: reply: %w", err)
	}
	_ = attachments // file attachments use a separate discordgo send path; text-only reply covers the common case
	return nil
}
