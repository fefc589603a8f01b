// Package protocol defines the WebSocket wire messages for WS /events:
// a client-to-server subscribe/unsubscribe envelope and a
// server-to-client push envelope, plus the event-name constants the
// server pushes under.
//
// Grounded on goclaw's pkg/protocol/events.go (a flat const block of
// wire event names rather than a typed enum, so new event names are
// additive and never require a type change on either side of the wire).
package protocol

// ProtocolVersion is printed by `raidcore version` and `raidcore doctor`
// and is bumped on any breaking change to the envelope shapes below.
const ProtocolVersion = 1

// Client-to-server operation names.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// ClientMessage is a client-to-server WS frame.
type ClientMessage struct {
	Op             string `json:"op"`
	Topic          string `json:"topic,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// ServerMessage is a server-to-client WS frame, pushed on every bus
// delivery this connection is subscribed to.
type ServerMessage struct {
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload,omitempty"`
}

// SubscribeAck acknowledges a successful subscribe, carrying the
// subscription_id the client later passes to unsubscribe.
type SubscribeAck struct {
	Event          string `json:"event"`
	SubscriptionID string `json:"subscription_id"`
	Topic          string `json:"topic"`
}

// ErrorFrame reports a malformed client frame or a rejected operation.
type ErrorFrame struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Event names the server pushes over WS and the bus publishes under.
const (
	EventSessionMessage = "session.message"
	EventSessionEnded   = "session.ended"
	EventRaidProgress   = "raid.progress"
	EventRaidEnded      = "raid.ended"
	EventShutdown       = "shutdown"

	// EventSubscribed/EventUnsubscribed/EventError are control-plane
	// frames the server sends in direct response to a client op, as
	// opposed to the bus-originated events above.
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
)

func NewServerMessage(event, topic string, payload any) ServerMessage {
	return ServerMessage{Event: event, Topic: topic, Payload: payload}
}
