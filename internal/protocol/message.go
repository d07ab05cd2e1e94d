// Package protocol defines the typed events exchanged with clients and the
// per-seat projections of game state. It is transport agnostic: the server
// package moves these over WebSocket, tests construct them directly.
package protocol

import (
	"encoding/json"
	"time"
)

// EventType identifies a message on the wire
type EventType string

// Client → Server
const (
	EventTableLeave       EventType = "table:leave"
	EventTableSpectate    EventType = "table:spectate"
	EventGameAction       EventType = "game:action"
	EventMatchmakingJoin  EventType = "matchmaking:join"
	EventMatchmakingLeave EventType = "matchmaking:leave"
)

// Server → Client
const (
	EventConnectionEstablished EventType = "connection:established"
	EventConnectionError       EventType = "connection:error"
	EventTableJoined           EventType = "table:joined"
	EventTableLeft             EventType = "table:left"
	EventTableChange           EventType = "table:change"
	EventTableBusted           EventType = "table:busted"
	EventTableError            EventType = "table:error"
	EventTablePlayerJoined     EventType = "table:player_joined"
	EventTablePlayerLeft       EventType = "table:player_left"
	EventTableSpectating       EventType = "table:spectating"
	EventGameState             EventType = "game:state"
	EventGameHoleCards         EventType = "game:hole_cards"
	EventGameActionRequired    EventType = "game:action_required"
	EventGameActionTaken       EventType = "game:action_taken"
	EventGameShowdown          EventType = "game:showdown"
	EventGameHandComplete      EventType = "game:hand_complete"
	EventGameAllHoleCards      EventType = "game:all_hole_cards"
	EventMaintenanceStatus     EventType = "maintenance:status"
)

// Message is the wire envelope
type Message struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload in an envelope with the current timestamp
func NewMessage(t EventType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{Type: t, Data: raw, Timestamp: time.Now()}, nil
}

// MustMessage is NewMessage for payloads that cannot fail to marshal
func MustMessage(t EventType, data any) *Message {
	m, err := NewMessage(t, data)
	if err != nil {
		panic(err)
	}
	return m
}

// DecodeData unmarshals the payload into out
func (m *Message) DecodeData(out any) error {
	return json.Unmarshal(m.Data, out)
}
