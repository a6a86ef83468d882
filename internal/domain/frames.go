package domain

import "encoding/json"

// WebSocket frame types from client.
const (
	MsgTypeSubscribe      = "subscribe"
	MsgTypeUnsubscribe    = "unsubscribe"
	MsgTypeAck            = "ack"
	MsgTypeState          = "state"
	MsgTypeJoinPresenter  = "join-presenter"
	MsgTypeLeavePresenter = "leave-presenter"
	MsgTypeCueAction      = "cue-action"
	MsgTypePresencePing   = "presence-ping"
)

// WebSocket frame types to client.
const (
	MsgTypePresence = "presence"
	MsgTypeReplay   = "replay"
)

// BaseFrame is the base structure for all inbound frames; the type field
// selects the concrete frame.
type BaseFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

type SubscribeFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type AckFrame struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StateFrame is the one client-originated broadcast path: the attached
// payload is relayed verbatim to the named channel.
type StateFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type JoinPresenterFrame struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

type CueActionFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Action    string `json:"action"`
}

// Server -> Client frames

// BroadcastEnvelope wraps every fan-out delivery.
type BroadcastEnvelope struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

type PresenceMessage struct {
	Type      string          `json:"type"`
	Presence  []PresenceEntry `json:"presence"`
	Timestamp int64           `json:"timestamp"`
}

// ReplayMessage is sent once, directly, to a connection that just joined a
// presenter role so it can reconstruct state it never observed.
type ReplayMessage struct {
	Type           string          `json:"type"`
	Messages       []Message       `json:"messages"`
	PinnedMessages []Message       `json:"pinnedMessages"`
	Presence       []PresenceEntry `json:"presence"`
	Timestamp      int64           `json:"timestamp"`
}
