package domain

import "time"

// Message is a notification-style entry in the bounded message store.
// Ordering is by creation time; pinned entries are exempt from retention.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageInput creates a Message. CreatedAt is honored when supplied so
// replayed or imported messages keep their original ordering.
type MessageInput struct {
	Kind      string     `json:"kind"`
	Author    string     `json:"author"`
	Body      string     `json:"body"`
	Pinned    bool       `json:"pinned"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// MessagePatch updates a Message with merge semantics: nil fields keep the
// prior value.
type MessagePatch struct {
	Kind   *string `json:"kind,omitempty"`
	Author *string `json:"author,omitempty"`
	Body   *string `json:"body,omitempty"`
	Pinned *bool   `json:"pinned,omitempty"`
}
