package domain

// Overlay channels with typed publish wrappers, plus the implicit presenter
// channel. Channels are not pre-declared; these are just the well-known names.
const (
	ChannelLower     = "lower"
	ChannelCountdown = "countdown"
	ChannelPoster    = "poster"
	ChannelPresenter = "presenter"
)

// Event is the framed payload the channel manager broadcasts; it travels as
// the data field of a BroadcastEnvelope.
type Event struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Ack is a resolved acknowledgment frame routed from the hub to the channel
// manager.
type Ack struct {
	EventID string
	Channel string
	Success bool
	Error   string
}

// LowerThirdPayload drives the lower-third overlay.
type LowerThirdPayload struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Theme      string `json:"theme,omitempty"`
	DurationMS int    `json:"durationMs,omitempty"`
}

// CountdownPayload drives the countdown overlay.
type CountdownPayload struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label,omitempty"`
}

// PosterPayload drives the poster overlay.
type PosterPayload struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
	Visible bool   `json:"visible"`
}
