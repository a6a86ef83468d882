package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// Broadcaster is the slice of the hub the manager publishes through.
type Broadcaster interface {
	Broadcast(channel string, data any) error
}

type pendingAck struct {
	eventID   string
	channel   string
	createdAt time.Time
	timer     *time.Timer
}

// Manager gives producers a single publish call over the hub's raw broadcast
// and tracks per-event delivery acknowledgment. Delivery is at-most-once with
// best-effort confirmation: on timeout the pending entry is dropped and the
// failure logged, never raised.
type Manager struct {
	hub Broadcaster
	cfg config.RelayConfig

	mu      sync.Mutex
	pending map[string]*pendingAck
}

func NewManager(hub Broadcaster, cfg config.RelayConfig) *Manager {
	return &Manager{
		hub:     hub,
		cfg:     cfg,
		pending: make(map[string]*pendingAck),
	}
}

type publishOptions struct {
	ack     bool
	timeout time.Duration
}

type PublishOption func(*publishOptions)

// WithAck registers a pending acknowledgment for the event, expiring after
// the configured default timeout.
func WithAck() PublishOption {
	return func(o *publishOptions) { o.ack = true }
}

// WithAckTimeout is WithAck with a per-publish timeout override.
func WithAckTimeout(d time.Duration) PublishOption {
	return func(o *publishOptions) {
		o.ack = true
		o.timeout = d
	}
}

// Publish frames the payload as {id, channel, type, payload, timestamp},
// broadcasts it, and returns the assigned event id.
func (m *Manager) Publish(channel, eventType string, payload any, opts ...PublishOption) (string, error) {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = m.cfg.AckTimeout
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Channel:   channel,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := m.hub.Broadcast(channel, event); err != nil {
		return "", err
	}

	if o.ack {
		m.track(event.ID, channel, o.timeout)
	}

	l := log.L()
	l.Debug().Str(log.FieldEventID, event.ID).Str(log.FieldChannel, channel).Str("event_type", eventType).Msg("published")
	return event.ID, nil
}

// PublishLowerThird publishes a lower-third overlay update.
func (m *Manager) PublishLowerThird(p domain.LowerThirdPayload) (string, error) {
	return m.Publish(domain.ChannelLower, "lower.set", p, WithAck())
}

// PublishCountdown publishes a countdown overlay update.
func (m *Manager) PublishCountdown(p domain.CountdownPayload) (string, error) {
	return m.Publish(domain.ChannelCountdown, "countdown.set", p, WithAck())
}

// PublishPoster publishes a poster overlay update.
func (m *Manager) PublishPoster(p domain.PosterPayload) (string, error) {
	return m.Publish(domain.ChannelPoster, "poster.set", p, WithAck())
}

// HandleAck resolves the matching pending entry. A late or duplicate ack is a
// silent no-op.
func (m *Manager) HandleAck(ack domain.Ack) {
	m.mu.Lock()
	p, ok := m.pending[ack.EventID]
	if ok {
		p.timer.Stop()
		delete(m.pending, ack.EventID)
	}
	m.mu.Unlock()

	l := log.L()
	if !ok {
		l.Debug().Str(log.FieldEventID, ack.EventID).Msg("ack without pending entry ignored")
		return
	}
	if !ack.Success {
		l.Warn().Str(log.FieldEventID, ack.EventID).Str(log.FieldChannel, ack.Channel).Str("client_error", ack.Error).Msg("event rejected by client")
		return
	}
	l.Debug().Str(log.FieldEventID, ack.EventID).Str(log.FieldChannel, ack.Channel).Msg("event acknowledged")
}

// HandleDisconnect clears every pending entry on channels left without any
// subscriber, so entries from clients that vanish mid-flight cannot pile up.
func (m *Manager) HandleDisconnect(orphanedChannels []string) {
	if len(orphanedChannels) == 0 {
		return
	}
	orphaned := make(map[string]struct{}, len(orphanedChannels))
	for _, ch := range orphanedChannels {
		orphaned[ch] = struct{}{}
	}

	m.mu.Lock()
	var cleared int
	for id, p := range m.pending {
		if _, ok := orphaned[p.channel]; ok {
			p.timer.Stop()
			delete(m.pending, id)
			cleared++
		}
	}
	m.mu.Unlock()

	if cleared > 0 {
		l := log.L()
		l.Debug().Int("cleared", cleared).Msg("pending acks cleared after disconnect")
	}
}

// PendingCount reports the number of unresolved acknowledgments.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stop cancels all pending timers.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, p := range m.pending {
		p.timer.Stop()
		delete(m.pending, id)
	}
	m.mu.Unlock()
}

func (m *Manager) track(eventID, channel string, timeout time.Duration) {
	p := &pendingAck{
		eventID:   eventID,
		channel:   channel,
		createdAt: time.Now(),
	}
	p.timer = time.AfterFunc(timeout, func() {
		m.expire(eventID)
	})

	m.mu.Lock()
	m.pending[eventID] = p
	m.mu.Unlock()
}

func (m *Manager) expire(eventID string) {
	m.mu.Lock()
	p, ok := m.pending[eventID]
	if ok {
		delete(m.pending, eventID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	l := log.L()
	l.Warn().Str(log.FieldEventID, eventID).Str(log.FieldChannel, p.channel).Dur("waited", time.Since(p.createdAt)).Msg("delivery unconfirmed, pending ack dropped")
}
