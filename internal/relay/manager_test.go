package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeBroadcaster) Broadcast(channel string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data.(domain.Event))
	return nil
}

func (f *fakeBroadcaster) last(t *testing.T) domain.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatal("no events broadcast")
	}
	return f.events[len(f.events)-1]
}

func newTestManager(timeout time.Duration) (*Manager, *fakeBroadcaster) {
	b := &fakeBroadcaster{}
	return NewManager(b, config.RelayConfig{AckTimeout: timeout}), b
}

func TestPublishFramesEvent(t *testing.T) {
	t.Parallel()
	m, b := newTestManager(time.Second)

	id, err := m.Publish("lower", "lower.set", map[string]string{"title": "guest"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	evt := b.last(t)
	if evt.ID != id {
		t.Errorf("event id = %s, want %s", evt.ID, id)
	}
	if evt.Channel != "lower" || evt.Type != "lower.set" {
		t.Errorf("envelope = %+v", evt)
	}
	if evt.Timestamp == 0 {
		t.Error("timestamp not set")
	}

	// Without WithAck nothing is tracked.
	if n := m.PendingCount(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestAckResolvesPending(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(time.Minute)

	id, err := m.Publish("countdown", "countdown.set", domain.CountdownPayload{Seconds: 60}, WithAck())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n := m.PendingCount(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	m.HandleAck(domain.Ack{EventID: id, Channel: "countdown", Success: true})
	if n := m.PendingCount(); n != 0 {
		t.Errorf("pending after ack = %d, want 0", n)
	}

	// Duplicate ack is a silent no-op.
	m.HandleAck(domain.Ack{EventID: id, Channel: "countdown", Success: true})
	if n := m.PendingCount(); n != 0 {
		t.Errorf("pending after duplicate ack = %d, want 0", n)
	}
}

func TestAckTimeoutDropsPending(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(time.Minute)

	id, err := m.Publish("countdown", "countdown.set", domain.CountdownPayload{Seconds: 60}, WithAckTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.PendingCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("pending entry not dropped after timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A late ack after the timeout is accepted as a no-op.
	m.HandleAck(domain.Ack{EventID: id, Channel: "countdown", Success: true})
	if n := m.PendingCount(); n != 0 {
		t.Errorf("pending after late ack = %d, want 0", n)
	}
}

func TestDisconnectClearsOrphanedChannels(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(time.Minute)

	if _, err := m.Publish("lower", "lower.set", nil, WithAck()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := m.Publish("poster", "poster.set", nil, WithAck()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n := m.PendingCount(); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}

	// Only the channel the vanished client was the sole subscriber of is
	// cleared.
	m.HandleDisconnect([]string{"lower"})
	if n := m.PendingCount(); n != 1 {
		t.Errorf("pending after disconnect = %d, want 1", n)
	}

	m.HandleDisconnect(nil)
	if n := m.PendingCount(); n != 1 {
		t.Errorf("pending after empty disconnect = %d, want 1", n)
	}
}

func TestOverlayWrappers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		publish func(m *Manager) (string, error)
		channel string
		evtType string
	}{
		{
			name:    "lower third",
			publish: func(m *Manager) (string, error) { return m.PublishLowerThird(domain.LowerThirdPayload{Title: "t"}) },
			channel: domain.ChannelLower,
			evtType: "lower.set",
		},
		{
			name:    "countdown",
			publish: func(m *Manager) (string, error) { return m.PublishCountdown(domain.CountdownPayload{Seconds: 10}) },
			channel: domain.ChannelCountdown,
			evtType: "countdown.set",
		},
		{
			name:    "poster",
			publish: func(m *Manager) (string, error) { return m.PublishPoster(domain.PosterPayload{URL: "u", Visible: true}) },
			channel: domain.ChannelPoster,
			evtType: "poster.set",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, b := newTestManager(time.Minute)

			id, err := tt.publish(m)
			if err != nil {
				t.Fatalf("publish: %v", err)
			}
			evt := b.last(t)
			if evt.Channel != tt.channel || evt.Type != tt.evtType || evt.ID != id {
				t.Errorf("event = %+v, want channel %s type %s id %s", evt, tt.channel, tt.evtType, id)
			}
			if n := m.PendingCount(); n != 1 {
				t.Errorf("pending = %d, want 1 (wrappers expect confirmation)", n)
			}
		})
	}
}

func TestStopClearsPending(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(time.Minute)

	if _, err := m.Publish("lower", "lower.set", nil, WithAck()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	m.Stop()
	if n := m.PendingCount(); n != 0 {
		t.Errorf("pending after Stop = %d, want 0", n)
	}
}
