package hub

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
)

type recordingSink struct {
	mu       sync.Mutex
	acks     []domain.Ack
	orphaned [][]string
}

func (r *recordingSink) HandleAck(ack domain.Ack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, ack)
}

func (r *recordingSink) HandleDisconnect(channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphaned = append(r.orphaned, channels)
}

type recordingObserver struct {
	mu    sync.Mutex
	joins []string
}

func (r *recordingObserver) PresenterJoined(clientID string, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, clientID+"/"+string(role))
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		HeartbeatInterval: time.Hour, // sweeps never fire in unit tests
		WriteWait:         time.Second,
		SendBuffer:        32,
	}
}

// addClient registers a pump-less client directly; frames pile up in its send
// buffer where the test reads them.
func addClient(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c := NewClient(id, h, nil, testConfig())
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

func recvEnvelope(t *testing.T, c *Client) domain.BroadcastEnvelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env domain.BroadcastEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return domain.BroadcastEnvelope{}
	}
}

func drainPresence(t *testing.T, c *Client) domain.PresenceMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg domain.PresenceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal presence: %v", err)
		}
		if msg.Type != domain.MsgTypePresence {
			t.Fatalf("frame type = %s, want presence", msg.Type)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no presence frame received")
		return domain.PresenceMessage{}
	}
}

func TestBroadcastReachesOnlySubscribersInOrder(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	go h.Run()
	defer h.Stop()

	sub := addClient(t, h, "sub")
	other := addClient(t, h, "other")
	h.Subscribe(sub, "lower")
	h.Subscribe(other, "poster")

	for i := 0; i < 5; i++ {
		if err := h.Broadcast("lower", i); err != nil {
			t.Fatalf("Broadcast #%d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		env := recvEnvelope(t, sub)
		if env.Channel != "lower" {
			t.Errorf("channel = %s, want lower", env.Channel)
		}
		if got := int(env.Data.(float64)); got != i {
			t.Errorf("delivery out of order: got %d at position %d", got, i)
		}
	}

	select {
	case data := <-other.send:
		t.Fatalf("non-subscriber received %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	go h.Run()
	defer h.Stop()

	c := addClient(t, h, "c")
	h.Subscribe(c, "lower")
	if err := h.Broadcast("lower", "a"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	recvEnvelope(t, c)

	h.Unsubscribe(c, "lower")
	if err := h.Broadcast("lower", "b"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	select {
	case data := <-c.send:
		t.Fatalf("received after unsubscribe: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendToClient(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	c := addClient(t, h, "c")

	if err := h.SendToClient("c", map[string]string{"hello": "there"}); err != nil {
		t.Fatalf("SendToClient: %v", err)
	}
	select {
	case <-c.send:
	case <-time.After(time.Second):
		t.Fatal("unicast not delivered")
	}

	if err := h.SendToClient("missing", "x"); err == nil {
		t.Error("expected error for unknown client")
	}
}

func TestJoinPresenterLifecycle(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	obs := &recordingObserver{}
	h.SetJoinObserver(obs)

	c := addClient(t, h, "c")
	h.JoinPresenter(c, domain.RoleControl)

	msg := drainPresence(t, c)
	if len(msg.Presence) != 1 {
		t.Fatalf("presence entries = %d, want 1", len(msg.Presence))
	}
	entry := msg.Presence[0]
	if entry.ConnectionID != "c" || entry.Role != domain.RoleControl || !entry.IsOnline {
		t.Errorf("entry = %+v", entry)
	}
	if !c.Subscribed(domain.ChannelPresenter) {
		t.Error("join did not subscribe to presenter channel")
	}

	obs.mu.Lock()
	joins := append([]string(nil), obs.joins...)
	obs.mu.Unlock()
	if len(joins) != 1 || joins[0] != "c/control" {
		t.Errorf("observer joins = %v", joins)
	}

	// Rejoin under a different role runs the leave transition first: one
	// entry remains, with the new role.
	h.JoinPresenter(c, domain.RoleProducer)
	got := h.PresenterPresence()
	if len(got) != 1 || got[0].Role != domain.RoleProducer {
		t.Errorf("presence after rejoin = %+v", got)
	}

	h.LeavePresenter(c)
	if len(h.PresenterPresence()) != 0 {
		t.Error("presence entry survived leave")
	}
	if c.Subscribed(domain.ChannelPresenter) {
		t.Error("leave did not unsubscribe from presenter channel")
	}

	// Leaving while Absent is a no-op.
	h.LeavePresenter(c)
}

func TestTouchPresenceRefreshesWithoutBroadcast(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	c := addClient(t, h, "c")
	h.JoinPresenter(c, domain.RolePresenter)
	drainPresence(t, c)

	before := h.PresenterPresence()[0].LastActivity
	time.Sleep(5 * time.Millisecond)
	h.TouchPresence(c)

	after := h.PresenterPresence()[0].LastActivity
	if !after.After(before) {
		t.Error("TouchPresence did not refresh lastActivity")
	}

	select {
	case data := <-c.send:
		t.Fatalf("activity ping must not broadcast, got %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRemoveClientClearsOrphansAndPresence(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	sink := &recordingSink{}
	h.SetAckSink(sink)

	gone := addClient(t, h, "gone")
	stays := addClient(t, h, "stays")
	h.Subscribe(gone, "lower")
	h.Subscribe(gone, "countdown")
	h.Subscribe(stays, "countdown")
	h.JoinPresenter(gone, domain.RoleControl)
	drainPresence(t, gone)

	h.removeClient(gone)

	if h.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", h.ClientCount())
	}
	if len(h.PresenterPresence()) != 0 {
		t.Error("presence entry leaked after disconnect")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.orphaned) != 1 {
		t.Fatalf("disconnect notifications = %d, want 1", len(sink.orphaned))
	}
	orphans := sink.orphaned[0]
	// lower and presenter lost their only subscriber; countdown did not.
	want := map[string]bool{"lower": true, domain.ChannelPresenter: true}
	if len(orphans) != 2 || !want[orphans[0]] || !want[orphans[1]] {
		t.Errorf("orphaned channels = %v, want lower and presenter", orphans)
	}

	// Removing twice is safe.
	h.removeClient(gone)
}

func TestAckRoutedToSink(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	sink := &recordingSink{}
	h.SetAckSink(sink)

	h.HandleAck(domain.Ack{EventID: "e1", Channel: "lower", Success: true})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.acks) != 1 || sink.acks[0].EventID != "e1" {
		t.Errorf("acks = %+v", sink.acks)
	}
}

func TestStopTerminatesClients(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	go h.Run()

	c := addClient(t, h, "c")
	h.Stop()

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("clients not cleared by Stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.SendBytes([]byte("x")); err == nil {
		t.Error("send after Stop must fail")
	}
}

func TestBroadcastAfterStop(t *testing.T) {
	t.Parallel()
	h := NewHub(testConfig())
	go h.Run()
	h.Stop()

	// Run may still be draining; Broadcast must fail fast, not hang.
	deadline := time.After(time.Second)
	done := make(chan error, 1)
	go func() { done <- h.Broadcast("lower", "x") }()
	select {
	case <-deadline:
		t.Fatal("Broadcast blocked after Stop")
	case err := <-done:
		_ = err // either queued into the buffer or ErrStopped; both are fine
	}
}
