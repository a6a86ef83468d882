package hub

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// ErrStopped is returned by operations attempted after the hub shut down.
var ErrStopped = errors.New("hub stopped")

// AckSink receives acknowledgment frames and disconnect notifications. The
// channel manager implements it; the hub holds a single reference.
type AckSink interface {
	HandleAck(ack domain.Ack)
	// HandleDisconnect carries the channels a disconnecting client was the
	// sole subscriber of.
	HandleDisconnect(orphanedChannels []string)
}

// JoinObserver is notified after a connection enters a presenter role, so the
// replay push can be assembled for that one connection.
type JoinObserver interface {
	PresenterJoined(clientID string, role domain.Role)
}

type broadcastReq struct {
	channel string
	data    []byte
}

// Hub owns all live connections, their channel subscriptions, presenter
// presence, heartbeat liveness, and broadcast fan-out.
type Hub struct {
	cfg config.WebSocketConfig

	mu       sync.RWMutex
	clients  map[string]*Client
	presence map[string]*domain.PresenceEntry

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq

	stopOnce sync.Once
	stopC    chan struct{}

	acks  AckSink
	joins JoinObserver
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		cfg:        cfg,
		clients:    make(map[string]*Client),
		presence:   make(map[string]*domain.PresenceEntry),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastReq, 256),
		stopC:      make(chan struct{}),
	}
}

// SetAckSink wires the single ack/disconnect subscriber. Call before Run.
func (h *Hub) SetAckSink(s AckSink) { h.acks = s }

// SetJoinObserver wires the single presenter-join subscriber. Call before Run.
func (h *Hub) SetJoinObserver(o JoinObserver) { h.joins = o }

// Run drives registration, fan-out, and the heartbeat sweep until Stop.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.broadcast:
			h.fanOut(req.channel, req.data)

		case <-ticker.C:
			h.sweep()

		case <-h.stopC:
			h.shutdown()
			return
		}
	}
}

// Stop cancels the heartbeat, closes every connection, and clears the
// registry.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopC)
	})
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopC:
		client.Terminate()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopC:
	}
}

// Broadcast serializes {channel, data} once and fans it out to every
// connection subscribed to channel. Delivery order per channel follows call
// order; a failure on one connection never aborts delivery to the others.
func (h *Hub) Broadcast(channel string, data any) error {
	payload, err := json.Marshal(domain.BroadcastEnvelope{Channel: channel, Data: data})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- broadcastReq{channel: channel, data: payload}:
		return nil
	case <-h.stopC:
		return ErrStopped
	}
}

// SendToClient is a direct unicast, used for replay.
func (h *Hub) SendToClient(clientID string, data any) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return errors.New("client not connected")
	}
	return client.SendMessage(data)
}

// Subscribe adds channel to the client's subscription set.
func (h *Hub) Subscribe(client *Client, channel string) {
	client.subscribe(channel)
	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldChannel, channel).Msg("subscribed")
}

// Unsubscribe removes channel from the client's subscription set.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	client.unsubscribe(channel)
	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldChannel, channel).Msg("unsubscribed")
}

// HandleAck routes an acknowledgment frame to the registered sink.
func (h *Hub) HandleAck(ack domain.Ack) {
	if h.acks == nil {
		return
	}
	h.acks.HandleAck(ack)
}

// JoinPresenter moves the client into Present(role). A rejoin under a
// different state first runs the leave transition.
func (h *Hub) JoinPresenter(client *Client, role domain.Role) {
	h.mu.RLock()
	_, rejoining := h.presence[client.ID]
	h.mu.RUnlock()
	if rejoining {
		h.LeavePresenter(client)
	}

	now := time.Now()
	h.mu.Lock()
	h.presence[client.ID] = &domain.PresenceEntry{
		ConnectionID: client.ID,
		Role:         role,
		IsOnline:     true,
		LastSeen:     now,
		LastActivity: now,
	}
	h.mu.Unlock()
	client.subscribe(domain.ChannelPresenter)

	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldRole, string(role)).Msg("presenter joined")

	h.broadcastPresence()
	if h.joins != nil {
		h.joins.PresenterJoined(client.ID, role)
	}
}

// LeavePresenter moves the client back to Absent.
func (h *Hub) LeavePresenter(client *Client) {
	h.mu.Lock()
	_, present := h.presence[client.ID]
	delete(h.presence, client.ID)
	h.mu.Unlock()
	client.unsubscribe(domain.ChannelPresenter)

	if !present {
		return
	}

	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Msg("presenter left")
	h.broadcastPresence()
}

// TouchPresence refreshes the presence timestamps for an activity ping. No
// broadcast is emitted.
func (h *Hub) TouchPresence(client *Client) {
	now := time.Now()
	h.mu.Lock()
	if entry, ok := h.presence[client.ID]; ok {
		entry.LastSeen = now
		entry.LastActivity = now
	}
	h.mu.Unlock()
}

// PresenterPresence returns a snapshot of all presence entries.
func (h *Hub) PresenterPresence() []domain.PresenceEntry {
	h.mu.RLock()
	out := make([]domain.PresenceEntry, 0, len(h.presence))
	for _, entry := range h.presence {
		out = append(out, *entry)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// ClientCount reports the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sweep applies the 2-tick-miss policy: a connection that has not answered
// the previous round's probe is terminated; everyone else is marked suspect
// and probed again.
func (h *Hub) sweep() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.Alive() {
			l := log.L()
			l.Warn().Str(log.FieldClientID, c.ID).Msg("terminating unresponsive client")
			h.removeClient(c)
			c.Terminate()
			continue
		}
		c.setAlive(false)
		c.requestPing()
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)

	var orphaned []string
	for _, ch := range client.Channels() {
		inUse := false
		for _, other := range h.clients {
			if other.Subscribed(ch) {
				inUse = true
				break
			}
		}
		if !inUse {
			orphaned = append(orphaned, ch)
		}
	}

	_, hadPresence := h.presence[client.ID]
	delete(h.presence, client.ID)
	h.mu.Unlock()
	client.closeSend()

	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Msg("client unregistered")

	if h.acks != nil && len(orphaned) > 0 {
		h.acks.HandleDisconnect(orphaned)
	}
	if hadPresence {
		h.broadcastPresence()
	}
}

// fanOut delivers raw bytes to every subscriber of channel.
func (h *Hub) fanOut(channel string, data []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.Subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.SendBytes(data); err != nil {
			l := log.L()
			l.Warn().Str(log.FieldClientID, c.ID).Str(log.FieldChannel, channel).Err(err).Msg("dropping frame")
		}
	}
}

func (h *Hub) broadcastPresence() {
	msg := domain.PresenceMessage{
		Type:      domain.MsgTypePresence,
		Presence:  h.PresenterPresence(),
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.fanOut(domain.ChannelPresenter, data)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.presence = make(map[string]*domain.PresenceEntry)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
		c.Terminate()
	}

	l := log.L()
	l.Info().Int("clients", len(clients)).Msg("hub stopped")
}
