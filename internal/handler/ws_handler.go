package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/internal/hub"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades overlay and dashboard connections and dispatches their
// inbound frames. Protocol errors are logged and the frame dropped; nothing
// here is fatal to the connection or the process.
type WSHandler struct {
	hub   *hub.Hub
	wsCfg config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:   h,
		wsCfg: wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleFrame)
}

func (h *WSHandler) handleFrame(client *hub.Client, message []byte) {
	l := log.L()

	var base domain.BaseFrame
	if err := json.Unmarshal(message, &base); err != nil {
		l.Warn().Str(log.FieldClientID, client.ID).Err(err).Msg("malformed frame")
		return
	}

	switch base.Type {
	case domain.MsgTypeSubscribe:
		var frame domain.SubscribeFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Channel == "" {
			l.Warn().Str(log.FieldClientID, client.ID).Msg("invalid subscribe frame")
			return
		}
		h.hub.Subscribe(client, frame.Channel)

	case domain.MsgTypeUnsubscribe:
		var frame domain.SubscribeFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Channel == "" {
			l.Warn().Str(log.FieldClientID, client.ID).Msg("invalid unsubscribe frame")
			return
		}
		h.hub.Unsubscribe(client, frame.Channel)

	case domain.MsgTypeAck:
		var frame domain.AckFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.EventID == "" {
			l.Warn().Str(log.FieldClientID, client.ID).Msg("invalid ack frame")
			return
		}
		h.hub.HandleAck(domain.Ack{
			EventID: frame.EventID,
			Channel: frame.Channel,
			Success: frame.Success,
			Error:   frame.Error,
		})

	case domain.MsgTypeState:
		// The one path where a client, not the server, originates a broadcast.
		var frame domain.StateFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Channel == "" {
			l.Warn().Str(log.FieldClientID, client.ID).Msg("invalid state frame")
			return
		}
		if err := h.hub.Broadcast(frame.Channel, frame.Data); err != nil {
			l.Warn().Str(log.FieldClientID, client.ID).Str(log.FieldChannel, frame.Channel).Err(err).Msg("state broadcast failed")
		}

	case domain.MsgTypeJoinPresenter:
		var frame domain.JoinPresenterFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			l.Warn().Str(log.FieldClientID, client.ID).Msg("invalid join-presenter frame")
			return
		}
		role, ok := domain.ParseRole(frame.Role)
		if !ok {
			l.Warn().Str(log.FieldClientID, client.ID).Str(log.FieldRole, frame.Role).Msg("unknown presenter role")
			return
		}
		h.hub.JoinPresenter(client, role)

	case domain.MsgTypeLeavePresenter:
		h.hub.LeavePresenter(client)

	case domain.MsgTypePresencePing:
		h.hub.TouchPresence(client)

	case domain.MsgTypeCueAction:
		// The cue's business effect is applied by an external collaborator;
		// here it only counts as presenter activity.
		var frame domain.CueActionFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			l.Warn().Str(log.FieldClientID, client.ID).Msg("invalid cue-action frame")
			return
		}
		h.hub.TouchPresence(client)

	default:
		l.Warn().Str(log.FieldClientID, client.ID).Str("frame_type", base.Type).Msg("unknown frame type dropped")
	}
}
