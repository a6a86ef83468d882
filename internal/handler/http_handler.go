package handler

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/internal/relay"
	"github.com/JulienCr/obs-live-suite-sub002/internal/store"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// PresenceReader is the slice of the hub the API exposes.
type PresenceReader interface {
	PresenterPresence() []domain.PresenceEntry
	ClientCount() int
}

// HTTPHandler is the producer/operator ingress: publish endpoints for the
// overlay channels, presence snapshots, and the message store operations.
type HTTPHandler struct {
	hub   PresenceReader
	relay *relay.Manager
	store store.MessageStore
}

func NewHTTPHandler(h PresenceReader, m *relay.Manager, s store.MessageStore) *HTTPHandler {
	return &HTTPHandler{hub: h, relay: m, store: s}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/channels/:channel/publish", h.PublishEvent)
		api.POST("/overlays/lower", h.PublishLowerThird)
		api.POST("/overlays/countdown", h.PublishCountdown)
		api.POST("/overlays/poster", h.PublishPoster)

		api.GET("/presence", h.GetPresence)

		api.POST("/messages", h.CreateMessage)
		api.PATCH("/messages/:id", h.UpdateMessage)
		api.GET("/messages", h.GetRecentMessages)
		api.GET("/messages/pinned", h.GetPinnedMessages)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.DELETE("/messages", h.ClearMessages)
	}

	r.GET("/health", h.HealthCheck)
}

type publishRequest struct {
	Type         string          `json:"type" binding:"required"`
	Payload      json.RawMessage `json:"payload"`
	Ack          bool            `json:"ack"`
	AckTimeoutMS int             `json:"ackTimeoutMs"`
}

func (h *HTTPHandler) PublishEvent(c *gin.Context) {
	channel := c.Param("channel")

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "type is required")
		return
	}

	var opts []relay.PublishOption
	if req.AckTimeoutMS > 0 {
		opts = append(opts, relay.WithAckTimeout(time.Duration(req.AckTimeoutMS)*time.Millisecond))
	} else if req.Ack {
		opts = append(opts, relay.WithAck())
	}

	eventID, err := h.relay.Publish(channel, req.Type, req.Payload, opts...)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Str(log.FieldChannel, channel).Err(err).Msg("publish failed")
		response.InternalError(c, "publish failed")
		return
	}
	response.Success(c, gin.H{"eventId": eventID})
}

func (h *HTTPHandler) PublishLowerThird(c *gin.Context) {
	var p domain.LowerThirdPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid lower-third payload")
		return
	}
	h.publishOverlay(c, func() (string, error) { return h.relay.PublishLowerThird(p) })
}

func (h *HTTPHandler) PublishCountdown(c *gin.Context) {
	var p domain.CountdownPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid countdown payload")
		return
	}
	h.publishOverlay(c, func() (string, error) { return h.relay.PublishCountdown(p) })
}

func (h *HTTPHandler) PublishPoster(c *gin.Context) {
	var p domain.PosterPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid poster payload")
		return
	}
	h.publishOverlay(c, func() (string, error) { return h.relay.PublishPoster(p) })
}

func (h *HTTPHandler) publishOverlay(c *gin.Context, publish func() (string, error)) {
	eventID, err := publish()
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("overlay publish failed")
		response.InternalError(c, "publish failed")
		return
	}
	response.Success(c, gin.H{"eventId": eventID})
}

func (h *HTTPHandler) GetPresence(c *gin.Context) {
	response.Success(c, gin.H{
		"presence":  h.hub.PresenterPresence(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (h *HTTPHandler) CreateMessage(c *gin.Context) {
	var input domain.MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "invalid message")
		return
	}

	msg, err := h.store.Create(c.Request.Context(), input)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to create message")
		response.InternalError(c, "failed to create message")
		return
	}
	response.Created(c, msg)
}

func (h *HTTPHandler) UpdateMessage(c *gin.Context) {
	var patch domain.MessagePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid patch")
		return
	}

	msg, err := h.store.Update(c.Request.Context(), c.Param("id"), patch)
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(c, "message not found")
		return
	}
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to update message")
		response.InternalError(c, "failed to update message")
		return
	}
	response.Success(c, msg)
}

func (h *HTTPHandler) GetRecentMessages(c *gin.Context) {
	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	msgs, err := h.store.GetRecent(c.Request.Context(), limit, c.Query("cursor"))
	if errors.Is(err, store.ErrNotFound) {
		response.BadRequest(c, "unknown cursor")
		return
	}
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to load messages")
		response.InternalError(c, "failed to load messages")
		return
	}

	var nextCursor string
	if len(msgs) > 0 {
		nextCursor = msgs[len(msgs)-1].ID
	}
	response.Success(c, gin.H{"messages": msgs, "nextCursor": nextCursor})
}

func (h *HTTPHandler) GetPinnedMessages(c *gin.Context) {
	msgs, err := h.store.GetPinned(c.Request.Context())
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to load pinned messages")
		response.InternalError(c, "failed to load pinned messages")
		return
	}
	response.Success(c, gin.H{"messages": msgs})
}

func (h *HTTPHandler) DeleteMessage(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(c, "message not found")
		return
	}
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to delete message")
		response.InternalError(c, "failed to delete message")
		return
	}
	response.Success(c, nil)
}

func (h *HTTPHandler) ClearMessages(c *gin.Context) {
	if err := h.store.ClearAll(c.Request.Context()); err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to clear messages")
		response.InternalError(c, "failed to clear messages")
		return
	}
	response.Success(c, nil)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}
