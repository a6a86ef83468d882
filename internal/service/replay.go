package service

import (
	"context"
	"time"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/internal/store"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// PresenceSource is the slice of the hub the replay service reads from and
// pushes through.
type PresenceSource interface {
	PresenterPresence() []domain.PresenceEntry
	SendToClient(clientID string, data any) error
}

// ReplayService pushes recent + pinned messages and the current presence list
// to a connection that just joined a presenter role, so it can reconstruct
// state without having observed prior broadcasts.
type ReplayService struct {
	hub   PresenceSource
	store store.MessageStore
	cfg   config.ReplayConfig
}

func NewReplayService(h PresenceSource, s store.MessageStore, cfg config.ReplayConfig) *ReplayService {
	return &ReplayService{hub: h, store: s, cfg: cfg}
}

// PresenterJoined implements the hub's join observer hook.
func (r *ReplayService) PresenterJoined(clientID string, role domain.Role) {
	l := log.L()
	ctx := context.Background()

	limit := r.cfg.RecentLimit
	if limit <= 0 {
		limit = 50
	}

	recent, err := r.store.GetRecent(ctx, limit, "")
	if err != nil {
		l.Error().Str(log.FieldClientID, clientID).Err(err).Msg("replay: loading recent messages failed")
		recent = nil
	}
	pinned, err := r.store.GetPinned(ctx)
	if err != nil {
		l.Error().Str(log.FieldClientID, clientID).Err(err).Msg("replay: loading pinned messages failed")
		pinned = nil
	}

	msg := domain.ReplayMessage{
		Type:           domain.MsgTypeReplay,
		Messages:       emptyIfNil(recent),
		PinnedMessages: emptyIfNil(pinned),
		Presence:       r.hub.PresenterPresence(),
		Timestamp:      time.Now().UnixMilli(),
	}

	if err := r.hub.SendToClient(clientID, msg); err != nil {
		l.Warn().Str(log.FieldClientID, clientID).Str(log.FieldRole, string(role)).Err(err).Msg("replay push failed")
		return
	}
	l.Debug().Str(log.FieldClientID, clientID).Str(log.FieldRole, string(role)).Int("messages", len(msg.Messages)).Int("pinned", len(msg.PinnedMessages)).Msg("replay pushed")
}

func emptyIfNil(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}
