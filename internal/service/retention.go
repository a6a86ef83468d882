package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/store"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// RetentionService periodically evicts old non-pinned messages.
type RetentionService struct {
	store store.MessageStore
	cfg   config.RetentionConfig
	cron  *cron.Cron
}

func NewRetentionService(s store.MessageStore, cfg config.RetentionConfig) *RetentionService {
	return &RetentionService{
		store: s,
		cfg:   cfg,
		cron:  cron.New(),
	}
}

// Start schedules the sweep. An empty schedule disables retention.
func (r *RetentionService) Start() error {
	if r.cfg.Schedule == "" {
		return nil
	}
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.Sweep); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()

	l := log.L()
	l.Info().Str("schedule", r.cfg.Schedule).Int("keep", r.cfg.Keep).Msg("retention sweep scheduled")
	return nil
}

func (r *RetentionService) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep runs one retention pass.
func (r *RetentionService) Sweep() {
	l := log.L()
	deleted, err := r.store.DeleteOld(context.Background(), r.cfg.Keep)
	if err != nil {
		l.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if deleted > 0 {
		l.Info().Int("deleted", deleted).Int("keep", r.cfg.Keep).Msg("retention sweep evicted messages")
	}
}
