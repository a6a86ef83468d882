package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// RedisRegistry advertises which process currently owns the hub endpoint.
// Under the host app's multi-process dev mode only the process that won the
// port bind announces itself; siblings look the owner up instead of failing.
type RedisRegistry struct {
	client            *redis.Client
	advertiseAddress  string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration

	mu        sync.Mutex
	announced bool
	cancel    context.CancelFunc
}

func NewRedisRegistry(cfg config.RedisConfig, advertiseAddress string) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{
		client:            client,
		advertiseAddress:  advertiseAddress,
		prefix:            cfg.RegistryPrefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
	}, nil
}

func (r *RedisRegistry) ownerKey() string {
	return fmt.Sprintf("%s:owner", r.prefix)
}

// Announce marks this process as the hub owner under a TTL key.
func (r *RedisRegistry) Announce(ctx context.Context) error {
	if err := r.client.Set(ctx, r.ownerKey(), r.advertiseAddress, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to announce hub owner: %w", err)
	}

	r.mu.Lock()
	r.announced = true
	r.mu.Unlock()

	l := log.L()
	l.Info().Str("address", r.advertiseAddress).Msg("announced as hub owner")
	return nil
}

// Resign drops the ownership claim.
func (r *RedisRegistry) Resign(ctx context.Context) error {
	r.mu.Lock()
	r.announced = false
	r.mu.Unlock()

	if err := r.client.Del(ctx, r.ownerKey()).Err(); err != nil {
		return fmt.Errorf("failed to resign hub ownership: %w", err)
	}
	return nil
}

// LookupOwner returns the advertised address of the current hub owner.
func (r *RedisRegistry) LookupOwner(ctx context.Context) (string, error) {
	addr, err := r.client.Get(ctx, r.ownerKey()).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no hub owner announced")
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup hub owner: %w", err)
	}
	return addr, nil
}

// StartHeartbeat keeps the ownership key refreshed while announced.
func (r *RedisRegistry) StartHeartbeat(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")
}

func (r *RedisRegistry) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *RedisRegistry) refresh(ctx context.Context) {
	r.mu.Lock()
	announced := r.announced
	r.mu.Unlock()
	if !announced {
		return
	}

	if err := r.client.Set(ctx, r.ownerKey(), r.advertiseAddress, r.keyTTL).Err(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to refresh hub-owner key")
	}
}

func (r *RedisRegistry) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RedisRegistry) Close() error {
	r.StopHeartbeat()
	return r.client.Close()
}
