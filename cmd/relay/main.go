package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/internal/handler"
	"github.com/JulienCr/obs-live-suite-sub002/internal/hub"
	"github.com/JulienCr/obs-live-suite-sub002/internal/registry"
	"github.com/JulienCr/obs-live-suite-sub002/internal/relay"
	"github.com/JulienCr/obs-live-suite-sub002/internal/server"
	"github.com/JulienCr/obs-live-suite-sub002/internal/service"
	"github.com/JulienCr/obs-live-suite-sub002/internal/store"
	memstore "github.com/JulienCr/obs-live-suite-sub002/internal/store/memory"
	sqlitestore "github.com/JulienCr/obs-live-suite-sub002/internal/store/sqlite"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()

	messageStore, err := openStore(cfg.Store)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open message store")
	}
	defer messageStore.Close()
	l.Info().Str("driver", cfg.Store.Driver).Msg("message store ready")

	// Hub and its single-subscriber hooks.
	wsHub := hub.NewHub(cfg.WebSocket)
	manager := relay.NewManager(wsHub, cfg.Relay)
	wsHub.SetAckSink(manager)

	replaySvc := service.NewReplayService(wsHub, messageStore, cfg.Replay)
	wsHub.SetJoinObserver(replaySvc)

	retention := service.NewRetentionService(messageStore, cfg.Retention)
	if err := retention.Start(); err != nil {
		l.Fatal().Err(err).Msg("failed to start retention sweep")
	}
	defer retention.Stop()

	// HTTP surface: websocket upgrade + producer/operator API.
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(log.GinMiddleware(l), gin.Recovery())

	wsHandler := handler.NewWSHandler(wsHub, cfg.WebSocket)
	router.GET("/ws", wsHandler.HandleWebSocket)

	httpHandler := handler.NewHTTPHandler(wsHub, manager, messageStore)
	httpHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, router)
	if err := srv.Start(); err != nil {
		l.Fatal().Err(err).Msg("failed to start server")
	}
	if !srv.IsRunning() {
		l.Warn().Msg("hub lives in a different process; serving nothing here")
	}

	// Announce hub ownership for sibling processes when Redis is configured.
	var reg *registry.RedisRegistry
	if cfg.Redis.Address != "" && srv.IsRunning() {
		reg, err = registry.NewRedisRegistry(cfg.Redis, addr)
		if err != nil {
			l.Warn().Err(err).Msg("hub-owner registry unavailable")
		} else {
			defer reg.Close()
			if err := reg.Announce(context.Background()); err != nil {
				l.Warn().Err(err).Msg("failed to announce hub ownership")
			} else {
				reg.StartHeartbeat(context.Background())
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if reg != nil {
			_ = reg.Resign(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			l.Warn().Err(err).Msg("server forced to shutdown")
		}
		manager.Stop()
		wsHub.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("shutdown error")
	}
	l.Info().Msg("relay stopped")
}

func openStore(cfg config.StoreConfig) (store.MessageStore, error) {
	switch cfg.Driver {
	case "memory":
		return memstore.NewStore(), nil
	case "sqlite", "":
		return sqlitestore.NewStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
