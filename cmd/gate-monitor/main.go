package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gate-monitor/internal/alert"
	"gate-monitor/internal/config"
	"gate-monitor/internal/db"
	gatehttp "gate-monitor/internal/http"
	"gate-monitor/internal/live"
	"gate-monitor/internal/repository"
	"gate-monitor/internal/service"
	"gate-monitor/internal/tracker"
	"gate-monitor/internal/whitelist"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	gdb, err := db.Connect(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	eventRepo := repository.NewEventRepository(gdb)
	whitelistRepo := repository.NewWhitelistRepository(gdb)

	resolver := whitelist.NewResolver(whitelistRepo, cfg.Whitelist.CacheTTL, log.With().Str("component", "whitelist").Logger())
	dispatcher := alert.NewDispatcher(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log.With().Str("component", "alert").Logger())
	hub := live.NewHub(log.With().Str("component", "live").Logger())

	trk := tracker.New(tracker.Config{
		MatchRadius:     cfg.Tracker.MatchRadius,
		GapTimeout:      cfg.Tracker.GapTimeout,
		MaxTrackLen:     cfg.Tracker.MaxTrackLen,
		MaxObservations: cfg.Tracker.MaxObservations,
	}, cfg.Camera.Direction, log.With().Str("component", "tracker").Logger())

	gateService := service.NewGateService(trk, resolver, eventRepo, whitelistRepo, dispatcher, hub, log.With().Str("component", "service").Logger())
	gateService.Start()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	handler := gatehttp.NewHandler(gateService, hub, cfg, log.With().Str("component", "http").Logger())
	handler.Register(r, gatehttp.AuthMiddleware(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("camera", cfg.Camera.ID).Msg("gate-monitor listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	gateService.Shutdown(ctx)
	hub.Close()

	log.Info().Msg("gate-monitor stopped")
}
