package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/skillcall/internal/adapters/http"
	"github.com/dkeye/skillcall/internal/adapters/rtc"
	"github.com/dkeye/skillcall/internal/adapters/signal"
	"github.com/dkeye/skillcall/internal/app"
	"github.com/dkeye/skillcall/internal/app/lifecycle"
	"github.com/dkeye/skillcall/internal/auth"
	"github.com/dkeye/skillcall/internal/config"
	"github.com/dkeye/skillcall/internal/repo"
)

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Secret == "" {
		return errors.New("secret is required to verify tokens and sign cookies")
	}

	if err := rtc.ValidateICEServers(rtc.WebRTCConfig(cfg.ICEServers)); err != nil {
		return fmt.Errorf("ice_servers: %w", err)
	}

	db, err := repo.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	store := repo.NewStore(db)

	relay := app.NewRelay(app.RelayConfig{
		SendTimeout: cfg.Relay.SendTimeout,
		Policy:      app.SimplePolicy{},
	})
	manager := lifecycle.NewManager(store, relay, lifecycle.Policy{
		BookingCost:      cfg.Credits.BookingCost,
		Reward:           cfg.Credits.Reward,
		ChargeAtRequest:  cfg.Credits.ChargeAtRequest,
		RejectDuplicates: cfg.Lifecycle.RejectDuplicates,
		RoomCapacity:     cfg.Relay.RoomCapacity,
		RoomPrefix:       cfg.Room.Prefix,
		SaltRooms:        cfg.Room.Salted,
	})
	ctl := signal.NewSignalWSController(relay, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait(),
		SendBuffer:   cfg.Relay.SendBuffer,
		RateLimit:    cfg.Relay.RateLimit,
		RateInterval: cfg.Relay.RateInterval,
	})

	r := router.SetupRouter(ctx, router.Deps{
		Config:   cfg,
		Verifier: auth.NewVerifier(cfg.Secret),
		Sessions: manager,
		Relay:    relay,
		Signal:   ctl,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("SkillCall server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		for _, room := range relay.List() {
			relay.Close(room.Name)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return nil
	})
	return g.Wait()
}
