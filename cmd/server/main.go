// Package main is the entry point for the loyalty points service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"loyalty-points/internal/api"
	"loyalty-points/internal/auth"
	"loyalty-points/internal/config"
	"loyalty-points/internal/handler"
	"loyalty-points/internal/identity"
	"loyalty-points/internal/pkg/db"
	"loyalty-points/internal/pkg/lock"
	"loyalty-points/internal/repository"
	"loyalty-points/internal/repository/memory"
	"loyalty-points/internal/seed"
	"loyalty-points/internal/service"
)

type stores struct {
	configs  service.ConfigStore
	badges   service.BadgeStore
	ledger   service.LedgerStore
	balances service.BalanceStore
	userInfo identity.Cache
	health   api.Pinger
	close    func()
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(&cfg.Log)

	log.Info().Str("driver", cfg.Database.Driver).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer st.close()

	loc, err := cfg.Ranking.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ranking timezone")
	}
	rate, err := cfg.Redemption.Rate()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid redemption rate")
	}

	userLock := lock.NewUserLock()

	pointService := service.NewPointService(
		st.configs,
		st.badges,
		st.ledger,
		st.balances,
		userLock,
		rate,
		cfg.Ranking.LockTimeout,
	)

	resolver := identity.NewResolver(
		st.userInfo,
		cfg.Identity.BaseURL,
		cfg.Identity.CacheTTL,
		cfg.Identity.Timeout,
		nil,
	)
	rankingService := service.NewRankingService(st.badges, st.ledger, st.balances, resolver, loc)
	rankingService.SetMaxLimit(cfg.Ranking.MaxLimit)

	adminService := service.NewAdminService(st.configs, st.badges, st.ledger)

	if cfg.Seed.File != "" {
		f, err := seed.Load(cfg.Seed.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Seed.File).Msg("Failed to load seed data")
		}
		if _, err := seed.Apply(ctx, adminService, f); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply seed data")
		}
	}

	refresher := service.NewRankingRefresher(rankingService, cfg.Ranking.RefreshInterval, cfg.Ranking.LeaderboardTimeout)
	pointService.SetRankingTrigger(refresher.Trigger)
	refresher.Start()
	defer refresher.Stop()

	router := api.NewRouter(api.Deps{
		Points:         handler.NewPointHandler(pointService),
		Ranking:        handler.NewRankingHandler(rankingService, cfg.Ranking.DefaultLimit, cfg.Ranking.LeaderboardTimeout),
		Admin:          handler.NewAdminHandler(adminService, pointService, loc),
		Users:          handler.NewUserHandler(resolver),
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		IsAdmin:        cfg.IsAdmin,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         st.health,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// openStores returns Postgres-backed stores, or in-memory ones when the
// memory driver is configured.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		ledger := memory.NewLedger()
		return &stores{
			configs:  memory.NewConfigs(),
			badges:   memory.NewBadges(),
			ledger:   ledger,
			balances: ledger,
			userInfo: memory.NewUserInfo(),
			close:    func() {},
		}, nil
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &stores{
		configs:  repository.NewConfigRepository(pool.Pool),
		badges:   repository.NewBadgeRepository(pool.Pool),
		ledger:   repository.NewLedgerRepository(pool.Pool),
		balances: repository.NewBalanceRepository(pool.Pool),
		userInfo: repository.NewUserInfoRepository(pool.Pool),
		health:   pool,
		close:    pool.Close,
	}, nil
}
