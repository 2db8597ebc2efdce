package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openlms/provisioner/internal/api"
	"github.com/openlms/provisioner/internal/config"
	"github.com/openlms/provisioner/internal/core/ports"
	"github.com/openlms/provisioner/internal/core/service"
	"github.com/openlms/provisioner/internal/infrastructure/claims"
	"github.com/openlms/provisioner/internal/infrastructure/jobstore"
	"github.com/openlms/provisioner/internal/infrastructure/lms"
	"github.com/openlms/provisioner/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Username claims are shared across processes when Redis is configured,
	// process-local otherwise.
	var rdb *redis.Client
	var registry ports.ClaimRegistry = claims.NewMemory()
	if cfg.Redis.Addr != "" {
		client, err := claims.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis connection failed")
		}
		defer client.Close()
		rdb = client
		registry = claims.NewRedis(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis claim registry")
	}

	directory := lms.New(cfg.LMS.URL, cfg.LMS.Token, log)
	store := jobstore.NewMemory()
	reconciler := service.NewReconciler(directory, registry, log)
	processor := service.NewRowProcessor(directory, cfg.LMS.RoleID, log)
	coordinator := service.NewCoordinator(store, directory, reconciler, processor, log)

	e := api.NewRouter(api.Deps{
		Coordinator: coordinator,
		Directory:   directory,
		Redis:       rdb,
		RoleID:      cfg.LMS.RoleID,
		Log:         log,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("provisioner started")

	<-ctx.Done()

	// Running batch workers are not cancelled; they finish against process
	// memory while the listener drains.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
