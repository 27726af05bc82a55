package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pairs/internal/config"
	"pairs/internal/events"
	"pairs/internal/logging"
	"pairs/internal/server"
	"pairs/internal/session"
	"pairs/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.Setup(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage")
	}
	defer store.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		p, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("connect to NATS")
		}
		publisher = p
	}
	defer publisher.Close()

	mgr := session.NewManager(store, storage.NewScoreStore(store), session.Options{
		Game:      cfg.GameOptions(),
		Score:     cfg.ScoreConfig(),
		Publisher: publisher,
		Logger:    logger,
	})
	n, err := mgr.Restore(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("restore sessions")
	}
	logger.Info().Int("sessions", n).Msg("sessions restored")

	layouts, _ := cfg.Layouts()
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(mgr, layouts, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		mgr.CleanupLoop(gctx, cfg.Session.CleanupInterval, cfg.Session.MaxIdle)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		return errors.Join(err, mgr.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited")
	}
}
