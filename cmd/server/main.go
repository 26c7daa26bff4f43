package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/yapperchat/yapper/internal/server"
	"github.com/yapperchat/yapper/internal/store"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		lg := zerolog.New(os.Stderr)
		lg.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().
		Str("port", cfg.Port).
		Str("db", cfg.DatabasePath).
		Msg("starting yapper server")

	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	registry := server.NewRegistry()
	hub := server.NewHub(registry, db, logger)
	svc := server.NewService(*cfg, logger, hub, db)

	httpServer := server.CreateServer(cfg.Port, svc.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
		return
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("hub shutdown incomplete")
	}
}

// newLogger builds the root logger. LOG_FORMAT=json switches to raw JSON
// output; the default is the human-readable console writer.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if strings.ToLower(os.Getenv("LOG_FORMAT")) != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
