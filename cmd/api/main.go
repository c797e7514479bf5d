package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/seanblong/ragpipe/internal/api"
	"github.com/seanblong/ragpipe/internal/app"
	"github.com/seanblong/ragpipe/internal/auth"
	"github.com/seanblong/ragpipe/internal/config"
	"github.com/seanblong/ragpipe/internal/metrics"
	"github.com/seanblong/ragpipe/internal/rag"
	"github.com/seanblong/ragpipe/internal/search"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ragpipe-api", pflag.ExitOnError)
	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info().Str("provider", cfg.Provider).Str("store", cfg.StoreBackend).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting ragpipe api")
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb, err := app.NewEmbedder(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create embedder")
	}
	gen, err := app.NewGenerator(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create generator")
	}
	st, release, err := app.OpenStore(ctx, cfg, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open artifact store")
	}
	defer release()

	authenticator, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.Issuer, cfg.Auth.Enabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure auth")
	}

	svc := search.NewService(emb, st)
	if err := svc.Reload(ctx); err != nil {
		logger.Warn().Err(err).Msg("artifacts not loaded; queries will fail until the indexer has run")
	} else if m, ok := svc.Manifest(); ok {
		logger.Info().Str("run_id", m.RunID).Int("count", m.Count).Int("dim", m.Dim).Msg("artifacts loaded")
	}

	server := &api.Server{
		Searcher: svc,
		Answerer: rag.New(svc, gen, cfg.TopK, cfg.MaxTokens),
		Auth:     authenticator,
		TopK:     cfg.TopK,
	}

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{
		Addr:              address,
		Handler:           server.Handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("addr", address).Msg("listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
