package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/api"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/audit"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/config"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/store"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/token"
)

func main() {
	configPath := flag.String("config", "configs/default.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	keyHex, err := cfg.MasterKey()
	if err != nil {
		return err
	}
	masterKey, err := token.DecodeMasterKey(keyHex)
	if err != nil {
		return err
	}
	tokens, err := token.NewService(masterKey)
	if err != nil {
		return err
	}

	files := store.NewFS(cfg.DataDir)
	sink := audit.NewZapSink(logger.Named("audit"))

	// The metadata store owning record -> file mapping is part of the
	// surrounding repository system. Standalone deployments store one PDF
	// per record id.
	resolver := api.ResolverFunc(func(_ context.Context, recordID string) (string, error) {
		return recordID + ".pdf", nil
	})

	handler := api.NewHandler(tokens, files, resolver, sink, logger.Named("api"))
	router := api.NewRouter(handler, api.HeaderAuthenticator{}, logger.Named("http"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
