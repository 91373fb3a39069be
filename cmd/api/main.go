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

	"video-docs-go/internal/app"
	"video-docs-go/internal/config"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/notify"
	"video-docs-go/internal/server"
	"video-docs-go/internal/store"
	"video-docs-go/internal/types"
)

func main() {
	log := logger.New()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.Logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	log.WithField("service", "video-docs-go").WithField("llm_provider", cfg.LLM.Provider).Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer closeStore()

	hub := notify.NewHub(func(ctx context.Context) ([]types.Job, error) {
		return st.List(ctx, store.Filter{Limit: 100})
	}, log)
	go hub.Run(ctx)

	a, err := app.New(ctx, cfg, st, log, hub)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}

	go func() {
		if err := a.Schemas.Watch(ctx); err != nil {
			log.WithError(err).Warn("schema watcher stopped")
		}
	}()

	handler := server.New(a.Orchestrator, st, a.Schemas.Current, hub, log).Handler()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := a.Orchestrator.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("jobs still running at exit")
	}
}
