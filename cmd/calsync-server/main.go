package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"calsync/internal/api"
	"calsync/internal/config"
	"calsync/internal/store"
)

func main() {
	var cfg config.Server
	if err := config.Load(&cfg, "calsync-server", os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("logging")
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	repo := store.NewSQLiteRepo(db)
	if n, err := repo.CountEvents(context.Background()); err == nil {
		log.Info().Int("events", n).Str("db", cfg.DBPath).Msg("event store ready")
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServerWithDebug(repo, cfg.Debug)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
