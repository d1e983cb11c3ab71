package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"calsync/internal/calendar"
	"calsync/internal/config"
	"calsync/internal/processor"
	"calsync/internal/queue"
	"calsync/internal/remote"
	"calsync/internal/request"
	"calsync/internal/scheduler"
	"calsync/internal/state"
)

func main() {
	var cfg config.Client
	if err := config.Load(&cfg, "calsync", os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("logging")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := remote.NewClient(cfg.RemoteURL, cfg.Token, &http.Client{Timeout: cfg.RequestTimeout})
	st := state.NewStore(state.WithLocation(loc))
	st.Subscribe(logNotification)
	registry := queue.NewRegistry(ctx, processor.New(time.Now).Process)

	handler, err := calendar.New(calendar.Options{
		Registry: registry,
		Store:    st,
		API:      client,
		Config: calendar.Config{
			CacheTTL:        cfg.CacheTTL,
			MaxDaysPerFetch: cfg.MaxDaysPerFetch,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("calendar handler")
	}

	refresher, err := scheduler.NewService(handler, scheduler.Options{
		Spec:       cfg.RefreshSpec,
		Keys:       cfg.Resources,
		Known:      registry.Keys,
		DaysBehind: cfg.DaysBehind,
		DaysAhead:  cfg.DaysAhead,
		Location:   loc,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("refresh schedule")
	}

	// Warm the window once before the first scheduled run.
	go refresher.Refresh(ctx)
	go func() {
		if err := refresher.Start(ctx); err != nil {
			log.Error().Err(err).Msg("refresh schedule stopped")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	refresher.Stop()
	cancel()
}

func logNotification(n request.Notification) {
	switch v := n.(type) {
	case request.FetchStart:
		log.Debug().Str("resource", v.ResourceID).Strs("ids", v.IDs).Int("periods", len(v.Periods)).Msg("fetch started")
	case request.FetchEnd:
		log.Info().Str("resource", v.ResourceID).Strs("ids", v.IDs).Int("periods", len(v.Periods)).Int("events", len(v.Events)).Msg("fetch finished")
	case request.FetchFail:
		log.Warn().Err(v.Err).Str("resource", v.ResourceID).Strs("ids", v.IDs).Int("periods", len(v.Periods)).Msg("fetch failed")
	case request.EntityUpdate:
		log.Debug().Str("resource", v.ResourceID).Strs("ids", v.IDs).Msg("local update")
	}
}
