package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisync/cloudsync/internal/agent"
	"github.com/medisync/cloudsync/internal/config"
)

func main() {
	var (
		onboard = flag.Bool("onboard", false, "register this installation with the broker and exit")
		name    = flag.String("name", "", "clinic name (with -onboard)")
		city    = flag.String("city", "", "clinic city (with -onboard)")
		once    = flag.Bool("once", false, "run a single poll cycle and exit")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "sync-agent").Logger()

	cfg, err := config.LoadAgent()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	store := agent.NewSQLiteStore(cfg.DBPath)
	if err := store.Init(); err != nil {
		log.Fatal().Err(err).Msg("local store init error")
	}
	defer store.Close()

	client := agent.NewClient(cfg.BrokerURL, cfg.HTTPTimeout)
	a := agent.New(store, client, cfg.PollInterval, log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *onboard {
		secret := os.Getenv("INSTALL_SECRET")
		if secret == "" || *name == "" || *city == "" {
			log.Fatal().Msg("-onboard requires INSTALL_SECRET, -name and -city")
		}
		if err := a.Onboard(rootCtx, secret, *name, *city); err != nil {
			log.Fatal().Err(err).Msg("onboarding failed")
		}
		return
	}

	if *once {
		ctx, cancel := context.WithTimeout(rootCtx, cfg.PollInterval)
		defer cancel()
		if err := a.Poll(ctx); err != nil {
			log.Fatal().Err(err).Msg("poll cycle failed")
		}
		return
	}

	log.Info().Dur("interval", cfg.PollInterval).Str("broker", cfg.BrokerURL).Msg("starting recurring poll")
	a.StartPolling()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping poll")
	a.StopPolling()
}
