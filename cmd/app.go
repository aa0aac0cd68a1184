package main

import (
	"context"
	"fmt"
	"log"

	"github.com/cexll/fcpbot/internal/config"
	"github.com/cexll/fcpbot/internal/github"
	"github.com/cexll/fcpbot/internal/nag"
	"github.com/cexll/fcpbot/internal/store"
	"github.com/cexll/fcpbot/internal/store/gormstore"
	"github.com/cexll/fcpbot/internal/store/memory"
	"github.com/cexll/fcpbot/internal/teams"
)

// app holds what every subcommand needs to drive the evaluator.
type app struct {
	cfg     *config.Config
	store   store.Store
	tracker *github.Client
	setup   *teams.Setup
	eval    *nag.Evaluator

	closers []func() error
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setup, err := teams.Load(cfg.SetupFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load setup file %s: %w", cfg.SetupFile, err)
	}

	st, closeStore, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   st,
		tracker: newTracker(cfg),
		setup:   setup,
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	a.eval = nag.New(st, a.tracker, setup, nag.Config{
		Mention:      cfg.BotMention,
		BotLogin:     cfg.BotLogin,
		PostComments: cfg.PostComments,
		WaitPeriod:   cfg.FCPWait,
	})
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}
}

func defaultOpenStore(ctx context.Context, dsn string) (store.Store, func() error, error) {
	if dsn == "" {
		log.Printf("DATABASE_URL not set, using in-memory store (state is lost on restart)")
		return memory.New(), nil, nil
	}
	st, err := gormstore.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

func defaultTracker(cfg *config.Config) *github.Client {
	if cfg.UseApp() {
		return github.NewAuthenticatedClient(&github.AppAuth{
			AppID:      cfg.GitHubAppID,
			PrivateKey: cfg.GitHubPrivateKey,
		})
	}
	return github.NewAuthenticatedClient(github.StaticToken(cfg.GitHubToken))
}
