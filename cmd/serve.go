package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/cexll/fcpbot/internal/dispatcher"
	"github.com/cexll/fcpbot/internal/scheduler"
	"github.com/cexll/fcpbot/internal/web"
	"github.com/cexll/fcpbot/internal/webhook"
)

type serviceInfo struct {
	Service      string `json:"service"`
	Status       string `json:"status"`
	Mention      string `json:"mention"`
	PostComments bool   `json:"post_comments"`
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve webhooks and the dashboard, sweeping on an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), defaultListenServe)
		},
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	log.Printf("Starting fcpbot server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Mention: %s (login %s)", cfg.BotMention, cfg.BotLogin)
	if cfg.UseApp() {
		log.Printf("GitHub App ID: %s", cfg.GitHubAppID)
	} else {
		log.Printf("GitHub auth: static token")
	}
	if !cfg.PostComments {
		log.Printf("POST_COMMENTS=false: dry run, no comments will be created or edited")
	}
	log.Printf("Teams: %d, FCP length: %s, sweep interval: %s", len(a.setup.Teams()), cfg.FCPWait, cfg.SweepInterval)
	log.Printf("Dispatcher workers: %d, queue size: %d", cfg.DispatcherWorkers, cfg.DispatcherQueueSize)

	var deduper webhook.Deduper
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		deduper = webhook.NewRedisDeduper(rdb, cfg.DedupeTTL)
		log.Printf("Delivery de-duplication: redis")
	} else {
		deduper = webhook.NewMemoryDeduper(cfg.DedupeTTL)
		log.Printf("Delivery de-duplication: in-memory")
	}

	// Initialize dispatcher (per-issue ordered queue)
	eventDispatcher := dispatcher.New(a.eval, dispatcher.Config{
		Workers:   cfg.DispatcherWorkers,
		QueueSize: cfg.DispatcherQueueSize,
	})
	defer eventDispatcher.Shutdown(context.Background())

	handler := webhook.NewHandler(cfg.WebhookSecrets, eventDispatcher, deduper)

	webHandler, err := web.NewHandler(a.store, cfg.FCPWait)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	// Setup router
	r := mux.NewRouter()

	// Webhook endpoint
	r.HandleFunc("/webhook", handler.Handle).Methods("POST")

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Service info
	r.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(serviceInfo{
			Service:      "fcpbot",
			Status:       "running",
			Mention:      cfg.BotMention,
			PostComments: cfg.PostComments,
		})
	}).Methods("GET")

	// Dashboard
	webHandler.RegisterRoutes(r)

	sweepCtx, stopSweeps := context.WithCancel(ctx)
	sweepsDone := make(chan struct{})
	go func() {
		defer close(sweepsDone)
		scheduler.New(a.eval, cfg.SweepInterval).Run(sweepCtx)
	}()
	defer func() {
		stopSweeps()
		<-sweepsDone
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Webhook endpoint: http://localhost%s/webhook", addr)
	log.Printf("Health check: http://localhost%s/health", addr)
	log.Printf("Dashboard: http://localhost%s/", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}
