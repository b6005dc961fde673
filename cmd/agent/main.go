// Package main provides the BillSync desktop agent: a localhost
// HTTP/WebSocket server wrapping the offline-first sync core.
// Desktop clients communicate via REST/WebSocket on localhost:8091.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karkhana/billsync/cmd/agent/handlers"
	"github.com/karkhana/billsync/internal/config"
	"github.com/karkhana/billsync/internal/db"
	"github.com/karkhana/billsync/internal/facade"
	"github.com/karkhana/billsync/internal/logging"
	"github.com/karkhana/billsync/internal/network"
	"github.com/karkhana/billsync/internal/remote"
	"github.com/karkhana/billsync/internal/store"
	syncpkg "github.com/karkhana/billsync/internal/sync"
	"github.com/karkhana/billsync/internal/sync/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.Error("Failed to load configuration", err,
				map[string]interface{}{"path": *configPath})
			os.Exit(1)
		}
		cfg = loaded
	}

	logging.Init(os.Stderr, logging.LogLevel(cfg.Log.Level))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logging.Error("Failed to create data directory", err,
			map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open database", err)
		os.Exit(1)
	}
	defer database.Close()

	localStore, err := store.New(database)
	if err != nil {
		logging.Error("Failed to create store", err)
		os.Exit(1)
	}

	client := remote.NewRESTClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.RemoteTimeout())

	monitor := network.NewMonitor(
		&network.HTTPProber{URL: cfg.Remote.BaseURL + "/health"},
		cfg.ProbeInterval(),
	)

	engine := syncpkg.NewEngine(localStore, client, monitor)
	app := facade.New(localStore, engine, monitor)

	if err := app.Initialize(); err != nil {
		logging.Error("Failed to initialize storage", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Initialize(ctx)
	defer monitor.Stop()

	hub := NewWSHub()
	wireEvents(engine, monitor, hub)

	sched := scheduler.NewScheduler(engine, monitor, &scheduler.Config{Interval: cfg.SyncInterval()})
	if cfg.Sync.Auto {
		sched.Start(ctx)
		defer sched.Stop()
	}

	api := &handlers.API{
		Facade:    app,
		Store:     localStore,
		Monitor:   monitor,
		Scheduler: sched,
	}

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		logging.Info("BillSync agent listening", map[string]interface{}{
			"addr":     cfg.ListenAddr,
			"data_dir": cfg.DataDir,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	logging.Info("Shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("Shutdown failed", err)
	}
}

// wireEvents forwards engine progress and connectivity transitions to
// WebSocket clients.
func wireEvents(engine *syncpkg.Engine, monitor *network.Monitor, hub *WSHub) {
	engine.OnProgress(func(p syncpkg.Progress) {
		switch {
		case p.Phase == "download":
			hub.Broadcast(EventDownloadTable, map[string]interface{}{
				"table":     p.Table,
				"completed": p.Completed,
				"error":     p.Error,
			})
		case p.Error != "":
			hub.Broadcast(EventSyncFailed, map[string]interface{}{
				"error": p.Error,
			})
		case p.InProgress && p.CurrentItem == "":
			hub.Broadcast(EventSyncStarted, map[string]interface{}{
				"total": p.Total,
			})
		case p.InProgress:
			hub.Broadcast(EventSyncProgress, map[string]interface{}{
				"total":        p.Total,
				"completed":    p.Completed,
				"failed":       p.Failed,
				"current_item": p.CurrentItem,
			})
		default:
			hub.Broadcast(EventSyncCompleted, map[string]interface{}{
				"total":     p.Total,
				"completed": p.Completed,
				"failed":    p.Failed,
			})
		}
	})

	monitor.OnStatusChange(func(status network.Status) {
		hub.Broadcast(EventNetworkChanged, map[string]interface{}{
			"connected": status.Connected,
			"kind":      status.ConnectionKind,
		})
	})
}
