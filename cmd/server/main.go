package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/collagist/collagist/backend-go/internal/api"
	"github.com/collagist/collagist/backend-go/internal/asset"
	"github.com/collagist/collagist/backend-go/internal/auth"
	"github.com/collagist/collagist/backend-go/internal/catalog"
	"github.com/collagist/collagist/backend-go/internal/config"
	"github.com/collagist/collagist/backend-go/internal/events"
	mw "github.com/collagist/collagist/backend-go/internal/middleware"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
	"github.com/collagist/collagist/backend-go/internal/store"
	"github.com/collagist/collagist/backend-go/internal/workshop"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := store.Open(ctx, cfg.Store, slog.Default())
	if err != nil {
		slog.Error("open workshop store", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	if err := os.MkdirAll(cfg.AssetDir, 0755); err != nil {
		slog.Error("create asset dir", "error", err)
		os.Exit(1)
	}
	assets := os.DirFS(cfg.AssetDir)

	// Silhouettes are computed once per image and shared by every board.
	silhouettes := silhouette.NewCache(asset.NewFileDecoder(assets),
		silhouette.WithThreshold(cfg.AlphaThreshold))

	var manager *workshop.Manager

	// The hub asks for the live board state when a client joins or syncs.
	hub := events.NewHub(func(key string) (any, bool) {
		s, ok := manager.Lookup(key)
		if !ok {
			return nil, false
		}
		return s.State(), true
	}, slog.Default())
	go hub.Run()

	manager = workshop.NewManager(catalog.NewDirLoader(assets), silhouettes, kv,
		workshop.WithPublisher(hub),
		workshop.WithWorkers(cfg.Workers))

	authService := auth.NewService(cfg.JWTSecret)
	apiHandler := api.NewHandler(manager, silhouettes, hub, cfg.Origins(), slog.Default())
	assetHandler := asset.NewHandler(cfg.AssetDir, silhouettes, slog.Default())

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Asset endpoints
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")

	// Boards: reads are public, commands need an edit token for the workshop.
	apiHandler.Register(r, authService.RequireEdit("key"))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Disconnect feed clients first so no websocket holds the server open.
		hub.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)

		slog.Info("saving unsaved boards...")
		if err := manager.Close(shutdownCtx); err != nil {
			slog.Error("save boards", "error", err)
		}
	}()

	slog.Info("server starting", "addr", addr, "assets", cfg.AssetDir, "store", cfg.Driver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-idle
}
