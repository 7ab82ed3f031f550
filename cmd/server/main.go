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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sketchroom/sketchroom/internal/asset"
	"github.com/sketchroom/sketchroom/internal/auth"
	"github.com/sketchroom/sketchroom/internal/collab"
	"github.com/sketchroom/sketchroom/internal/config"
	"github.com/sketchroom/sketchroom/internal/discovery"
	mw "github.com/sketchroom/sketchroom/internal/middleware"
	"github.com/sketchroom/sketchroom/internal/rooms"
)

// roomStore is what the relay needs from a backend plus seeding.
type roomStore interface {
	rooms.Store
	rooms.Seeder
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("open room store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if cfg.SeedFile != "" {
		data, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			slog.Error("read seed file", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		n, err := rooms.Seed(ctx, store, data)
		if err != nil {
			slog.Error("seed rooms", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		slog.Info("seeded rooms", "count", n)
	}

	hub := collab.NewHub(store,
		collab.WithStoreTimeout(cfg.StoreTimeout),
		collab.WithSendBuffer(cfg.SendBuffer),
		collab.WithReadLimit(cfg.MaxMessageBytes),
	)
	go hub.Run(ctx)

	var verifier collab.TokenVerifier
	var authService *auth.Service
	if cfg.JWTSecret != "" {
		authService = auth.NewService(cfg.JWTSecret)
		verifier = authService
	} else {
		slog.Warn("JWT_SECRET not set, relay accepts anonymous connections")
	}
	wsHandler := collab.NewHandler(hub, verifier, cfg.Origins())

	imageHandler, err := asset.NewHandler(cfg.ImageDir, "/images/", cfg.MaxImageBytes)
	if err != nil {
		slog.Error("init image store", "error", err)
		os.Exit(1)
	}

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket endpoint
	r.HandleFunc("/ws", wsHandler.ServeWS)

	// Image sources for image elements
	r.PathPrefix("/images/").Handler(imageHandler.Serve()).Methods("GET")

	// Authenticated when JWT_SECRET is set
	api := r.NewRoute().Subrouter()
	if authService != nil {
		api.Use(authService.AuthMiddleware)
	}
	api.HandleFunc("/images", imageHandler.Upload).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/connections", wsHandler.Connections).Methods("GET", "OPTIONS")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	if cfg.MDNSEnabled {
		mdnsServer, err := discovery.Advertise(cfg.Port)
		if err != nil {
			slog.Warn("mdns advertise", "error", err)
		} else {
			defer mdnsServer.Shutdown()
			slog.Info("advertising on LAN", "service", discovery.ServiceType, "port", cfg.Port)
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		cancel()
	}()

	slog.Info("server starting", "addr", addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (roomStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		store := rooms.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case config.DriverSQLite:
		store, err := rooms.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case config.DriverMongo:
		store, err := rooms.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store.Close(closeCtx)
		}, nil

	default:
		return rooms.NewMemoryStore(), func() {}, nil
	}
}
