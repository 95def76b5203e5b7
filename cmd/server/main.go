package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"livepreview/internal/config"
	"livepreview/internal/database"
	"livepreview/internal/handlers"
	"livepreview/internal/logger"
	"livepreview/internal/services"
	"livepreview/internal/store"
	"livepreview/internal/web"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logg.Sync()

	// 2. Init Store
	st, closeStore, err := openStore(cfg, logg)
	if err != nil {
		logg.Fatal("Failed to init store", "driver", cfg.StoreDriver, "error", err)
	}
	defer closeStore()

	// 3. Collaborators
	gen, err := services.NewScaffoldService(cfg.ScaffoldDir, logg)
	if err != nil {
		logg.Fatal("Failed to init code generator", "error", err)
	}

	e := echo.New()
	e.HideBanner = true

	var pub services.Publisher
	switch cfg.Publisher {
	case config.PublisherLocal:
		local, err := services.NewLocalPublisher(cfg, logg)
		if err != nil {
			logg.Fatal("Failed to init local publisher", "error", err)
		}
		e.Static("/sites", local.Root())
		pub = local
	default:
		pub = services.NewNetlifyPublisher(cfg, logg)
	}

	orch := services.NewOrchestrator(cfg, st, gen, pub, logg)

	// 4. API Server & HTML Renderer
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(handlers.RequestLogger(logg))

	renderer, err := web.NewRenderer()
	if err != nil {
		logg.Fatal("Failed to parse templates", "error", err)
	}
	e.Renderer = renderer

	api := e.Group("/api")
	handlers.RegisterRoutes(e, api, orch, logg)

	go func() {
		logg.Info("Preview Orchestrator API starting", "addr", cfg.Addr(), "store", cfg.StoreDriver, "publisher", cfg.Publisher)
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Server failed", "error", err)
		}
	}()

	// 5. Graceful shutdown: stop taking requests, then let workflows finish
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logg.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := orch.Wait(ctx); err != nil {
		logg.Warn("Workflows still running at shutdown", "error", err)
	}
	logg.Info("Shutdown complete")
}

func openStore(cfg *config.Config, logg *logger.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logg.Warn("Using in-memory store; previews are lost on restart")
		return store.NewMemoryStore(), func() {}, nil

	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil

	default:
		dsn := cfg.DatabasePath
		if cfg.StoreDriver == config.DriverPostgres {
			dsn = cfg.DatabaseURL
		}
		logg.Info("Migrating database...", "driver", cfg.StoreDriver)
		db, err := database.Open(cfg.StoreDriver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store.NewGormStore(db), func() { _ = database.Close(db) }, nil
	}
}
