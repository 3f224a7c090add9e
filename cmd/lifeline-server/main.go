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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mr1hm/go-lifeline/internal/api"
	"github.com/mr1hm/go-lifeline/internal/classifier"
	"github.com/mr1hm/go-lifeline/internal/config"
	"github.com/mr1hm/go-lifeline/internal/feed"
	"github.com/mr1hm/go-lifeline/internal/logging"
	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/repository"
	"github.com/mr1hm/go-lifeline/internal/retriage"
	"github.com/mr1hm/go-lifeline/internal/triage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Models load lazily; prewarm so the first alert does not pay for it.
	registry := classifier.NewRegistry(classifier.NewLoader(&http.Client{Timeout: cfg.Models.LoadTimeout}), classifier.Artifacts{
		UrgencyVocabulary:  cfg.Models.UrgencyVocabulary,
		UrgencyModel:       cfg.Models.UrgencyModel,
		CategoryVocabulary: cfg.Models.CategoryVocabulary,
		CategoryModel:      cfg.Models.CategoryModel,
	}, cfg.Models.LoadTimeout)
	if err := registry.Prewarm(ctx); err != nil {
		slog.Warn("model prewarm failed, alerts will be retriaged later", "error", err)
	}
	combiner := triage.NewFromRegistry(registry, triage.NewMetrics(reg).Hooks())

	alerts := feed.NewBroadcaster[*models.Alert](32)

	mgr := retriage.NewManager(cfg.Worker, db, combiner, alerts, retriage.NewMetrics(reg).Hooks())
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", api.UserHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.GET("/metrics", api.MetricsHandler(reg))
	router.Use(api.RateLimitMiddleware(cfg.Server.RequestsPerSec, cfg.Server.Burst))

	handler := api.NewHandler(db, alerts, mgr, api.NewMetrics(reg).Hooks())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s != syscall.SIGHUP {
			break
		}
		dropped := registry.Reload()
		slog.Info("model reload requested", "dropped", dropped)
		if err := registry.Prewarm(ctx); err != nil {
			slog.Warn("model prewarm after reload failed", "error", err)
			continue
		}
		if n, err := mgr.Sweep(ctx); err == nil && n > 0 {
			slog.Info("retriaging after model reload", "count", n)
		}
	}

	slog.Info("shutting down...")

	// Stop the feed first so open SSE streams end and Shutdown can finish.
	alerts.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()
	mgr.Stop()

	slog.Info("shutdown complete")
}
