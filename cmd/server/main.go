package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"royalty-reconciliation-backend/internal/config"
	"royalty-reconciliation-backend/internal/logger"
	"royalty-reconciliation-backend/internal/repository"
	"royalty-reconciliation-backend/internal/routes"
)

func main() {
	// Load .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Writer:      os.Stdout,
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
		Level:       cfg.Logger.Level,
	})
	slog.SetDefault(log)

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	svc := routes.RegisterRoutes(r, db, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.ReloadCatalog(ctx); err != nil {
		log.Error("initial catalog load failed", "error", err)
		os.Exit(1)
	}
	go svc.RunSweeper(ctx, time.Minute)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
