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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rm-3284/mle-bench-hpc/internal/config"
	"github.com/rm-3284/mle-bench-hpc/internal/handlers"
	"github.com/rm-3284/mle-bench-hpc/internal/history"
	"github.com/rm-3284/mle-bench-hpc/internal/metrics"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
	"github.com/rm-3284/mle-bench-hpc/internal/registry"
	"github.com/rm-3284/mle-bench-hpc/internal/stats"
	"github.com/rm-3284/mle-bench-hpc/internal/uploads"
	"github.com/rm-3284/mle-bench-hpc/internal/validator"
	"github.com/rm-3284/mle-bench-hpc/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

// app agrupa todo lo que el servidor necesita para una competencia
type app struct {
	cfg         *config.Config
	competition *models.Competition
	validator   *validator.Validator
	spool       *uploads.Spool
	handler     *handlers.Handler
	router      *gin.Engine

	closers []func() error
}

// resolveCompetition busca la competencia configurada dentro del directorio de datos
func resolveCompetition(cfg *config.Config) (*models.Competition, error) {
	reg, err := registry.SetDataDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return reg.GetCompetition(cfg.CompetitionID)
}

// newApp construye el servidor. Falla si la competencia no existe o si un
// backend habilitado (Redis, Postgres, webhook) no se puede inicializar.
func newApp(cfg *config.Config) (*app, error) {
	competition, err := resolveCompetition(cfg)
	if err != nil {
		return nil, err
	}

	spool, err := uploads.NewSpool(cfg.UploadDir, cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		competition: competition,
		validator:   validator.NewFromConfig(cfg),
		spool:       spool,
	}

	opts := handlers.Options{Metrics: metrics.New()}

	// Estadísticas: Redis si está habilitado, memoria si no
	if cfg.RedisEnabled {
		rs, err := stats.NewRedisStore(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		opts.Stats = rs
		log.Printf("✅ Stats stored in Redis at %s", cfg.GetRedisAddr())
	} else {
		opts.Stats = stats.NewMemoryStore()
	}

	// Historial de validaciones
	if cfg.DBEnabled {
		store, err := history.NewStore(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, store.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.InitSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database schema: %w", err)
		}
		opts.History = store
	}

	notifier, err := webhook.NewNotifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts.Notifier = notifier

	a.handler = handlers.NewHandler(competition, a.validator, spool, opts)
	a.router = setupRouter(a.handler, opts.Metrics)
	return a, nil
}

// Close libera las conexiones abiertas
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("Warning: error closing resource: %v", err)
		}
	}
	a.closers = nil
}

func (a *app) printBanner() {
	base := a.cfg.BaseURL()
	log.Printf("🚀 Starting grading server for competition: %s", a.competition.ID)
	log.Printf("📂 Data directory: %s", a.cfg.DataDir)
	log.Printf("🌐 Listening on %s", base)
	log.Printf("📤 Validation endpoint: %s/validate", base)
	log.Printf("💚 Health endpoint: %s/health", base)
	log.Println("📚 Additional endpoints:")
	log.Println("  GET    /metrics                  - Prometheus metrics")
	log.Println("  GET    /api/v1/stats             - Validation counters")
	log.Println("  GET    /api/v1/validations       - Recent validations")
	log.Println("  GET    /api/v1/validations/:id   - Get validation")
}

// run inicia el servidor y espera SIGINT/SIGTERM para apagarlo
func run(cfg *config.Config) error {
	log.Printf("Environment: %s", cfg.Environment)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: a.router,
	}

	a.printBanner()

	// Capturar señales de sistema para graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Println("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("✅ Server stopped")
	return nil
}
