package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/mindengage-testgen/internal/api/http"
	"github.com/mind-engage/mindengage-testgen/internal/config"
	"github.com/mind-engage/mindengage-testgen/internal/db"
	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/jobs"
	"github.com/mind-engage/mindengage-testgen/internal/seed"
	"github.com/mind-engage/mindengage-testgen/internal/session"
	syncx "github.com/mind-engage/mindengage-testgen/internal/sync"
)

func main() {
	cfg := config.Load()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		store exam.Store
		dbh   *sql.DB
	)
	if cfg.DBDriver == "memory" {
		store = exam.NewInMemoryStore()
	} else {
		var err error
		dbh, err = db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		defer dbh.Close()
		store = exam.NewSQLStore(dbh, cfg.DBDriver)
	}

	if cfg.SeedFile != "" {
		bank, err := seed.Load(cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed file: %v", err)
		}
		if err := bank.Apply(ctx, store); err != nil {
			log.Fatalf("seed apply: %v", err)
		}
	}

	opts := []session.Option{session.WithStrict(cfg.StrictIntegrity)}
	if cfg.RNGSeed != "" {
		log.Printf("seeded materialization enabled")
		opts = append(opts, session.WithSeed(cfg.RNGSeed))
	}
	if dbh != nil {
		opts = append(opts, session.WithEvents(syncx.NewEventRepo(dbh, cfg.EventSiteID)))
	}
	svc := session.NewService(store, opts...)

	var sched *jobs.Scheduler
	if cfg.SweepSchedule != "" {
		sched = jobs.NewScheduler(svc)
		if err := sched.Start(cfg.SweepSchedule); err != nil {
			log.Fatalf("sweeper: %v", err)
		}
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, svc)

	var ping func(context.Context) error
	if dbh != nil {
		ping = dbh.PingContext
	}
	r.Get("/healthz", api.HealthHandler())
	r.Get("/readyz", api.ReadyHandler(ping))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s, strict=%t)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.StrictIntegrity)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
