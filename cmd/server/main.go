package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnbot/internal/auth"
	"learnbot/internal/config"
	"learnbot/internal/database"
	"learnbot/internal/handlers"
	"learnbot/internal/schedule"
	"learnbot/internal/services"
	"learnbot/internal/store"
	"learnbot/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/jmhodges/clock"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "learnbot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	log, syncLog, err := utils.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer syncLog()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize database
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	clk := clock.New()
	policy := schedule.NewPolicy(loc, clk)
	reminders := store.NewReminders(db, policy)
	partnerships := store.NewPartnerships(db, clk, cfg.Partnership.InviteTTL)
	prefs := store.NewPreferences(db, cfg.Persona.DefaultHonorific)

	notifier, err := services.NewDiscordNotifier(cfg.Discord.Token, log)
	if err != nil {
		return err
	}
	sweep := services.NewSweep(
		reminders,
		partnerships,
		notifier,
		services.NewDigestRenderer(cfg.Persona, prefs, log),
		policy,
		services.SweepOptions{
			Concurrency:     cfg.Sweep.Concurrency,
			DeliveryTimeout: cfg.Sweep.DeliveryTimeout,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trigger := services.NewTrigger(loc, log)
	if err := trigger.Schedule("sweep", cfg.Schedule.SweepCron, services.SweepJob(sweep, log)); err != nil {
		return err
	}
	if err := trigger.Schedule("invite-expiry", cfg.Schedule.ExpiryCron, services.ExpiryJob(partnerships, log)); err != nil {
		return err
	}
	trigger.Start(ctx)
	log.Infow("jobs scheduled", "next_runs", trigger.Next())

	tokens, err := auth.NewTokenService(cfg.API.JWTSecret, cfg.API.JWTExpiry, clk)
	if err != nil {
		return err
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.New(reminders, partnerships, prefs, sweep, policy, log)
	router, err := handlers.NewRouter(cfg.API, h, tokens, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", cfg.API.Addr, "timezone", loc.String(), "sweep_cron", cfg.Schedule.SweepCron)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Infow("shutting down")
	case runErr = <-serveErr:
		if runErr != nil {
			log.Errorw("server stopped", "err", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown incomplete", "err", err)
	}

	// wait for a running sweep to finish its current recipients
	select {
	case <-trigger.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warnw("scheduled jobs still running at shutdown")
	}

	log.Infow("shutdown complete")
	return runErr
}
