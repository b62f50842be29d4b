// Command sweep runs a single due-reminder pass and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"learnbot/internal/config"
	"learnbot/internal/database"
	"learnbot/internal/schedule"
	"learnbot/internal/services"
	"learnbot/internal/store"
	"learnbot/internal/utils"

	"github.com/jmhodges/clock"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	dryRun := flag.Bool("dry-run", false, "Print digests to stdout without advancing reminders or messaging anyone")
	flag.Parse()

	if err := run(*configPath, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
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
	prefs := store.NewPreferences(db, cfg.Persona.DefaultHonorific)

	var notifier services.Notifier
	if dryRun {
		notifier = services.NewWriterNotifier(os.Stdout)
	} else {
		notifier, err = services.NewDiscordNotifier(cfg.Discord.Token, log)
		if err != nil {
			return err
		}
	}

	sweep := services.NewSweep(
		store.NewReminders(db, policy),
		store.NewPartnerships(db, clk, cfg.Partnership.InviteTTL),
		notifier,
		services.NewDigestRenderer(cfg.Persona, prefs, log),
		policy,
		services.SweepOptions{
			Concurrency:     cfg.Sweep.Concurrency,
			DeliveryTimeout: cfg.Sweep.DeliveryTimeout,
			DryRun:          dryRun,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := sweep.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
