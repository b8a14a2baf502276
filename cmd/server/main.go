// Package main is the entry point for the Electro Caja backend: the POS
// server that tracks drawers, reconciles cash counts, keeps terminals in
// sync over websockets and runs the end-of-day sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/config"
	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/events"
	"github.com/mvalderrama/electrocaja/internal/evidence"
	"github.com/mvalderrama/electrocaja/internal/modules/cashbox"
	"github.com/mvalderrama/electrocaja/internal/modules/display"
	"github.com/mvalderrama/electrocaja/internal/modules/inventory"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
	"github.com/mvalderrama/electrocaja/internal/modules/rates"
	"github.com/mvalderrama/electrocaja/internal/modules/reports"
	"github.com/mvalderrama/electrocaja/internal/modules/sales"
	"github.com/mvalderrama/electrocaja/internal/modules/services"
	"github.com/mvalderrama/electrocaja/internal/notify"
	"github.com/mvalderrama/electrocaja/internal/realtime"
	"github.com/mvalderrama/electrocaja/internal/scheduler"
	"github.com/mvalderrama/electrocaja/internal/server"
	"github.com/mvalderrama/electrocaja/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Electro Caja backend")

	// Databases: pos.db carries the books, cache.db the ephemeral queues.
	posDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "pos.db"),
		Profile: database.ProfileLedger,
		Name:    "pos",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pos.db")
	}
	defer posDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache.db")
	}
	defer cacheDB.Close()

	if err := posDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate pos.db")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache.db")
	}

	// Event bus: every state change the terminals care about flows through
	// here, and the websocket hub fans it out.
	bus := events.NewBus()

	// Repositories and services
	drawerRepo := cashbox.NewRepository(posDB.Conn(), log)
	ledgerRepo := ledger.NewRepository(posDB.Conn(), log)
	cashboxService := cashbox.NewService(drawerRepo, ledgerRepo, bus, log)

	userRepo := auth.NewUserRepository(posDB.Conn(), log)
	registry := auth.NewSessionRegistry(bus, log)
	tokens := auth.NewTokenService(cfg.JWTSecret, time.Duration(cfg.TokenTTLMin)*time.Minute)

	inventoryService := inventory.NewService(posDB.Conn(), bus, log)
	salesService := sales.NewService(posDB.Conn(), cashboxService, bus, log)
	servicesRepo := services.NewRepository(posDB.Conn(), log)
	ratesService := rates.NewService(posDB.Conn(), bus, log)
	reportsService := reports.NewService(posDB.Conn(), log)
	displayManager := display.NewStateManager(bus, log)

	// Evidence storage is optional: without a bucket the endpoint degrades
	// to a no-op and the count flow carries on.
	var evidenceClient *evidence.Client
	if cfg.Evidence.Bucket != "" {
		evidenceClient, err = evidence.NewClient(cfg.Evidence, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to init evidence storage, continuing without it")
			evidenceClient = nil
		}
	}
	evidenceService := evidence.NewService(evidenceClient, log)

	// WhatsApp queue. Without a gateway, sends fail and the queue's retry
	// budget marks them EXHAUSTED; they stay inspectable either way.
	var sender notify.Sender = notify.NewWhatsAppClient(cfg.WhatsApp.GatewayURL, log)
	queue := notify.NewQueue(cacheDB.Conn(), sender, cfg.WhatsApp.MaxAttempts, log)

	// Websocket hub. Each accepted connection gets a full state snapshot
	// before any deltas, so reconnecting terminals never replay history.
	hub := realtime.NewHub(bus, func() (interface{}, error) {
		return buildSnapshot(cashboxService, registry, ratesService)
	}, log)

	// Background jobs
	sched := scheduler.New(log)
	autoCloseJob := scheduler.NewAutoCloseJob(cashboxService, queue, userRepo, log)
	notifyDrainJob := scheduler.NewNotifyDrainJob(queue, log)
	if err := sched.AddJob(scheduler.AutoCloseSchedule, autoCloseJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register auto-close job")
	}
	if err := sched.AddJob(scheduler.NotifyDrainSchedule, notifyDrainJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register notify-drain job")
	}
	sched.Start()
	defer sched.Stop()

	systemHandlers := server.NewSystemHandlers(log, cfg.DataDir, posDB, cacheDB, registry, hub, sched)
	systemHandlers.SetJobs(autoCloseJob, notifyDrainJob)

	srv := server.New(server.Config{
		Log:            log,
		Config:         cfg,
		PosDB:          posDB,
		CacheDB:        cacheDB,
		Tokens:         tokens,
		Users:          userRepo,
		Registry:       registry,
		Cashbox:        cashboxService,
		Ledger:         ledgerRepo,
		Inventory:      inventoryService,
		Sales:          salesService,
		Services:       servicesRepo,
		Rates:          ratesService,
		Reports:        reportsService,
		Evidence:       evidenceService,
		Queue:          queue,
		Hub:            hub,
		DisplayManager: displayManager,
		SystemHandlers: systemHandlers,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server stopped")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Electro Caja backend stopped")
}

// buildSnapshot assembles the terminal state sent on every websocket accept.
func buildSnapshot(
	cashboxService *cashbox.Service,
	registry *auth.SessionRegistry,
	ratesService *rates.Service,
) (*realtime.TerminalState, error) {
	state := &realtime.TerminalState{
		ActiveUsers: registry.ActiveUsers(),
	}

	if drawer, err := cashboxService.CurrentDrawer(); err == nil && drawer != nil {
		state.DrawerOpen = true
		state.DrawerID = drawer.ID
	}
	if session := cashboxService.ActiveSession(); session != nil {
		state.Locked = true
		state.LockReason = "cash-count"
	}
	if pending, err := cashboxService.ListPending(); err == nil && len(pending) > 0 {
		state.Locked = true
		state.LockReason = "pending-physical-close"
		state.PendingDrawers = len(pending)
	}
	if rate, err := ratesService.Current(); err == nil && !rate.IsZero() {
		state.Rate = rate.StringFixed(2)
	}
	return state, nil
}
