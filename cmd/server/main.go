// Package main is the entry point for the vnsentry signal engine.
// Startup order matters: configuration, logging, any staged restore,
// then dependency wiring, the scheduler and finally the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/di"
	"github.com/quangtd/vnsentry/internal/reliability"
	"github.com/quangtd/vnsentry/internal/scheduler"
	"github.com/quangtd/vnsentry/internal/server"
	"github.com/quangtd/vnsentry/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still reported.
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting vnsentry")

	// A staged restore must run before any database connection is opened.
	restoreSvc := reliability.NewRestoreService(cfg.DataDir, log)
	hasPendingRestore, err := restoreSvc.CheckPendingRestore()
	if err != nil {
		log.Error().Err(err).Msg("Failed to check for pending restore")
	}
	if hasPendingRestore {
		log.Warn().Msg("Pending restore detected, executing staged restore")
		if err := restoreSvc.ExecuteStagedRestore(); err != nil {
			log.Fatal().Err(err).Msg("Failed to execute staged restore")
		}
		log.Info().Msg("Restore completed, proceeding with normal startup")
	}

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// All schedules fire in exchange time, not server time.
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("Invalid timezone")
	}

	sched := scheduler.New(loc, log)
	for _, entry := range []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.CycleSchedule, jobs.AnalysisCycle},
		{cfg.AlertSweepSchedule, jobs.AlertSweep},
		{cfg.MaintenanceSchedule, jobs.Maintenance},
		{cfg.BackupSchedule, jobs.Backup},
	} {
		if err := sched.AddJob(entry.schedule, entry.job); err != nil {
			log.Fatal().Err(err).Str("job", entry.job.Name()).Msg("Failed to register job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
