package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brewkit/brewmon"
	"github.com/brewkit/brewmon/internal/scheduler"
	"github.com/brewkit/brewmon/internal/store"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring daemon",
		Long: `Run the brewmon daemon: connect to the machine, poll group status on a
schedule, persist delivery records, and serve the HTTP API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags.ConfigPath)
		},
	}
}

func runServe(configPath string) error {
	cfg := brewmon.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = brewmon.LoadConfig(configPath)
		if err != nil {
			return err
		}
	}

	logger := cfg.Log.NewSlogger()
	slog.SetDefault(logger)

	mach := brewmon.NewMachine(cfg.Machine, logger)
	if err := mach.Connect(); err != nil {
		// the daemon still starts; reads fail until the line comes back
		logger.Warn("machine connect failed", "port", cfg.Machine.Port, "error", err)
	}

	st, err := brewmon.NewStore(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	sink, err := brewmon.NewHistorySinks(cfg.History)
	if err != nil {
		return fmt.Errorf("history sinks: %w", err)
	}

	groups := cfg.Monitor.Groups
	if groups == 0 {
		if n, err := mach.NumberOfGroups(); err == nil {
			groups = n
		}
	}

	mon := brewmon.NewMonitor(groups, brewmon.NewMachineReader(mach), st, sink, logger)
	if cfg.Monitor.StartEnabled {
		mon.Start()
	}

	if cfg.Metrics.Enabled {
		if err := brewmon.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go func() {
			if err := brewmon.ServeMetrics(cfg.Metrics.Listen); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	sched := scheduler.New()
	if err := sched.Add(&scheduler.Job{
		Name:      "poll-deliveries",
		Schedule:  cfg.Monitor.Schedule,
		Singleton: true,
		Run:       mon.RunCycle,
	}); err != nil {
		return err
	}
	if err := sched.Add(&scheduler.Job{
		Name:      "health-check",
		Schedule:  cfg.Monitor.HealthCheckSchedule,
		Singleton: true,
		Run: func(ctx context.Context) {
			runHealthCheck(ctx, mach, st, logger)
		},
	}); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	srv := brewmon.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, mach, mon, st, logger)
	logger.Info("brewmon started",
		"listen", cfg.Server.Listen,
		"base_path", cfg.Server.BasePath,
		"store", cfg.Store.DSN,
		"schedule", cfg.Monitor.Schedule,
		"groups", groups,
		"monitoring", cfg.Monitor.StartEnabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := mach.Disconnect(); err != nil {
		logger.Warn("disconnect", "error", err)
	}
	return nil
}

func runHealthCheck(ctx context.Context, mach *brewmon.Machine, st brewmon.Store, logger *slog.Logger) {
	h := mach.HealthCheck()
	if h.Overall == "healthy" {
		logger.Debug("health check passed")
		return
	}
	logger.Warn("health check failed", "errors", h.Errors, "blocked", h.Blocked)
	if err := st.AppendMaintenance(ctx, store.MaintenanceEntry{
		LogType:   store.LogHealthCheck,
		Message:   fmt.Sprintf("health check failed: %v", h.Errors),
		Timestamp: h.Timestamp,
	}); err != nil {
		logger.Warn("maintenance log write failed", "error", err)
	}
}
