package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/gpuheald/internal/config"
	"codeberg.org/mutker/gpuheald/internal/cooldown"
	"codeberg.org/mutker/gpuheald/internal/detector"
	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/executor"
	"codeberg.org/mutker/gpuheald/internal/gpu"
	"codeberg.org/mutker/gpuheald/internal/healer"
	"codeberg.org/mutker/gpuheald/internal/inference"
	"codeberg.org/mutker/gpuheald/internal/ledger"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"codeberg.org/mutker/gpuheald/internal/metrics"
	"codeberg.org/mutker/gpuheald/internal/pid"
	"codeberg.org/mutker/gpuheald/internal/planner"
	"codeberg.org/mutker/gpuheald/internal/runtime"
	"codeberg.org/mutker/gpuheald/internal/telemetry"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(false, false, logger.IsService())
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.SetLogLevel(level)
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		if appErr, ok := err.(errors.Error); ok && appErr.Code() == errors.ErrAlreadyRunning {
			logger.Fatal().Msg("Another gpuheald instance is already running")
		}
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}
	defer pid.Remove()

	log := logger.Default()

	device, err := gpu.New(log)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize GPU")
	}
	defer func() {
		if err := device.RestoreDefaults(); err != nil {
			logger.Error().Err(err).Msg("Failed to restore GPU defaults")
		}
		if err := device.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown NVML")
		}
	}()

	actionTimeout := time.Duration(cfg.ActionTimeout) * time.Second
	restartWait := time.Duration(cfg.RestartWait) * time.Second

	client, err := inference.NewClient(cfg.ServiceURL, actionTimeout, log)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create inference client")
	}

	led, err := ledger.New(ledger.Config{
		DBPath:        cfg.LedgerDB,
		RetentionDays: cfg.RetentionDays,
	}, log)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open healing ledger")
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close healing ledger")
		}
	}()

	provider, err := telemetry.NewProvider(device, client, actionTimeout, log)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create telemetry provider")
	}

	healthy := func(ctx context.Context) bool {
		health, err := client.Health(ctx)
		return err == nil && health.Status == inference.StatusHealthy
	}
	rt := runtime.New(cfg.RuntimeBin, healthy, restartWait, log)

	exec := executor.New(log)
	exec.Register(planner.ActionClearCache, actionTimeout, executor.NewClearCache(client))
	exec.Register(planner.ActionResetSession, actionTimeout, executor.NewResetSession(client, cfg.DefaultModel))
	exec.Register(planner.ActionThrottle, actionTimeout, executor.NewThrottle(device, cfg.ThrottleStep, cfg.ThrottleClockMHz))
	exec.Register(planner.ActionResetAccelerator, restartWait, executor.NewResetAccelerator(device))
	exec.Register(planner.ActionRestartService, restartWait+actionTimeout, executor.NewRestartService(rt, cfg.ContainerRef))
	exec.Register(planner.ActionStopService, restartWait+actionTimeout, executor.NewStopService(rt, cfg.ContainerRef))

	det := detector.New(detector.Thresholds{
		MemoryCriticalPct: cfg.MemoryCriticalPct,
		MemoryWarningPct:  cfg.MemoryWarningPct,
		TempCritical:      cfg.TempCritical,
		TempWarning:       cfg.TempWarning,
		HangUtilization:   cfg.HangUtilization,
		HangWindow:        time.Duration(cfg.HangWindow) * time.Second,
	})

	guard := cooldown.NewGuard(time.Duration(cfg.Cooldown)*time.Second, nil)

	loop, err := healer.New(healer.Config{
		Target:    cfg.Target,
		Interval:  time.Duration(cfg.Interval) * time.Second,
		Monitor:   cfg.Monitor,
		Retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, provider, det, guard, exec, led, log)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create healing loop")
	}

	metrics.Serve(cfg.MetricsListen, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	logger.Info().
		Str("target", cfg.Target).
		Int("interval_s", cfg.Interval).
		Int("cooldown_s", cfg.Cooldown).
		Bool("monitor", cfg.Monitor).
		Msg("Healing loop starting")

	if err := loop.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Error in healing loop")
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
