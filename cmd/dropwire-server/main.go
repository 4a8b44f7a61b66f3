package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dropwire/dropwire/internal/config"
	"github.com/dropwire/dropwire/internal/edge"
	"github.com/dropwire/dropwire/internal/library"
	"github.com/dropwire/dropwire/internal/logging"
	"github.com/dropwire/dropwire/internal/monitor"
	"github.com/dropwire/dropwire/internal/server"
	"github.com/dropwire/dropwire/internal/state"
	"github.com/dropwire/dropwire/internal/token"
	"github.com/dropwire/dropwire/internal/tracing"
	"github.com/dropwire/dropwire/internal/tunnel"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Panic recovered: %v\nStack trace:\n%s\n", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.InitLogger(cfg.Logging()); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	logger := logging.GetGlobalLogger()
	defer logger.Close()

	logger.Info("Starting dropwire in %s mode", cfg.Environment)

	if cfg.OTLPEndpoint != "" {
		shutdown, err := tracing.Init(context.Background(), "dropwire-server", cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracer: %v", err)
				}
			}()
		}
	}

	logger.Info("Connecting to state store...")
	store, err := state.NewRedisStore(cfg.StateStoreURL)
	if err != nil {
		logger.Error("Failed to connect to state store: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("State store connected")

	lib, err := library.New(cfg.LibraryRoot)
	if err != nil {
		logger.Error("Failed to initialize library root %s: %v", cfg.LibraryRoot, err)
		os.Exit(1)
	}

	tokens := token.NewService([]byte(cfg.JWTSecret), store, cfg.MaxTunnelSeconds)
	provider := edge.NewCaddyProvider(cfg.EdgeProviderSocket, cfg.EdgeBaseDomain)

	manager := tunnel.NewManager(store, provider, lib, tunnel.Config{
		StagingRoot:        cfg.StagingRoot,
		MaxTunnelSeconds:   cfg.MaxTunnelSeconds,
		GracePeriodSeconds: cfg.GracePeriodSeconds,
	})

	logger.Info("Reconciling tunnel state against edge provider...")
	if err := manager.ReconcileOnStartup(context.Background()); err != nil {
		logger.Error("Reconciliation reported mismatches: %v", err)
	}

	mon := monitor.New(store, manager, monitor.Config{
		AccessLogPath:            cfg.AccessLogPath,
		StallTimeoutSeconds:      cfg.StallTimeoutSeconds,
		GracePeriodSeconds:       cfg.GracePeriodSeconds,
		TriggerTickInterval:      time.Duration(cfg.TriggerTickSeconds) * time.Second,
		OffsetCheckpointEvents:   cfg.OffsetCheckpointEvents,
		OffsetCheckpointInterval: time.Duration(cfg.OffsetCheckpointSeconds) * time.Second,
	})
	if err := mon.Start(context.Background(), true); err != nil {
		logger.Error("Failed to start download monitor: %v", err)
		os.Exit(1)
	}
	defer mon.Stop()
	logger.Info("Download monitor started, tailing %s", cfg.AccessLogPath)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.TokenSweepCron, func() {
		ctx := context.Background()
		if n, err := tokens.Sweep(ctx); err != nil {
			logger.Error("token sweep failed: %v", err)
		} else if n > 0 {
			logger.Info("token sweep evicted %d consumed token(s)", n)
		}
		if n, err := manager.TrimHistory(ctx, cfg.HistoryRetentionLimit); err != nil {
			logger.Error("history trim failed: %v", err)
		} else if n > 0 {
			logger.Info("history trim removed %d entr(ies)", n)
		}
	}); err != nil {
		logger.Error("Failed to schedule token sweep %q: %v", cfg.TokenSweepCron, err)
	} else {
		sweeper.Start()
		defer sweeper.Stop()
	}

	srv, err := server.NewServer(store, manager, mon)
	if err != nil {
		logger.Error("Failed to create server: %v", err)
		os.Exit(1)
	}
	if err := srv.Init(tokens, lib); err != nil {
		logger.Error("Failed to initialize routes: %v", err)
		os.Exit(1)
	}

	logger.Info("Starting server on port %s...", cfg.Port)
	if err := srv.Start(&server.Config{Port: cfg.Port, MetricsAddr: cfg.MetricsAddr}); err != nil {
		logger.Error("Server failed to start: %v", err)
		os.Exit(1)
	}
}
