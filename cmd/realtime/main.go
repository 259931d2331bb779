package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chess-vn/slpuzzle/internal/app/bootstrap"
	"github.com/chess-vn/slpuzzle/internal/app/realtime"
	"github.com/chess-vn/slpuzzle/internal/config"
	"github.com/chess-vn/slpuzzle/internal/scheduler"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("realtime")
	if err != nil {
		logging.Fatal("failed to load config", zap.Error(err))
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		logging.Fatal("failed to init logger", zap.Error(err))
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDeps(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to init dependencies", zap.Error(err))
	}
	manager := bootstrap.NewManager(cfg, deps, nil)
	gateway := realtime.NewServer(manager, deps.Validator, realtime.Config{
		Port:         cfg.RealtimePort,
		BridgeSecret: cfg.BridgeSecret,
	})

	opts := []scheduler.Option{}
	if protector := bootstrap.NewProtector(ctx, cfg, deps); protector != nil {
		opts = append(opts, scheduler.WithProtector(protector))
	}
	sched, err := scheduler.New(manager, gateway, opts...)
	if err != nil {
		logging.Fatal("failed to init scheduler", zap.Error(err))
	}
	defer sched.Shutdown()
	manager.SetScheduler(sched)
	gateway.SetScheduler(sched)
	if cfg.RequirePresenceAtStart {
		manager.SetReadiness(gateway)
	}

	if err := gateway.Run(ctx); err != nil {
		logging.Error("realtime server exited", zap.Error(err))
	}
}
