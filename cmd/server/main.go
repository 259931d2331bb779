package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chess-vn/slpuzzle/internal/app/api"
	"github.com/chess-vn/slpuzzle/internal/app/bootstrap"
	"github.com/chess-vn/slpuzzle/internal/app/realtime"
	"github.com/chess-vn/slpuzzle/internal/bridge"
	"github.com/chess-vn/slpuzzle/internal/config"
	"github.com/chess-vn/slpuzzle/internal/scheduler"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Single process deployment: api, realtime gateway and timers share one
// manager and talk through an in-process bridge.
func main() {
	cfg, err := config.Load("server")
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
	gateway := realtime.NewServer(manager, deps.Validator, realtime.Config{Port: cfg.RealtimePort})

	opts := []scheduler.Option{}
	if protector := bootstrap.NewProtector(ctx, cfg, deps); protector != nil {
		opts = append(opts, scheduler.WithProtector(protector))
	}
	sched, err := scheduler.New(manager, gateway, opts...)
	if err != nil {
		logging.Fatal("failed to init scheduler", zap.Error(err))
	}
	manager.SetScheduler(sched)
	gateway.SetScheduler(sched)
	if cfg.RequirePresenceAtStart {
		manager.SetReadiness(gateway)
	}

	publisher := bridge.NewPublisher(bridge.NewLocal(gateway), cfg.GameId)
	apiServer := api.NewServer(manager, publisher, deps.Validator, api.Config{
		Port:          cfg.ApiPort,
		InternalToken: cfg.InternalToken,
	})

	ctx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		if err := gateway.Run(ctx); err != nil {
			logging.Error("realtime server exited", zap.Error(err))
		}
	})
	wg.Go(func() {
		defer cancel()
		if err := apiServer.Run(ctx); err != nil {
			logging.Error("api server exited", zap.Error(err))
		}
	})
	wg.Wait()

	if err := sched.Shutdown(); err != nil {
		logging.Warn("failed to stop scheduler", zap.Error(err))
	}
}
