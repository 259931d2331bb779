package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chess-vn/slpuzzle/internal/app/api"
	"github.com/chess-vn/slpuzzle/internal/app/bootstrap"
	"github.com/chess-vn/slpuzzle/internal/bridge"
	"github.com/chess-vn/slpuzzle/internal/config"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("api")
	if err != nil {
		logging.Fatal("failed to load config", zap.Error(err))
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		logging.Fatal("failed to init logger", zap.Error(err))
	}
	defer logging.Sync()
	if cfg.BridgeSecret == "" {
		logging.Fatal("bridge.secret is required to reach the realtime server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDeps(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to init dependencies", zap.Error(err))
	}

	// Timers and pushes live in the realtime process.
	sender := bridge.NewClient(cfg.RealtimeUrl, cfg.BridgeSecret, &http.Client{Timeout: 5 * time.Second})
	publisher := bridge.NewPublisher(sender, cfg.GameId)
	manager := bootstrap.NewManager(cfg, deps, publisher)

	server := api.NewServer(manager, publisher, deps.Validator, api.Config{
		Port:          cfg.ApiPort,
		InternalToken: cfg.InternalToken,
	})
	if err := server.Run(ctx); err != nil {
		logging.Fatal("api server exited", zap.Error(err))
	}
}
