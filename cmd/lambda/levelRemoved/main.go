package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chess-vn/slpuzzle/internal/app/bootstrap"
	"github.com/chess-vn/slpuzzle/internal/bridge"
	"github.com/chess-vn/slpuzzle/internal/config"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

const defaultReason = "a level in this match was removed"

type levelRemovedEvent struct {
	LevelId string `json:"levelId"`
	Reason  string `json:"reason"`
}

type levelRemovedResult struct {
	Aborted []string `json:"aborted"`
}

var (
	manager   *multiplayer.Manager
	publisher *bridge.Publisher
)

func setup() {
	ctx := context.Background()
	cfg, err := config.Load("lambda")
	if err != nil {
		logging.Fatal("failed to load config", zap.Error(err))
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		logging.Fatal("failed to init logger", zap.Error(err))
	}
	if err := requireBridge(cfg); err != nil {
		logging.Fatal("realtime bridge not configured", zap.Error(err))
	}
	deps, err := bootstrap.NewStore(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to init store", zap.Error(err))
	}
	sender := bridge.NewClient(cfg.RealtimeUrl, cfg.BridgeSecret, &http.Client{Timeout: 5 * time.Second})
	publisher = bridge.NewPublisher(sender, cfg.GameId)
	manager = bootstrap.NewManager(cfg, deps, publisher)
}

// requireBridge checks that aborted matches can be pushed to the realtime
// server.
func requireBridge(cfg config.Config) error {
	if cfg.RealtimeUrl == "" {
		return errors.New("realtime.url is required")
	}
	if cfg.BridgeSecret == "" {
		return errors.New("bridge.secret is required")
	}
	return nil
}

// handler is invoked by the level publishing service after a level was
// unpublished or deleted. Retries are safe: matches already aborted are
// left alone.
func handler(ctx context.Context, event levelRemovedEvent) (levelRemovedResult, error) {
	if event.LevelId == "" {
		return levelRemovedResult{}, fmt.Errorf("missing level id")
	}
	reason := event.Reason
	if reason == "" {
		reason = defaultReason
	}

	aborted, err := manager.AbortMatchesWithLevel(ctx, event.LevelId, reason)
	result := levelRemovedResult{Aborted: make([]string, 0, len(aborted))}
	for _, match := range aborted {
		if match.State != entities.MatchStateAborted {
			continue
		}
		publisher.MatchChanged(match)
		result.Aborted = append(result.Aborted, match.MatchId)
	}
	if err != nil {
		logging.Error("failed to abort matches",
			zap.String("level_id", event.LevelId),
			zap.Error(err),
		)
		return result, fmt.Errorf("failed to abort matches: %w", err)
	}
	logging.Info("matches aborted for removed level",
		zap.String("level_id", event.LevelId),
		zap.Int("count", len(result.Aborted)),
	)
	return result, nil
}

func main() {
	setup()
	lambda.Start(handler)
}
