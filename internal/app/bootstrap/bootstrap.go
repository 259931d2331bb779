package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/chess-vn/slpuzzle/internal/aws/auth"
	"github.com/chess-vn/slpuzzle/internal/aws/compute"
	"github.com/chess-vn/slpuzzle/internal/aws/storage"
	"github.com/chess-vn/slpuzzle/internal/config"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
	"github.com/chess-vn/slpuzzle/internal/levelpool"
	"github.com/chess-vn/slpuzzle/internal/memstore"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/chess-vn/slpuzzle/internal/scheduler"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

const devLevelsFile = "./configs/dev/levels.json"

// Deps are the process-wide collaborators shared by every binary.
type Deps struct {
	Store     interfaces.MatchStore
	Levels    interfaces.LevelSource
	Validator *auth.Validator
	AwsConfig *aws.Config
}

// NewDeps builds the store and the token validator of a serving process.
func NewDeps(ctx context.Context, cfg config.Config) (Deps, error) {
	if err := cfg.RequireAuth(); err != nil {
		return Deps{}, err
	}
	issuer := cfg.AuthIssuer
	if issuer == "" && cfg.CognitoUserPoolId != "" && cfg.AuthSecret == "" {
		issuer = auth.CognitoIssuer(cfg.AwsRegion, cfg.CognitoUserPoolId)
	}
	validator := auth.NewValidator(cfg.AuthSecret, issuer)
	if cfg.CognitoUserPoolId != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		url := auth.CognitoKeysUrl(cfg.AwsRegion, cfg.CognitoUserPoolId)
		if err := validator.LoadPublicKeys(ctx, client, url); err != nil {
			return Deps{}, fmt.Errorf("failed to load cognito public keys: %w", err)
		}
		logging.Info("cognito public keys loaded")
	}

	deps, err := NewStore(ctx, cfg)
	if err != nil {
		return Deps{}, err
	}
	deps.Validator = validator
	return deps, nil
}

// NewStore picks the in-memory store on the dev stage and DynamoDB
// everywhere else.
func NewStore(ctx context.Context, cfg config.Config) (Deps, error) {
	if cfg.Stage == config.StageDev {
		store := memstore.New()
		if err := seedLevels(store, devLevelsFile); err != nil {
			return Deps{}, err
		}
		logging.Info("using in-memory store")
		return Deps{Store: store, Levels: store}, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.AwsRegion))
	if err != nil {
		return Deps{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := storage.NewClient(
		dynamodb.NewFromConfig(awsCfg),
		storage.NewConfig(
			cfg.MatchesTableName,
			cfg.UserMatchesTableName,
			cfg.ProfilesTableName,
			cfg.LevelsTableName,
			cfg.MatchStateIndexName,
		),
	)
	return Deps{Store: client, Levels: client, AwsConfig: &awsCfg}, nil
}

func seedLevels(store *memstore.Store, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read dev levels: %w", err)
	}
	var levels []entities.Level
	if err := json.Unmarshal(data, &levels); err != nil {
		return fmt.Errorf("failed to decode dev levels: %w", err)
	}
	for i := range levels {
		levels[i].Published = true
	}
	store.PutLevels(levels...)
	logging.Info("dev levels seeded", zap.Int("count", len(levels)))
	return nil
}

func NewManager(cfg config.Config, deps Deps, sched multiplayer.Scheduler, opts ...multiplayer.Option) *multiplayer.Manager {
	return multiplayer.NewManager(
		deps.Store,
		levelpool.NewProvider(deps.Levels, nil),
		sched,
		multiplayer.Config{
			GameId:      cfg.GameId,
			StartDelay:  cfg.StartDelay,
			Bands:       cfg.Bands,
			Constraints: cfg.Constraints,
		},
		opts...,
	)
}

// NewProtector returns the ECS task protector when enabled, or nil.
func NewProtector(ctx context.Context, cfg config.Config, deps Deps) scheduler.Protector {
	if !cfg.TaskProtectionEnabled || deps.AwsConfig == nil {
		return nil
	}
	computeCfg := compute.Config{}
	if cfg.EcsClusterName != "" {
		computeCfg.ClusterName = aws.String(cfg.EcsClusterName)
	}
	if cfg.EcsTaskArn != "" {
		computeCfg.TaskArn = aws.String(cfg.EcsTaskArn)
	}
	client := compute.NewClient(ecs.NewFromConfig(*deps.AwsConfig), computeCfg)
	if err := client.LoadTaskMetadata(ctx); err != nil {
		logging.Warn("task protection disabled", zap.Error(err))
		return nil
	}
	return client
}
