package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chess-vn/slpuzzle/internal/levelpool"
	"github.com/spf13/viper"
)

const (
	StageDev  = "dev"
	StageProd = "prod"
)

type Config struct {
	Stage  string
	GameId string

	LogLevel       string
	LogDevelopment bool

	ApiPort      string
	RealtimePort string
	// RealtimeUrl is where the api process reaches the realtime process.
	RealtimeUrl string

	AuthSecret        string
	AuthIssuer        string
	CognitoUserPoolId string
	BridgeSecret      string
	// InternalToken guards the level completion hook of the api.
	InternalToken string

	StartDelay             time.Duration
	Bands                  []levelpool.Band
	Constraints            levelpool.Constraints
	RequirePresenceAtStart bool

	AwsRegion             string
	MatchesTableName      string
	UserMatchesTableName  string
	ProfilesTableName     string
	LevelsTableName       string
	MatchStateIndexName   string
	TaskProtectionEnabled bool
	EcsClusterName        string
	EcsTaskArn            string
}

// Load reads configs/<app>/config.yaml (or ./config.yaml), then the optional
// env files, then the process environment. Later sources win.
func Load(app string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs/" + app)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	// List of env files to load
	envFiles := []string{
		"./configs/aws/base.env",
		"./configs/aws/dynamodb.env",
		"./configs/aws/cognito.env",
		"./configs/aws/ecs.env",
	}
	if err := loadEnvFiles(v, envFiles); err != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stage", StageDev)
	v.SetDefault("game.id", "pathology")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("api.port", "7201")
	v.SetDefault("realtime.port", "7202")
	v.SetDefault("realtime.url", "http://localhost:7202")
	v.SetDefault("realtime.require_presence_at_start", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("match.start_delay", "10s")
	v.SetDefault("match.constraints.min_leastmoves", levelpool.DefaultConstraints.MinLeastmoves)
	v.SetDefault("match.constraints.min_reviews", levelpool.DefaultConstraints.MinReviews)
	v.SetDefault("match.constraints.min_score", levelpool.DefaultConstraints.MinScore)
	v.SetDefault("MATCHES_TABLE_NAME", "Matches")
	v.SetDefault("USER_MATCHES_TABLE_NAME", "UserMatches")
	v.SetDefault("MULTIPLAYER_PROFILES_TABLE_NAME", "MultiplayerProfiles")
	v.SetDefault("LEVELS_TABLE_NAME", "Levels")
	v.SetDefault("MATCH_STATE_INDEX_NAME", "StateIndex")
	v.SetDefault("TASK_PROTECTION_ENABLED", false)
}

func fromViper(v *viper.Viper) (Config, error) {
	var config Config
	config.Stage = v.GetString("stage")
	config.GameId = v.GetString("game.id")
	config.LogLevel = v.GetString("log.level")
	config.LogDevelopment = v.GetBool("log.development")
	config.ApiPort = v.GetString("api.port")
	config.RealtimePort = v.GetString("realtime.port")
	config.RealtimeUrl = v.GetString("realtime.url")
	config.RequirePresenceAtStart = v.GetBool("realtime.require_presence_at_start")

	config.AuthSecret = v.GetString("auth.secret")
	config.AuthIssuer = v.GetString("auth.issuer")
	config.BridgeSecret = v.GetString("bridge.secret")
	config.InternalToken = v.GetString("internal.token")
	config.CognitoUserPoolId = v.GetString("COGNITO_USER_POOL_ID")

	startDelay, err := time.ParseDuration(v.GetString("match.start_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid match.start_delay: %w", err)
	}
	config.StartDelay = startDelay
	config.Bands = levelpool.DefaultBands
	if v.IsSet("match.bands") {
		if err := v.UnmarshalKey("match.bands", &config.Bands); err != nil {
			return Config{}, fmt.Errorf("invalid match.bands: %w", err)
		}
	}
	if err := v.UnmarshalKey("match.constraints", &config.Constraints); err != nil {
		return Config{}, fmt.Errorf("invalid match.constraints: %w", err)
	}
	config.Constraints.GameId = config.GameId

	config.AwsRegion = v.GetString("AWS_REGION")
	config.MatchesTableName = v.GetString("MATCHES_TABLE_NAME")
	config.UserMatchesTableName = v.GetString("USER_MATCHES_TABLE_NAME")
	config.ProfilesTableName = v.GetString("MULTIPLAYER_PROFILES_TABLE_NAME")
	config.LevelsTableName = v.GetString("LEVELS_TABLE_NAME")
	config.MatchStateIndexName = v.GetString("MATCH_STATE_INDEX_NAME")
	config.TaskProtectionEnabled = v.GetBool("TASK_PROTECTION_ENABLED")
	config.EcsClusterName = v.GetString("ECS_CLUSTER_NAME")
	config.EcsTaskArn = v.GetString("ECS_TASK_ARN")
	return config, nil
}

// RequireAuth reports whether client tokens can be verified.
func (c Config) RequireAuth() error {
	if c.AuthSecret == "" && c.CognitoUserPoolId == "" {
		return errors.New("either auth.secret or COGNITO_USER_POOL_ID must be set")
	}
	return nil
}

// loadEnvFiles merges the env files that exist; missing ones are skipped.
func loadEnvFiles(v *viper.Viper, filenames []string) error {
	for _, file := range filenames {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		v.SetConfigFile(file) // Set specific file
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			return err
		}
	}
	return nil
}
