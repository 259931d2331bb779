package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrUserMatchNotFound = errors.New("user match not found")
	ErrAlreadyInMatch    = errors.New("user already in a match")
	// ErrConditionFailed means the conditional write affected nothing.
	ErrConditionFailed = errors.New("match precondition not met")
)

type (
	JoinMatchInput struct {
		MatchId   string
		UserId    string
		StartTime time.Time
		EndTime   time.Time
		Levels    []entities.Level
		Entry     entities.LogEntry
	}

	QuitMatchInput struct {
		MatchId     string
		UserId      string
		PlayerIndex int
		Entry       entities.LogEntry
	}

	CompleteLevelInput struct {
		MatchId string
		UserId  string
		LevelId string
		Now     time.Time
		Entry   entities.LogEntry
	}

	SkipLevelInput struct {
		MatchId     string
		UserId      string
		ObservedLen int
		Now         time.Time
		Entry       entities.LogEntry
	}

	ProfileUpdate struct {
		Profile            entities.MultiplayerProfile
		ExpectedMatchCount int
	}

	FinishMatchInput struct {
		MatchId  string
		Winners  []string
		Entries  []entities.LogEntry
		Profiles []ProfileUpdate
	}

	// AbortMatchInput aborts an ACTIVE match. When LevelId is set the level at
	// LevelIndex must still be that level and is pulled from the pool.
	AbortMatchInput struct {
		MatchId    string
		LevelId    string
		LevelIndex int
		Entry      entities.LogEntry
	}
)

// MatchStore is the document store for matches. Every mutating method is a
// single atomic conditional write: it either applies completely or returns
// ErrConditionFailed (or ErrAlreadyInMatch) without changing anything.
type MatchStore interface {
	CreateMatch(ctx context.Context, match entities.Match) error
	GetMatch(ctx context.Context, matchId string) (entities.Match, error)
	ListMatches(ctx context.Context, states ...entities.MatchState) ([]entities.Match, error)
	ListActiveMatchesWithLevel(ctx context.Context, levelId string) ([]entities.Match, error)
	GetUserMatchId(ctx context.Context, userId string) (string, error)

	JoinMatch(ctx context.Context, input JoinMatchInput) (entities.Match, error)
	QuitMatch(ctx context.Context, input QuitMatchInput) (entities.Match, error)
	StartMatch(ctx context.Context, matchId string, entry entities.LogEntry) (entities.Match, error)
	CompleteLevel(ctx context.Context, input CompleteLevelInput) (entities.Match, error)
	SkipLevel(ctx context.Context, input SkipLevelInput) (entities.Match, error)
	FinishMatch(ctx context.Context, input FinishMatchInput) (entities.Match, error)
	AbortMatch(ctx context.Context, input AbortMatchInput) (entities.Match, error)

	GetProfile(ctx context.Context, userId string, matchType entities.MatchType) (entities.MultiplayerProfile, error)
}

type LevelFilter struct {
	GameId        string
	MinDifficulty float64
	MaxDifficulty float64
	MinLeastmoves int
	MinReviews    int
	MinScore      float64
}

type LevelSource interface {
	FindLevels(ctx context.Context, filter LevelFilter) ([]entities.Level, error)
}
