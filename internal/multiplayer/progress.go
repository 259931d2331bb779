package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

// CompleteLevel records a solved level. It reports false without an error
// when the completion does not count: the match has not started or is over,
// the level is not in the pool or the player already acted on it.
func (m *Manager) CompleteLevel(ctx context.Context, matchId, userId, levelId string) (bool, error) {
	now := m.now()
	_, err := m.store.CompleteLevel(ctx, interfaces.CompleteLevelInput{
		MatchId: matchId,
		UserId:  userId,
		LevelId: levelId,
		Now:     now,
		Entry: entities.NewLogEntry(now, entities.ActionCompleteLevel, entities.LevelLog{
			UserId:  userId,
			LevelId: levelId,
		}),
	})
	if errors.Is(err, interfaces.ErrConditionFailed) {
		logging.Debug("level completion ignored",
			zap.String("match_id", matchId),
			zap.String("user_id", userId),
			zap.String("level_id", levelId),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to complete level: %w", err)
	}
	return true, nil
}

// SkipLevel spends the player's single skip on their current level.
func (m *Manager) SkipLevel(ctx context.Context, matchId, userId string) (entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	seq, isPlayer := match.GameTable[userId]
	if !isPlayer {
		return entities.Match{}, ErrNotInMatch
	}
	if match.UsedSkip(userId) {
		return entities.Match{}, ErrSkipAlreadyUsed
	}
	now := m.now()
	if match.State != entities.MatchStateActive || !now.Before(match.EndTime) {
		return entities.Match{}, ErrMatchNotActive
	}
	if now.Before(match.StartTime) {
		return entities.Match{}, ErrMatchNotStarted
	}
	next, ok := match.NextLevel(userId)
	if !ok {
		return entities.Match{}, ErrNoLevelToSkip
	}

	skipped, err := m.store.SkipLevel(ctx, interfaces.SkipLevelInput{
		MatchId:     matchId,
		UserId:      userId,
		ObservedLen: len(seq),
		Now:         now,
		Entry: entities.NewLogEntry(now, entities.ActionSkipLevel, entities.LevelLog{
			UserId:  userId,
			LevelId: next.Id,
		}),
	})
	if errors.Is(err, interfaces.ErrConditionFailed) {
		current, getErr := m.store.GetMatch(ctx, matchId)
		if getErr != nil {
			return entities.Match{}, getErr
		}
		if current.UsedSkip(userId) {
			return entities.Match{}, ErrSkipAlreadyUsed
		}
		return entities.Match{}, ErrConflict
	}
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to skip level: %w", err)
	}
	logging.Info("level skipped",
		zap.String("match_id", matchId),
		zap.String("user_id", userId),
		zap.String("level_id", next.Id),
	)
	return skipped, nil
}

// VisibleLevels is the part of the pool a viewer may see at a given time.
// Nobody sees levels before the start. A participant of a running match sees
// only their current level, a spectator sees the whole pool and once the
// match is over everybody does.
func VisibleLevels(match entities.Match, viewerId string, now time.Time) []entities.Level {
	if match.StartTime.IsZero() || now.Before(match.StartTime) {
		return []entities.Level{}
	}
	if match.State.IsTerminal() {
		return cloneLevels(match.Levels)
	}
	if _, isPlayer := match.GameTable[viewerId]; isPlayer {
		next, ok := match.NextLevel(viewerId)
		if !ok {
			return []entities.Level{}
		}
		return []entities.Level{next}
	}
	return cloneLevels(match.Levels)
}

func cloneLevels(levels []entities.Level) []entities.Level {
	return append([]entities.Level{}, levels...)
}
