package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, 0, len(codes))
	for _, code := range codes {
		reasons = append(reasons, types.CancellationReason{Code: aws.String(code)})
	}
	return fmt.Errorf("operation error: %w", &types.TransactionCanceledException{
		Message:             aws.String("Transaction cancelled"),
		CancellationReasons: reasons,
	})
}

func TestConditionError(t *testing.T) {
	joinReasons := map[int]error{1: interfaces.ErrAlreadyInMatch}
	other := errors.New("throttled")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"single item condition", &types.ConditionalCheckFailedException{}, interfaces.ErrConditionFailed},
		{"match condition", cancelled("ConditionalCheckFailed", "None"), interfaces.ErrConditionFailed},
		{"user match row exists", cancelled("None", "ConditionalCheckFailed"), interfaces.ErrAlreadyInMatch},
		{"concurrent transaction", cancelled("TransactionConflict", "None"), interfaces.ErrConditionFailed},
		{"unrelated error", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, conditionError(tt.err, joinReasons), tt.want)
		})
	}
}

func TestConditionErrorKeepsOtherCancellations(t *testing.T) {
	err := cancelled("None", "ValidationError")
	got := conditionError(err, nil)
	assert.NotErrorIs(t, got, interfaces.ErrConditionFailed)
}

func TestMatchItemStoresMillis(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 10, 123_456_789, time.UTC)
	match := entities.Match{
		MatchId:   "m1",
		Type:      entities.MatchTypeRushBullet,
		State:     entities.MatchStateActive,
		Players:   []string{"a", "b"},
		CreatedAt: start.Add(-10 * time.Second),
		StartTime: start,
		EndTime:   start.Add(3 * time.Minute),
		MatchLog: []entities.LogEntry{
			entities.NewLogEntry(start, entities.ActionSkipLevel, entities.LevelLog{UserId: "a", LevelId: "l1"}),
			entities.NewLogEntry(start, entities.ActionGameRecap, entities.RecapLog{
				Winner: "a", Loser: "b", EloChangeWinner: 13, EloChangeLoser: -13, WinnerProvisional: true,
			}),
		},
	}

	item, err := newMatchItem(match)
	require.NoError(t, err)
	assert.Equal(t, start.UnixMilli(), item.StartTime)
	assert.Equal(t, []string{}, item.LevelIds)
	assert.Equal(t, map[string][]string{}, item.GameTable)

	decoded, err := item.toMatch()
	require.NoError(t, err)
	assert.Equal(t, start.Truncate(time.Millisecond), decoded.StartTime)
	assert.Equal(t, match.MatchLog[1].Data, decoded.MatchLog[1].Data)
	assert.Equal(t, entities.LevelLog{UserId: "a", LevelId: "l1"}, decoded.MatchLog[0].Data)
}

func TestMatchItemRejectsMismatchedLog(t *testing.T) {
	match := entities.Match{
		MatchId:  "m1",
		MatchLog: []entities.LogEntry{entities.NewLogEntry(time.Now(), entities.ActionJoin, entities.TextLog{Log: "x"})},
	}
	_, err := newMatchItem(match)
	require.Error(t, err)
}

func TestLevelFilterExpression(t *testing.T) {
	expression, values := levelFilterExpression(interfaces.LevelFilter{
		GameId:        "pathology",
		MinDifficulty: 45,
		MaxDifficulty: 120,
		MinLeastmoves: 7,
		MinReviews:    3,
		MinScore:      0.5,
	})
	assert.Contains(t, expression, "Difficulty < :maxDifficulty")
	assert.Contains(t, expression, "GameId = :gameId")
	assert.Equal(t, &types.AttributeValueMemberN{Value: "0.5"}, values[":minScore"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "7"}, values[":minLeastmoves"])

	unbounded, values := levelFilterExpression(interfaces.LevelFilter{MinDifficulty: 300})
	assert.NotContains(t, unbounded, ":maxDifficulty")
	assert.NotContains(t, values, ":gameId")
}
