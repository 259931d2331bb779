package multiplayer

import (
	"testing"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/stretchr/testify/assert"
)

func TestVisibleLevels(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 10, 0, time.UTC)
	levels := []entities.Level{{Id: "l1"}, {Id: "l2"}, {Id: "l3"}}
	match := entities.Match{
		MatchId:   "m",
		State:     entities.MatchStateActive,
		Players:   []string{"alice", "bob"},
		StartTime: start,
		EndTime:   start.Add(3 * time.Minute),
		Levels:    levels,
		LevelIds:  []string{"l1", "l2", "l3"},
		GameTable: map[string][]string{
			"alice": {"l1"},
			"bob":   {entities.SkipSentinel},
		},
		MatchLog: []entities.LogEntry{
			entities.NewLogEntry(start, entities.ActionSkipLevel, entities.LevelLog{UserId: "bob", LevelId: "l1"}),
		},
	}

	tests := []struct {
		name   string
		match  entities.Match
		viewer string
		now    time.Time
		want   []string
	}{
		{"player before start", match, "alice", start.Add(-time.Second), nil},
		{"spectator before start", match, "carol", start.Add(-time.Second), nil},
		{"player sees current level", match, "alice", start, []string{"l2"}},
		{"skipped level is passed", match, "bob", start, []string{"l2"}},
		{"spectator sees pool", match, "carol", start, []string{"l1", "l2", "l3"}},
		{"anonymous sees pool", match, "", start, []string{"l1", "l2", "l3"}},
		{"finished reveals pool", withState(match, entities.MatchStateFinished), "alice", start.Add(time.Hour), []string{"l1", "l2", "l3"}},
		{"open match has nothing", entities.Match{State: entities.MatchStateOpen}, "alice", start, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VisibleLevels(tt.match, tt.viewer, tt.now)
			ids := []string{}
			for _, level := range got {
				ids = append(ids, level.Id)
			}
			if tt.want == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestVisibleLevelsExhausted(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	match := entities.Match{
		State:     entities.MatchStateActive,
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Levels:    []entities.Level{{Id: "l1"}},
		GameTable: map[string][]string{"alice": {"l1"}},
	}
	assert.Empty(t, VisibleLevels(match, "alice", start))
}

func withState(match entities.Match, state entities.MatchState) entities.Match {
	match.State = state
	return match
}
