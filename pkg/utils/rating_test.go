package utils

import (
	"testing"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyResultEqualPlayers(t *testing.T) {
	a := entities.NewMultiplayerProfile("a", entities.MatchTypeRushBullet)
	b := entities.NewMultiplayerProfile("b", entities.MatchTypeRushBullet)

	winA, loseB := ApplyResult(a, b, OutcomeWin)
	require.Equal(t, 13, winA.Delta)
	require.Equal(t, -13, loseB.Delta)
	assert.InDelta(t, 1013, winA.Rating, 1e-9)
	assert.InDelta(t, 987, loseB.Rating, 1e-9)
	assert.Less(t, winA.RD, entities.DefaultRatingDeviation)
	assert.Equal(t, 1, winA.MatchCount)
	assert.True(t, winA.Provisional)

	drawA, drawB := ApplyResult(a, b, OutcomeDraw)
	assert.Equal(t, 0, drawA.Delta)
	assert.Equal(t, 0, drawB.Delta)

	loseA, winB := ApplyResult(a, b, OutcomeLoss)
	assert.Equal(t, -13, loseA.Delta)
	assert.Equal(t, 13, winB.Delta)
}

func TestApplyResultEstablishedMovesLess(t *testing.T) {
	opponent := entities.NewMultiplayerProfile("b", entities.MatchTypeRushBlitz)

	fresh := entities.NewMultiplayerProfile("a", entities.MatchTypeRushBlitz)
	established := fresh
	established.MatchCount = 30
	established.RatingDeviation = 60

	freshChange, _ := ApplyResult(fresh, opponent, OutcomeWin)
	establishedChange, _ := ApplyResult(established, opponent, OutcomeWin)

	assert.Greater(t, freshChange.Delta, establishedChange.Delta)
	assert.Greater(t, establishedChange.Delta, 0)
	assert.False(t, establishedChange.Provisional)
	assert.GreaterOrEqual(t, establishedChange.RD, MinRatingDeviation)
}

func TestApplyResultUpsetGainsMore(t *testing.T) {
	weak := entities.NewMultiplayerProfile("weak", entities.MatchTypeRushRapid)
	weak.Rating = 900
	strong := entities.NewMultiplayerProfile("strong", entities.MatchTypeRushRapid)
	strong.Rating = 1300

	upset, _ := ApplyResult(weak, strong, OutcomeWin)
	expected, _ := ApplyResult(strong, weak, OutcomeWin)
	assert.Greater(t, upset.Delta, expected.Delta)
}

func TestDisplayRating(t *testing.T) {
	p := entities.NewMultiplayerProfile("a", entities.MatchTypeRushBullet)
	assert.Equal(t, "Unrated", DisplayRating(p))

	p.MatchCount = entities.ProvisionalThreshold
	p.Rating = 1234.6
	assert.Equal(t, "1235", DisplayRating(p))
}
