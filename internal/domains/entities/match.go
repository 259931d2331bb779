package entities

import (
	"slices"
	"time"
)

type MatchState string

const (
	MatchStateOpen     MatchState = "OPEN"
	MatchStateActive   MatchState = "ACTIVE"
	MatchStateAborted  MatchState = "ABORTED"
	MatchStateFinished MatchState = "FINISHED"
)

// IsTerminal reports whether no further transition can leave the state.
func (s MatchState) IsTerminal() bool {
	return s == MatchStateAborted || s == MatchStateFinished
}

type MatchType string

const (
	MatchTypeRushBullet    MatchType = "RushBullet"
	MatchTypeRushBlitz     MatchType = "RushBlitz"
	MatchTypeRushRapid     MatchType = "RushRapid"
	MatchTypeRushClassical MatchType = "RushClassical"
)

var MatchTypes = []MatchType{
	MatchTypeRushBullet,
	MatchTypeRushBlitz,
	MatchTypeRushRapid,
	MatchTypeRushClassical,
}

func (t MatchType) Valid() bool {
	return slices.Contains(MatchTypes, t)
}

// Duration is the fixed playing time of a match of this type.
func (t MatchType) Duration() time.Duration {
	switch t {
	case MatchTypeRushBullet:
		return 3 * time.Minute
	case MatchTypeRushBlitz:
		return 5 * time.Minute
	case MatchTypeRushRapid:
		return 10 * time.Minute
	case MatchTypeRushClassical:
		return 30 * time.Minute
	default:
		return 0
	}
}

// SkipSentinel is stored in a player's game table slot to mark the used skip.
const SkipSentinel = "000000000000000000000000"

const MaxPlayers = 2

type Match struct {
	MatchId   string              `json:"matchId"`
	GameId    string              `json:"gameId"`
	Type      MatchType           `json:"type"`
	State     MatchState          `json:"state"`
	Players   []string            `json:"players"`
	CreatedBy string              `json:"createdBy"`
	CreatedAt time.Time           `json:"createdAt"`
	StartTime time.Time           `json:"startTime"`
	EndTime   time.Time           `json:"endTime"`
	Levels    []Level             `json:"levels"`
	LevelIds  []string            `json:"levelIds"`
	GameTable map[string][]string `json:"gameTable"`
	MatchLog  []LogEntry          `json:"matchLog"`
	Winners   []string            `json:"winners"`
	Private   bool                `json:"private"`
	Rated     bool                `json:"rated"`
	Started   bool                `json:"started"`
}

func (m Match) HasPlayer(userId string) bool {
	return slices.Contains(m.Players, userId)
}

func (m Match) PlayerIndex(userId string) int {
	return slices.Index(m.Players, userId)
}

func (m Match) LevelIndex(levelId string) int {
	return slices.Index(m.LevelIds, levelId)
}

func (m Match) Opponent(userId string) (string, bool) {
	for _, p := range m.Players {
		if p != userId {
			return p, true
		}
	}
	return "", false
}

// ScoreOf counts the completed, non-skipped levels of a player.
func (m Match) ScoreOf(userId string) int {
	score := 0
	for _, levelId := range m.GameTable[userId] {
		if levelId != SkipSentinel {
			score++
		}
	}
	return score
}

// ScoreTable is recomputed from the game table on every call.
func (m Match) ScoreTable() map[string]int {
	scores := make(map[string]int, len(m.GameTable))
	for userId := range m.GameTable {
		scores[userId] = m.ScoreOf(userId)
	}
	return scores
}

func (m Match) UsedSkip(userId string) bool {
	return slices.Contains(m.GameTable[userId], SkipSentinel)
}

// NextLevel is the first pooled level the player has neither completed nor
// skipped.
func (m Match) NextLevel(userId string) (Level, bool) {
	seen := m.GameTable[userId]
	skipped, _ := m.SkippedLevel(userId)
	for _, level := range m.Levels {
		if level.Id != skipped && !slices.Contains(seen, level.Id) {
			return level, true
		}
	}
	return Level{}, false
}

// SkippedLevel resolves which level the player's skip sentinel stands for,
// from the SKIP_LEVEL log entry.
func (m Match) SkippedLevel(userId string) (string, bool) {
	for _, entry := range m.MatchLog {
		if entry.Type != ActionSkipLevel {
			continue
		}
		if data, ok := entry.Data.(LevelLog); ok && data.UserId == userId {
			return data.LevelId, true
		}
	}
	return "", false
}

func (m Match) HasLog(action MatchAction) bool {
	return slices.ContainsFunc(m.MatchLog, func(e LogEntry) bool {
		return e.Type == action
	})
}

// Clone returns a deep copy so callers can never alias stored state.
func (m Match) Clone() Match {
	c := m
	c.Players = slices.Clone(m.Players)
	c.Levels = slices.Clone(m.Levels)
	c.LevelIds = slices.Clone(m.LevelIds)
	c.MatchLog = slices.Clone(m.MatchLog)
	c.Winners = slices.Clone(m.Winners)
	if m.GameTable != nil {
		c.GameTable = make(map[string][]string, len(m.GameTable))
		for k, v := range m.GameTable {
			c.GameTable[k] = slices.Clone(v)
		}
	}
	return c
}
