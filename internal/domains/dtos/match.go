package dtos

import (
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
)

type CreateMatchRequest struct {
	Type    string `json:"type" validate:"required,oneof=RushBullet RushBlitz RushRapid RushClassical"`
	Private bool   `json:"private"`
	Rated   bool   `json:"rated"`
}

const (
	ActionJoin      = "JOIN"
	ActionQuit      = "QUIT"
	ActionSkipLevel = "SKIP_LEVEL"
)

type MatchActionRequest struct {
	Action  string `json:"action" validate:"required,oneof=JOIN QUIT SKIP_LEVEL"`
	LevelId string `json:"levelId,omitempty"`
}

// CompleteLevelRequest is sent by the solution checker once a player solved
// a level.
type CompleteLevelRequest struct {
	UserId  string `json:"userId" validate:"required"`
	LevelId string `json:"levelId" validate:"required"`
}

type CompleteLevelResponse struct {
	Completed bool `json:"completed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type LevelResponse struct {
	Id         string  `json:"_id"`
	Name       string  `json:"name"`
	Slug       string  `json:"slug"`
	Difficulty float64 `json:"difficultyEstimate"`
	Leastmoves int     `json:"leastMoves"`
}

// MatchResponse is a match as one viewer is allowed to see it.
type MatchResponse struct {
	MatchId        string              `json:"matchId"`
	GameId         string              `json:"gameId"`
	Type           string              `json:"type"`
	State          string              `json:"state"`
	Players        []string            `json:"players"`
	CreatedBy      string              `json:"createdBy"`
	CreatedAt      time.Time           `json:"createdAt"`
	StartTime      *time.Time          `json:"startTime,omitempty"`
	EndTime        *time.Time          `json:"endTime,omitempty"`
	TimeUntilStart int64               `json:"timeUntilStart"`
	TimeUntilEnd   int64               `json:"timeUntilEnd"`
	Levels         []LevelResponse     `json:"levels"`
	ScoreTable     map[string]int      `json:"scoreTable"`
	GameTable      map[string][]string `json:"gameTable,omitempty"`
	Winners        []string            `json:"winners"`
	MatchLog       []entities.LogEntry `json:"matchLog,omitempty"`
	Private        bool                `json:"private"`
	Rated          bool                `json:"rated"`
}

func MatchResponseFromEntity(match entities.Match, viewerId string, now time.Time) MatchResponse {
	resp := MatchResponse{
		MatchId:    match.MatchId,
		GameId:     match.GameId,
		Type:       string(match.Type),
		State:      string(match.State),
		Players:    nonNil(match.Players),
		CreatedBy:  match.CreatedBy,
		CreatedAt:  match.CreatedAt,
		Levels:     LevelResponsesFromEntities(multiplayer.VisibleLevels(match, viewerId, now)),
		ScoreTable: match.ScoreTable(),
		Winners:    nonNil(match.Winners),
		Private:    match.Private,
		Rated:      match.Rated,
	}
	if !match.StartTime.IsZero() {
		start, end := match.StartTime, match.EndTime
		resp.StartTime = &start
		resp.EndTime = &end
		resp.TimeUntilStart = start.Sub(now).Milliseconds()
		resp.TimeUntilEnd = end.Sub(now).Milliseconds()
	}
	if match.State.IsTerminal() {
		resp.MatchLog = match.MatchLog
		resp.GameTable = match.GameTable
	}
	return resp
}

// MatchSummaryResponse is the lobby view of a match; it never carries levels.
type MatchSummaryResponse struct {
	MatchId        string         `json:"matchId"`
	Type           string         `json:"type"`
	State          string         `json:"state"`
	Players        []string       `json:"players"`
	CreatedBy      string         `json:"createdBy"`
	CreatedAt      time.Time      `json:"createdAt"`
	TimeUntilStart int64          `json:"timeUntilStart"`
	TimeUntilEnd   int64          `json:"timeUntilEnd"`
	ScoreTable     map[string]int `json:"scoreTable"`
	Private        bool           `json:"private"`
	Rated          bool           `json:"rated"`
}

func MatchSummaryResponsesFromEntities(matches []entities.Match, now time.Time) []MatchSummaryResponse {
	resp := make([]MatchSummaryResponse, 0, len(matches))
	for _, match := range matches {
		summary := MatchSummaryResponse{
			MatchId:    match.MatchId,
			Type:       string(match.Type),
			State:      string(match.State),
			Players:    nonNil(match.Players),
			CreatedBy:  match.CreatedBy,
			CreatedAt:  match.CreatedAt,
			ScoreTable: match.ScoreTable(),
			Private:    match.Private,
			Rated:      match.Rated,
		}
		if !match.StartTime.IsZero() {
			summary.TimeUntilStart = match.StartTime.Sub(now).Milliseconds()
			summary.TimeUntilEnd = match.EndTime.Sub(now).Milliseconds()
		}
		resp = append(resp, summary)
	}
	return resp
}

func LevelResponsesFromEntities(levels []entities.Level) []LevelResponse {
	resp := make([]LevelResponse, 0, len(levels))
	for _, level := range levels {
		resp = append(resp, LevelResponse{
			Id:         level.Id,
			Name:       level.Name,
			Slug:       level.Slug,
			Difficulty: level.Difficulty,
			Leastmoves: level.Leastmoves,
		})
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
