package storage

import (
	"fmt"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
)

// Times are stored as unix milliseconds so conditions can compare them.
type matchItem struct {
	MatchId   string              `dynamodbav:"MatchId"`
	GameId    string              `dynamodbav:"GameId"`
	Type      string              `dynamodbav:"Type"`
	State     string              `dynamodbav:"State"`
	Players   []string            `dynamodbav:"Players"`
	CreatedBy string              `dynamodbav:"CreatedBy"`
	CreatedAt int64               `dynamodbav:"CreatedAt"`
	StartTime int64               `dynamodbav:"StartTime,omitempty"`
	EndTime   int64               `dynamodbav:"EndTime,omitempty"`
	Levels    []entities.Level    `dynamodbav:"Levels"`
	LevelIds  []string            `dynamodbav:"LevelIds"`
	GameTable map[string][]string `dynamodbav:"GameTable"`
	MatchLog  []logItem           `dynamodbav:"MatchLog"`
	Winners   []string            `dynamodbav:"Winners"`
	Private   bool                `dynamodbav:"Private"`
	Rated     bool                `dynamodbav:"Rated"`
	Started   bool                `dynamodbav:"Started"`
}

type logItem struct {
	CreatedAt int64              `dynamodbav:"createdAt"`
	Type      string             `dynamodbav:"type"`
	Data      entities.LogFields `dynamodbav:"data"`
}

type userMatchItem struct {
	UserId  string `dynamodbav:"UserId"`
	MatchId string `dynamodbav:"MatchId"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func newLogItem(entry entities.LogEntry) (logItem, error) {
	if err := entry.Validate(); err != nil {
		return logItem{}, err
	}
	return logItem{
		CreatedAt: toMillis(entry.CreatedAt),
		Type:      string(entry.Type),
		Data:      entry.Fields(),
	}, nil
}

func newLogItems(entries ...entities.LogEntry) ([]logItem, error) {
	items := make([]logItem, 0, len(entries))
	for _, entry := range entries {
		item, err := newLogItem(entry)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func newMatchItem(match entities.Match) (matchItem, error) {
	log, err := newLogItems(match.MatchLog...)
	if err != nil {
		return matchItem{}, err
	}
	item := matchItem{
		MatchId:   match.MatchId,
		GameId:    match.GameId,
		Type:      string(match.Type),
		State:     string(match.State),
		Players:   nonNil(match.Players),
		CreatedBy: match.CreatedBy,
		CreatedAt: toMillis(match.CreatedAt),
		StartTime: toMillis(match.StartTime),
		EndTime:   toMillis(match.EndTime),
		Levels:    match.Levels,
		LevelIds:  nonNil(match.LevelIds),
		GameTable: match.GameTable,
		MatchLog:  log,
		Winners:   nonNil(match.Winners),
		Private:   match.Private,
		Rated:     match.Rated,
		Started:   match.Started,
	}
	if item.Levels == nil {
		item.Levels = []entities.Level{}
	}
	if item.GameTable == nil {
		item.GameTable = map[string][]string{}
	}
	return item, nil
}

func (item matchItem) toMatch() (entities.Match, error) {
	log := make([]entities.LogEntry, 0, len(item.MatchLog))
	for _, l := range item.MatchLog {
		action := entities.MatchAction(l.Type)
		data, err := entities.DecodeLogData(action, l.Data)
		if err != nil {
			return entities.Match{}, fmt.Errorf("failed to decode log of match %s: %w", item.MatchId, err)
		}
		log = append(log, entities.NewLogEntry(fromMillis(l.CreatedAt), action, data))
	}
	return entities.Match{
		MatchId:   item.MatchId,
		GameId:    item.GameId,
		Type:      entities.MatchType(item.Type),
		State:     entities.MatchState(item.State),
		Players:   nonNil(item.Players),
		CreatedBy: item.CreatedBy,
		CreatedAt: fromMillis(item.CreatedAt),
		StartTime: fromMillis(item.StartTime),
		EndTime:   fromMillis(item.EndTime),
		Levels:    item.Levels,
		LevelIds:  nonNil(item.LevelIds),
		GameTable: item.GameTable,
		MatchLog:  log,
		Winners:   nonNil(item.Winners),
		Private:   item.Private,
		Rated:     item.Rated,
		Started:   item.Started,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
