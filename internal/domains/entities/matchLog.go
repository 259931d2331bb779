package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type MatchAction string

const (
	ActionCreate        MatchAction = "CREATE"
	ActionJoin          MatchAction = "JOIN"
	ActionQuit          MatchAction = "QUIT"
	ActionCompleteLevel MatchAction = "COMPLETE_LEVEL"
	ActionSkipLevel     MatchAction = "SKIP_LEVEL"
	ActionAborted       MatchAction = "ABORTED"
	ActionGameStart     MatchAction = "GAME_START"
	ActionGameEnd       MatchAction = "GAME_END"
	ActionGameRecap     MatchAction = "GAME_RECAP"
)

var ErrInvalidLogEntry = errors.New("invalid log entry")

// LogData is the payload of a match log entry. The variants are UserLog,
// LevelLog, TextLog and RecapLog; which one an action carries is fixed by
// dataKindFor.
type LogData interface {
	logData()
}

type UserLog struct {
	UserId string
}

type LevelLog struct {
	UserId  string
	LevelId string
}

type TextLog struct {
	Log string
}

// RecapLog records the rating changes of a finished match. On a draw Winner
// and Loser only follow player order; Match.Winners tells the outcome.
type RecapLog struct {
	EloChangeWinner   int
	EloChangeLoser    int
	Winner            string
	Loser             string
	WinnerProvisional bool
	LoserProvisional  bool
}

func (UserLog) logData()  {}
func (LevelLog) logData() {}
func (TextLog) logData()  {}
func (RecapLog) logData() {}

type LogEntry struct {
	CreatedAt time.Time
	Type      MatchAction
	Data      LogData
}

func NewLogEntry(at time.Time, action MatchAction, data LogData) LogEntry {
	return LogEntry{CreatedAt: at, Type: action, Data: data}
}

// LogFields is the flat wire and storage form of a log payload.
type LogFields struct {
	UserId            string `json:"userId,omitempty" dynamodbav:"userId,omitempty"`
	LevelId           string `json:"levelId,omitempty" dynamodbav:"levelId,omitempty"`
	Log               string `json:"log,omitempty" dynamodbav:"log,omitempty"`
	EloChangeWinner   *int   `json:"eloChangeWinner,omitempty" dynamodbav:"eloChangeWinner,omitempty"`
	EloChangeLoser    *int   `json:"eloChangeLoser,omitempty" dynamodbav:"eloChangeLoser,omitempty"`
	Winner            string `json:"winner,omitempty" dynamodbav:"winner,omitempty"`
	Loser             string `json:"loser,omitempty" dynamodbav:"loser,omitempty"`
	WinnerProvisional *bool  `json:"winnerProvisional,omitempty" dynamodbav:"winnerProvisional,omitempty"`
	LoserProvisional  *bool  `json:"loserProvisional,omitempty" dynamodbav:"loserProvisional,omitempty"`
}

type dataKind uint8

const (
	kindUser dataKind = iota
	kindLevel
	kindText
	kindRecap
)

func dataKindFor(action MatchAction) (dataKind, error) {
	switch action {
	case ActionCreate, ActionJoin, ActionQuit:
		return kindUser, nil
	case ActionCompleteLevel, ActionSkipLevel:
		return kindLevel, nil
	case ActionAborted, ActionGameStart, ActionGameEnd:
		return kindText, nil
	case ActionGameRecap:
		return kindRecap, nil
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidLogEntry, action)
	}
}

// Validate checks that the payload variant is the one the action carries.
func (e LogEntry) Validate() error {
	kind, err := dataKindFor(e.Type)
	if err != nil {
		return err
	}
	var ok bool
	switch kind {
	case kindUser:
		_, ok = e.Data.(UserLog)
	case kindLevel:
		_, ok = e.Data.(LevelLog)
	case kindText:
		_, ok = e.Data.(TextLog)
	case kindRecap:
		_, ok = e.Data.(RecapLog)
	}
	if !ok {
		return fmt.Errorf("%w: %s cannot carry %T", ErrInvalidLogEntry, e.Type, e.Data)
	}
	return nil
}

func (e LogEntry) Fields() LogFields {
	switch d := e.Data.(type) {
	case UserLog:
		return LogFields{UserId: d.UserId}
	case LevelLog:
		return LogFields{UserId: d.UserId, LevelId: d.LevelId}
	case TextLog:
		return LogFields{Log: d.Log}
	case RecapLog:
		return LogFields{
			EloChangeWinner:   &d.EloChangeWinner,
			EloChangeLoser:    &d.EloChangeLoser,
			Winner:            d.Winner,
			Loser:             d.Loser,
			WinnerProvisional: &d.WinnerProvisional,
			LoserProvisional:  &d.LoserProvisional,
		}
	default:
		return LogFields{}
	}
}

// DecodeLogData builds the payload variant for action from its flat form.
func DecodeLogData(action MatchAction, f LogFields) (LogData, error) {
	kind, err := dataKindFor(action)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindUser:
		if f.UserId == "" {
			return nil, fmt.Errorf("%w: %s without userId", ErrInvalidLogEntry, action)
		}
		return UserLog{UserId: f.UserId}, nil
	case kindLevel:
		if f.UserId == "" || f.LevelId == "" {
			return nil, fmt.Errorf("%w: %s without userId or levelId", ErrInvalidLogEntry, action)
		}
		return LevelLog{UserId: f.UserId, LevelId: f.LevelId}, nil
	case kindText:
		return TextLog{Log: f.Log}, nil
	default:
		if f.EloChangeWinner == nil || f.EloChangeLoser == nil {
			return nil, fmt.Errorf("%w: %s without rating changes", ErrInvalidLogEntry, action)
		}
		return RecapLog{
			EloChangeWinner:   *f.EloChangeWinner,
			EloChangeLoser:    *f.EloChangeLoser,
			Winner:            f.Winner,
			Loser:             f.Loser,
			WinnerProvisional: f.WinnerProvisional != nil && *f.WinnerProvisional,
			LoserProvisional:  f.LoserProvisional != nil && *f.LoserProvisional,
		}, nil
	}
}

type logEntryJson struct {
	CreatedAt time.Time   `json:"createdAt"`
	Type      MatchAction `json:"type"`
	Data      LogFields   `json:"data"`
}

func (e LogEntry) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(logEntryJson{
		CreatedAt: e.CreatedAt,
		Type:      e.Type,
		Data:      e.Fields(),
	})
}

func (e *LogEntry) UnmarshalJSON(b []byte) error {
	var raw logEntryJson
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeLogData(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*e = LogEntry{CreatedAt: raw.CreatedAt, Type: raw.Type, Data: data}
	return nil
}
