package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type CommandType string

const (
	CommandBroadcastMatch          CommandType = "broadcastMatch"
	CommandBroadcastMatches        CommandType = "broadcastMatches"
	CommandBroadcastPrivateMatches CommandType = "broadcastPrivateMatches"
	CommandBroadcastNotification   CommandType = "broadcastNotification"
	CommandSchedule                CommandType = "schedule"
	CommandCancel                  CommandType = "cancel"
)

var ErrInvalidCommand = errors.New("invalid command")

// Command is an instruction for the realtime process.
type Command struct {
	Type         CommandType     `json:"type" validate:"required,oneof=broadcastMatch broadcastMatches broadcastPrivateMatches broadcastNotification schedule cancel"`
	MatchId      string          `json:"matchId,omitempty" validate:"required_if=Type broadcastMatch,required_if=Type schedule,required_if=Type cancel"`
	UserId       string          `json:"userId,omitempty" validate:"required_if=Type broadcastPrivateMatches,required_if=Type broadcastNotification"`
	GameId       string          `json:"gameId,omitempty"`
	Notification json.RawMessage `json:"notification,omitempty"`
}

var validate = validator.New()

func (c Command) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return nil
}

// Dispatcher executes commands; the realtime server is the only one.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// Sender delivers commands to a Dispatcher, locally or over the network.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}
