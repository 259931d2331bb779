package multiplayer

import (
	"errors"

	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

var (
	ErrMatchNotFound  = interfaces.ErrMatchNotFound
	ErrAlreadyInMatch = interfaces.ErrAlreadyInMatch

	ErrInvalidMatchType = errors.New("invalid match type")
	ErrMatchNotOpen     = errors.New("match is not open")
	ErrMatchFull        = errors.New("match is full")
	ErrMatchNotActive   = errors.New("match is not active")
	ErrMatchNotStarted  = errors.New("match has not started")
	ErrNotInMatch       = errors.New("user is not in this match")
	ErrSkipAlreadyUsed  = errors.New("skip already used")
	ErrNoLevelToSkip    = errors.New("no level left to skip")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("match changed concurrently")
)
