package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chess-vn/slpuzzle/internal/domains/dtos"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

var (
	errUnauthorized   = errors.New("unauthorized")
	errInvalidRequest = errors.New("invalid request")
	errInvalidAction  = errors.New("invalid action")
)

type mappedError struct {
	status int
	reason string
}

func mapError(err error) mappedError {
	switch {
	case errors.Is(err, errUnauthorized):
		return mappedError{http.StatusUnauthorized, "UNAUTHORIZED"}
	case errors.Is(err, multiplayer.ErrMatchNotFound):
		return mappedError{http.StatusNotFound, "MATCH_NOT_FOUND"}
	case errors.Is(err, errInvalidAction):
		return mappedError{http.StatusBadRequest, "INVALID_ACTION"}
	case errors.Is(err, errInvalidRequest):
		return mappedError{http.StatusBadRequest, "INVALID_REQUEST"}
	case errors.Is(err, multiplayer.ErrInvalidMatchType):
		return mappedError{http.StatusBadRequest, "INVALID_MATCH_TYPE"}
	case errors.Is(err, multiplayer.ErrAlreadyInMatch):
		return mappedError{http.StatusBadRequest, "ALREADY_IN_MATCH"}
	case errors.Is(err, multiplayer.ErrMatchNotOpen):
		return mappedError{http.StatusBadRequest, "MATCH_NOT_OPEN"}
	case errors.Is(err, multiplayer.ErrMatchFull):
		return mappedError{http.StatusBadRequest, "MATCH_FULL"}
	case errors.Is(err, multiplayer.ErrSkipAlreadyUsed):
		return mappedError{http.StatusBadRequest, "SKIP_ALREADY_USED"}
	case errors.Is(err, multiplayer.ErrMatchNotActive):
		return mappedError{http.StatusBadRequest, "MATCH_NOT_ACTIVE"}
	case errors.Is(err, multiplayer.ErrMatchNotStarted):
		return mappedError{http.StatusBadRequest, "MATCH_NOT_STARTED"}
	case errors.Is(err, multiplayer.ErrNotInMatch):
		return mappedError{http.StatusBadRequest, "NOT_IN_MATCH"}
	case errors.Is(err, multiplayer.ErrNoLevelToSkip):
		return mappedError{http.StatusBadRequest, "NO_LEVEL_TO_SKIP"}
	case errors.Is(err, multiplayer.ErrConflict):
		return mappedError{http.StatusBadRequest, "CONFLICT"}
	default:
		return mappedError{http.StatusInternalServerError, "INTERNAL_ERROR"}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn("failed to write response", zap.Error(err))
	}
}

// writeError answers with the machine reason only; internal errors are
// logged and never echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := mapError(err)
	if mapped.status == http.StatusInternalServerError {
		logging.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, mapped.status, dtos.ErrorResponse{Error: mapped.reason})
}
