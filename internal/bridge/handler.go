package bridge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chess-vn/slpuzzle/internal/aws/auth"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

// Handler receives commands sent by a Client.
type Handler struct {
	dispatcher Dispatcher
	validator  *auth.Validator
}

func NewHandler(dispatcher Dispatcher, secret string) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		validator:  auth.NewValidator(secret, tokenIssuer),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.validator.UserIdFromRequest(r); err != nil {
		logging.Warn("rejected bridge command", zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var cmd Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&cmd); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := cmd.Validate(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.dispatcher.Dispatch(r.Context(), cmd); err != nil {
		logging.Error("failed to dispatch command",
			zap.String("type", string(cmd.Type)),
			zap.String("match_id", cmd.MatchId),
			zap.Error(err),
		)
		if errors.Is(err, ErrInvalidCommand) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
