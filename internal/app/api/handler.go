package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chess-vn/slpuzzle/internal/domains/dtos"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 16

// Notifier pushes committed changes to connected viewers.
type Notifier interface {
	MatchChanged(match entities.Match)
}

type Handler struct {
	manager   *multiplayer.Manager
	notifier  Notifier
	validator *validator.Validate
}

func NewHandler(manager *multiplayer.Manager, notifier Notifier) *Handler {
	return &Handler{
		manager:   manager,
		notifier:  notifier,
		validator: validator.New(),
	}
}

func (h *Handler) decode(r *http.Request, w http.ResponseWriter, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if err := h.validator.StructCtx(r.Context(), v); err != nil {
		return fmt.Errorf("%w: validation failed: %v", errInvalidRequest, err)
	}
	return nil
}

func (h *Handler) respondMatch(w http.ResponseWriter, r *http.Request, match entities.Match) {
	userId := userIdFromContext(r.Context())
	writeJSON(w, http.StatusOK, dtos.MatchResponseFromEntity(match, userId, h.manager.Now()))
}

func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req dtos.CreateMatchRequest
	if err := h.decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	match, err := h.manager.CreateMatch(r.Context(), userIdFromContext(r.Context()), multiplayer.CreateMatchInput{
		Type:    entities.MatchType(req.Type),
		Private: req.Private,
		Rated:   req.Rated,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.notifier.MatchChanged(match)
	h.respondMatch(w, r, match)
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.manager.GetMatch(r.Context(), r.PathValue("matchId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondMatch(w, r, match)
}

func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.manager.ListMatches(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.MatchSummaryResponsesFromEntities(matches, h.manager.Now()))
}

// UpdateMatch applies a JOIN, QUIT or SKIP_LEVEL action.
func (h *Handler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	var req dtos.MatchActionRequest
	if err := h.decode(r, w, &req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errInvalidAction, err))
		return
	}

	ctx := r.Context()
	matchId := r.PathValue("matchId")
	userId := userIdFromContext(ctx)

	var (
		match entities.Match
		err   error
	)
	switch req.Action {
	case dtos.ActionJoin:
		match, err = h.manager.Join(ctx, matchId, userId)
	case dtos.ActionQuit:
		match, err = h.manager.QuitOrFinish(ctx, matchId, userId)
	case dtos.ActionSkipLevel:
		match, err = h.manager.SkipLevel(ctx, matchId, userId)
	default:
		err = errInvalidAction
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.notifier.MatchChanged(match)
	h.respondMatch(w, r, match)
}

// CompleteLevel is called by the solution checker after it accepted a
// player's solution.
func (h *Handler) CompleteLevel(w http.ResponseWriter, r *http.Request) {
	var req dtos.CompleteLevelRequest
	if err := h.decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	matchId := r.PathValue("matchId")
	completed, err := h.manager.CompleteLevel(ctx, matchId, req.UserId, req.LevelId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if completed {
		match, err := h.manager.GetMatch(ctx, matchId)
		if err != nil {
			writeError(w, r, err)
			return
		}
		h.notifier.MatchChanged(match)
	}
	writeJSON(w, http.StatusOK, dtos.CompleteLevelResponse{Completed: completed})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
