package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chess-vn/slpuzzle/internal/aws/auth"
	"github.com/chess-vn/slpuzzle/internal/bridge"
	"github.com/chess-vn/slpuzzle/internal/domains/dtos"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	readTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Matches is the read side of the match manager the gateway needs.
type Matches interface {
	GetMatch(ctx context.Context, matchId string) (entities.Match, error)
	ListMatches(ctx context.Context) ([]entities.Match, error)
	ListPrivateMatches(ctx context.Context, userId string) ([]entities.Match, error)
	RescheduleActive(ctx context.Context) (int, error)
	GameId() string
	Now() time.Time
}

type Config struct {
	Port string
	// BridgeSecret enables the command endpoint used by a separate api
	// process. Empty disables it.
	BridgeSecret string
}

// Server is the websocket gateway. It only reads committed match state;
// commands from the bridge are its one entry point besides client sockets.
type Server struct {
	matches   Matches
	validator *auth.Validator
	scheduler multiplayer.Scheduler
	upgrader  websocket.Upgrader
	hub       *hub
	cfg       Config
}

var _ bridge.Dispatcher = (*Server)(nil)

func NewServer(matches Matches, validator *auth.Validator, cfg Config) *Server {
	return &Server{
		matches:   matches,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		hub: newHub(),
		cfg: cfg,
	}
}

// SetScheduler wires the timer registry, which itself broadcasts through
// the server.
func (s *Server) SetScheduler(scheduler multiplayer.Scheduler) {
	s.scheduler = scheduler
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /socket", s.handleSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.cfg.BridgeSecret != "" {
		mux.Handle(bridge.CommandsPath, bridge.NewHandler(s, s.cfg.BridgeSecret))
	}
	return mux
}

// Run re-arms the timers of ACTIVE matches, then serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.scheduler != nil {
		if _, err := s.matches.RescheduleActive(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := &http.Server{
		Addr:              "0.0.0.0:" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
	}

	var (
		wg       conc.WaitGroup
		serveErr error
	)
	wg.Go(func() {
		logging.Info("realtime server started", zap.String("port", s.cfg.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("failed to serve realtime: %w", err)
			cancel()
		}
	})

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("realtime server shutdown", zap.Error(err))
	}
	s.hub.closeAll()
	wg.Wait()
	logging.Info("realtime server stopped")
	return serveErr
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	userId, err := s.validator.UserIdFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(err.Error()))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	matchId := r.URL.Query().Get("matchId")
	c := newClient(conn, userId, matchId)
	rooms := []string{userRoom(userId)}
	if matchId != "" {
		rooms = append(rooms, matchRoom(matchId))
	} else {
		rooms = append(rooms, lobbyRoom(s.matches.GameId()))
	}
	s.hub.join(c, rooms...)
	go c.writePump()
	logging.Info("client connected",
		zap.String("user_id", userId),
		zap.String("match_id", matchId),
	)

	s.sendInitialState(r.Context(), c)
	s.broadcastPresence(matchId)

	err = c.readPump()
	s.hub.remove(c)
	c.close()
	logging.Info("client disconnected",
		zap.String("user_id", userId),
		zap.String("match_id", matchId),
		zap.Error(err),
	)
	s.broadcastPresence(matchId)
}

func (s *Server) sendInitialState(ctx context.Context, c *client) {
	if c.matchId != "" {
		match, err := s.matches.GetMatch(ctx, c.matchId)
		if err != nil {
			logging.Warn("failed to load match for client",
				zap.String("match_id", c.matchId),
				zap.Error(err),
			)
			return
		}
		s.sendTo(c, EventMatch, dtos.MatchResponseFromEntity(match, c.userId, s.matches.Now()))
		return
	}

	matches, err := s.matches.ListMatches(ctx)
	if err != nil {
		logging.Warn("failed to list matches for client", zap.Error(err))
	} else {
		s.sendTo(c, EventMatches, dtos.MatchSummaryResponsesFromEntities(matches, s.matches.Now()))
	}
	private, err := s.matches.ListPrivateMatches(ctx, c.userId)
	if err != nil {
		logging.Warn("failed to list private matches for client",
			zap.String("user_id", c.userId),
			zap.Error(err),
		)
		return
	}
	s.sendTo(c, EventPrivateAndInvitedMatches, dtos.MatchSummaryResponsesFromEntities(private, s.matches.Now()))
}

func (s *Server) broadcastPresence(matchId string) {
	users := s.hub.connectedUserIds()
	s.emit(lobbyRoom(s.matches.GameId()), EventConnectedPlayers, connectedPlayers{
		Count: len(users),
		Users: users,
	})
	if matchId != "" {
		s.emit(matchRoom(matchId), EventConnectedPlayersInRoom, connectedPlayersInRoom{
			MatchId: matchId,
			Users:   s.hub.userIds(matchRoom(matchId)),
		})
	}
}

func (s *Server) sendTo(c *client, eventType string, data any) {
	msg, err := encodeEvent(eventType, data)
	if err != nil {
		logging.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	s.hub.deliver(c, msg)
}

func (s *Server) emit(room, eventType string, data any) {
	msg, err := encodeEvent(eventType, data)
	if err != nil {
		logging.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	s.hub.emit(room, msg)
}

// IsReady reports whether the user is connected to the match room.
func (s *Server) IsReady(matchId, userId string) bool {
	return s.hub.contains(matchRoom(matchId), userId)
}

// BroadcastMatch sends every viewer in the match room its own snapshot.
func (s *Server) BroadcastMatch(matchId string) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	match, err := s.matches.GetMatch(ctx, matchId)
	if err != nil {
		logging.Warn("failed to load match for broadcast",
			zap.String("match_id", matchId),
			zap.Error(err),
		)
		return
	}
	now := s.matches.Now()
	for _, c := range s.hub.clients(matchRoom(matchId)) {
		s.sendTo(c, EventMatch, dtos.MatchResponseFromEntity(match, c.userId, now))
	}
}

func (s *Server) BroadcastMatches(gameId string) {
	if gameId == "" {
		gameId = s.matches.GameId()
	}
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	matches, err := s.matches.ListMatches(ctx)
	if err != nil {
		logging.Warn("failed to list matches for broadcast", zap.Error(err))
		return
	}
	s.emit(lobbyRoom(gameId), EventMatches, dtos.MatchSummaryResponsesFromEntities(matches, s.matches.Now()))
}

func (s *Server) BroadcastPrivateMatches(userId string) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	matches, err := s.matches.ListPrivateMatches(ctx, userId)
	if err != nil {
		logging.Warn("failed to list private matches for broadcast",
			zap.String("user_id", userId),
			zap.Error(err),
		)
		return
	}
	s.emit(userRoom(userId), EventPrivateAndInvitedMatches,
		dtos.MatchSummaryResponsesFromEntities(matches, s.matches.Now()))
}

func (s *Server) BroadcastNotification(userId string, notification json.RawMessage) {
	s.emit(userRoom(userId), EventNotifications, notification)
}

// Dispatch executes a bridge command.
func (s *Server) Dispatch(ctx context.Context, cmd bridge.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	switch cmd.Type {
	case bridge.CommandBroadcastMatch:
		s.BroadcastMatch(cmd.MatchId)
	case bridge.CommandBroadcastMatches:
		s.BroadcastMatches(cmd.GameId)
	case bridge.CommandBroadcastPrivateMatches:
		s.BroadcastPrivateMatches(cmd.UserId)
	case bridge.CommandBroadcastNotification:
		s.BroadcastNotification(cmd.UserId, cmd.Notification)
	case bridge.CommandSchedule:
		if s.scheduler == nil {
			return errors.New("no scheduler attached")
		}
		match, err := s.matches.GetMatch(ctx, cmd.MatchId)
		if err != nil {
			return fmt.Errorf("failed to get match: %w", err)
		}
		s.scheduler.Schedule(match)
	case bridge.CommandCancel:
		if s.scheduler == nil {
			return errors.New("no scheduler attached")
		}
		s.scheduler.Cancel(cmd.MatchId)
	}
	return nil
}
