package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chess-vn/slpuzzle/internal/aws/auth"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type Config struct {
	Port string
	// InternalToken guards the level completion hook. Empty disables it.
	InternalToken string
}

type Server struct {
	handler   *Handler
	validator *auth.Validator
	cfg       Config
}

func NewServer(manager *multiplayer.Manager, notifier Notifier, validator *auth.Validator, cfg Config) *Server {
	return &Server{
		handler:   NewHandler(manager, notifier),
		validator: validator,
		cfg:       cfg,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handler.Health)
	mux.Handle("POST /match", requireAuth(s.validator, s.handler.CreateMatch))
	mux.Handle("GET /match/{matchId}", requireAuth(s.validator, s.handler.GetMatch))
	mux.Handle("PUT /match/{matchId}", requireAuth(s.validator, s.handler.UpdateMatch))
	mux.Handle("GET /matches", requireAuth(s.validator, s.handler.ListMatches))
	if s.cfg.InternalToken != "" {
		mux.Handle("POST /match/{matchId}/complete", requireInternalToken(s.cfg.InternalToken, s.handler.CompleteLevel))
	}
	return requestLogging(mux)
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := &http.Server{
		Addr:              "0.0.0.0:" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var (
		wg       conc.WaitGroup
		serveErr error
	)
	wg.Go(func() {
		logging.Info("api server started", zap.String("port", s.cfg.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("failed to serve api: %w", err)
			cancel()
		}
	})

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("api server shutdown", zap.Error(err))
	}
	wg.Wait()
	logging.Info("api server stopped")
	return serveErr
}
