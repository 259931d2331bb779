package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/chess-vn/slpuzzle/internal/aws/auth"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

const internalTokenHeader = "X-Internal-Token"

type contextKey string

const userIdContextKey contextKey = "user_id"

func withUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdContextKey, userId)
}

func userIdFromContext(ctx context.Context) string {
	userId, _ := ctx.Value(userIdContextKey).(string)
	return userId
}

func requireAuth(validator *auth.Validator, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, err := validator.UserIdFromRequest(r)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", errUnauthorized, err))
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserId(r.Context(), userId)))
	})
}

// requireInternalToken guards endpoints called by other backend services.
func requireInternalToken(token string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(internalTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, r, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}
