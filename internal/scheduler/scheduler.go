package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	callbackTimeout = 10 * time.Second

	defaultFinishRetries = 8
	defaultRetryBackoff  = time.Second
	maxRetryBackoff      = time.Minute
)

type (
	MatchChecker interface {
		CheckStart(ctx context.Context, matchId string) (entities.Match, error)
		CheckFinish(ctx context.Context, matchId string) (entities.Match, error)
	}

	Broadcaster interface {
		BroadcastMatch(matchId string)
		BroadcastMatches(gameId string)
	}

	// Protector keeps the process from being scaled in while timers are armed.
	Protector interface {
		UpdateServerProtection(ctx context.Context, enabled bool) error
	}
)

type jobPair struct {
	start uuid.UUID
	end   uuid.UUID
}

// Scheduler arms a start and an end timer per match. Timers are in memory
// only; a restarted process re-arms them from the ACTIVE matches.
type Scheduler struct {
	cron        gocron.Scheduler
	checker     MatchChecker
	broadcaster Broadcaster
	protector   Protector
	now         func() time.Time

	finishRetries int
	retryBackoff  time.Duration

	mu   sync.Mutex
	jobs map[string]jobPair

	protectMu sync.Mutex
	protected bool
}

type Option func(*Scheduler)

func WithProtector(p Protector) Option {
	return func(s *Scheduler) { s.protector = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithFinishRetry sets how often a failed finish check is re-armed and the
// first delay, which doubles per attempt up to a minute.
func WithFinishRetry(attempts int, backoff time.Duration) Option {
	return func(s *Scheduler) {
		s.finishRetries = attempts
		s.retryBackoff = backoff
	}
}

func New(checker MatchChecker, broadcaster Broadcaster, opts ...Option) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Scheduler{
		cron:        cron,
		checker:     checker,
		broadcaster: broadcaster,
		now:         time.Now,
		jobs:        map[string]jobPair{},

		finishRetries: defaultFinishRetries,
		retryBackoff:  defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	cron.Start()
	return s, nil
}

// Schedule arms the timers of an ACTIVE match, replacing any pair already
// armed for it. A match that already started only gets its end timer.
func (s *Scheduler) Schedule(match entities.Match) {
	if match.State != entities.MatchStateActive {
		s.Cancel(match.MatchId)
		return
	}

	s.mu.Lock()
	s.removeLocked(match.MatchId)
	pair := jobPair{}
	if !match.Started {
		job, err := s.newJob(match.MatchId, "start", match.StartTime, func() {
			s.fireStart(match.MatchId, match.GameId)
		})
		if err != nil {
			s.mu.Unlock()
			logging.Error("failed to schedule start", zap.String("match_id", match.MatchId), zap.Error(err))
			return
		}
		pair.start = job.ID()
	}
	job, err := s.newJob(match.MatchId, "end", match.EndTime, func() {
		s.fireEnd(match.MatchId, match.GameId, 0)
	})
	if err != nil {
		s.removeLocked(match.MatchId)
		if pair.start != uuid.Nil {
			s.cron.RemoveJob(pair.start)
		}
		s.mu.Unlock()
		logging.Error("failed to schedule end", zap.String("match_id", match.MatchId), zap.Error(err))
		return
	}
	pair.end = job.ID()
	s.jobs[match.MatchId] = pair
	pending := len(s.jobs)
	s.mu.Unlock()

	logging.Info("match timers scheduled",
		zap.String("match_id", match.MatchId),
		zap.Time("start_time", match.StartTime),
		zap.Time("end_time", match.EndTime),
	)
	s.updateProtection(pending)
}

func (s *Scheduler) newJob(matchId, kind string, at time.Time, fn func()) (gocron.Job, error) {
	startAt := gocron.OneTimeJobStartImmediately()
	if at.After(s.now()) {
		startAt = gocron.OneTimeJobStartDateTime(at)
	}
	return s.cron.NewJob(
		gocron.OneTimeJob(startAt),
		gocron.NewTask(fn),
		gocron.WithName(kind+":"+matchId),
		gocron.WithTags(matchId),
	)
}

// Cancel clears both timers of a match. Unknown ids are ignored.
func (s *Scheduler) Cancel(matchId string) {
	s.mu.Lock()
	_, ok := s.jobs[matchId]
	s.removeLocked(matchId)
	pending := len(s.jobs)
	s.mu.Unlock()
	if !ok {
		return
	}
	logging.Info("match timers cancelled", zap.String("match_id", matchId))
	s.updateProtection(pending)
}

func (s *Scheduler) removeLocked(matchId string) {
	pair, ok := s.jobs[matchId]
	if !ok {
		return
	}
	delete(s.jobs, matchId)
	for _, id := range []uuid.UUID{pair.start, pair.end} {
		if id == uuid.Nil {
			continue
		}
		// A job that already ran is gone from the scheduler.
		_ = s.cron.RemoveJob(id)
	}
}

// Pending returns the ids of matches with armed timers.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) fireStart(matchId, gameId string) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	match, err := s.checker.CheckStart(ctx, matchId)
	if err != nil {
		logging.Error("start check failed", zap.String("match_id", matchId), zap.Error(err))
		return
	}
	logging.Info("start timer fired",
		zap.String("match_id", matchId),
		zap.String("state", string(match.State)),
	)
	if match.State.IsTerminal() {
		s.Cancel(matchId)
	}
	s.broadcaster.BroadcastMatch(matchId)
	s.broadcaster.BroadcastMatches(gameId)
}

// fireEnd keeps the match armed until a finish check succeeds, so a failed
// check is retried instead of leaving the match ACTIVE past its end.
func (s *Scheduler) fireEnd(matchId, gameId string, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	match, err := s.checker.CheckFinish(ctx, matchId)
	if err != nil {
		logging.Error("finish check failed",
			zap.String("match_id", matchId),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		s.retryEnd(matchId, gameId, attempt+1)
		return
	}

	s.mu.Lock()
	delete(s.jobs, matchId)
	pending := len(s.jobs)
	s.mu.Unlock()
	s.updateProtection(pending)

	logging.Info("end timer fired",
		zap.String("match_id", matchId),
		zap.String("state", string(match.State)),
	)
	s.broadcaster.BroadcastMatch(matchId)
	s.broadcaster.BroadcastMatches(gameId)
}

func (s *Scheduler) retryEnd(matchId, gameId string, attempt int) {
	s.mu.Lock()
	pair, ok := s.jobs[matchId]
	if !ok {
		// Cancelled while the check ran.
		s.mu.Unlock()
		return
	}
	if attempt > s.finishRetries {
		delete(s.jobs, matchId)
		pending := len(s.jobs)
		s.mu.Unlock()
		logging.Error("giving up finish check", zap.String("match_id", matchId), zap.Int("attempts", attempt))
		s.updateProtection(pending)
		return
	}

	delay := min(s.retryBackoff<<(attempt-1), maxRetryBackoff)
	job, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(func() {
			s.fireEnd(matchId, gameId, attempt)
		}),
		gocron.WithName("end:"+matchId),
		gocron.WithTags(matchId),
	)
	if err != nil {
		delete(s.jobs, matchId)
		pending := len(s.jobs)
		s.mu.Unlock()
		logging.Error("failed to reschedule end", zap.String("match_id", matchId), zap.Error(err))
		s.updateProtection(pending)
		return
	}
	pair.end = job.ID()
	s.jobs[matchId] = pair
	s.mu.Unlock()

	logging.Warn("finish check rescheduled",
		zap.String("match_id", matchId),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
}

func (s *Scheduler) updateProtection(pending int) {
	if s.protector == nil {
		return
	}
	s.protectMu.Lock()
	defer s.protectMu.Unlock()
	enabled := pending > 0
	if enabled == s.protected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if err := s.protector.UpdateServerProtection(ctx, enabled); err != nil {
		logging.Warn("failed to update server protection", zap.Bool("enabled", enabled), zap.Error(err))
		return
	}
	s.protected = enabled
	logging.Info("server protection updated", zap.Bool("enabled", enabled))
}

func (s *Scheduler) Shutdown() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}
