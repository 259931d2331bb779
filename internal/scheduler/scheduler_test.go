package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu         sync.Mutex
	starts     []string
	finishes   []string
	broadcasts []string
	lobbies    []string
	protection []bool
	startState entities.MatchState
	// finishFailures is the number of finish checks that fail before one succeeds.
	finishFailures int
}

func (r *recorder) CheckStart(ctx context.Context, matchId string) (entities.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, matchId)
	state := r.startState
	if state == "" {
		state = entities.MatchStateActive
	}
	return entities.Match{MatchId: matchId, State: state}, nil
}

func (r *recorder) CheckFinish(ctx context.Context, matchId string) (entities.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes = append(r.finishes, matchId)
	if len(r.finishes) <= r.finishFailures {
		return entities.Match{}, errors.New("conditional check failed")
	}
	return entities.Match{MatchId: matchId, State: entities.MatchStateFinished}, nil
}

func (r *recorder) BroadcastMatch(matchId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, matchId)
}

func (r *recorder) BroadcastMatches(gameId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobbies = append(r.lobbies, gameId)
}

func (r *recorder) UpdateServerProtection(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protection = append(r.protection, enabled)
	return nil
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		starts:     append([]string{}, r.starts...),
		finishes:   append([]string{}, r.finishes...),
		broadcasts: append([]string{}, r.broadcasts...),
		lobbies:    append([]string{}, r.lobbies...),
		protection: append([]bool{}, r.protection...),
	}
}

func newScheduler(t *testing.T, r *recorder, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(r, r, append([]Option{WithProtector(r)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func activeMatch(id string, start, end time.Duration) entities.Match {
	now := time.Now()
	return entities.Match{
		MatchId:   id,
		GameId:    "pathology",
		State:     entities.MatchStateActive,
		StartTime: now.Add(start),
		EndTime:   now.Add(end),
	}
}

func TestScheduleFiresStartThenEnd(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, r)

	s.Schedule(activeMatch("m1", 50*time.Millisecond, 150*time.Millisecond))
	assert.Equal(t, []string{"m1"}, s.Pending())

	require.Eventually(t, func() bool {
		return len(r.snapshot().broadcasts) == 2
	}, 3*time.Second, 10*time.Millisecond)

	got := r.snapshot()
	assert.Equal(t, []string{"m1"}, got.finishes)
	assert.Equal(t, []string{"m1"}, got.starts)
	assert.Equal(t, []string{"m1", "m1"}, got.broadcasts)
	assert.Equal(t, []string{"pathology", "pathology"}, got.lobbies)
	require.Eventually(t, func() bool {
		return len(s.Pending()) == 0
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		p := r.snapshot().protection
		return len(p) == 2 && p[0] && !p[1]
	}, time.Second, 10*time.Millisecond)
}

func TestCancelClearsTimers(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, r)

	s.Schedule(activeMatch("m1", time.Hour, 2*time.Hour))
	s.Cancel("m1")
	s.Cancel("unknown")

	assert.Empty(t, s.Pending())
	assert.Equal(t, []bool{true, false}, r.snapshot().protection)
}

func TestScheduleReplacesPair(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, r)

	s.Schedule(activeMatch("m1", time.Hour, 2*time.Hour))
	s.Schedule(activeMatch("m1", time.Hour, 3*time.Hour))
	s.Schedule(activeMatch("m2", time.Hour, 2*time.Hour))

	assert.ElementsMatch(t, []string{"m1", "m2"}, s.Pending())
	assert.Eventually(t, func() bool {
		return len(s.cron.Jobs()) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []bool{true}, r.snapshot().protection)
}

func TestScheduleStartedMatchArmsEndOnly(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, r)

	match := activeMatch("m1", -time.Minute, time.Hour)
	match.Started = true
	s.Schedule(match)

	assert.Len(t, s.cron.Jobs(), 1)
}

func TestSchedulePastTimesFireImmediately(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, r)

	s.Schedule(activeMatch("m1", -2*time.Minute, -time.Minute))

	require.Eventually(t, func() bool {
		return len(r.snapshot().finishes) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestScheduleTerminalMatchCancels(t *testing.T) {
	r := &recorder{}
	s := newScheduler(t, r)

	s.Schedule(activeMatch("m1", time.Hour, 2*time.Hour))
	aborted := activeMatch("m1", time.Hour, 2*time.Hour)
	aborted.State = entities.MatchStateAborted
	s.Schedule(aborted)

	assert.Empty(t, s.Pending())
}

func TestStartAbortCancelsEnd(t *testing.T) {
	r := &recorder{startState: entities.MatchStateAborted}
	s := newScheduler(t, r)

	s.Schedule(activeMatch("m1", 20*time.Millisecond, time.Hour))

	require.Eventually(t, func() bool {
		return len(s.Pending()) == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, r.snapshot().finishes)
}

func TestFailedFinishIsRetried(t *testing.T) {
	r := &recorder{finishFailures: 2}
	s := newScheduler(t, r, WithFinishRetry(5, 10*time.Millisecond))

	match := activeMatch("m1", -time.Second, 50*time.Millisecond)
	match.Started = true
	s.Schedule(match)

	require.Eventually(t, func() bool {
		return len(r.snapshot().broadcasts) == 1
	}, 3*time.Second, 10*time.Millisecond)

	got := r.snapshot()
	assert.Equal(t, []string{"m1", "m1", "m1"}, got.finishes)
	require.Eventually(t, func() bool {
		return len(s.Pending()) == 0
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		p := r.snapshot().protection
		return len(p) == 2 && p[0] && !p[1]
	}, time.Second, 10*time.Millisecond)
}

func TestFailingFinishKeepsMatchArmed(t *testing.T) {
	r := &recorder{finishFailures: 1000}
	s := newScheduler(t, r, WithFinishRetry(3, 10*time.Millisecond))

	match := activeMatch("m1", -time.Second, 20*time.Millisecond)
	match.Started = true
	s.Schedule(match)

	require.Eventually(t, func() bool {
		return len(r.snapshot().finishes) >= 2
	}, 3*time.Second, 5*time.Millisecond)
	assert.Empty(t, r.snapshot().broadcasts)

	require.Eventually(t, func() bool {
		return len(s.Pending()) == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Len(t, r.snapshot().finishes, 4)
}

func TestCancelStopsFinishRetries(t *testing.T) {
	r := &recorder{finishFailures: 1000}
	s := newScheduler(t, r, WithFinishRetry(100, 50*time.Millisecond))

	match := activeMatch("m1", -time.Second, 10*time.Millisecond)
	match.Started = true
	s.Schedule(match)
	require.Eventually(t, func() bool {
		return len(r.snapshot().finishes) == 1
	}, 3*time.Second, 5*time.Millisecond)

	s.Cancel("m1")
	assert.Empty(t, s.Pending())
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, len(r.snapshot().finishes), 2)
}
