package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
	"github.com/chess-vn/slpuzzle/internal/levelpool"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"github.com/chess-vn/slpuzzle/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	DefaultStartDelay = 10 * time.Second

	abortConcurrency = 8
)

type (
	PoolGenerator interface {
		GeneratePool(ctx context.Context, bands []levelpool.Band, constraints levelpool.Constraints) ([]entities.Level, error)
	}

	// Scheduler arms and clears the paired start/end timers of a match.
	Scheduler interface {
		Schedule(match entities.Match)
		Cancel(matchId string)
	}

	// Readiness reports whether a participant is ready when the match starts.
	Readiness interface {
		IsReady(matchId, userId string) bool
	}
)

type Config struct {
	GameId      string
	StartDelay  time.Duration
	Bands       []levelpool.Band
	Constraints levelpool.Constraints
}

type CreateMatchInput struct {
	Type    entities.MatchType
	Private bool
	Rated   bool
}

// Manager owns the match state machine. It holds no match state itself:
// every transition is a conditional write against the store.
type Manager struct {
	store     interfaces.MatchStore
	pool      PoolGenerator
	scheduler Scheduler
	readiness Readiness
	cfg       Config

	now   func() time.Time
	newId func() string
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIdGenerator(newId func() string) Option {
	return func(m *Manager) { m.newId = newId }
}

func WithReadiness(r Readiness) Option {
	return func(m *Manager) { m.readiness = r }
}

func NewManager(
	store interfaces.MatchStore,
	pool PoolGenerator,
	scheduler Scheduler,
	cfg Config,
	opts ...Option,
) *Manager {
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = DefaultStartDelay
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = levelpool.DefaultBands
	}
	if cfg.Constraints.GameId == "" {
		cfg.Constraints.GameId = cfg.GameId
	}
	m := &Manager{
		store:     store,
		pool:      pool,
		scheduler: scheduler,
		cfg:       cfg,
		now:       time.Now,
		newId:     utils.GenerateUUID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetScheduler wires the scheduler after construction, for the scheduler
// itself needs the manager.
func (m *Manager) SetScheduler(s Scheduler) {
	m.scheduler = s
}

// SetReadiness wires the readiness probe after construction.
func (m *Manager) SetReadiness(r Readiness) {
	m.readiness = r
}

func (m *Manager) GameId() string {
	return m.cfg.GameId
}

func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) CreateMatch(ctx context.Context, creatorId string, input CreateMatchInput) (entities.Match, error) {
	if !input.Type.Valid() {
		return entities.Match{}, ErrInvalidMatchType
	}
	now := m.now()
	match := entities.Match{
		MatchId:   m.newId(),
		GameId:    m.cfg.GameId,
		Type:      input.Type,
		State:     entities.MatchStateOpen,
		Players:   []string{creatorId},
		CreatedBy: creatorId,
		CreatedAt: now,
		Levels:    []entities.Level{},
		LevelIds:  []string{},
		MatchLog: []entities.LogEntry{
			entities.NewLogEntry(now, entities.ActionCreate, entities.UserLog{UserId: creatorId}),
		},
		Winners: []string{},
		Private: input.Private,
		Rated:   input.Rated,
	}
	if err := m.store.CreateMatch(ctx, match); err != nil {
		return entities.Match{}, fmt.Errorf("failed to create match: %w", err)
	}
	logging.Info("match created",
		zap.String("match_id", match.MatchId),
		zap.String("user_id", creatorId),
		zap.String("type", string(match.Type)),
	)
	return match, nil
}

func (m *Manager) GetMatch(ctx context.Context, matchId string) (entities.Match, error) {
	return m.store.GetMatch(ctx, matchId)
}

// ListMatches returns the public OPEN and ACTIVE matches shown in the lobby.
func (m *Manager) ListMatches(ctx context.Context) ([]entities.Match, error) {
	matches, err := m.store.ListMatches(ctx, entities.MatchStateOpen, entities.MatchStateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	public := make([]entities.Match, 0, len(matches))
	for _, match := range matches {
		if !match.Private {
			public = append(public, match)
		}
	}
	return public, nil
}

// ListPrivateMatches returns the open private matches a user created or plays in.
func (m *Manager) ListPrivateMatches(ctx context.Context, userId string) ([]entities.Match, error) {
	matches, err := m.store.ListMatches(ctx, entities.MatchStateOpen, entities.MatchStateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	private := []entities.Match{}
	for _, match := range matches {
		if match.Private && (match.CreatedBy == userId || match.HasPlayer(userId)) {
			private = append(private, match)
		}
	}
	return private, nil
}

func (m *Manager) Join(ctx context.Context, matchId, userId string) (entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	if match.HasPlayer(userId) {
		return entities.Match{}, ErrAlreadyInMatch
	}
	if err := joinable(match); err != nil {
		return entities.Match{}, err
	}
	if err := m.leaveOtherMatch(ctx, matchId, userId); err != nil {
		return entities.Match{}, err
	}

	levels, err := m.pool.GeneratePool(ctx, m.cfg.Bands, m.cfg.Constraints)
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to generate levels: %w", err)
	}

	now := m.now()
	startTime := now.Add(m.cfg.StartDelay)
	joined, err := m.store.JoinMatch(ctx, interfaces.JoinMatchInput{
		MatchId:   matchId,
		UserId:    userId,
		StartTime: startTime,
		EndTime:   startTime.Add(match.Type.Duration()),
		Levels:    levels,
		Entry:     entities.NewLogEntry(now, entities.ActionJoin, entities.UserLog{UserId: userId}),
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrConditionFailed) {
			return entities.Match{}, m.classifyJoinFailure(ctx, matchId)
		}
		return entities.Match{}, fmt.Errorf("failed to join match: %w", err)
	}

	m.scheduler.Schedule(joined)
	logging.Info("match joined",
		zap.String("match_id", matchId),
		zap.String("user_id", userId),
		zap.Time("start_time", joined.StartTime),
		zap.Time("end_time", joined.EndTime),
		zap.Int("levels", len(joined.Levels)),
	)
	return joined, nil
}

func joinable(match entities.Match) error {
	if match.State != entities.MatchStateOpen {
		return ErrMatchNotOpen
	}
	if len(match.Players) >= entities.MaxPlayers {
		return ErrMatchFull
	}
	return nil
}

// leaveOtherMatch quits the user's other OPEN match and refuses when the
// other match is already being played.
func (m *Manager) leaveOtherMatch(ctx context.Context, matchId, userId string) error {
	otherId, err := m.store.GetUserMatchId(ctx, userId)
	if errors.Is(err, interfaces.ErrUserMatchNotFound) || otherId == matchId {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user match: %w", err)
	}
	other, err := m.store.GetMatch(ctx, otherId)
	if errors.Is(err, interfaces.ErrMatchNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user match: %w", err)
	}
	switch other.State {
	case entities.MatchStateOpen:
		if _, err := m.Quit(ctx, otherId, userId); err != nil {
			return fmt.Errorf("failed to leave open match: %w", err)
		}
		return nil
	case entities.MatchStateActive:
		return ErrAlreadyInMatch
	default:
		return nil
	}
}

func (m *Manager) classifyJoinFailure(ctx context.Context, matchId string) error {
	current, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return err
	}
	if err := joinable(current); err != nil {
		return err
	}
	return ErrConflict
}

// Quit removes the user from the match and aborts it. A nil match means no
// OPEN or ACTIVE match with this participant was found, for instance because
// it finished in the meantime; callers then fall back to a finish check.
func (m *Manager) Quit(ctx context.Context, matchId, userId string) (*entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if errors.Is(err, interfaces.ErrMatchNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	index := match.PlayerIndex(userId)
	if index < 0 || match.State.IsTerminal() {
		return nil, nil
	}
	now := m.now()
	if match.State == entities.MatchStateActive && !now.Before(match.EndTime) {
		finished, err := m.Finish(ctx, matchId)
		if err != nil {
			return nil, err
		}
		return &finished, nil
	}

	quit, err := m.store.QuitMatch(ctx, interfaces.QuitMatchInput{
		MatchId:     matchId,
		UserId:      userId,
		PlayerIndex: index,
		Entry:       entities.NewLogEntry(now, entities.ActionQuit, entities.UserLog{UserId: userId}),
	})
	if errors.Is(err, interfaces.ErrConditionFailed) || errors.Is(err, interfaces.ErrMatchNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to quit match: %w", err)
	}

	m.scheduler.Cancel(matchId)
	logging.Info("match aborted by quit",
		zap.String("match_id", matchId),
		zap.String("user_id", userId),
		zap.String("previous_state", string(match.State)),
	)
	return &quit, nil
}

// QuitOrFinish is Quit with the finish-check fallback: when there is nothing
// to quit it reports the match's current outcome to a participant.
func (m *Manager) QuitOrFinish(ctx context.Context, matchId, userId string) (entities.Match, error) {
	quit, err := m.Quit(ctx, matchId, userId)
	if err != nil {
		return entities.Match{}, err
	}
	if quit != nil {
		return *quit, nil
	}
	match, err := m.CheckFinish(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	if _, played := match.GameTable[userId]; match.HasPlayer(userId) || played {
		return match, nil
	}
	return entities.Match{}, ErrNotInMatch
}

// CheckFinish finishes an ACTIVE match whose end time has passed and
// otherwise returns it unchanged.
func (m *Manager) CheckFinish(ctx context.Context, matchId string) (entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	if match.State == entities.MatchStateActive && !m.now().Before(match.EndTime) {
		return m.Finish(ctx, matchId)
	}
	return match, nil
}

// Finish scores the match, applies ratings and moves it to FINISHED.
// Calling it on a FINISHED match returns the match unchanged.
func (m *Manager) Finish(ctx context.Context, matchId string) (entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	if match.State == entities.MatchStateFinished {
		return match, nil
	}
	if match.State != entities.MatchStateActive {
		return entities.Match{}, ErrMatchNotActive
	}

	input, err := m.buildFinish(ctx, match)
	if err != nil {
		return entities.Match{}, err
	}
	finished, err := m.store.FinishMatch(ctx, input)
	if errors.Is(err, interfaces.ErrConditionFailed) {
		current, getErr := m.store.GetMatch(ctx, matchId)
		if getErr != nil {
			return entities.Match{}, getErr
		}
		if current.State == entities.MatchStateFinished {
			return current, nil
		}
		return entities.Match{}, ErrConflict
	}
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to finish match: %w", err)
	}

	m.scheduler.Cancel(matchId)
	logging.Info("match finished",
		zap.String("match_id", matchId),
		zap.Strings("winners", finished.Winners),
		zap.Any("scores", finished.ScoreTable()),
	)
	return finished, nil
}

func (m *Manager) buildFinish(ctx context.Context, match entities.Match) (interfaces.FinishMatchInput, error) {
	now := m.now()
	input := interfaces.FinishMatchInput{
		MatchId: match.MatchId,
		Winners: []string{},
		Entries: []entities.LogEntry{
			entities.NewLogEntry(now, entities.ActionGameEnd, entities.TextLog{Log: "time is up"}),
		},
	}
	if len(match.Players) != entities.MaxPlayers {
		return input, nil
	}

	a, b := match.Players[0], match.Players[1]
	scoreA, scoreB := match.ScoreOf(a), match.ScoreOf(b)
	outcome := utils.OutcomeDraw
	switch {
	case scoreA > scoreB:
		outcome = utils.OutcomeWin
		input.Winners = []string{a}
	case scoreB > scoreA:
		outcome = utils.OutcomeLoss
		input.Winners = []string{b}
	}

	profileA, err := m.store.GetProfile(ctx, a, match.Type)
	if err != nil {
		return input, fmt.Errorf("failed to get profile: %w", err)
	}
	profileB, err := m.store.GetProfile(ctx, b, match.Type)
	if err != nil {
		return input, fmt.Errorf("failed to get profile: %w", err)
	}

	var changeA, changeB utils.RatingChange
	if match.Rated {
		changeA, changeB = utils.ApplyResult(profileA, profileB, outcome)
		input.Profiles = []interfaces.ProfileUpdate{
			profileUpdate(profileA, changeA),
			profileUpdate(profileB, changeB),
		}
	} else {
		changeA.Provisional = profileA.IsProvisional()
		changeB.Provisional = profileB.IsProvisional()
	}

	recap := entities.RecapLog{
		Winner:            a,
		Loser:             b,
		EloChangeWinner:   changeA.Delta,
		EloChangeLoser:    changeB.Delta,
		WinnerProvisional: changeA.Provisional,
		LoserProvisional:  changeB.Provisional,
	}
	if outcome == utils.OutcomeLoss {
		recap = entities.RecapLog{
			Winner:            b,
			Loser:             a,
			EloChangeWinner:   changeB.Delta,
			EloChangeLoser:    changeA.Delta,
			WinnerProvisional: changeB.Provisional,
			LoserProvisional:  changeA.Provisional,
		}
	}
	input.Entries = append(input.Entries, entities.NewLogEntry(now, entities.ActionGameRecap, recap))
	return input, nil
}

func profileUpdate(p entities.MultiplayerProfile, change utils.RatingChange) interfaces.ProfileUpdate {
	updated := p
	updated.Rating = change.Rating
	updated.RatingDeviation = change.RD
	updated.MatchCount = change.MatchCount
	return interfaces.ProfileUpdate{
		Profile:            updated,
		ExpectedMatchCount: p.MatchCount,
	}
}

// CheckStart runs at the start time. Both participants must be ready or the
// match aborts. A match that already left ACTIVE is returned untouched, so a
// content-removal abort always takes precedence.
func (m *Manager) CheckStart(ctx context.Context, matchId string) (entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	if match.State != entities.MatchStateActive || match.Started {
		return match, nil
	}

	now := m.now()
	if notReady := m.unreadyPlayers(match); len(notReady) > 0 {
		aborted, err := m.store.AbortMatch(ctx, interfaces.AbortMatchInput{
			MatchId: matchId,
			Entry: entities.NewLogEntry(now, entities.ActionAborted, entities.TextLog{
				Log: fmt.Sprintf("match aborted because %d player(s) were not ready", len(notReady)),
			}),
		})
		if errors.Is(err, interfaces.ErrConditionFailed) {
			return m.store.GetMatch(ctx, matchId)
		}
		if err != nil {
			return entities.Match{}, fmt.Errorf("failed to abort match: %w", err)
		}
		m.scheduler.Cancel(matchId)
		logging.Info("match aborted for unreadiness",
			zap.String("match_id", matchId),
			zap.Strings("not_ready", notReady),
		)
		return aborted, nil
	}

	started, err := m.store.StartMatch(ctx, matchId,
		entities.NewLogEntry(now, entities.ActionGameStart, entities.TextLog{Log: "match started"}))
	if errors.Is(err, interfaces.ErrConditionFailed) {
		return m.store.GetMatch(ctx, matchId)
	}
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to start match: %w", err)
	}
	logging.Info("match started", zap.String("match_id", matchId))
	return started, nil
}

func (m *Manager) unreadyPlayers(match entities.Match) []string {
	if len(match.Players) < entities.MaxPlayers {
		return []string{"missing"}
	}
	notReady := []string{}
	if m.readiness == nil {
		return notReady
	}
	for _, p := range match.Players {
		if !m.readiness.IsReady(match.MatchId, p) {
			notReady = append(notReady, p)
		}
	}
	return notReady
}

// AbortForContentRemoval pulls a deleted level out of an ACTIVE match and
// aborts it. Repeating the call after it succeeded changes nothing.
func (m *Manager) AbortForContentRemoval(ctx context.Context, matchId, levelId, reason string) (entities.Match, error) {
	match, err := m.store.GetMatch(ctx, matchId)
	if err != nil {
		return entities.Match{}, err
	}
	if match.State != entities.MatchStateActive {
		return match, nil
	}
	index := match.LevelIndex(levelId)
	if index < 0 {
		return match, nil
	}

	aborted, err := m.store.AbortMatch(ctx, interfaces.AbortMatchInput{
		MatchId:    matchId,
		LevelId:    levelId,
		LevelIndex: index,
		Entry:      entities.NewLogEntry(m.now(), entities.ActionAborted, entities.TextLog{Log: reason}),
	})
	if errors.Is(err, interfaces.ErrConditionFailed) {
		current, getErr := m.store.GetMatch(ctx, matchId)
		if getErr != nil {
			return entities.Match{}, getErr
		}
		if current.State.IsTerminal() {
			return current, nil
		}
		return entities.Match{}, ErrConflict
	}
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to abort match: %w", err)
	}

	m.scheduler.Cancel(matchId)
	logging.Info("match aborted for content removal",
		zap.String("match_id", matchId),
		zap.String("level_id", levelId),
		zap.String("reason", reason),
	)
	return aborted, nil
}

// AbortMatchesWithLevel aborts every ACTIVE match whose pool holds the level.
// Matches are handled concurrently; failures are joined into one error.
func (m *Manager) AbortMatchesWithLevel(ctx context.Context, levelId, reason string) ([]entities.Match, error) {
	matches, err := m.store.ListActiveMatchesWithLevel(ctx, levelId)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches with level: %w", err)
	}
	p := pool.NewWithResults[entities.Match]().
		WithErrors().
		WithMaxGoroutines(abortConcurrency)
	for _, match := range matches {
		p.Go(func() (entities.Match, error) {
			updated, err := m.AbortForContentRemoval(ctx, match.MatchId, levelId, reason)
			if err != nil {
				return entities.Match{}, fmt.Errorf("match %s: %w", match.MatchId, err)
			}
			return updated, nil
		})
	}
	return p.Wait()
}

// RescheduleActive re-arms the timers of every ACTIVE match. Timers live in
// memory only, so this runs whenever a scheduling process starts.
func (m *Manager) RescheduleActive(ctx context.Context) (int, error) {
	matches, err := m.store.ListMatches(ctx, entities.MatchStateActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active matches: %w", err)
	}
	for _, match := range matches {
		m.scheduler.Schedule(match)
	}
	logging.Info("active matches rescheduled", zap.Int("count", len(matches)))
	return len(matches), nil
}
