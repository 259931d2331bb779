package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

type profileKey struct {
	userId    string
	matchType entities.MatchType
}

// Store keeps documents in memory. The single mutex stands in for the
// per-document atomicity of a real document store; every mutating method
// checks its condition and applies its effect under one critical section.
type Store struct {
	mu         sync.Mutex
	matches    map[string]entities.Match
	userMatch  map[string]string
	profiles   map[profileKey]entities.MultiplayerProfile
	levels     map[string]entities.Level
	levelOrder []string
}

var (
	_ interfaces.MatchStore  = (*Store)(nil)
	_ interfaces.LevelSource = (*Store)(nil)
)

func New() *Store {
	return &Store{
		matches:   make(map[string]entities.Match),
		userMatch: make(map[string]string),
		profiles:  make(map[profileKey]entities.MultiplayerProfile),
		levels:    make(map[string]entities.Level),
	}
}

func (s *Store) CreateMatch(ctx context.Context, match entities.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userMatch[match.CreatedBy]; ok {
		return interfaces.ErrAlreadyInMatch
	}
	if _, ok := s.matches[match.MatchId]; ok {
		return interfaces.ErrConditionFailed
	}
	s.matches[match.MatchId] = match.Clone()
	s.userMatch[match.CreatedBy] = match.MatchId
	return nil
}

func (s *Store) GetMatch(ctx context.Context, matchId string) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	return match.Clone(), nil
}

func (s *Store) ListMatches(ctx context.Context, states ...entities.MatchState) ([]entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []entities.Match{}
	for _, match := range s.matches {
		if len(states) == 0 || slices.Contains(states, match.State) {
			matches = append(matches, match.Clone())
		}
	}
	sortByCreation(matches)
	return matches, nil
}

func (s *Store) ListActiveMatchesWithLevel(ctx context.Context, levelId string) ([]entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []entities.Match{}
	for _, match := range s.matches {
		if match.State == entities.MatchStateActive && slices.Contains(match.LevelIds, levelId) {
			matches = append(matches, match.Clone())
		}
	}
	sortByCreation(matches)
	return matches, nil
}

func (s *Store) GetUserMatchId(ctx context.Context, userId string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matchId, ok := s.userMatch[userId]
	if !ok {
		return "", interfaces.ErrUserMatchNotFound
	}
	return matchId, nil
}

func (s *Store) JoinMatch(ctx context.Context, input interfaces.JoinMatchInput) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[input.MatchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	if match.State != entities.MatchStateOpen ||
		len(match.Players) != 1 ||
		match.HasPlayer(input.UserId) {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	if _, ok := s.userMatch[input.UserId]; ok {
		return entities.Match{}, interfaces.ErrAlreadyInMatch
	}

	match = match.Clone()
	match.Players = append(match.Players, input.UserId)
	match.State = entities.MatchStateActive
	match.StartTime = input.StartTime
	match.EndTime = input.EndTime
	match.Levels = slices.Clone(input.Levels)
	match.LevelIds = make([]string, 0, len(input.Levels))
	for _, level := range input.Levels {
		match.LevelIds = append(match.LevelIds, level.Id)
	}
	match.GameTable = make(map[string][]string, len(match.Players))
	for _, p := range match.Players {
		match.GameTable[p] = []string{}
	}
	match.MatchLog = append(match.MatchLog, input.Entry)

	s.matches[match.MatchId] = match
	s.userMatch[input.UserId] = match.MatchId
	return match.Clone(), nil
}

func (s *Store) QuitMatch(ctx context.Context, input interfaces.QuitMatchInput) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[input.MatchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	if match.State.IsTerminal() ||
		input.PlayerIndex < 0 ||
		input.PlayerIndex >= len(match.Players) ||
		match.Players[input.PlayerIndex] != input.UserId {
		return entities.Match{}, interfaces.ErrConditionFailed
	}

	match = match.Clone()
	s.releasePlayers(match)
	match.Players = slices.Delete(match.Players, input.PlayerIndex, input.PlayerIndex+1)
	match.State = entities.MatchStateAborted
	match.MatchLog = append(match.MatchLog, input.Entry)
	s.matches[match.MatchId] = match
	return match.Clone(), nil
}

func (s *Store) StartMatch(ctx context.Context, matchId string, entry entities.LogEntry) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	if match.State != entities.MatchStateActive || match.Started || len(match.Players) != entities.MaxPlayers {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	match = match.Clone()
	match.Started = true
	match.MatchLog = append(match.MatchLog, entry)
	s.matches[matchId] = match
	return match.Clone(), nil
}

func (s *Store) CompleteLevel(ctx context.Context, input interfaces.CompleteLevelInput) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[input.MatchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	seq, isPlayer := match.GameTable[input.UserId]
	if match.State != entities.MatchStateActive ||
		input.Now.Before(match.StartTime) ||
		!input.Now.Before(match.EndTime) ||
		!isPlayer ||
		!slices.Contains(match.LevelIds, input.LevelId) ||
		slices.Contains(seq, input.LevelId) {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	match = match.Clone()
	match.GameTable[input.UserId] = append(match.GameTable[input.UserId], input.LevelId)
	match.MatchLog = append(match.MatchLog, input.Entry)
	s.matches[match.MatchId] = match
	return match.Clone(), nil
}

func (s *Store) SkipLevel(ctx context.Context, input interfaces.SkipLevelInput) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[input.MatchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	seq, isPlayer := match.GameTable[input.UserId]
	if match.State != entities.MatchStateActive ||
		!input.Now.Before(match.EndTime) ||
		!isPlayer ||
		slices.Contains(seq, entities.SkipSentinel) ||
		len(seq) != input.ObservedLen {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	match = match.Clone()
	match.GameTable[input.UserId] = append(match.GameTable[input.UserId], entities.SkipSentinel)
	match.MatchLog = append(match.MatchLog, input.Entry)
	s.matches[match.MatchId] = match
	return match.Clone(), nil
}

func (s *Store) FinishMatch(ctx context.Context, input interfaces.FinishMatchInput) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[input.MatchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	if match.State != entities.MatchStateActive {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	for _, update := range input.Profiles {
		current := s.profileLocked(update.Profile.UserId, update.Profile.Type)
		if current.MatchCount != update.ExpectedMatchCount {
			return entities.Match{}, interfaces.ErrConditionFailed
		}
	}

	match = match.Clone()
	s.releasePlayers(match)
	match.State = entities.MatchStateFinished
	match.Winners = slices.Clone(input.Winners)
	match.MatchLog = append(match.MatchLog, input.Entries...)
	s.matches[match.MatchId] = match
	for _, update := range input.Profiles {
		p := update.Profile
		s.profiles[profileKey{p.UserId, p.Type}] = p
	}
	return match.Clone(), nil
}

func (s *Store) AbortMatch(ctx context.Context, input interfaces.AbortMatchInput) (entities.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[input.MatchId]
	if !ok {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	if match.State != entities.MatchStateActive {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	if input.LevelId != "" {
		i := input.LevelIndex
		if i < 0 || i >= len(match.LevelIds) || match.LevelIds[i] != input.LevelId {
			return entities.Match{}, interfaces.ErrConditionFailed
		}
	}

	match = match.Clone()
	if input.LevelId != "" {
		match.LevelIds = slices.Delete(match.LevelIds, input.LevelIndex, input.LevelIndex+1)
		match.Levels = slices.DeleteFunc(match.Levels, func(l entities.Level) bool {
			return l.Id == input.LevelId
		})
	}
	s.releasePlayers(match)
	match.State = entities.MatchStateAborted
	match.MatchLog = append(match.MatchLog, input.Entry)
	s.matches[match.MatchId] = match
	return match.Clone(), nil
}

func (s *Store) GetProfile(ctx context.Context, userId string, matchType entities.MatchType) (entities.MultiplayerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(userId, matchType), nil
}

func (s *Store) PutProfile(profile entities.MultiplayerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileKey{profile.UserId, profile.Type}] = profile
}

func (s *Store) profileLocked(userId string, matchType entities.MatchType) entities.MultiplayerProfile {
	if p, ok := s.profiles[profileKey{userId, matchType}]; ok {
		return p
	}
	return entities.NewMultiplayerProfile(userId, matchType)
}

// releasePlayers drops the user-match rows that point at this match.
func (s *Store) releasePlayers(match entities.Match) {
	for _, p := range match.Players {
		if s.userMatch[p] == match.MatchId {
			delete(s.userMatch, p)
		}
	}
}

func sortByCreation(matches []entities.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].MatchId < matches[j].MatchId
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
}
