package memstore

import (
	"context"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

func (s *Store) PutLevels(levels ...entities.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, level := range levels {
		if _, ok := s.levels[level.Id]; !ok {
			s.levelOrder = append(s.levelOrder, level.Id)
		}
		s.levels[level.Id] = level
	}
}

func (s *Store) FindLevels(ctx context.Context, filter interfaces.LevelFilter) ([]entities.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	levels := []entities.Level{}
	for _, id := range s.levelOrder {
		level := s.levels[id]
		if matchesFilter(level, filter) {
			levels = append(levels, level)
		}
	}
	return levels, nil
}

func matchesFilter(level entities.Level, f interfaces.LevelFilter) bool {
	if !level.Published {
		return false
	}
	if f.GameId != "" && level.GameId != f.GameId {
		return false
	}
	return level.Difficulty >= f.MinDifficulty &&
		(f.MaxDifficulty <= 0 || level.Difficulty < f.MaxDifficulty) &&
		level.Leastmoves >= f.MinLeastmoves &&
		level.ReviewCount >= f.MinReviews &&
		level.CalcScore >= f.MinScore
}
