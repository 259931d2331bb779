package levelpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

var ErrNotEnoughLevels = errors.New("not enough eligible levels")

// Band is a half-open difficulty range [Min, Max); Max <= 0 means unbounded.
type Band struct {
	MinDifficulty float64 `mapstructure:"min"`
	MaxDifficulty float64 `mapstructure:"max"`
	Count         int     `mapstructure:"count"`
}

type Constraints struct {
	GameId        string
	MinLeastmoves int     `mapstructure:"min_leastmoves"`
	MinReviews    int     `mapstructure:"min_reviews"`
	MinScore      float64 `mapstructure:"min_score"`
}

var DefaultBands = []Band{
	{MinDifficulty: 0, MaxDifficulty: 45, Count: 5},
	{MinDifficulty: 45, MaxDifficulty: 120, Count: 5},
	{MinDifficulty: 120, MaxDifficulty: 300, Count: 5},
	{MinDifficulty: 300, MaxDifficulty: 600, Count: 5},
}

var DefaultConstraints = Constraints{
	MinLeastmoves: 7,
	MinReviews:    3,
	MinScore:      0.5,
}

type Provider struct {
	source interfaces.LevelSource

	mu  sync.Mutex
	rng *rand.Rand
}

func NewProvider(source interfaces.LevelSource, rng *rand.Rand) *Provider {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Provider{source: source, rng: rng}
}

// GenerateLevels picks count eligible levels of a band at random and returns
// them sorted by ascending difficulty. Fewer than count are returned when the
// band does not hold enough levels.
func (p *Provider) GenerateLevels(
	ctx context.Context,
	band Band,
	constraints Constraints,
	count int,
) ([]entities.Level, error) {
	candidates, err := p.source.FindLevels(ctx, interfaces.LevelFilter{
		GameId:        constraints.GameId,
		MinDifficulty: band.MinDifficulty,
		MaxDifficulty: band.MaxDifficulty,
		MinLeastmoves: constraints.MinLeastmoves,
		MinReviews:    constraints.MinReviews,
		MinScore:      constraints.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find levels: %w", err)
	}

	p.mu.Lock()
	p.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	p.mu.Unlock()

	if count < len(candidates) {
		candidates = candidates[:count]
	}
	sortByDifficulty(candidates)
	return candidates, nil
}

// GeneratePool draws every band once and removes levels already drawn by an
// earlier band.
func (p *Provider) GeneratePool(
	ctx context.Context,
	bands []Band,
	constraints Constraints,
) ([]entities.Level, error) {
	pool := []entities.Level{}
	seen := map[string]struct{}{}
	for _, band := range bands {
		levels, err := p.GenerateLevels(ctx, band, constraints, band.Count)
		if err != nil {
			return nil, err
		}
		for _, level := range levels {
			if _, ok := seen[level.Id]; ok {
				continue
			}
			seen[level.Id] = struct{}{}
			pool = append(pool, level)
		}
	}
	if len(pool) == 0 {
		return nil, ErrNotEnoughLevels
	}
	return pool, nil
}

func sortByDifficulty(levels []entities.Level) {
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Difficulty < levels[j].Difficulty
	})
}
