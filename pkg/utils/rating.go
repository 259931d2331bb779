package utils

import (
	"math"
	"strconv"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
)

var q = math.Log(10) / 400

const (
	KFactorProvisional = 40.0
	KFactorEstablished = 20.0
	MinRatingDeviation = 50.0

	minDeviationScale = 0.5
)

type Outcome uint8

// Outcomes are from the first player's point of view.
const (
	OutcomeWin Outcome = iota
	OutcomeLoss
	OutcomeDraw
)

func (o Outcome) score() float64 {
	switch o {
	case OutcomeWin:
		return 1
	case OutcomeLoss:
		return 0
	default:
		return 0.5
	}
}

func (o Outcome) reverse() Outcome {
	switch o {
	case OutcomeWin:
		return OutcomeLoss
	case OutcomeLoss:
		return OutcomeWin
	default:
		return OutcomeDraw
	}
}

type RatingChange struct {
	Delta       int
	Rating      float64
	RD          float64
	MatchCount  int
	Provisional bool
}

// g dampens the rating gap by the opponent's deviation.
func g(rd float64) float64 {
	return 1 / math.Sqrt(1+3*q*q*rd*rd/(math.Pi*math.Pi))
}

// expectedScore is the chance of r1 beating an opponent rated r2.
func expectedScore(r1, r2, rd2 float64) float64 {
	return 1 / (1 + math.Pow(10, -g(rd2)*(r1-r2)/400))
}

// ApplyResult computes the rating changes of both players of a finished match.
// Provisional players move faster; every player moves less as their deviation
// converges. Ratings and deviations are updated for provisional players too.
func ApplyResult(
	a entities.MultiplayerProfile,
	b entities.MultiplayerProfile,
	outcome Outcome,
) (RatingChange, RatingChange) {
	return updateRating(a, b, outcome.score()), updateRating(b, a, outcome.reverse().score())
}

func updateRating(player, opponent entities.MultiplayerProfile, score float64) RatingChange {
	rd := player.RatingDeviation
	if rd <= 0 {
		rd = entities.DefaultRatingDeviation
	}
	oppRD := opponent.RatingDeviation
	if oppRD <= 0 {
		oppRD = entities.DefaultRatingDeviation
	}

	k := KFactorEstablished
	if player.IsProvisional() {
		k = KFactorProvisional
	}
	scale := math.Min(1, math.Max(minDeviationScale, rd/entities.DefaultRatingDeviation))

	E := expectedScore(player.Rating, opponent.Rating, oppRD)
	gRD := g(oppRD)
	delta := int(math.Round(k * scale * gRD * (score - E)))

	d2 := 1 / (q * q * gRD * gRD * E * (1 - E))
	newRD := math.Sqrt(1 / (1/(rd*rd) + 1/d2))

	return RatingChange{
		Delta:       delta,
		Rating:      player.Rating + float64(delta),
		RD:          math.Max(MinRatingDeviation, newRD),
		MatchCount:  player.MatchCount + 1,
		Provisional: player.IsProvisional(),
	}
}

// DisplayRating is what a viewer sees for a profile.
func DisplayRating(p entities.MultiplayerProfile) string {
	if p.IsProvisional() {
		return "Unrated"
	}
	return formatRating(p.Rating)
}

func formatRating(r float64) string {
	return strconv.Itoa(int(math.Round(r)))
}
