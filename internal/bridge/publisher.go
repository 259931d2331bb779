package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/pkg/logging"
	"go.uber.org/zap"
)

const sendTimeout = 5 * time.Second

// Publisher turns typed calls into commands. Delivery is best effort:
// failures are logged, never returned, so callers that already committed a
// state change are not failed by a missed push.
type Publisher struct {
	sender Sender
	gameId string
}

func NewPublisher(sender Sender, gameId string) *Publisher {
	return &Publisher{sender: sender, gameId: gameId}
}

func (p *Publisher) send(cmd Command) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := p.sender.Send(ctx, cmd); err != nil {
		logging.Warn("failed to send command",
			zap.String("type", string(cmd.Type)),
			zap.String("match_id", cmd.MatchId),
			zap.String("user_id", cmd.UserId),
			zap.Error(err),
		)
	}
}

func (p *Publisher) BroadcastMatch(matchId string) {
	p.send(Command{Type: CommandBroadcastMatch, MatchId: matchId})
}

func (p *Publisher) BroadcastMatches(gameId string) {
	if gameId == "" {
		gameId = p.gameId
	}
	p.send(Command{Type: CommandBroadcastMatches, GameId: gameId})
}

func (p *Publisher) BroadcastPrivateMatches(userId string) {
	p.send(Command{Type: CommandBroadcastPrivateMatches, UserId: userId})
}

func (p *Publisher) BroadcastNotification(userId string, notification any) {
	raw, err := json.Marshal(notification)
	if err != nil {
		logging.Warn("failed to marshal notification", zap.String("user_id", userId), zap.Error(err))
		return
	}
	p.send(Command{Type: CommandBroadcastNotification, UserId: userId, Notification: raw})
}

// MatchChanged pushes a match snapshot, the lobby and the private lists of
// everybody involved.
func (p *Publisher) MatchChanged(match entities.Match) {
	p.BroadcastMatch(match.MatchId)
	p.BroadcastMatches(match.GameId)
	if !match.Private {
		return
	}
	notified := map[string]bool{}
	for _, userId := range append([]string{match.CreatedBy}, match.Players...) {
		if userId == "" || notified[userId] {
			continue
		}
		notified[userId] = true
		p.BroadcastPrivateMatches(userId)
	}
}

// Schedule asks the realtime process to arm the timers of a match.
func (p *Publisher) Schedule(match entities.Match) {
	p.send(Command{Type: CommandSchedule, MatchId: match.MatchId, GameId: match.GameId})
}

func (p *Publisher) Cancel(matchId string) {
	p.send(Command{Type: CommandCancel, MatchId: matchId})
}
