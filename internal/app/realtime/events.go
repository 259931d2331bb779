package realtime

import (
	"encoding/json"
)

const (
	EventMatches                  = "matches"
	EventPrivateAndInvitedMatches = "privateAndInvitedMatches"
	EventMatch                    = "match"
	EventConnectedPlayers         = "connectedPlayers"
	EventConnectedPlayersInRoom   = "connectedPlayersInRoom"
	EventNotifications            = "notifications"
)

type event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type connectedPlayers struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type connectedPlayersInRoom struct {
	MatchId string   `json:"matchId"`
	Users   []string `json:"users"`
}

func encodeEvent(eventType string, data any) ([]byte, error) {
	return json.Marshal(event{Type: eventType, Data: data})
}
