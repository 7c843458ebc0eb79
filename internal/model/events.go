package model

import "encoding/json"

// Server-pushed event names. The backend prefixes everything with "chisme:".
const (
	EventPlayerJoined        = "chisme:playerJoined"
	EventPlayerLeft          = "chisme:playerLeft"
	EventGameStarted         = "chisme:gameStarted"
	EventCardDealt           = "chisme:cardDealt"
	EventPlayerStood         = "chisme:playerStood"
	EventPlayerRequestedCard = "chisme:playerRequestedCard"
	EventGameFinished        = "chisme:gameFinished"
	EventGameEndedByLeave    = "chisme:gameEndedByLeave"
	EventNewGameCreated      = "chisme:newGameCreated"
	EventRematchProposed     = "chisme:rematchProposed"
	EventRematchResponse     = "chisme:rematchResponse"
	EventRematchCancelled    = "chisme:rematchCancelled"
	EventAllPlayersAccepted  = "chisme:allPlayersAcceptedRematch"
	EventGameRestarted       = "chisme:gameRestarted"
)

// RefreshEvents are the room-scoped notifications that invalidate the
// current snapshot and trigger a reconciliation fetch.
var RefreshEvents = []string{
	EventPlayerJoined,
	EventPlayerLeft,
	EventGameStarted,
	EventCardDealt,
	EventPlayerStood,
	EventPlayerRequestedCard,
	EventGameFinished,
}

// GameNotification is the common shape of room-scoped notifications.
// A zero GameID means the server did not tag the payload with a room.
type GameNotification struct {
	GameID int64 `json:"gameId"`
}

// RematchInfo is the proposal body pushed with rematchProposed.
type RematchInfo struct {
	ID               string   `json:"id,omitempty"`
	GameID           int64    `json:"gameId"`
	ProposerPlayerID int64    `json:"proposerPlayerId,omitempty"`
	PlayersToNotify  []Player `json:"playersToNotify"`
	NewGameID        int64    `json:"newGameId,omitempty"`
}

// RematchProposedEvent is the rematchProposed payload.
type RematchProposedEvent struct {
	GameID  int64       `json:"gameId"`
	Rematch RematchInfo `json:"rematch"`
}

// RematchResult optionally rides along with a response once the backend
// has already materialized the new game.
type RematchResult struct {
	NewGameID int64 `json:"newGameId,omitempty"`
}

// RematchResponseEvent is the rematchResponse payload.
type RematchResponseEvent struct {
	GameID   int64          `json:"gameId"`
	PlayerID int64          `json:"playerId"`
	Accepted bool           `json:"accepted"`
	Result   *RematchResult `json:"result,omitempty"`
}

// RematchResolvedEvent is pushed as allPlayersAcceptedRematch or
// gameRestarted once the rematch game exists.
type RematchResolvedEvent struct {
	GameID    int64 `json:"gameId"`
	NewGameID int64 `json:"newGameId"`
}

// RematchCancelledEvent is pushed when the negotiation is aborted.
type RematchCancelledEvent struct {
	GameID int64  `json:"gameId"`
	Reason string `json:"reason,omitempty"`
}

// NewGameCreatedEvent is the newGameCreated payload.
type NewGameCreatedEvent struct {
	GameID  int64 `json:"gameId,omitempty"`
	NewGame *Game `json:"newGame"`
}

// DecodeNotification unmarshals a raw payload into out, returning false on
// malformed JSON. Malformed notifications are never fatal.
func DecodeNotification(raw json.RawMessage, out any) bool {
	return json.Unmarshal(raw, out) == nil
}
