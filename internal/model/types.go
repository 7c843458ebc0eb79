package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// GameStatusValue is the lifecycle status of a game on the backend.
type GameStatusValue string

const (
	GameWaiting  GameStatusValue = "waiting"
	GamePlaying  GameStatusValue = "playing"
	GameFinished GameStatusValue = "finished"
)

// FlexBool unmarshals both JSON booleans and numbers (0/1). The backend is
// inconsistent about how it serializes flags like isHost and isStand.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*b = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("flex bool: %w", err)
		}
		*b = n != 0
	}
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// Game is a game row as returned by the backend.
type Game struct {
	ID         int64           `json:"id"`
	HostName   string          `json:"hostName,omitempty"`
	Status     GameStatusValue `json:"status"`
	MaxPlayers int             `json:"maxPlayers"`
	WinnerID   int64           `json:"winnerId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Players    []Player        `json:"players,omitempty"`
}

// User is the account behind a player seat.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email"`
}

// Player is one seat in a game.
type Player struct {
	ID             int64        `json:"id"`
	GameID         int64        `json:"gameId"`
	UserID         int64        `json:"userId"`
	Name           string       `json:"name,omitempty"`
	IsHost         FlexBool     `json:"isHost"`
	TotalPoints    int          `json:"totalPoints,omitempty"`
	IsStand        FlexBool     `json:"isStand,omitempty"`
	IsFinished     bool         `json:"isFinished,omitempty"`
	HasCardRequest bool         `json:"hasCardRequest,omitempty"`
	Position       int          `json:"position,omitempty"`
	User           *User        `json:"user,omitempty"`
	Cards          []PlayerCard `json:"cards,omitempty"`
}

// DisplayName prefers the account's full name, then email, then the seat name.
func (p *Player) DisplayName() string {
	if p.User != nil {
		if p.User.FullName != "" {
			return p.User.FullName
		}
		if p.User.Email != "" {
			return p.User.Email
		}
	}
	return p.Name
}

// PlayerCard is one dealt card.
type PlayerCard struct {
	ID        int64  `json:"id"`
	PlayerID  int64  `json:"playerId"`
	Card      string `json:"card"`
	Value     int    `json:"value"`
	Formatted string `json:"formatted,omitempty"`
}

// GameInfo is the authoritative snapshot of one game. The reconciler
// replaces it wholesale on every refresh; nothing merges field-by-field.
type GameInfo struct {
	Game              Game            `json:"game"`
	Players           []Player        `json:"players"`
	CurrentPlayers    int             `json:"currentPlayers"`
	MaxPlayers        int             `json:"maxPlayers"`
	CanStart          bool            `json:"canStart"`
	WillAutoStart     bool            `json:"willAutoStart"`
	PlayersNeeded     int             `json:"playersNeeded"`
	CurrentPlayerTurn int64           `json:"currentPlayerTurn,omitempty"`
	WinnerID          int64           `json:"winnerId,omitempty"`
	Status            GameStatusValue `json:"status,omitempty"`
}

// Winner resolves the winning player from WinnerID, if the game has one.
func (gi *GameInfo) Winner() (*Player, bool) {
	if gi.WinnerID == 0 {
		return nil, false
	}
	for i := range gi.Players {
		if gi.Players[i].ID == gi.WinnerID {
			return &gi.Players[i], true
		}
	}
	return nil, false
}

// HostPlayer returns the seat flagged as host.
func (gi *GameInfo) HostPlayer() (*Player, bool) {
	for i := range gi.Players {
		if bool(gi.Players[i].IsHost) {
			return &gi.Players[i], true
		}
	}
	return nil, false
}

// PlayerByUserID returns the seat belonging to the given account.
func (gi *GameInfo) PlayerByUserID(userID int64) (*Player, bool) {
	for i := range gi.Players {
		if gi.Players[i].UserID == userID {
			return &gi.Players[i], true
		}
	}
	return nil, false
}

// GameStatus is the /status endpoint response.
type GameStatus struct {
	Game          Game     `json:"game"`
	Players       []Player `json:"players"`
	CurrentPlayer *Player  `json:"currentPlayer,omitempty"`
	IsFinished    bool     `json:"isFinished"`
}

// CreateGameRequest is the body for creating a game.
type CreateGameRequest struct {
	MaxPlayers int    `json:"maxPlayers"`
	HostName   string `json:"hostName,omitempty"`
}
