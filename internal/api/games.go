package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/davidrmz/chisme-client/internal/model"
)

// CreateGame creates a new game. Some backend versions wrap the game in a
// {"game": ...} envelope and some return it bare; both are accepted.
func (c *Client) CreateGame(ctx context.Context, req model.CreateGameRequest) (*model.Game, error) {
	body, err := c.doWithRetry(ctx, http.MethodPost, "/games", req)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Game *model.Game `json:"game"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Game != nil {
		return wrapped.Game, nil
	}

	var game model.Game
	if err := json.Unmarshal(body, &game); err != nil {
		return nil, fmt.Errorf("unmarshal game: %w", err)
	}
	return &game, nil
}

// JoinGame joins an existing game and returns the assigned seat.
func (c *Client) JoinGame(ctx context.Context, gameID int64) (*model.Player, error) {
	var player model.Player
	if err := c.post(ctx, fmt.Sprintf("/games/%d/join", gameID), struct{}{}, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// StartGame starts the game. Host only.
func (c *Client) StartGame(ctx context.Context, gameID, hostPlayerID int64) error {
	body := struct {
		HostPlayerID int64 `json:"hostPlayerId"`
	}{hostPlayerID}
	return c.post(ctx, fmt.Sprintf("/games/%d/start", gameID), body, nil)
}

// RequestCard asks the host for another card. The backend resolves the
// calling player from the auth token.
func (c *Client) RequestCard(ctx context.Context) error {
	return c.post(ctx, "/games/request-card", struct{}{}, nil)
}

// Stand stops taking cards for the calling player.
func (c *Client) Stand(ctx context.Context) error {
	return c.post(ctx, "/games/stand", struct{}{}, nil)
}

// DealCardToPlayer deals a card to the given seat. Host only.
func (c *Client) DealCardToPlayer(ctx context.Context, playerID int64) error {
	body := struct {
		PlayerID int64 `json:"playerId"`
	}{playerID}
	return c.post(ctx, "/games/deal-card", body, nil)
}

// StandPlayer stands the given seat. Host only.
func (c *Client) StandPlayer(ctx context.Context, playerID int64) error {
	body := struct {
		PlayerID int64 `json:"playerId"`
	}{playerID}
	return c.post(ctx, "/games/stand-player", body, nil)
}

// GetGameInfo fetches the authoritative snapshot for a game.
func (c *Client) GetGameInfo(ctx context.Context, gameID int64) (*model.GameInfo, error) {
	var info model.GameInfo
	if err := c.get(ctx, fmt.Sprintf("/games/%d/info", gameID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetGameStatus fetches the game's turn status.
func (c *Client) GetGameStatus(ctx context.Context, gameID int64) (*model.GameStatus, error) {
	var status model.GameStatus
	if err := c.get(ctx, fmt.Sprintf("/games/%d/status", gameID), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// FinishGame ends the game. Host only.
func (c *Client) FinishGame(ctx context.Context, gameID int64) error {
	return c.post(ctx, fmt.Sprintf("/games/%d/finish", gameID), struct{}{}, nil)
}

// RevealAndFinish reveals all hands and ends the game. Host only.
func (c *Client) RevealAndFinish(ctx context.Context, gameID int64) error {
	return c.post(ctx, fmt.Sprintf("/games/%d/reveal-and-finish", gameID), struct{}{}, nil)
}

// LeaveGame removes the calling player from their current game.
func (c *Client) LeaveGame(ctx context.Context) error {
	return c.post(ctx, "/games/leave", struct{}{}, nil)
}

// ListAvailableGames lists games waiting for players.
func (c *Client) ListAvailableGames(ctx context.Context) ([]model.Game, error) {
	var games []model.Game
	if err := c.get(ctx, "/games/available", &games); err != nil {
		return nil, err
	}
	return games, nil
}
