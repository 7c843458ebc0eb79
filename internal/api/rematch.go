package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/davidrmz/chisme-client/internal/model"
)

// ProposeRematch asks the backend to open a rematch negotiation for a
// finished game. The proposal itself arrives back as a rematchProposed
// notification; the caller must not treat this response as the proposal.
func (c *Client) ProposeRematch(ctx context.Context, gameID, hostPlayerID int64) error {
	body := struct {
		HostPlayerID int64 `json:"hostPlayerId"`
	}{hostPlayerID}
	return c.post(ctx, fmt.Sprintf("/games/%d/propose-rematch", gameID), body, nil)
}

// RespondToRematch records the calling player's accept/reject decision.
func (c *Client) RespondToRematch(ctx context.Context, gameID, playerID int64, accepted bool) error {
	body := struct {
		PlayerID int64 `json:"playerId"`
		Accepted bool  `json:"accepted"`
	}{playerID, accepted}
	return c.post(ctx, fmt.Sprintf("/games/%d/respond-rematch", gameID), body, nil)
}

// CreateRematch materializes the new game once every player accepted.
// Like CreateGame, the response may or may not be wrapped.
func (c *Client) CreateRematch(ctx context.Context, originalGameID int64, acceptedPlayers []int64) (*model.Game, error) {
	reqBody := struct {
		AcceptedPlayers []int64 `json:"acceptedPlayers"`
	}{acceptedPlayers}

	body, err := c.doWithRetry(ctx, http.MethodPost, fmt.Sprintf("/games/%d/create-rematch", originalGameID), reqBody)
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
		return nil, fmt.Errorf("unmarshal rematch game: %w", err)
	}
	return &game, nil
}
