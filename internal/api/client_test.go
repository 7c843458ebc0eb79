package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davidrmz/chisme-client/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL,
		nil,
		WithStaticToken("test-token"),
		WithRetries(2, time.Millisecond),
	)
	return c, srv
}

func TestClient_GetGameInfo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/7/info" {
			t.Errorf("path = %s, want /games/7/info", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"game": map[string]any{"id": 7, "status": "playing"},
			"players": []map[string]any{
				{"id": 1, "gameId": 7, "userId": 10, "isHost": 1},
				{"id": 2, "gameId": 7, "userId": 20, "isHost": false},
			},
			"currentPlayers": 2,
			"maxPlayers":     4,
		})
	}))

	info, err := c.GetGameInfo(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetGameInfo failed: %v", err)
	}
	if info.Game.ID != 7 {
		t.Errorf("Game.ID = %d, want 7", info.Game.ID)
	}
	if len(info.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(info.Players))
	}
	// Numeric isHost decodes the same as a boolean
	if !bool(info.Players[0].IsHost) {
		t.Error("Players[0].IsHost should be true")
	}
	if bool(info.Players[1].IsHost) {
		t.Error("Players[1].IsHost should be false")
	}

	host, ok := info.HostPlayer()
	if !ok || host.ID != 1 {
		t.Errorf("HostPlayer = %v, %v, want player 1", host, ok)
	}
}

func TestClient_CreateGameWrappedResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/games" {
			t.Errorf("request = %s %s, want POST /games", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"game":{"id":42,"status":"waiting","maxPlayers":4}}`))
	}))

	game, err := c.CreateGame(context.Background(), model.CreateGameRequest{MaxPlayers: 4})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if game.ID != 42 {
		t.Errorf("ID = %d, want 42", game.ID)
	}
}

func TestClient_CreateGameBareResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":43,"status":"waiting","maxPlayers":2}`))
	}))

	game, err := c.CreateGame(context.Background(), model.CreateGameRequest{MaxPlayers: 2})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if game.ID != 43 {
		t.Errorf("ID = %d, want 43", game.ID)
	}
}

func TestClient_APIErrorMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"game already started"}`))
	}))

	_, err := c.JoinGame(context.Background(), 7)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != "game already started" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "game already started")
	}
}

func TestClient_RetryOnConflict(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"another action in flight"}`))
			return
		}
		w.Write([]byte(`{}`))
	}))

	if err := c.Stand(context.Background()); err != nil {
		t.Fatalf("Stand failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"not the host"}`))
	}))

	if err := c.StartGame(context.Background(), 7, 1); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", got)
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if err := c.FinishGame(context.Background(), 7); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial attempt plus the configured retries
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_RespondToRematchBody(t *testing.T) {
	var body struct {
		PlayerID int64 `json:"playerId"`
		Accepted bool  `json:"accepted"`
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/9/respond-rematch" {
			t.Errorf("path = %s, want /games/9/respond-rematch", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{}`))
	}))

	if err := c.RespondToRematch(context.Background(), 9, 3, true); err != nil {
		t.Fatalf("RespondToRematch failed: %v", err)
	}
	if body.PlayerID != 3 || !body.Accepted {
		t.Errorf("body = %+v, want playerId 3 accepted", body)
	}
}

func TestClient_CreateRematch(t *testing.T) {
	var body struct {
		AcceptedPlayers []int64 `json:"acceptedPlayers"`
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/9/create-rematch" {
			t.Errorf("path = %s, want /games/9/create-rematch", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"game":{"id":10,"status":"waiting"}}`))
	}))

	game, err := c.CreateRematch(context.Background(), 9, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("CreateRematch failed: %v", err)
	}
	if game.ID != 10 {
		t.Errorf("ID = %d, want 10", game.ID)
	}
	if len(body.AcceptedPlayers) != 3 {
		t.Errorf("acceptedPlayers = %v, want 3 entries", body.AcceptedPlayers)
	}
}

func TestClient_GetGameStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/7/status" {
			t.Errorf("path = %s, want /games/7/status", r.URL.Path)
		}
		w.Write([]byte(`{
			"game": {"id": 7, "status": "playing"},
			"players": [{"id":1},{"id":2}],
			"currentPlayer": {"id": 2},
			"isFinished": false
		}`))
	}))

	status, err := c.GetGameStatus(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetGameStatus failed: %v", err)
	}
	if status.CurrentPlayer == nil || status.CurrentPlayer.ID != 2 {
		t.Errorf("CurrentPlayer = %+v, want player 2", status.CurrentPlayer)
	}
	if status.IsFinished {
		t.Error("IsFinished should be false")
	}
}

func TestClient_RevealAndFinish(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/games/7/reveal-and-finish" {
			t.Errorf("request = %s %s, want POST /games/7/reveal-and-finish", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))

	if err := c.RevealAndFinish(context.Background(), 7); err != nil {
		t.Fatalf("RevealAndFinish failed: %v", err)
	}
}

func TestClient_ListAvailableGames(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games/available" {
			t.Errorf("path = %s, want /games/available", r.URL.Path)
		}
		w.Write([]byte(`[{"id":1,"status":"waiting"},{"id":2,"status":"waiting"}]`))
	}))

	games, err := c.ListAvailableGames(context.Background())
	if err != nil {
		t.Fatalf("ListAvailableGames failed: %v", err)
	}
	if len(games) != 2 {
		t.Errorf("games = %d, want 2", len(games))
	}
}
