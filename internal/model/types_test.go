package model

import (
	"encoding/json"
	"testing"
)

func TestFlexBool(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
		fails bool
	}{
		{name: "true", input: `true`, want: true},
		{name: "false", input: `false`, want: false},
		{name: "one", input: `1`, want: true},
		{name: "zero", input: `0`, want: false},
		{name: "null", input: `null`, want: false},
		{name: "string", input: `"yes"`, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b FlexBool
			err := json.Unmarshal([]byte(tt.input), &b)
			if tt.fails {
				if err == nil {
					t.Errorf("Unmarshal(%s) should fail", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", tt.input, err)
			}
			if bool(b) != tt.want {
				t.Errorf("FlexBool(%s) = %v, want %v", tt.input, bool(b), tt.want)
			}
		})
	}
}

func TestPlayer_IsHostNumeric(t *testing.T) {
	var p Player
	if err := json.Unmarshal([]byte(`{"id":1,"isHost":1,"isStand":0}`), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !bool(p.IsHost) {
		t.Error("IsHost should be true for numeric 1")
	}
	if bool(p.IsStand) {
		t.Error("IsStand should be false for numeric 0")
	}
}

func TestGameInfo_Winner(t *testing.T) {
	info := GameInfo{
		WinnerID: 2,
		Players: []Player{
			{ID: 1, Name: "ana"},
			{ID: 2, Name: "beto"},
		},
	}

	w, ok := info.Winner()
	if !ok || w.Name != "beto" {
		t.Errorf("Winner = %v, %v, want beto", w, ok)
	}

	info.WinnerID = 0
	if _, ok := info.Winner(); ok {
		t.Error("no winner id should yield no winner")
	}

	info.WinnerID = 99
	if _, ok := info.Winner(); ok {
		t.Error("unknown winner id should yield no winner")
	}
}

func TestGameInfo_HostPlayer(t *testing.T) {
	info := GameInfo{
		Players: []Player{
			{ID: 1, IsHost: false},
			{ID: 2, IsHost: true},
		},
	}

	h, ok := info.HostPlayer()
	if !ok || h.ID != 2 {
		t.Errorf("HostPlayer = %v, %v, want player 2", h, ok)
	}
}

func TestGameInfo_PlayerByUserID(t *testing.T) {
	info := GameInfo{
		Players: []Player{
			{ID: 1, UserID: 10},
			{ID: 2, UserID: 20},
		},
	}

	p, ok := info.PlayerByUserID(20)
	if !ok || p.ID != 2 {
		t.Errorf("PlayerByUserID(20) = %v, %v, want player 2", p, ok)
	}
	if _, ok := info.PlayerByUserID(30); ok {
		t.Error("unknown user id should yield no seat")
	}
}

func TestPlayer_DisplayName(t *testing.T) {
	p := Player{Name: "seat-name"}
	if got := p.DisplayName(); got != "seat-name" {
		t.Errorf("DisplayName = %q, want seat-name", got)
	}

	p.User = &User{Email: "a@b.c"}
	if got := p.DisplayName(); got != "a@b.c" {
		t.Errorf("DisplayName = %q, want a@b.c", got)
	}

	p.User.FullName = "Ana B"
	if got := p.DisplayName(); got != "Ana B" {
		t.Errorf("DisplayName = %q, want Ana B", got)
	}
}

func TestDecodeNotification(t *testing.T) {
	var note GameNotification
	if !DecodeNotification(json.RawMessage(`{"gameId":7}`), &note) {
		t.Fatal("valid payload should decode")
	}
	if note.GameID != 7 {
		t.Errorf("GameID = %d, want 7", note.GameID)
	}

	if DecodeNotification(json.RawMessage(`{garbage`), &note) {
		t.Error("malformed payload should report false")
	}
}

func TestRematchResponseEvent_PiggybackedResult(t *testing.T) {
	raw := `{"gameId":7,"playerId":2,"accepted":true,"result":{"newGameId":42}}`

	var ev RematchResponseEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if ev.Result == nil || ev.Result.NewGameID != 42 {
		t.Errorf("Result = %+v, want newGameId 42", ev.Result)
	}

	var bare RematchResponseEvent
	if err := json.Unmarshal([]byte(`{"gameId":7,"playerId":2,"accepted":true}`), &bare); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if bare.Result != nil {
		t.Errorf("Result = %+v, want nil when absent", bare.Result)
	}
}
