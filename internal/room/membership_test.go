package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/davidrmz/chisme-client/internal/transport"
)

type commandCall struct {
	event  string
	gameID int64
}

// fakeCommander records commands and scripts per-command failures.
type fakeCommander struct {
	mu    sync.Mutex
	calls []commandCall
	fail  map[string]error

	state    transport.State
	watchers []chan transport.State
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		fail:  make(map[string]error),
		state: transport.StateConnected,
	}
}

func (f *fakeCommander) Command(ctx context.Context, event string, payload any) error {
	p, _ := payload.(roomPayload)
	f.mu.Lock()
	f.calls = append(f.calls, commandCall{event: event, gameID: p.GameID})
	err := f.fail[event]
	f.mu.Unlock()
	return err
}

func (f *fakeCommander) StateChanges() (<-chan transport.State, func()) {
	ch := make(chan transport.State, 8)
	f.mu.Lock()
	ch <- f.state
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeCommander) setState(st transport.State) {
	f.mu.Lock()
	f.state = st
	for _, ch := range f.watchers {
		ch <- st
	}
	f.mu.Unlock()
}

func (f *fakeCommander) callLog() []commandCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]commandCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestMembership_SwitchRoomLeaveBeforeJoin(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx := context.Background()
	if err := m.SwitchRoom(ctx, 1); err != nil {
		t.Fatalf("first SwitchRoom failed: %v", err)
	}
	if err := m.SwitchRoom(ctx, 2); err != nil {
		t.Fatalf("second SwitchRoom failed: %v", err)
	}

	calls := cmd.callLog()
	want := []commandCall{
		{event: "joinGame", gameID: 1},
		{event: "leaveGame", gameID: 1},
		{event: "joinGame", gameID: 2},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}

	id, ok := m.ActiveGame()
	if !ok || id != 2 {
		t.Errorf("ActiveGame = %d, %v, want 2, true", id, ok)
	}
}

func TestMembership_SwitchRoomJoinFailure(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx := context.Background()
	if err := m.SwitchRoom(ctx, 1); err != nil {
		t.Fatalf("SwitchRoom failed: %v", err)
	}

	cmd.mu.Lock()
	cmd.fail["joinGame"] = errors.New("game full")
	cmd.mu.Unlock()

	if err := m.SwitchRoom(ctx, 2); err == nil {
		t.Fatal("SwitchRoom should fail when join is rejected")
	}

	// The abandoned switch leaves no active room rather than silently
	// keeping the old one.
	if _, ok := m.ActiveGame(); ok {
		t.Error("ActiveGame should be empty after an abandoned switch")
	}
}

func TestMembership_SwitchRoomToleratesLeaveFailure(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx := context.Background()
	m.SwitchRoom(ctx, 1)

	cmd.mu.Lock()
	cmd.fail["leaveGame"] = errors.New("timeout")
	cmd.mu.Unlock()

	if err := m.SwitchRoom(ctx, 2); err != nil {
		t.Fatalf("SwitchRoom = %v, want nil when only the leave fails", err)
	}

	id, ok := m.ActiveGame()
	if !ok || id != 2 {
		t.Errorf("ActiveGame = %d, %v, want 2, true", id, ok)
	}
}

func TestMembership_SwitchRoomSameGameSkipsLeave(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx := context.Background()
	m.SwitchRoom(ctx, 1)
	m.SwitchRoom(ctx, 1)

	for _, c := range cmd.callLog() {
		if c.event == "leaveGame" {
			t.Error("re-joining the same room should not issue a leave")
		}
	}
}

func TestMembership_LeaveWithoutActiveRoom(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	if err := m.Leave(context.Background()); !errors.Is(err, ErrNoActiveRoom) {
		t.Errorf("Leave = %v, want ErrNoActiveRoom", err)
	}
}

func TestMembership_Leave(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx := context.Background()
	m.SwitchRoom(ctx, 1)

	if err := m.Leave(ctx); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if _, ok := m.ActiveGame(); ok {
		t.Error("ActiveGame should be empty after Leave")
	}

	calls := cmd.callLog()
	last := calls[len(calls)-1]
	if last.event != "leaveGame" || last.gameID != 1 {
		t.Errorf("last call = %v, want leaveGame game 1", last)
	}
}

func TestMembership_RejoinOnReconnect(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.SwitchRoom(ctx, 5)

	// Drop and reconnect; membership should re-issue the join.
	cmd.setState(transport.StateDisconnected)
	cmd.setState(transport.StateConnecting)
	cmd.setState(transport.StateConnected)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		joins := 0
		for _, c := range cmd.callLog() {
			if c.event == "joinGame" && c.gameID == 5 {
				joins++
			}
		}
		if joins == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected a rejoin after reconnect, calls = %v", cmd.callLog())
}

func TestMembership_NoRejoinWithoutActiveRoom(t *testing.T) {
	cmd := newFakeCommander()
	m := NewMembership(DefaultConfig(), cmd, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	cmd.setState(transport.StateDisconnected)
	cmd.setState(transport.StateConnected)

	time.Sleep(50 * time.Millisecond)
	if calls := cmd.callLog(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}
