// Package room tracks the single active game-room subscription.
//
// Room membership:
//   - Sequences leave-then-join when the client switches games
//   - Waits for server acks instead of fixed delays
//   - Re-issues join on every reconnect, since the server forgets
//     membership when the socket drops
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/davidrmz/chisme-client/internal/transport"
)

// Wire commands for room membership.
const (
	cmdJoinGame  = "joinGame"
	cmdLeaveGame = "leaveGame"
)

var ErrNoActiveRoom = errors.New("no active room")

// Commander is the slice of the connection manager membership needs.
type Commander interface {
	Command(ctx context.Context, event string, payload any) error
	StateChanges() (<-chan transport.State, func())
}

// Config holds membership settings.
type Config struct {
	// RejoinTimeout bounds the automatic join command on reconnect.
	RejoinTimeout time.Duration

	// LeaveTimeout bounds the leave half of a room switch. A timed-out
	// leave does not block the join; the server drops dead memberships
	// on its own.
	LeaveTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RejoinTimeout: 10 * time.Second,
		LeaveTimeout:  5 * time.Second,
	}
}

type roomPayload struct {
	GameID int64 `json:"gameId"`
}

// Membership tracks the active room and keeps it joined across reconnects.
type Membership struct {
	cfg    Config
	cmd    Commander
	logger *slog.Logger

	// switchMu serializes room transitions so leave(A) always lands
	// strictly before join(B).
	switchMu sync.Mutex

	mu        sync.Mutex
	active    int64
	hasActive bool
}

// NewMembership creates a membership tracker.
func NewMembership(cfg Config, cmd Commander, logger *slog.Logger) *Membership {
	if logger == nil {
		logger = slog.Default()
	}
	return &Membership{cfg: cfg, cmd: cmd, logger: logger}
}

// Run watches connection state and re-joins the active room on every
// transition to Connected.
func (m *Membership) Run(ctx context.Context) error {
	states, cancel := m.cmd.StateChanges()
	defer cancel()

	prev := transport.StateDisconnected
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if st == transport.StateConnected && prev != transport.StateConnected {
				m.rejoin(ctx)
			}
			prev = st
		}
	}
}

// ActiveGame returns the currently joined game id, if any.
func (m *Membership) ActiveGame() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.hasActive
}

// SwitchRoom leaves the previous room (if any) and joins gameID. The
// active id is cleared for the duration of the switch so nothing can
// attribute a fetch to the wrong room; it is set only once the join is
// acked. A failed join leaves the membership empty.
func (m *Membership) SwitchRoom(ctx context.Context, gameID int64) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	old, hadOld := m.active, m.hasActive
	m.active, m.hasActive = 0, false
	m.mu.Unlock()

	if hadOld && old != gameID {
		lctx, cancel := context.WithTimeout(ctx, m.cfg.LeaveTimeout)
		err := m.cmd.Command(lctx, cmdLeaveGame, roomPayload{GameID: old})
		cancel()
		if err != nil {
			m.logger.Warn("leave not acked, joining anyway",
				"game_id", old,
				"error", err,
			)
		}
	}

	if err := m.cmd.Command(ctx, cmdJoinGame, roomPayload{GameID: gameID}); err != nil {
		m.logger.Warn("join failed, switch abandoned",
			"game_id", gameID,
			"error", err,
		)
		return err
	}

	m.mu.Lock()
	m.active, m.hasActive = gameID, true
	m.mu.Unlock()

	m.logger.Info("room joined", "game_id", gameID)
	return nil
}

// EnsureJoined idempotently (re)joins gameID. Joining the already-active
// room just re-issues the join command, which the server tolerates.
func (m *Membership) EnsureJoined(ctx context.Context, gameID int64) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if err := m.cmd.Command(ctx, cmdJoinGame, roomPayload{GameID: gameID}); err != nil {
		return err
	}

	m.mu.Lock()
	m.active, m.hasActive = gameID, true
	m.mu.Unlock()
	return nil
}

// Leave exits the active room, if any.
func (m *Membership) Leave(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	old, hadOld := m.active, m.hasActive
	m.active, m.hasActive = 0, false
	m.mu.Unlock()

	if !hadOld {
		return ErrNoActiveRoom
	}
	return m.cmd.Command(ctx, cmdLeaveGame, roomPayload{GameID: old})
}

// rejoin re-issues the join command for the active room after a reconnect.
func (m *Membership) rejoin(ctx context.Context) {
	m.mu.Lock()
	id, ok := m.active, m.hasActive
	m.mu.Unlock()
	if !ok {
		return
	}

	jctx, cancel := context.WithTimeout(ctx, m.cfg.RejoinTimeout)
	defer cancel()

	if err := m.cmd.Command(jctx, cmdJoinGame, roomPayload{GameID: id}); err != nil {
		m.logger.Warn("rejoin failed", "game_id", id, "error", err)
		return
	}
	m.logger.Info("room rejoined after reconnect", "game_id", id)
}
