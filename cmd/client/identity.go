package main

import (
	"sync"

	"github.com/davidrmz/chisme-client/internal/model"
)

// seatTracker resolves this account's seat in a game from the latest
// reconciled snapshot. It satisfies the rematch coordinator's Identity
// interface.
type seatTracker struct {
	userID int64

	mu    sync.RWMutex
	infos map[int64]*model.GameInfo
}

func newSeatTracker(userID int64) *seatTracker {
	return &seatTracker{
		userID: userID,
		infos:  make(map[int64]*model.GameInfo),
	}
}

// Observe records the latest snapshot for a game.
func (t *seatTracker) Observe(gameID int64, info *model.GameInfo) {
	if info == nil {
		return
	}
	t.mu.Lock()
	t.infos[gameID] = info
	t.mu.Unlock()
}

// Forget drops the cached snapshot for a game.
func (t *seatTracker) Forget(gameID int64) {
	t.mu.Lock()
	delete(t.infos, gameID)
	t.mu.Unlock()
}

// CurrentPlayerID returns this account's player id in the given game.
func (t *seatTracker) CurrentPlayerID(gameID int64) (int64, bool) {
	t.mu.RLock()
	info := t.infos[gameID]
	t.mu.RUnlock()

	if info == nil {
		return 0, false
	}
	p, ok := info.PlayerByUserID(t.userID)
	if !ok {
		return 0, false
	}
	return p.ID, true
}

// IsHost reports whether this account holds the host seat in the game.
func (t *seatTracker) IsHost(gameID int64) bool {
	t.mu.RLock()
	info := t.infos[gameID]
	t.mu.RUnlock()

	if info == nil {
		return false
	}
	p, ok := info.PlayerByUserID(t.userID)
	return ok && bool(p.IsHost)
}
