// Package reconcile implements the snapshot reconciler.
//
// The reconciler:
//   - Listens for room-scoped "something changed" notifications
//   - Fetches the authoritative game snapshot on each one
//   - Bounds in-flight fetches to one per game id
//   - Coalesces notification bursts into a single follow-up fetch
//   - Optionally polls as a fallback against missed notifications
package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/davidrmz/chisme-client/internal/events"
	"github.com/davidrmz/chisme-client/internal/model"
)

// GameFetcher is the slice of the API client the reconciler needs.
type GameFetcher interface {
	GetGameInfo(ctx context.Context, gameID int64) (*model.GameInfo, error)
}

// Subscriber is the slice of the event broker the reconciler needs.
type Subscriber interface {
	Subscribe(ctx context.Context, event string) (events.Stream, error)
}

// RoomView exposes the active room id.
type RoomView interface {
	ActiveGame() (int64, bool)
}

// Snapshot is one published reconciliation result. Each snapshot replaces
// the previous one wholesale.
type Snapshot struct {
	GameID    int64
	Info      *model.GameInfo
	FetchedAt time.Time
}

// Config holds reconciler settings.
type Config struct {
	// FetchTimeout bounds one snapshot fetch.
	FetchTimeout time.Duration

	// FallbackInterval enables a periodic refresh of the active room as
	// insurance against missed notifications. Zero disables it. The
	// fallback funnels through the same coalescing trigger as
	// notifications, so the one-in-flight bound still holds.
	FallbackInterval time.Duration

	// BufferSize is the capacity of the snapshot and error outputs.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 10 * time.Second,
		BufferSize:   16,
	}
}

// fetchState tracks in-flight work for one game id.
type fetchState struct {
	inFlight bool
	pending  bool
}

// Reconciler re-fetches authoritative snapshots on notifications.
type Reconciler struct {
	cfg     Config
	fetcher GameFetcher
	broker  Subscriber
	rooms   RoomView
	logger  *slog.Logger

	snapshots chan Snapshot
	errs      chan error

	mu    sync.Mutex
	games map[int64]*fetchState

	sf singleflight.Group
}

// New creates a reconciler.
func New(cfg Config, fetcher GameFetcher, broker Subscriber, rooms RoomView, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	return &Reconciler{
		cfg:       cfg,
		fetcher:   fetcher,
		broker:    broker,
		rooms:     rooms,
		logger:    logger,
		snapshots: make(chan Snapshot, cfg.BufferSize),
		errs:      make(chan error, cfg.BufferSize),
		games:     make(map[int64]*fetchState),
	}
}

// Snapshots returns the stream of reconciled snapshots.
func (r *Reconciler) Snapshots() <-chan Snapshot {
	return r.snapshots
}

// Errors returns non-fatal fetch failures. A failed fetch is not retried;
// the next notification or an explicit Refresh will try again.
func (r *Reconciler) Errors() <-chan error {
	return r.errs
}

// Refresh fetches a snapshot on demand. Concurrent requests for the
// same game id, manual or notification-triggered, share one call.
func (r *Reconciler) Refresh(ctx context.Context, gameID int64) (*model.GameInfo, error) {
	return r.fetch(ctx, gameID)
}

// fetch funnels every snapshot request through the per-game
// singleflight, so at most one GetGameInfo call per game id is in
// flight no matter which path asked for it.
func (r *Reconciler) fetch(ctx context.Context, gameID int64) (*model.GameInfo, error) {
	v, err, _ := r.sf.Do(strconv.FormatInt(gameID, 10), func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
		return r.fetcher.GetGameInfo(fctx, gameID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.GameInfo), nil
}

// Run subscribes to the room-scoped notifications and reconciles until
// ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	triggers := make(chan int64, 64)

	var wg sync.WaitGroup
	for _, name := range model.RefreshEvents {
		sub, err := r.broker.Subscribe(ctx, name)
		if err != nil {
			return err
		}
		wg.Add(1)
		go r.watch(ctx, &wg, name, sub, triggers)
	}
	defer wg.Wait()

	var tick <-chan time.Time
	if r.cfg.FallbackInterval > 0 {
		t := time.NewTicker(r.cfg.FallbackInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gameID := <-triggers:
			r.trigger(ctx, gameID)
		case <-tick:
			if id, ok := r.rooms.ActiveGame(); ok {
				r.trigger(ctx, id)
			}
		}
	}
}

// watch forwards notifications for the active room as fetch triggers.
func (r *Reconciler) watch(ctx context.Context, wg *sync.WaitGroup, name string, sub events.Stream, triggers chan<- int64) {
	defer wg.Done()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub.C():
			if !ok {
				return
			}
			var note model.GameNotification
			if err := json.Unmarshal(raw, &note); err != nil {
				r.logger.Warn("malformed notification, ignoring",
					"event", name,
					"error", err,
				)
				continue
			}

			gameID := note.GameID
			if gameID == 0 {
				// Untagged payload: attribute it to the active room.
				id, ok := r.rooms.ActiveGame()
				if !ok {
					continue
				}
				gameID = id
			} else if !r.matchesActive(gameID) {
				r.logger.Debug("notification for inactive room, ignoring",
					"event", name,
					"game_id", gameID,
				)
				continue
			}

			select {
			case triggers <- gameID:
			case <-ctx.Done():
				return
			default:
				// Trigger queue full; the coalescing flag absorbs it.
			}
		}
	}
}

// trigger starts a fetch for gameID, or marks a follow-up if one is
// already in flight.
func (r *Reconciler) trigger(ctx context.Context, gameID int64) {
	r.mu.Lock()
	st := r.games[gameID]
	if st == nil {
		st = &fetchState{}
		r.games[gameID] = st
	}
	if st.inFlight {
		st.pending = true
		r.mu.Unlock()
		return
	}
	st.inFlight = true
	r.mu.Unlock()

	go r.fetchLoop(ctx, gameID, st)
}

// fetchLoop runs one fetch, then exactly one more if notifications
// arrived while it was in flight.
func (r *Reconciler) fetchLoop(ctx context.Context, gameID int64, st *fetchState) {
	for {
		r.fetchOnce(ctx, gameID)

		r.mu.Lock()
		if st.pending {
			st.pending = false
			r.mu.Unlock()
			continue
		}
		st.inFlight = false
		r.mu.Unlock()
		return
	}
}

func (r *Reconciler) fetchOnce(ctx context.Context, gameID int64) {
	info, err := r.fetch(ctx, gameID)
	if err != nil {
		r.logger.Warn("snapshot fetch failed", "game_id", gameID, "error", err)
		select {
		case r.errs <- err:
		default:
		}
		return
	}

	// The room may have changed while the request was in flight; a
	// snapshot must never be attributed to the wrong room.
	if !r.matchesActive(gameID) {
		r.logger.Debug("discarding snapshot for inactive room", "game_id", gameID)
		return
	}

	snap := Snapshot{GameID: gameID, Info: info, FetchedAt: time.Now()}
	select {
	case r.snapshots <- snap:
	default:
		r.logger.Warn("snapshot buffer full, dropping", "game_id", gameID)
	}
}

func (r *Reconciler) matchesActive(gameID int64) bool {
	id, ok := r.rooms.ActiveGame()
	return ok && id == gameID
}
