// Package rematch runs the post-game rematch negotiation.
//
// The coordinator:
//   - Reacts to the server's rematchProposed notification, never to the
//     local propose call, so the proposal has one source of truth
//   - Collects responses and tallies them on the host
//   - Treats the server-pushed resolution as the only navigation trigger;
//     the local tally only drives the waiting display and tells the host
//     when to materialize the new game
//   - Forces Cancelled on any rejection or server-side cancellation
//
// All state lives in a single actor goroutine, so response handling is
// serialized even though notifications and API results arrive
// concurrently.
package rematch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidrmz/chisme-client/internal/events"
	"github.com/davidrmz/chisme-client/internal/model"
)

// API is the slice of the game client the coordinator needs.
type API interface {
	ProposeRematch(ctx context.Context, gameID, hostPlayerID int64) error
	RespondToRematch(ctx context.Context, gameID, playerID int64, accepted bool) error
	CreateRematch(ctx context.Context, originalGameID int64, acceptedPlayers []int64) (*model.Game, error)
}

// Subscriber is the slice of the event broker the coordinator needs.
type Subscriber interface {
	Subscribe(ctx context.Context, event string) (events.Stream, error)
}

// RoomView exposes the active room id for payload filtering.
type RoomView interface {
	ActiveGame() (int64, bool)
}

// Identity resolves this client's seat in a game.
type Identity interface {
	CurrentPlayerID(gameID int64) (int64, bool)
	IsHost(gameID int64) bool
}

// proposal is the actor-owned negotiation state.
type proposal struct {
	id               string
	originalGameID   int64
	proposerPlayerID int64
	order            []int64 // playersToNotify, in notification order
	responses        map[int64]*Response
	resultingGameID  int64
}

// Coordinator drives the rematch state machine.
type Coordinator struct {
	cfg    Config
	api    API
	broker Subscriber
	rooms  RoomView
	ident  Identity
	logger *slog.Logger

	cmds chan func()
	out  chan Event

	// Actor-owned; guarded by mu only so the getters can snapshot it.
	mu       sync.Mutex
	status   Status
	proposal *proposal

	graceC <-chan time.Time
}

// New creates a coordinator.
func New(cfg Config, api API, broker Subscriber, rooms RoomView, ident Identity, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 32
	}
	return &Coordinator{
		cfg:    cfg,
		api:    api,
		broker: broker,
		rooms:  rooms,
		ident:  ident,
		logger: logger,
		cmds:   make(chan func(), 16),
		out:    make(chan Event, cfg.EventBufferSize),
		status: StatusIdle,
	}
}

// Events returns the UI-facing event stream.
func (c *Coordinator) Events() <-chan Event {
	return c.out
}

// Status returns the current negotiation status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Proposal returns a snapshot of the active proposal, if any.
func (c *Coordinator) Proposal() (ProposalView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proposal == nil {
		return ProposalView{}, false
	}
	p := c.proposal
	view := ProposalView{
		ID:               p.id,
		OriginalGameID:   p.originalGameID,
		ProposerPlayerID: p.proposerPlayerID,
		Players:          append([]int64(nil), p.order...),
		Responses:        make(map[int64]Response, len(p.responses)),
		ResultingGameID:  p.resultingGameID,
	}
	for id, r := range p.responses {
		view.Responses[id] = *r
	}
	return view, true
}

// Propose asks the server to open a negotiation. Host only. Local state
// stays Idle until the rematchProposed notification comes back.
func (c *Coordinator) Propose(ctx context.Context) error {
	gameID, ok := c.rooms.ActiveGame()
	if !ok {
		return ErrNoActiveProposal
	}
	if !c.ident.IsHost(gameID) {
		return ErrNotHost
	}
	hostID, ok := c.ident.CurrentPlayerID(gameID)
	if !ok {
		return ErrUnknownPlayer
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.api.ProposeRematch(cctx, gameID, hostID)
}

// Respond records this player's decision. Non-host only. The API call
// runs off the actor goroutine so notifications keep flowing while it
// is in flight.
func (c *Coordinator) Respond(ctx context.Context, accepted bool) error {
	errc := make(chan error, 1)
	select {
	case c.cmds <- func() { c.startRespond(ctx, accepted, errc) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RoomLeft resets the negotiation when the client leaves the room.
func (c *Coordinator) RoomLeft() {
	select {
	case c.cmds <- func() { c.reset() }:
	default:
	}
}

// Run consumes notifications until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	proposed, err := c.broker.Subscribe(ctx, model.EventRematchProposed)
	if err != nil {
		return err
	}
	defer proposed.Close()

	response, err := c.broker.Subscribe(ctx, model.EventRematchResponse)
	if err != nil {
		return err
	}
	defer response.Close()

	cancelled, err := c.broker.Subscribe(ctx, model.EventRematchCancelled)
	if err != nil {
		return err
	}
	defer cancelled.Close()

	allAccepted, err := c.broker.Subscribe(ctx, model.EventAllPlayersAccepted)
	if err != nil {
		return err
	}
	defer allAccepted.Close()

	restarted, err := c.broker.Subscribe(ctx, model.EventGameRestarted)
	if err != nil {
		return err
	}
	defer restarted.Close()

	newGame, err := c.broker.Subscribe(ctx, model.EventNewGameCreated)
	if err != nil {
		return err
	}
	defer newGame.Close()

	endedByLeave, err := c.broker.Subscribe(ctx, model.EventGameEndedByLeave)
	if err != nil {
		return err
	}
	defer endedByLeave.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fn := <-c.cmds:
			fn()

		case <-c.graceC:
			c.onGraceExpired()

		case raw, ok := <-proposed.C():
			if !ok {
				return nil
			}
			c.onProposed(raw)

		case raw, ok := <-response.C():
			if !ok {
				return nil
			}
			c.onResponse(ctx, raw)

		case raw, ok := <-cancelled.C():
			if !ok {
				return nil
			}
			c.onCancelled(raw)

		case raw, ok := <-allAccepted.C():
			if !ok {
				return nil
			}
			c.onResolvedPush(raw)

		case raw, ok := <-restarted.C():
			if !ok {
				return nil
			}
			c.onResolvedPush(raw)

		case raw, ok := <-newGame.C():
			if !ok {
				return nil
			}
			c.onNewGameCreated(raw)

		case raw, ok := <-endedByLeave.C():
			if !ok {
				return nil
			}
			c.onGameEndedByLeave(raw)
		}
	}
}

// --- notification handlers (actor goroutine only) ---

func (c *Coordinator) onProposed(raw json.RawMessage) {
	var ev model.RematchProposedEvent
	if !model.DecodeNotification(raw, &ev) {
		c.logger.Warn("malformed rematchProposed payload, ignoring")
		return
	}
	gameID := ev.GameID
	if gameID == 0 {
		gameID = ev.Rematch.GameID
	}
	if !c.matchesActive(gameID) {
		c.logger.Debug("rematchProposed for inactive room, ignoring", "game_id", gameID)
		return
	}

	// A terminal previous negotiation gives way to a fresh one.
	if c.status == StatusResolved || c.status == StatusCancelled {
		c.reset()
	}
	if c.status != StatusIdle {
		c.logger.Warn("duplicate rematchProposed, ignoring", "status", c.status.String())
		return
	}

	id := ev.Rematch.ID
	if id == "" {
		id = uuid.NewString()
	}

	p := &proposal{
		id:               id,
		originalGameID:   gameID,
		proposerPlayerID: ev.Rematch.ProposerPlayerID,
		responses:        make(map[int64]*Response, len(ev.Rematch.PlayersToNotify)),
	}
	for _, pl := range ev.Rematch.PlayersToNotify {
		p.order = append(p.order, pl.ID)
		r := &Response{}
		if pl.ID == p.proposerPlayerID && pl.ID != 0 {
			// Proposing implies accepting; some backend versions list the
			// proposer among the notified players anyway.
			r.Responded = true
			r.Accepted = true
		}
		p.responses[pl.ID] = r
	}

	c.mu.Lock()
	c.proposal = p
	c.mu.Unlock()

	if !c.transition(StatusAwaitingResponses) {
		return
	}

	if c.ident.IsHost(gameID) {
		c.emit(Event{Kind: EventWaiting, GameID: gameID})
	} else {
		c.emit(Event{Kind: EventPrompt, GameID: gameID})
	}
	c.logger.Info("rematch proposed",
		"game_id", gameID,
		"players", len(p.order),
	)
}

func (c *Coordinator) onResponse(ctx context.Context, raw json.RawMessage) {
	var ev model.RematchResponseEvent
	if !model.DecodeNotification(raw, &ev) {
		c.logger.Warn("malformed rematchResponse payload, ignoring")
		return
	}
	if !c.matchesActive(ev.GameID) {
		c.logger.Debug("rematchResponse for inactive room, ignoring", "game_id", ev.GameID)
		return
	}
	if c.proposal == nil {
		c.logger.Debug("rematchResponse with no proposal, ignoring", "player_id", ev.PlayerID)
		return
	}

	selfID, haveSelf := c.ident.CurrentPlayerID(ev.GameID)
	isSelf := haveSelf && ev.PlayerID == selfID

	// A piggybacked resolution on our own accepted response is a
	// server-derived result: navigate on it.
	if isSelf && ev.Accepted && ev.Result != nil && ev.Result.NewGameID != 0 && !c.ident.IsHost(ev.GameID) {
		c.resolve(ev.GameID, ev.Result.NewGameID)
		return
	}

	c.mu.Lock()
	r := c.proposal.responses[ev.PlayerID]
	already := r != nil && r.Responded
	if r != nil {
		r.Responded = true
		r.Accepted = ev.Accepted
	}
	c.mu.Unlock()

	if r == nil {
		c.logger.Warn("response from player outside proposal, ignoring", "player_id", ev.PlayerID)
		return
	}
	if isSelf && already {
		// Our own echo; the local mark already happened in doRespond.
		return
	}
	if !isSelf {
		c.emit(Event{
			Kind:     EventResponseRecorded,
			GameID:   ev.GameID,
			PlayerID: ev.PlayerID,
			Accepted: ev.Accepted,
		})
	}

	c.evaluate(ctx, ev.GameID)
}

// evaluate applies the host tally after every recorded response.
func (c *Coordinator) evaluate(ctx context.Context, gameID int64) {
	if c.status != StatusAwaitingResponses {
		return
	}

	p := c.proposal
	anyRejected := false
	allAccepted := len(p.order) > 0
	for _, id := range p.order {
		r := p.responses[id]
		if r.Responded && !r.Accepted {
			anyRejected = true
		}
		if !r.Responded || !r.Accepted {
			allAccepted = false
		}
	}

	switch {
	case anyRejected:
		c.rejectAndScheduleCancel(gameID)

	case allAccepted:
		if !c.transition(StatusAllAccepted) {
			return
		}
		c.logger.Info("all players accepted rematch", "game_id", gameID)
		if c.ident.IsHost(gameID) {
			c.createRematch(ctx, gameID, append([]int64(nil), p.order...))
		}

	default:
		// Still waiting on somebody.
	}
}

// createRematch materializes the new game off the actor goroutine. The
// resulting game id is NOT used to resolve locally; the server push is
// the single source of truth for navigation.
func (c *Coordinator) createRematch(ctx context.Context, gameID int64, players []int64) {
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()

		game, err := c.api.CreateRematch(cctx, gameID, players)
		fn := func() {
			if err != nil {
				c.logger.Warn("create rematch failed", "game_id", gameID, "error", err)
				c.emit(Event{Kind: EventError, GameID: gameID, Reason: err.Error()})
				return
			}
			c.logger.Info("rematch game created, awaiting server broadcast",
				"game_id", gameID,
				"new_game_id", game.ID,
			)
		}
		select {
		case c.cmds <- fn:
		case <-ctx.Done():
		}
	}()
}

func (c *Coordinator) onResolvedPush(raw json.RawMessage) {
	var ev model.RematchResolvedEvent
	if !model.DecodeNotification(raw, &ev) {
		c.logger.Warn("malformed resolution payload, ignoring")
		return
	}
	if !c.matchesActive(ev.GameID) {
		c.logger.Debug("resolution for inactive room, ignoring", "game_id", ev.GameID)
		return
	}
	if ev.NewGameID == 0 {
		c.logger.Warn("resolution without new game id, ignoring", "game_id", ev.GameID)
		return
	}
	if c.proposal == nil {
		// Missed the negotiation (reconnect gap); still navigate.
		c.emit(Event{Kind: EventNavigateGame, GameID: ev.GameID, NewGameID: ev.NewGameID})
		return
	}
	c.resolve(ev.GameID, ev.NewGameID)
}

func (c *Coordinator) onNewGameCreated(raw json.RawMessage) {
	var ev model.NewGameCreatedEvent
	if !model.DecodeNotification(raw, &ev) || ev.NewGame == nil || ev.NewGame.ID == 0 {
		return
	}
	if ev.GameID != 0 && !c.matchesActive(ev.GameID) {
		return
	}

	switch c.status {
	case StatusAwaitingResponses, StatusAllAccepted:
		// Mid-negotiation this broadcast is the resolution.
		gameID := int64(0)
		if c.proposal != nil {
			gameID = c.proposal.originalGameID
		}
		c.resolve(gameID, ev.NewGame.ID)
	case StatusIdle:
		c.emit(Event{Kind: EventNavigateGame, NewGameID: ev.NewGame.ID})
	default:
		// Terminal; the resolution already happened.
	}
}

func (c *Coordinator) onCancelled(raw json.RawMessage) {
	var ev model.RematchCancelledEvent
	if !model.DecodeNotification(raw, &ev) {
		c.logger.Warn("malformed rematchCancelled payload, ignoring")
		return
	}
	if ev.GameID != 0 && !c.matchesActive(ev.GameID) {
		return
	}
	c.forceCancel(ev.GameID, ev.Reason)
}

func (c *Coordinator) onGameEndedByLeave(raw json.RawMessage) {
	var ev model.GameNotification
	if !model.DecodeNotification(raw, &ev) {
		return
	}
	if ev.GameID != 0 && !c.matchesActive(ev.GameID) {
		return
	}
	c.emit(Event{Kind: EventGameEnded, GameID: ev.GameID, Reason: "a player left the game"})
	if c.status == StatusIdle {
		// No negotiation to cancel; still send the UI back to the lobby.
		c.emit(Event{Kind: EventNavigateLobby, GameID: ev.GameID})
		return
	}
	c.forceCancel(ev.GameID, "game ended by leave")
}

func (c *Coordinator) onGraceExpired() {
	c.graceC = nil
	if c.status != StatusRejected {
		return
	}
	gameID := int64(0)
	if c.proposal != nil {
		gameID = c.proposal.originalGameID
	}
	if c.transition(StatusCancelled) {
		c.emit(Event{Kind: EventCancelled, GameID: gameID, Reason: "rematch rejected"})
		c.emit(Event{Kind: EventNavigateLobby, GameID: gameID})
	}
}

// --- commands (actor goroutine only) ---

// startRespond validates on the actor, then issues the API call in its
// own goroutine and re-enters the actor with the outcome.
func (c *Coordinator) startRespond(ctx context.Context, accepted bool, errc chan<- error) {
	if c.proposal == nil || c.status != StatusAwaitingResponses {
		errc <- ErrNoActiveProposal
		return
	}
	gameID := c.proposal.originalGameID
	if c.ident.IsHost(gameID) {
		errc <- ErrHostCannotRespond
		return
	}
	playerID, ok := c.ident.CurrentPlayerID(gameID)
	if !ok {
		errc <- ErrUnknownPlayer
		return
	}

	go func() {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err := c.api.RespondToRematch(cctx, gameID, playerID, accepted)
		cancel()
		if err != nil {
			errc <- err
			return
		}
		fn := func() {
			c.finishRespond(gameID, playerID, accepted)
			errc <- nil
		}
		select {
		case c.cmds <- fn:
		case <-ctx.Done():
			// The call went through; the server echo carries the state.
			errc <- nil
		}
	}()
}

// finishRespond applies the local mark once the server accepted the call.
func (c *Coordinator) finishRespond(gameID, playerID int64, accepted bool) {
	if c.status != StatusAwaitingResponses || c.proposal == nil || c.proposal.originalGameID != gameID {
		// A cancellation or resolution landed while the call was in
		// flight; the terminal state wins.
		return
	}

	c.mu.Lock()
	if r := c.proposal.responses[playerID]; r != nil {
		r.Responded = true
		r.Accepted = accepted
	}
	c.mu.Unlock()

	if accepted {
		c.emit(Event{Kind: EventWaiting, GameID: gameID})
	} else {
		c.rejectAndScheduleCancel(gameID)
	}
}

// --- state helpers (actor goroutine only) ---

func (c *Coordinator) rejectAndScheduleCancel(gameID int64) {
	if !c.transition(StatusRejected) {
		return
	}
	c.emit(Event{Kind: EventRejected, GameID: gameID})
	c.graceC = time.After(c.cfg.GracePeriod)
}

func (c *Coordinator) resolve(gameID, newGameID int64) {
	if c.status == StatusAwaitingResponses {
		if !c.transition(StatusAllAccepted) {
			return
		}
	}
	if !c.transition(StatusResolved) {
		return
	}
	c.graceC = nil

	c.mu.Lock()
	if c.proposal != nil {
		c.proposal.resultingGameID = newGameID
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventResolved, GameID: gameID, NewGameID: newGameID})
	c.emit(Event{Kind: EventNavigateGame, GameID: gameID, NewGameID: newGameID})
	c.logger.Info("rematch resolved", "game_id", gameID, "new_game_id", newGameID)
}

// forceCancel is the one transition allowed to jump the table: a server
// cancellation overrides any non-terminal state.
func (c *Coordinator) forceCancel(gameID int64, reason string) {
	switch c.status {
	case StatusIdle, StatusResolved, StatusCancelled:
		return
	}
	c.graceC = nil
	c.setStatus(StatusCancelled)
	c.emit(Event{Kind: EventCancelled, GameID: gameID, Reason: reason})
	c.emit(Event{Kind: EventNavigateLobby, GameID: gameID})
	c.logger.Info("rematch cancelled", "game_id", gameID, "reason", reason)
}

func (c *Coordinator) reset() {
	c.graceC = nil
	c.mu.Lock()
	c.status = StatusIdle
	c.proposal = nil
	c.mu.Unlock()
}

func (c *Coordinator) transition(to Status) bool {
	if !canTransition(c.status, to) {
		c.logger.Warn("invalid rematch transition, ignoring",
			"from", c.status.String(),
			"to", to.String(),
		)
		return false
	}
	c.setStatus(to)
	return true
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Coordinator) matchesActive(gameID int64) bool {
	id, ok := c.rooms.ActiveGame()
	return ok && id == gameID
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.out <- ev:
	default:
		c.logger.Warn("event buffer full, dropping", "kind", ev.Kind.String())
	}
}
