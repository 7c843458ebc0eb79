package rematch

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNoActiveProposal  = errors.New("no active rematch proposal")
	ErrNotHost           = errors.New("only the host can do that")
	ErrHostCannotRespond = errors.New("the host does not respond to its own proposal")
	ErrUnknownPlayer     = errors.New("cannot resolve own player id")
)

// Status is the negotiation state. Transitions only move forward; the
// only way back to Idle is resolution, cancellation, or leaving the room.
type Status int

const (
	StatusIdle Status = iota
	StatusAwaitingResponses
	StatusAllAccepted
	StatusRejected
	StatusResolved
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAwaitingResponses:
		return "awaiting_responses"
	case StatusAllAccepted:
		return "all_accepted"
	case StatusRejected:
		return "rejected"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// validNext encodes the forward-only transition table.
var validNext = map[Status][]Status{
	StatusIdle:              {StatusAwaitingResponses},
	StatusAwaitingResponses: {StatusAllAccepted, StatusRejected, StatusCancelled},
	StatusAllAccepted:       {StatusResolved, StatusCancelled},
	StatusRejected:          {StatusCancelled},
}

func canTransition(from, to Status) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventKind classifies coordinator events for the UI layer.
type EventKind int

const (
	// EventPrompt asks a non-host player to accept or reject.
	EventPrompt EventKind = iota

	// EventWaiting means this client is waiting for other responses.
	EventWaiting

	// EventResponseRecorded reports another player's response.
	EventResponseRecorded

	// EventRejected means someone declined; cancellation follows after a
	// short grace period so the notice can display.
	EventRejected

	// EventCancelled ends the negotiation without a new game.
	EventCancelled

	// EventResolved carries the new game id; the sole navigation trigger.
	EventResolved

	// EventNavigateLobby tells the UI to return to the lobby.
	EventNavigateLobby

	// EventNavigateGame tells the UI to open NewGameID.
	EventNavigateGame

	// EventGameEnded reports that the game ended because a player left.
	EventGameEnded

	// EventError reports a non-fatal API failure during the negotiation.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPrompt:
		return "prompt"
	case EventWaiting:
		return "waiting"
	case EventResponseRecorded:
		return "response_recorded"
	case EventRejected:
		return "rejected"
	case EventCancelled:
		return "cancelled"
	case EventResolved:
		return "resolved"
	case EventNavigateLobby:
		return "navigate_lobby"
	case EventNavigateGame:
		return "navigate_game"
	case EventGameEnded:
		return "game_ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one coordinator output for the UI layer.
type Event struct {
	Kind      EventKind
	GameID    int64
	NewGameID int64
	PlayerID  int64
	Accepted  bool
	Reason    string
}

// Response is one player's recorded answer.
type Response struct {
	Responded bool
	Accepted  bool
}

// ProposalView is a read-only snapshot of the active proposal.
type ProposalView struct {
	ID               string
	OriginalGameID   int64
	ProposerPlayerID int64
	Players          []int64
	Responses        map[int64]Response
	ResultingGameID  int64
}

// Config holds coordinator settings.
type Config struct {
	// GracePeriod is how long a rejection notice displays before the
	// forced transition to Cancelled.
	GracePeriod time.Duration

	// CallTimeout bounds API calls made from inside the negotiation.
	CallTimeout time.Duration

	// EventBufferSize is the capacity of the UI event stream.
	EventBufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:     3 * time.Second,
		CallTimeout:     10 * time.Second,
		EventBufferSize: 32,
	}
}
