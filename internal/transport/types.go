package transport

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStale         = errors.New("connection stale (no ping)")
	ErrTimeout       = errors.New("command timeout")
	ErrAlreadyClosed = errors.New("already closed")
	ErrNoCredentials = errors.New("no credentials available")

	// errSuperseded aborts a connect loop whose generation was
	// invalidated by Disconnect or a newer session.
	errSuperseded = errors.New("connection attempt superseded")
)

// State is the process-wide connection state. Transitions are driven only
// by the Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Frame is one named message on the wire, in either direction. Commands
// carry a non-zero ID; the server echoes it back on the matching ack.
type Frame struct {
	Event string          `json:"event"`
	ID    int64           `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ackEvent is the event name the server uses for command acknowledgments.
const ackEvent = "ack"

// ackPayload is the body of an ack frame.
type ackPayload struct {
	Error string `json:"error,omitempty"`
}

// ClientConfig configures a single websocket session.
type ClientConfig struct {
	URL              string        // ws:// or wss:// endpoint
	Token            string        // bearer token for the dial handshake
	HandshakeTimeout time.Duration // dial deadline
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max silence before the session is stale
	WriteTimeout     time.Duration // write deadline for sends
	BufferSize       int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	URL               string        // websocket endpoint
	CommandTimeout    time.Duration // ack wait for join/leave commands
	ReconnectAttempts int           // bounded retry budget after a drop
	ReconnectBase     time.Duration // first retry delay, doubled per attempt
	ReconnectMax      time.Duration // backoff cap
	FrameBufferSize   int           // buffer for the demultiplexed frame output
	Client            ClientConfig  // per-session settings
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CommandTimeout:    10 * time.Second,
		ReconnectAttempts: 3,
		ReconnectBase:     time.Second,
		ReconnectMax:      30 * time.Second,
		FrameBufferSize:   1024,
		Client:            DefaultClientConfig(),
	}
}
