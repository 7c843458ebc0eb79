package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CredentialSource supplies the bearer token used to authenticate the
// websocket handshake. A missing token means "unauthenticated": Connect
// makes no attempt and the state stays Disconnected.
type CredentialSource interface {
	Token() (string, bool)
}

// Manager owns the connection lifecycle: authenticate, connect, detect
// drops, reconnect with bounded backoff, and broadcast state changes.
type Manager struct {
	cfg    ManagerConfig
	creds  CredentialSource
	logger *slog.Logger
	dial   ClientFactory

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	client Client
	gen    int // connection generation; stale read loops bail out

	watchMu   sync.Mutex
	watchers  map[int]chan State
	nextWatch int

	pendingMu sync.Mutex
	pending   map[int64]chan Frame
	cmdID     atomic.Int64

	frames chan Frame
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientFactory overrides how sessions are built (used by tests).
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) { m.dial = f }
}

// NewManager creates a connection manager.
func NewManager(cfg ManagerConfig, creds CredentialSource, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		creds:    creds,
		logger:   logger,
		dial:     NewClient,
		watchers: make(map[int]chan State),
		pending:  make(map[int64]chan Frame),
		frames:   make(chan Frame, cfg.FrameBufferSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start binds the manager lifecycle to ctx. It does not connect.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	return nil
}

// Stop tears everything down and waits for goroutines.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.Disconnect()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	close(m.frames)
	m.logger.Info("connection manager stopped")
	return nil
}

// Connect establishes a session. Already connected or connecting is a
// no-op. Without credentials it returns ErrNoCredentials and makes no
// attempt; that is not an error state, just "unauthenticated".
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if _, ok := m.creds.Token(); !ok {
		m.mu.Unlock()
		return ErrNoCredentials
	}
	m.state = StateConnecting
	gen := m.gen
	m.mu.Unlock()
	m.broadcast(StateConnecting)

	m.wg.Add(1)
	go m.connectLoop(gen)
	return nil
}

// Disconnect tears down the session unconditionally. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	c := m.client
	m.client = nil
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
	m.failPending()
	if changed {
		m.broadcast(StateDisconnected)
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StateChanges returns a channel primed with the current state that then
// receives every change, plus a cancel func releasing the watcher.
func (m *Manager) StateChanges() (<-chan State, func()) {
	ch := make(chan State, 8)

	m.watchMu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	ch <- m.State()
	m.watchMu.Unlock()

	cancel := func() {
		m.watchMu.Lock()
		if c, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(c)
		}
		m.watchMu.Unlock()
	}
	return ch, cancel
}

// Frames returns the stream of server-pushed frames (acks excluded).
func (m *Manager) Frames() <-chan Frame {
	return m.frames
}

// Emit sends a fire-and-forget frame.
func (m *Manager) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return m.send(Frame{Event: event, Data: data})
}

// Command sends a frame with a correlation id and waits for the server ack.
func (m *Manager) Command(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	id := m.cmdID.Add(1)
	respCh := make(chan Frame, 1)

	m.pendingMu.Lock()
	m.pending[id] = respCh
	m.pendingMu.Unlock()

	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	}()

	if err := m.send(Frame{Event: event, ID: id, Data: data}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.CommandTimeout):
		return ErrTimeout
	case f, ok := <-respCh:
		if !ok {
			return ErrNotConnected
		}
		var ack ackPayload
		if len(f.Data) > 0 {
			json.Unmarshal(f.Data, &ack)
		}
		if ack.Error != "" {
			return fmt.Errorf("server rejected %s: %s", event, ack.Error)
		}
		return nil
	}
}

func (m *Manager) send(f Frame) error {
	m.mu.Lock()
	c := m.client
	connected := m.state == StateConnected
	m.mu.Unlock()

	if c == nil || !connected {
		return ErrNotConnected
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.Send(data)
}

// connectLoop runs the bounded-attempt backoff policy for one
// generation. A Disconnect (or a competing loop) bumps the generation
// and this loop stops cold instead of resurrecting the session. After
// exhausting the budget the manager stays Disconnected until Connect is
// called again.
func (m *Manager) connectLoop(gen int) {
	defer m.wg.Done()

	wait := m.cfg.ReconnectBase
	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-m.ctx.Done():
				m.setStateIfCurrent(gen, StateDisconnected)
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > m.cfg.ReconnectMax {
				wait = m.cfg.ReconnectMax
			}
		}
		if m.stale(gen) {
			return
		}

		err := m.dialOnce(gen)
		if err == nil || errors.Is(err, errSuperseded) {
			return
		}
		if errors.Is(err, ErrNoCredentials) {
			m.logger.Warn("credentials gone, not retrying")
			m.setStateIfCurrent(gen, StateDisconnected)
			return
		}
		m.logger.Warn("connect attempt failed",
			"attempt", attempt,
			"max", m.cfg.ReconnectAttempts,
			"error", err,
		)
	}

	m.logger.Warn("connect attempts exhausted", "attempts", m.cfg.ReconnectAttempts)
	m.setStateIfCurrent(gen, StateDisconnected)
}

func (m *Manager) dialOnce(gen int) error {
	tok, ok := m.creds.Token()
	if !ok {
		return ErrNoCredentials
	}

	ccfg := m.cfg.Client
	ccfg.URL = m.cfg.URL
	ccfg.Token = tok

	c := m.dial(ccfg, m.logger)
	if err := c.Connect(m.ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		// Torn down or superseded while the dial was in flight; the
		// session must not come back up.
		m.mu.Unlock()
		c.Close()
		return errSuperseded
	}
	m.gen++
	newGen := m.gen
	m.client = c
	m.state = StateConnected
	m.mu.Unlock()
	m.broadcast(StateConnected)

	m.wg.Add(1)
	go m.readLoop(c, newGen)

	m.logger.Info("connected", "url", m.cfg.URL)
	return nil
}

// stale reports whether gen has been superseded.
func (m *Manager) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

func (m *Manager) readLoop(c Client, gen int) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-c.Errors():
			m.logger.Warn("connection error", "error", err)
			m.handleDrop(gen)
			return

		case data, ok := <-c.Messages():
			if !ok {
				m.handleDrop(gen)
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				m.logger.Warn("malformed frame, skipping", "error", err)
				continue
			}
			if f.Event == ackEvent && f.ID != 0 {
				m.routeAck(f)
				continue
			}
			select {
			case m.frames <- f:
			case <-m.ctx.Done():
				return
			default:
				m.logger.Warn("frame buffer full, dropping", "event", f.Event)
			}
		}
	}
}

// handleDrop reacts to an abrupt disconnect: invalidate the session, fail
// pending commands, then retry with the bounded backoff policy.
func (m *Manager) handleDrop(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer session already superseded this one.
		m.mu.Unlock()
		return
	}
	m.gen++
	newGen := m.gen
	c := m.client
	m.client = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
	m.failPending()
	m.broadcast(StateDisconnected)

	select {
	case <-m.ctx.Done():
		return
	default:
	}

	m.mu.Lock()
	if newGen != m.gen {
		// Disconnect landed between the drop and the retry; stay down.
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()
	m.broadcast(StateConnecting)

	m.wg.Add(1)
	go m.connectLoop(newGen)
}

func (m *Manager) routeAck(f Frame) {
	m.pendingMu.Lock()
	ch, ok := m.pending[f.ID]
	if ok {
		delete(m.pending, f.ID)
	}
	m.pendingMu.Unlock()

	if ok {
		select {
		case ch <- f:
		default:
		}
	}
}

func (m *Manager) failPending() {
	m.pendingMu.Lock()
	for id, ch := range m.pending {
		delete(m.pending, id)
		close(ch)
	}
	m.pendingMu.Unlock()
}

// setStateIfCurrent applies a state change only when gen has not been
// superseded, so a stale connect loop cannot stomp a newer session.
func (m *Manager) setStateIfCurrent(gen int, s State) {
	m.mu.Lock()
	if gen != m.gen || m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.broadcast(s)
}

func (m *Manager) broadcast(s State) {
	m.watchMu.Lock()
	for _, ch := range m.watchers {
		select {
		case ch <- s:
		default:
			m.logger.Debug("state watcher lagging, dropping update", "state", s.String())
		}
	}
	m.watchMu.Unlock()
}
