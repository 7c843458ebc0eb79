// Package events implements the pub/sub broker that shares one transport
// listener among any number of consumers of the same named event.
//
// The broker:
//   - Demultiplexes the manager's frame stream by event name
//   - Reference-counts subscriptions per event
//   - Preserves arrival order within one event name
//   - Blocks new subscriptions until the connection is up
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/davidrmz/chisme-client/internal/transport"
)

// FrameSource is the slice of the connection manager the broker needs.
type FrameSource interface {
	Frames() <-chan transport.Frame
	StateChanges() (<-chan transport.State, func())
}

// Stream is one consumer's handle on a named event. Close releases it;
// releasing the last handle for an event drops the event's channel entry.
type Stream interface {
	// C delivers payloads in transport arrival order.
	C() <-chan json.RawMessage

	// Close releases the subscription. Idempotent.
	Close()
}

// Stats describes the broker's channel registry.
type Stats struct {
	Events      int            // distinct event names with live subscribers
	Subscribers map[string]int // per-event reference counts
	Armed       bool           // true while the connection is up
}

// Broker fans server-pushed events out to subscribers.
type Broker struct {
	src    FrameSource
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]*channel
	armed    bool
	closed   bool

	bufSize int
}

type channel struct {
	subs   map[int]*subscription
	nextID int
}

type subscription struct {
	b     *Broker
	event string
	id    int
	ch    chan json.RawMessage
	once  sync.Once
}

func (s *subscription) C() <-chan json.RawMessage { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.b.release(s.event, s.id)
	})
}

// NewBroker creates a broker reading frames from src.
func NewBroker(src FrameSource, bufSize int, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Broker{
		src:      src,
		logger:   logger,
		channels: make(map[string]*channel),
		bufSize:  bufSize,
	}
}

// Run dispatches frames until ctx is done. Must be running for streams to
// receive anything.
func (b *Broker) Run(ctx context.Context) error {
	states, cancel := b.src.StateChanges()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()

		case st, ok := <-states:
			if !ok {
				b.shutdown()
				return nil
			}
			b.mu.Lock()
			b.armed = st == transport.StateConnected
			b.mu.Unlock()

		case f, ok := <-b.src.Frames():
			if !ok {
				b.shutdown()
				return nil
			}
			b.dispatch(f)
		}
	}
}

// Subscribe registers interest in a named event. If the connection is
// down it waits until it comes up rather than erroring, so callers never
// have to sequence subscribe-after-connect themselves.
func (b *Broker) Subscribe(ctx context.Context, event string) (Stream, error) {
	if err := b.waitConnected(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, context.Canceled
	}

	c := b.channels[event]
	if c == nil {
		c = &channel{subs: make(map[int]*subscription)}
		b.channels[event] = c
		b.logger.Debug("event channel created", "event", event)
	}

	sub := &subscription{
		b:     b,
		event: event,
		id:    c.nextID,
		ch:    make(chan json.RawMessage, b.bufSize),
	}
	c.nextID++
	c.subs[sub.id] = sub
	return sub, nil
}

// Stats returns the current registry shape.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Events:      len(b.channels),
		Subscribers: make(map[string]int, len(b.channels)),
		Armed:       b.armed,
	}
	for name, c := range b.channels {
		s.Subscribers[name] = len(c.subs)
	}
	return s
}

func (b *Broker) waitConnected(ctx context.Context) error {
	states, cancel := b.src.StateChanges()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				return context.Canceled
			}
			if st == transport.StateConnected {
				return nil
			}
		}
	}
}

func (b *Broker) dispatch(f transport.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.channels[f.Event]
	if c == nil {
		return
	}
	for _, sub := range c.subs {
		select {
		case sub.ch <- f.Data:
		default:
			b.logger.Warn("subscriber lagging, dropping payload", "event", f.Event)
		}
	}
}

func (b *Broker) release(event string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.channels[event]
	if c == nil {
		return
	}
	sub, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)
	close(sub.ch)
	if len(c.subs) == 0 {
		delete(b.channels, event)
		b.logger.Debug("event channel destroyed", "event", event)
	}
}

func (b *Broker) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, c := range b.channels {
		for id, sub := range c.subs {
			delete(c.subs, id)
			close(sub.ch)
		}
		delete(b.channels, name)
	}
}
