// Package registry maps connected user ids to their live outbound mailboxes.
package registry

import (
	"errors"
	"sync"

	"github.com/qumn/echat/internal/store"
)

var (
	// ErrMailboxFull is returned by Put when the mailbox is at capacity.
	// Delivery failure is explicit; a message is never dropped silently.
	ErrMailboxFull = errors.New("registry: mailbox full")
	// ErrMailboxClosed is returned by Put after Close.
	ErrMailboxClosed = errors.New("registry: mailbox closed")
)

// DefaultMailboxCapacity bounds in-flight messages per connection.
const DefaultMailboxCapacity = 100

// Mailbox is a bounded queue of messages awaiting delivery to one
// connection's outbound pump. Any goroutine may Put; exactly one consumer
// drains C.
type Mailbox struct {
	mu     sync.RWMutex
	ch     chan store.Message
	closed bool
}

// NewMailbox creates a mailbox holding at most capacity in-flight messages.
// A non-positive capacity falls back to DefaultMailboxCapacity.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{ch: make(chan store.Message, capacity)}
}

// Put enqueues msg for the consumer. It never blocks: a full mailbox yields
// ErrMailboxFull and a closed one ErrMailboxClosed.
func (m *Mailbox) Put(msg store.Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrMailboxClosed
	}
	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// C returns the consumer side. The channel is closed by Close after any
// already-enqueued messages have been made available.
func (m *Mailbox) C() <-chan store.Message {
	return m.ch
}

// Close marks the mailbox closed and closes the consumer channel. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}
