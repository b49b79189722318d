// Package bus implements a mediated publish/subscribe broker. A single
// control goroutine owns the topic map and processes subscribe, publish, and
// cancel requests one at a time, so the map itself never needs a lock. Every
// subscriber of a topic receives every value published to it.
package bus

import (
	"errors"
	"sync"
)

const (
	// requestQueueSize bounds the control loop's inbound request queue.
	requestQueueSize = 100
	// subscriberBuffer is the per-subscription delivery buffer.
	subscriberBuffer = 100
)

var (
	// ErrNoSubscriber is returned by Publish when the topic has no live
	// subscribers at the moment of publish.
	ErrNoSubscriber = errors.New("bus: no subscriber for topic")
	// ErrBusTerminated is returned when the control loop has stopped or its
	// request queue cannot accept new work. Callers cannot recover from it
	// short of building a new bus.
	ErrBusTerminated = errors.New("bus: terminated")
)

type publishReq[T any] struct {
	key   string
	val   T
	reply chan error
}

type subscribeReq[T any] struct {
	key   string
	reply chan *Subscription[T]
}

type cancelReq[T any] struct {
	sub *Subscription[T]
}

// Bus routes published values to topic subscribers. The zero value is not
// usable; construct with New.
type Bus[T any] struct {
	requests  chan any
	done      chan struct{}
	closeOnce sync.Once
}

// Subscription is one receiving handle bound to a topic. Values arrive on C
// in publish order relative to other publishes on the same topic.
type Subscription[T any] struct {
	key        string
	ch         chan T
	bus        *Bus[T]
	cancelOnce sync.Once
}

// C returns the receive channel. It is closed when the subscription is
// cancelled or the bus shuts down.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Topic returns the topic key this subscription is bound to.
func (s *Subscription[T]) Topic() string {
	return s.key
}

// Cancel detaches the subscription from its topic and closes C. Safe to call
// more than once and after bus shutdown.
func (s *Subscription[T]) Cancel() {
	s.cancelOnce.Do(func() {
		select {
		case s.bus.requests <- cancelReq[T]{sub: s}:
		case <-s.bus.done:
			// The control loop closes every live channel on shutdown.
		}
	})
}

// New creates a bus and starts its control goroutine.
func New[T any]() *Bus[T] {
	b := &Bus[T]{
		requests: make(chan any, requestQueueSize),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish delivers val to every current subscriber of key, then reports the
// outcome. A full or slow subscriber buffer does not block other topics or
// other subscribers; the lagging subscriber misses that value.
func (b *Bus[T]) Publish(key string, val T) error {
	reply := make(chan error, 1)
	req := publishReq[T]{key: key, val: val, reply: reply}

	select {
	case <-b.done:
		return ErrBusTerminated
	case b.requests <- req:
	default:
		return ErrBusTerminated
	}

	select {
	case err := <-reply:
		return err
	case <-b.done:
		return ErrBusTerminated
	}
}

// Subscribe binds a new receiving handle to key, creating the topic if it
// does not exist yet.
func (b *Bus[T]) Subscribe(key string) (*Subscription[T], error) {
	reply := make(chan *Subscription[T], 1)
	req := subscribeReq[T]{key: key, reply: reply}

	select {
	case <-b.done:
		return nil, ErrBusTerminated
	case b.requests <- req:
	default:
		return nil, ErrBusTerminated
	}

	select {
	case sub := <-reply:
		return sub, nil
	case <-b.done:
		return nil, ErrBusTerminated
	}
}

// Close stops the control loop and closes every live subscription channel.
// Pending and subsequent operations fail with ErrBusTerminated.
func (b *Bus[T]) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// run is the control loop; it is the only goroutine that ever touches the
// topic map.
func (b *Bus[T]) run() {
	topics := make(map[string][]*Subscription[T])

	defer func() {
		for _, subs := range topics {
			for _, sub := range subs {
				close(sub.ch)
			}
		}
	}()

	for {
		select {
		case <-b.done:
			return

		case req := <-b.requests:
			switch req := req.(type) {
			case publishReq[T]:
				req.reply <- fanOut(topics[req.key], req.val)

			case subscribeReq[T]:
				sub := &Subscription[T]{
					key: req.key,
					ch:  make(chan T, subscriberBuffer),
					bus: b,
				}
				topics[req.key] = append(topics[req.key], sub)
				req.reply <- sub

			case cancelReq[T]:
				topics[req.sub.key] = detach(topics[req.sub.key], req.sub)
				if len(topics[req.sub.key]) == 0 {
					delete(topics, req.sub.key)
				}
				close(req.sub.ch)
			}
		}
	}
}

func fanOut[T any](subs []*Subscription[T], val T) error {
	if len(subs) == 0 {
		return ErrNoSubscriber
	}
	for _, sub := range subs {
		select {
		case sub.ch <- val:
		default:
			// Lagging subscriber; skip rather than stall the control loop.
		}
	}
	return nil
}

func detach[T any](subs []*Subscription[T], target *Subscription[T]) []*Subscription[T] {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
