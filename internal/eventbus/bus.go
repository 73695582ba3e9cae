package eventbus

import "sync"

// Bus is a type-safe publish/subscribe bus for events of type T.
// Publish blocks when a subscriber's buffer is full, so no event is
// ever dropped; subscribers are expected to drain promptly.
type Bus[T any] struct {
	mu     sync.RWMutex
	buf    int
	subs   []chan T
	closed bool
}

// New creates a Bus whose subscriber channels hold buf pending events.
func New[T any](buf int) *Bus[T] {
	if buf <= 0 {
		buf = 16
	}
	return &Bus[T]{buf: buf}
}

// Publish delivers the event to every subscriber.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		ch <- e
	}
}

// Subscribe registers a subscriber and returns its channel. The channel
// is closed on Unsubscribe or Close.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buf)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
