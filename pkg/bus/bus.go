package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

// MessageBus routes inbound platform messages to per-channel subscribers.
// Each conversation owns exactly one channel, so channel ID statically
// partitions traffic; messages for channels nobody watches are dropped.
type MessageBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Inbound
	done        chan struct{}
	closed      atomic.Bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		subscribers: make(map[string]chan Inbound),
		done:        make(chan struct{}),
	}
}

// Publish delivers msg to the subscriber watching its channel, if any.
func (mb *MessageBus) Publish(ctx context.Context, msg Inbound) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}

	mb.mu.RLock()
	ch, ok := mb.subscribers[msg.ChannelID]
	mb.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case ch <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers interest in one channel's messages. The returned cancel
// func must be called when the conversation concludes.
func (mb *MessageBus) Subscribe(channelID string) (<-chan Inbound, func()) {
	ch := make(chan Inbound, 100)

	mb.mu.Lock()
	mb.subscribers[channelID] = ch
	mb.mu.Unlock()

	cancel := func() {
		mb.mu.Lock()
		if mb.subscribers[channelID] == ch {
			delete(mb.subscribers, channelID)
		}
		mb.mu.Unlock()
	}
	return ch, cancel
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
