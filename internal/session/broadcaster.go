package session

import (
	"sync"
	"time"

	"tabsync/pkg/models"
)

// CursorBroadcaster fans the derived playback cursor out to subscribers (the
// WebSocket feed, primarily). State is recomputed by the player session on
// every position update; the broadcaster only distributes it.
type CursorBroadcaster struct {
	mu        sync.RWMutex
	state     models.CursorState
	listeners []chan models.CursorState
}

// NewCursorBroadcaster creates an empty broadcaster.
func NewCursorBroadcaster() *CursorBroadcaster {
	return &CursorBroadcaster{
		listeners: make([]chan models.CursorState, 0),
	}
}

// State returns a copy of the last published cursor state.
func (cb *CursorBroadcaster) State() models.CursorState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Publish stores the new cursor state and notifies all subscribers.
func (cb *CursorBroadcaster) Publish(state models.CursorState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state.UpdatedAt = time.Now()
	cb.state = state
	cb.notifyListeners()
}

// Subscribe adds a listener for cursor updates.
func (cb *CursorBroadcaster) Subscribe() <-chan models.CursorState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ch := make(chan models.CursorState, 16) // buffered so a slow reader can't stall playback
	cb.listeners = append(cb.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (cb *CursorBroadcaster) Unsubscribe(ch <-chan models.CursorState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for i, listener := range cb.listeners {
		if listener == ch {
			close(listener)
			cb.listeners = append(cb.listeners[:i], cb.listeners[i+1:]...)
			break
		}
	}
}

// notifyListeners sends the current state to every subscriber, dropping any
// whose buffer is full (must be called with the lock held).
func (cb *CursorBroadcaster) notifyListeners() {
	kept := cb.listeners[:0]
	for _, listener := range cb.listeners {
		select {
		case listener <- cb.state:
			kept = append(kept, listener)
		default:
			close(listener)
		}
	}
	cb.listeners = kept
}
