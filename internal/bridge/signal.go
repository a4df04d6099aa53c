// Package bridge keeps cart surfaces consistent after a cart mutation
// without sharing state between them.
package bridge

import "sync"

// EventCartChanged names the cart signal on the wire.
const EventCartChanged = "cart:changed"

// Signal is a zero-payload broadcast. Listeners get at most one pending
// notification; events are not buffered for listeners that subscribe later.
type Signal struct {
	mu       sync.Mutex
	next     uint64
	subs     map[uint64]chan struct{}
	forwards []func()
}

// Default is the process-wide cart:changed signal.
var Default = NewSignal()

func NewSignal() *Signal {
	return &Signal{subs: make(map[uint64]chan struct{})}
}

// Subscribe registers a listener. The returned func unsubscribes it and is
// safe to call more than once.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Broadcast notifies every listener and every forwarder. It never blocks.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	forwards := append([]func(){}, s.forwards...)
	s.mu.Unlock()
	s.Deliver()
	for _, fn := range forwards {
		fn()
	}
}

// Deliver notifies local listeners only. Used for events that arrived from
// another process.
func (s *Signal) Deliver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Forward registers fn to run on every local Broadcast. fn must not block.
func (s *Signal) Forward(fn func()) {
	s.mu.Lock()
	s.forwards = append(s.forwards, fn)
	s.mu.Unlock()
}

func (s *Signal) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
