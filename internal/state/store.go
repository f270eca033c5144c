package state

import (
	"sync"

	"github.com/itray25/neogen/internal/proto"
)

// Store holds the single mutable client state snapshot and fans out changes.
//
// Two subscriber populations exist: state subscribers see coalesced full-state
// snapshots, message subscribers see every decoded wire message as a discrete
// event even when it changes no stored field. All mutation funnels through
// Apply; the engine loop is the only writer, and the mutex exists so that
// subscribers on other goroutines can read safely.
type Store struct {
	mu      sync.Mutex
	state   State
	nextSub int
	subs    map[int]func(State)
	msgSubs map[int]func(proto.Message)
}

// NewStore builds an empty store in the Disconnected state.
func NewStore() *Store {
	return &Store{
		state: State{
			Status:        Disconnected,
			CurrentRoomID: GlobalChannel,
			Groups:        make(map[string][]Group),
			OwnGroup:      make(map[string]int),
			Channels:      make(map[string][]ChatEntry),
		},
		subs:    make(map[int]func(State)),
		msgSubs: make(map[int]func(proto.Message)),
	}
}

// Subscribe registers fn, fires it once immediately with the current state,
// then again after every mutation. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	snapshot := s.state.clone()
	s.mu.Unlock()

	fn(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SubscribeMessages registers fn for raw decoded wire messages. The returned
// func unsubscribes.
func (s *Store) SubscribeMessages(fn func(proto.Message)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.msgSubs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.msgSubs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Apply runs mutate against the state and synchronously notifies every state
// subscriber with the resulting snapshot. No batching: updates are already
// rate-limited upstream by wire arrival and the drain cadence.
func (s *Store) Apply(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state.clone()
	listeners := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Publish delivers a decoded wire message to every message subscriber.
func (s *Store) Publish(msg proto.Message) {
	s.mu.Lock()
	listeners := make([]func(proto.Message), 0, len(s.msgSubs))
	for _, fn := range s.msgSubs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}
