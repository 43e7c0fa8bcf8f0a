package session

import (
	"sync"
	"time"
)

// Store is the single writer-guarded holder of a session's State.
// Every change goes through Reduce. The generation counter increases on
// Reset so async flows started for an older session can detect that their
// results are stale.
type Store struct {
	mu         sync.RWMutex
	state      State
	generation uint64
	listeners  map[int]func(State)
	nextID     int
	seedFn     func() int64
}

// NewStore creates a store for a fresh session
func NewStore(userID, sessionDate string) *Store {
	return &Store{
		state:     NewState(userID, sessionDate),
		listeners: make(map[int]func(State)),
		seedFn:    func() int64 { return time.Now().UnixNano() },
	}
}

// State returns the current snapshot
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Generation returns the current session token
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Dispatch applies actions in order and notifies subscribers once
func (s *Store) Dispatch(actions ...Action) {
	s.mu.Lock()
	for _, a := range actions {
		s.state = Reduce(s.state, a)
	}
	snapshot := s.state
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, snapshot)
}

// DispatchFor applies actions only while generation is still current.
// It returns false and changes nothing when the session has been reset.
func (s *Store) DispatchFor(generation uint64, actions ...Action) bool {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return false
	}
	for _, a := range actions {
		s.state = Reduce(s.state, a)
	}
	snapshot := s.state
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// Reset starts a new session and returns its generation
func (s *Store) Reset(sessionDate string) uint64 {
	s.mu.Lock()
	s.state = Reduce(s.state, Reset{SessionDate: sessionDate})
	s.generation++
	gen := s.generation
	snapshot := s.state
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, snapshot)
	return gen
}

// ToggleFreeze pins or unpins a product against reshuffles
func (s *Store) ToggleFreeze(productID string) {
	s.Dispatch(ToggleFreeze{ProductID: productID})
}

// Reshuffle randomizes every unfrozen row
func (s *Store) Reshuffle() {
	s.Dispatch(ReshuffleUnfrozen{Seed: s.seedFn()})
}

// Subscribe registers fn to receive every new snapshot. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshotListeners() []func(State) {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(State), snapshot State) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
