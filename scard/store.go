package scard

import "sync"

// readerEntry is the monitor's record of one reader. flags never carries
// StateChanged; atr is owned by the entry.
type readerEntry struct {
	name  string
	flags StateFlag
	atr   []byte
}

// stateStore tracks the readers the monitor is aware of, keyed by name.
// Entries keep their enumeration order so wait sets and event batches come
// out stable. Keying by name instead of wait-set position keeps events
// attributed to the right reader when the set changes between building a
// query and reading its results.
type stateStore struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*readerEntry
}

func newStateStore() *stateStore {
	return &stateStore{entries: make(map[string]*readerEntry)}
}

// syncNames reconciles membership against a fresh enumeration. Surviving
// entries keep their flags and ATR untouched, new names start unaware, and
// names that disappeared are dropped. Both deltas come back in enumeration
// order.
func (s *stateStore) syncNames(names []string) (added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range s.order {
		if !seen[n] {
			removed = append(removed, n)
			delete(s.entries, n)
		}
	}

	order := make([]string, 0, len(names))
	placed := make(map[string]bool, len(names))
	for _, n := range names {
		if placed[n] {
			continue
		}
		placed[n] = true
		if _, ok := s.entries[n]; !ok {
			s.entries[n] = &readerEntry{name: n, flags: StateUnaware}
			added = append(added, n)
		}
		order = append(order, n)
	}
	s.order = order
	return added, removed
}

// update stores the reported flags (with the changed bit cleared, it has no
// business persisting) and a private copy of the ATR. Names the store does
// not know are ignored; a dropped reader is not resurrected by a late
// result.
func (s *stateStore) update(name string, flags StateFlag, atr []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return
	}
	e.flags = flags &^ StateChanged
	e.atr = cloneBytes(atr)
}

func (s *stateStore) get(name string) (readerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return readerEntry{}, false
	}
	return readerEntry{name: e.name, flags: e.flags, atr: cloneBytes(e.atr)}, true
}

func (s *stateStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// snapshot returns deep copies of all entries in enumeration order.
func (s *stateStore) snapshot() []readerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]readerEntry, 0, len(s.order))
	for _, n := range s.order {
		e := s.entries[n]
		out = append(out, readerEntry{name: e.name, flags: e.flags, atr: cloneBytes(e.atr)})
	}
	return out
}

// waitStates builds the query set for a blocking status change call, one
// entry per known reader with the stored flags as the current state.
func (s *stateStore) waitStates() []ReaderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReaderState, 0, len(s.order)+1)
	for _, n := range s.order {
		out = append(out, ReaderState{Reader: n, Current: s.entries[n].flags})
	}
	return out
}

func (s *stateStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *stateStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.entries = make(map[string]*readerEntry)
}
