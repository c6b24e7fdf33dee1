package scard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncNamesPreservesSurvivors(t *testing.T) {
	s := newStateStore()

	added, removed := s.syncNames([]string{"A"})
	assert.Equal(t, []string{"A"}, added)
	assert.Empty(t, removed)
	s.update("A", StatePresent|StateInUse, atrA)

	// A must keep its state or its card would look freshly inserted
	added, removed = s.syncNames([]string{"A", "B"})
	assert.Equal(t, []string{"B"}, added)
	assert.Empty(t, removed)

	a, ok := s.get("A")
	assert.True(t, ok)
	assert.Equal(t, StatePresent|StateInUse, a.flags)
	assert.Equal(t, atrA, a.atr)

	b, ok := s.get("B")
	assert.True(t, ok)
	assert.Equal(t, StateUnaware, b.flags)
	assert.Empty(t, b.atr)

	added, removed = s.syncNames([]string{"B"})
	assert.Empty(t, added)
	assert.Equal(t, []string{"A"}, removed)
	_, ok = s.get("A")
	assert.False(t, ok)

	b, _ = s.get("B")
	assert.Equal(t, StateUnaware, b.flags)
}

func TestUpdateClearsChangedBit(t *testing.T) {
	s := newStateStore()
	s.syncNames([]string{"A"})

	s.update("A", StatePresent|StateChanged, atrA)

	a, _ := s.get("A")
	assert.Equal(t, StatePresent, a.flags)
	assert.Equal(t, atrA, a.atr)
}

func TestUpdateIgnoresUnknownNames(t *testing.T) {
	s := newStateStore()
	s.syncNames([]string{"A"})

	// a late result for a dropped reader must not resurrect it
	s.update("gone", StatePresent, atrA)
	_, ok := s.get("gone")
	assert.False(t, ok)
	assert.Equal(t, 1, s.len())
}

func TestWaitStatesFollowEnumerationOrder(t *testing.T) {
	s := newStateStore()
	s.syncNames([]string{"C", "A", "B"})
	s.update("A", StatePresent, atrA)

	states := s.waitStates()
	assert.Len(t, states, 3)
	assert.Equal(t, "C", states[0].Reader)
	assert.Equal(t, "A", states[1].Reader)
	assert.Equal(t, "B", states[2].Reader)
	assert.Equal(t, StatePresent, states[1].Current)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newStateStore()
	s.syncNames([]string{"A"})
	s.update("A", StatePresent, atrA)

	snap := s.snapshot()
	assert.Len(t, snap, 1)
	snap[0].atr[0] = 0xff

	a, _ := s.get("A")
	assert.Equal(t, atrA, a.atr)
}

func TestSyncNamesDropsDuplicates(t *testing.T) {
	s := newStateStore()
	added, _ := s.syncNames([]string{"A", "A"})
	assert.Equal(t, []string{"A"}, added)
	assert.Equal(t, 1, s.len())
}

func TestClear(t *testing.T) {
	s := newStateStore()
	s.syncNames([]string{"A", "B"})
	s.clear()
	assert.Zero(t, s.len())
	assert.Empty(t, s.names())
}
