// Package idtracker provides the stable object-id table for the heap.
// Heap-analysis tooling identifies objects by id rather than by address,
// because a moving collector invalidates addresses at every young
// collection. The tracker guarantees that a cell's id is assigned at most
// once, survives any number of moves, and is retired exactly when the cell
// is reclaimed.
//
// Ids below FirstCellID are reserved for runtime singletons (undefined,
// null, the booleans, preallocated numeric constants) and are never
// assigned to cells; tests and snapshot tooling rely on that range being
// stable.
package idtracker

import (
	stdErrors "errors"

	"github.com/facebook/hermes-sub002/internal/heap"
)

var (
	ErrTrackerClosed = stdErrors.New("operation failed: cannot access closed id tracker")
)

// New creates and initializes a new Tracker instance. The returned Tracker
// is immediately ready for concurrent use.
func New(config *Config) (*Tracker, error) {
	if config == nil || config.Logger == nil {
		return nil, stdErrors.New("invalid configuration")
	}

	return &Tracker{
		log:    config.Logger,
		byAddr: make(map[heap.Address]uint64, 2046),
		byID:   make(map[uint64]heap.Address, 2046),
		nextID: FirstCellID,
	}, nil
}

// IDFor returns the id of the cell at a, assigning a fresh one on first
// request.
func (t *Tracker) IDFor(a heap.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byAddr[a]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.byAddr[a] = id
	t.byID[id] = a
	return id
}

// ObjectForID resolves an id back to the cell's current address.
func (t *Tracker) ObjectForID(id uint64) (heap.Address, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.byID[id]
	return a, ok
}

// Move rebinds a tracked cell to its new address after evacuation. Cells
// that were never asked for an id have nothing to move.
func (t *Tracker) Move(from, to heap.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byAddr[from]
	if !ok {
		return
	}
	delete(t.byAddr, from)
	t.byAddr[to] = id
	t.byID[id] = to
}

// Untrack retires the id of a reclaimed cell.
func (t *Tracker) Untrack(a heap.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byAddr[a]
	if !ok {
		return
	}
	delete(t.byAddr, a)
	delete(t.byID, id)
}

// NumTracked returns the number of cells currently holding ids.
func (t *Tracker) NumTracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byAddr)
}

// Close gracefully shuts down the tracker, releasing the tables so the
// tracker cannot be used after closure.
func (t *Tracker) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrTrackerClosed
	}

	t.log.Infow("Closing object id tracker", "trackedObjects", t.NumTracked())

	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.byAddr)
	clear(t.byID)
	t.byAddr = nil
	t.byID = nil

	return nil
}
