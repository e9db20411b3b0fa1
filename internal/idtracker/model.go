package idtracker

import (
	"sync"
	"sync/atomic"

	"github.com/facebook/hermes-sub002/internal/heap"
	"go.uber.org/zap"
)

// Reserved ids for runtime singletons. Tooling that consumes heap ids
// (snapshot differs, leak detectors) relies on these being stable across
// every collection and across processes, so they occupy a fixed contiguous
// range below FirstCellID and are never assigned to cells.
const (
	// IDInvalid is never assigned.
	IDInvalid uint64 = 0

	IDUndefined uint64 = 1
	IDNull      uint64 = 2
	IDTrue      uint64 = 3
	IDFalse     uint64 = 4
	IDEmpty     uint64 = 5

	// IDFirstNumeric through IDFirstNumeric+NumReservedNumerics-1 identify
	// the runtime's preallocated numeric constants.
	IDFirstNumeric      uint64 = 8
	NumReservedNumerics uint64 = 16

	// FirstCellID is the first id handed to an actual heap cell.
	FirstCellID uint64 = 64
)

// Tracker assigns stable ids to heap cells. An id is allocated lazily the
// first time a cell is asked for one, follows the cell when the collector
// moves it, and dies when the cell is reclaimed. The forward and reverse
// maps are kept exactly inverse at all times.
//
// The collector updates the tracker while the mutator is paused, but
// heap-info queries may arrive from other host threads, so access is
// protected by a mutex rather than relying on collection phasing.
type Tracker struct {
	mu     sync.Mutex
	byAddr map[heap.Address]uint64 // Maps a live cell's address to its id.
	byID   map[uint64]heap.Address // Maps an id back to the cell's address.
	nextID uint64                  // The next id to hand out, always >= FirstCellID.
	closed atomic.Bool             // Indicates whether the tracker has been closed.
	log    *zap.SugaredLogger      // Provides structured logging capabilities.
}

// Config encapsulates the configuration parameters required to initialize a
// Tracker.
type Config struct {
	Logger *zap.SugaredLogger // Provides structured logging capabilities for tracker operations.
}
