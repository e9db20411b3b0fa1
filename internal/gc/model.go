package gc

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/internal/idtracker"
	"github.com/facebook/hermes-sub002/internal/storage"
	"github.com/facebook/hermes-sub002/pkg/options"
	"github.com/facebook/hermes-sub002/pkg/value"
	"go.uber.org/zap"
)

// concurrentGC selects between the concurrent collector (64-bit targets,
// where a value slot updates in one atomic store) and the purely incremental
// collector that interleaves mark and sweep steps into young collections.
const concurrentGC = bits.UintSize == 64

// targetMaxPauseMs is the young-collection pause budget the dynamic
// young-generation sizing steers toward.
const targetMaxPauseMs = 50

// Phase tracks the progress of an old-generation collection. It only moves
// forward within a cycle: None -> Mark -> CompleteMarking -> Sweep -> None.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhaseMark
	PhaseCompleteMarking
	PhaseSweep
)

func (p Phase) String() string {
	switch p {
	case PhaseMark:
		return "mark"
	case PhaseCompleteMarking:
		return "complete-marking"
	case PhaseSweep:
		return "sweep"
	default:
		return "none"
	}
}

// compacteeState tracks the one old-generation segment, if any, selected for
// evacuation. Between the start of Mark and complete-marking the segment is
// only being marked for evacuation (start is set); after complete-marking it
// is armed (evacStart is set) and the next young collection evacuates it.
type compacteeState struct {
	segment *heap.Segment
	slot    int // The crash-manager slot the segment held before selection.

	// start is the segment's base while a compaction is anywhere in
	// progress; NullAddress otherwise.
	start heap.Address

	// evacStart matches start once evacuation is armed; NullAddress before.
	evacStart heap.Address
}

func (c *compacteeState) empty() bool {
	return c.start == heap.NullAddress
}

func (c *compacteeState) contains(a heap.Address) bool {
	return c.start != heap.NullAddress && a >= c.start && a < c.start+heap.SegmentSize
}

func (c *compacteeState) evacActive() bool {
	return c.evacStart != heap.NullAddress
}

func (c *compacteeState) evacContains(a heap.Address) bool {
	return c.evacStart != heap.NullAddress && a >= c.evacStart && a < c.evacStart+heap.SegmentSize
}

// exponentialMovingAverage smooths the noisy per-collection measurements
// (survival bytes, target sizing) the scheduling heuristics feed on.
type exponentialMovingAverage struct {
	weight float64
	value  float64
	seeded bool
}

func newEMA(weight float64, initial float64) exponentialMovingAverage {
	return exponentialMovingAverage{weight: weight, value: initial, seeded: initial != 0}
}

func (e *exponentialMovingAverage) update(sample float64) {
	if !e.seeded {
		e.value = sample
		e.seeded = true
		return
	}
	e.value = e.weight*sample + (1-e.weight)*e.value
}

// Heap is the Hades garbage collector: a young bump-pointer generation
// copy-collected into a freelist-managed old generation that is marked and
// swept concurrently with the mutator.
//
// Exactly one mutator thread may use the allocation and mutation APIs. The
// optional background collector shares the state below under gcMu; the
// handful of fields the mutator's barrier fast paths read without the mutex
// are atomics.
type Heap struct {
	log  *zap.SugaredLogger
	opts *options.Options

	space    *heap.Space
	segs     segTable
	provider *storage.Provider
	tracker  *idtracker.Tracker

	callbacks RuntimeCallbacks
	crash     CrashManager
	metrics   *metricsSet

	// gcMu is the single GC mutex: it protects the old generation, the
	// freelists, the mark state, the weak structures, and phase transitions.
	// The young generation is mutator-owned and accessed without it.
	gcMu sync.Mutex

	// ogPaused asks the background task to yield gcMu between steps; it
	// pairs with ogPauseCond, which shares gcMu.
	ogPaused    atomic.Bool
	ogPauseCond *sync.Cond

	// phase is guarded by gcMu.
	phase Phase

	// ogMarkingBarriers is set between the start of Mark and the end of
	// complete-marking; the mutator's write barriers read it lock-free.
	ogMarkingBarriers atomic.Bool

	// marker holds the mark state while an old collection is between Mark
	// and the end of CompleteMarking. Guarded by gcMu, except that barrier
	// paths may push while ogMarkingBarriers is set.
	marker *markState

	youngGen  youngGen
	oldGen    oldGen
	compactee compacteeState

	// weak structures; guarded by gcMu during collection phases.
	weakSlots     []weakRefSlot
	firstFreeSlot int32
	weakMapTables []*weakMapEntryTable
	freeWeakMapID []uint32

	// backgroundExecutor serializes background collection tasks; nil in
	// incremental mode.
	backgroundExecutor *executor
	ogTaskDone         chan struct{}

	// promoteYGToOG promotes whole young segments until TTI.
	promoteYGToOG bool

	maxHeapSize uint64

	// ogThreshold is the allocated/target ratio above which an old
	// collection starts. Adapted after each cycle from the measured
	// concurrent mark rate.
	ogThreshold exponentialMovingAverage

	// ygAverageSurvivalBytes feeds the incremental drain-rate estimate.
	ygAverageSurvivalBytes exponentialMovingAverage

	ygSizeFactor float64

	ygExternalBytes uint64

	ygFinalizables []heap.Address

	// tempRoots pins values the collector's own mutator-facing operations
	// (weak-map growth) hold across allocations.
	tempRoots []*value.HermesValue

	// Collection bookkeeping.
	numYoungCollections uint64
	numOldCollections   uint64
	numCompactions      uint64
	totalAllocatedBytes uint64

	ygStats *collectionStats
	ogStats *collectionStats

	// tripwireArmed re-arms when a collection ends below the limit.
	tripwireArmed bool

	closed atomic.Bool
}

// Config encapsulates the parameters needed to construct a Heap.
type Config struct {
	Options   *options.Options
	Logger    *zap.SugaredLogger
	Provider  *storage.Provider
	Tracker   *idtracker.Tracker
	Callbacks RuntimeCallbacks
	Crash     CrashManager
}
