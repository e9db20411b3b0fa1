package gc

import (
	"sync"

	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// barrierChunkSize is how many snapshot-barrier discoveries the mutator
// batches locally before paying for the worklist mutex.
const barrierChunkSize = 128

// globalWorklist is the marker's shared queue: write barriers push cells the
// mutator overwrote references to, and the marking thread pulls batches to
// scan. Pushes from the mutator land in a local chunk first and flush to the
// shared list when the chunk fills, so the common barrier case takes no
// lock.
type globalWorklist struct {
	mu sync.Mutex

	// pushChunk is mutator-private; only flushes touch the mutex.
	pushChunk []heap.Address

	worklist []heap.Address
}

// enqueue records one cell from a write barrier. Mutator only.
func (w *globalWorklist) enqueue(a heap.Address) {
	w.pushChunk = append(w.pushChunk, a)
	if len(w.pushChunk) >= barrierChunkSize {
		w.flushPushChunk()
	}
}

// flushPushChunk publishes the mutator's chunk. Called by the mutator, or
// with the world stopped.
func (w *globalWorklist) flushPushChunk() {
	w.mu.Lock()
	w.worklist = append(w.worklist, w.pushChunk...)
	w.mu.Unlock()
	w.pushChunk = w.pushChunk[:0]
}

// drain empties and returns the shared list, leaving the push chunk alone.
func (w *globalWorklist) drain() []heap.Address {
	w.mu.Lock()
	cells := w.worklist
	w.worklist = make([]heap.Address, 0, len(cells))
	w.mu.Unlock()
	return cells
}

// hasPendingWork reports whether the shared list is non-empty, ignoring the
// push chunk.
func (w *globalWorklist) hasPendingWork() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.worklist) > 0
}

// empty reports whether both the chunk and the list are drained. World must
// be stopped.
func (w *globalWorklist) empty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pushChunk) == 0 && len(w.worklist) == 0
}

// markState is the old-generation marker: the local worklist the marking
// loop drains, the global worklist the barriers feed, and the symbol
// liveness bitmaps. It exists from the start of Mark until the end of
// complete-marking.
type markState struct {
	local []heap.Address

	global globalWorklist

	// markedSymbols records symbols proven live by the marker. Only the
	// marking thread writes it.
	markedSymbols []uint64

	// barrierMarkedSymbols collects symbols recorded by the mutator's write
	// barriers. Merged into markedSymbols under the GC mutex when the
	// bitmap is consumed.
	barrierMarkedSymbols []uint64

	// symbolsEnd snapshots the symbol table size at mark start; later ids
	// are ignored, they were born during the cycle and stay live.
	symbolsEnd uint32

	// markedBytes is the cumulative size of cells scanned by this marker.
	markedBytes uint64

	// byteDrainRate bounds one incremental drain step; unused in concurrent
	// mode, where each step is bounded by concurrentMarkLimit instead.
	byteDrainRate uint64

	// reachableWeakMaps accumulates weak maps discovered during marking;
	// their entries are processed during complete-marking's ephemeron
	// fixpoint.
	reachableWeakMaps []heap.Address
}

func newMarkState(symbolsEnd uint32) *markState {
	words := (int(symbolsEnd) + 63) / 64
	return &markState{
		markedSymbols:        make([]uint64, words),
		barrierMarkedSymbols: make([]uint64, words),
		symbolsEnd:           symbolsEnd,
	}
}

func (m *markState) pushLocal(a heap.Address) {
	m.local = append(m.local, a)
}

func (m *markState) popLocal() (heap.Address, bool) {
	if len(m.local) == 0 {
		return heap.NullAddress, false
	}
	a := m.local[len(m.local)-1]
	m.local = m.local[:len(m.local)-1]
	return a, true
}

func setSymbolBit(bitmap []uint64, id value.SymbolID) {
	idx := uint32(id)
	if int(idx/64) < len(bitmap) {
		bitmap[idx/64] |= 1 << (idx % 64)
	}
}

// markSymbol records a symbol the marker proved live.
func (m *markState) markSymbol(id value.SymbolID) {
	if id.IsInvalid() || uint32(id) >= m.symbolsEnd {
		return
	}
	setSymbolBit(m.markedSymbols, id)
}

// barrierMarkSymbol records a symbol overwritten by the mutator while
// snapshot barriers are active. Mutator only.
func (m *markState) barrierMarkSymbol(id value.SymbolID) {
	if id.IsInvalid() || uint32(id) >= m.symbolsEnd {
		return
	}
	setSymbolBit(m.barrierMarkedSymbols, id)
}

// mergedSymbols folds the barrier bitmap into the marker bitmap and returns
// the result. GC mutex must be held.
func (m *markState) mergedSymbols() []uint64 {
	for i := range m.markedSymbols {
		m.markedSymbols[i] |= m.barrierMarkedSymbols[i]
		m.barrierMarkedSymbols[i] = 0
	}
	return m.markedSymbols
}
