// Package gc implements Hades, the generational mostly-concurrent garbage
// collector at the core of the heap manager.
//
// The heap is split into a young generation (one bump-pointer segment,
// copy-collected on every cycle) and an old generation (freelist-managed
// unit segments plus jumbo segments for oversized cells, reclaimed by a
// mark-sweep collector that runs concurrently with the mutator on 64-bit
// targets and incrementally inside young collections elsewhere). A
// snapshot-at-the-beginning write barrier keeps concurrent marking exact;
// a card table records the old-to-young and old-to-compactee pointers that
// root young collections; ephemeron-aware weak maps, weak references and
// weak roots are resolved during a short stop-the-world complete-marking
// pause.
//
// Exactly one mutator thread may use a Heap. The optional background
// collector coordinates with it through a single GC mutex and a pause
// flag; the mutator's allocation fast path and write barriers never block
// on background work.
package gc

import (
	"fmt"
	"sync"

	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/seginfo"
	"go.uber.org/multierr"
)

var (
	// ErrHeapClosed is returned when operations reach a closed heap.
	ErrHeapClosed = fmt.Errorf("operation failed: cannot access closed heap")
)

// New constructs a Heap, reserving the initial young segment.
func New(config *Config) (*Heap, error) {
	if config == nil || config.Options == nil || config.Logger == nil ||
		config.Provider == nil || config.Tracker == nil || config.Callbacks == nil {
		return nil, fmt.Errorf("invalid configuration")
	}
	if err := config.Options.Validate(); err != nil {
		return nil, err
	}

	crash := config.Crash
	if crash == nil {
		crash = NopCrashManager{}
	}

	h := &Heap{
		log:           config.Logger,
		opts:          config.Options,
		space:         heap.NewSpace(),
		provider:      config.Provider,
		tracker:       config.Tracker,
		callbacks:     config.Callbacks,
		crash:         crash,
		maxHeapSize:   config.Options.MaxHeapSize,
		ygSizeFactor:  ygInitialSizeFactor,
		firstFreeSlot: -1,
		promoteYGToOG: !config.Options.AllocInYoung,
		tripwireArmed: true,
	}
	h.ogPauseCond = sync.NewCond(&h.gcMu)
	h.metrics = newMetrics(config.Options.MetricsRegisterer, config.Options.Name)

	// Collection scheduling heuristics. The threshold starts conservative
	// and adapts to the measured mark rate; the survival average seeds
	// itself from the first young collection.
	h.ogThreshold = newEMA(0.5, 0.75)
	h.ygAverageSurvivalBytes = newEMA(0.5, 0)
	h.oldGen.targetSizeBytes = config.Options.InitHeapSize

	if concurrentGC {
		h.backgroundExecutor = newExecutor()
	}

	seg, err := h.createSegment(seginfo.YoungGenName(config.Options.Name))
	if err != nil {
		return nil, err
	}
	h.setYoungGen(seg)
	seg.SetEffectiveEnd(seg.Start() + heap.Address(h.ygSizeFactor*float64(heap.SegmentSize)))

	h.publishGCKind()

	h.log.Infow(
		"Heap initialized",
		"name", config.Options.Name,
		"runtime", runtimeDescription(),
		"maxHeapSize", config.Options.MaxHeapSize,
		"occupancyTarget", config.Options.OccupancyTarget,
	)

	return h, nil
}

// FinalizeAll terminates any in-progress collection and runs every
// finalizer in the heap. Used on shutdown, when cell contents must not
// outlive the host structures finalizers release.
func (h *Heap) FinalizeAll() {
	unpause := h.pauseBackgroundTask()
	defer unpause()

	// Abandon any cycle in flight; nothing will consume its state.
	h.phase = PhaseNone
	h.ogMarkingBarriers.Store(false)
	h.marker = nil

	// Young cells that were never promoted finalize here; promoted ones
	// are finalized by the old-generation walk below.
	h.finalizeYoungGenObjects()

	finalize := func(a heap.Address, k cell.Kind) {
		if fin := cell.TableFor(k).Finalize; fin != nil {
			fin(h.space, a)
		}
	}

	if h.compactee.segment != nil {
		h.forCompactedObjs(h.compactee.segment, finalize)
	}
	for _, seg := range h.oldGen.segments {
		h.forObjsInSegment(seg, finalize)
	}
	for _, j := range h.oldGen.jumbos {
		finalize(j.Cell(), h.cellKind(j.Cell()))
	}
}

// forObjsInSegment walks the allocated cells of a segment, skipping free
// spans and fillers.
func (h *Heap) forObjsInSegment(seg *heap.Segment, cb func(heap.Address, cell.Kind)) {
	cur := seg.Start()
	for cur < seg.Level() {
		hdr := h.space.ReadHeader(cur)
		size := hdr.Size()
		if hdr.IsForwarded() {
			size = h.cellSize(hdr.ForwardingPointer())
		} else if hdr.Kind() != cell.KindFreelist && hdr.Kind() != cell.KindFiller {
			cb(cur, hdr.Kind())
		}
		cur += heap.Address(size)
	}
}

// forCompactedObjs visits the cells of an evacuated segment that were not
// forwarded; these are the cells compaction decided were dead.
func (h *Heap) forCompactedObjs(seg *heap.Segment, cb func(heap.Address, cell.Kind)) {
	cur := seg.Start()
	for cur < seg.Level() {
		hdr := h.space.ReadHeader(cur)
		if hdr.IsForwarded() {
			cur += heap.Address(h.cellSize(hdr.ForwardingPointer()))
			continue
		}
		if hdr.Kind() != cell.KindFreelist && hdr.Kind() != cell.KindFiller {
			cb(cur, hdr.Kind())
		}
		cur += heap.Address(hdr.Size())
	}
}

// ForAllObjs visits every allocated cell in the heap.
func (h *Heap) ForAllObjs(cb func(heap.Address, cell.Kind)) {
	unpause := h.pauseBackgroundTask()
	defer unpause()

	h.forObjsInSegment(h.youngGen.seg, cb)
	for _, seg := range h.oldGen.segments {
		h.forObjsInSegment(seg, cb)
	}
	for _, j := range h.oldGen.jumbos {
		cb(j.Cell(), h.cellKind(j.Cell()))
	}
	if h.compactee.segment != nil {
		h.forCompactedObjs(h.compactee.segment, cb)
	}
}

// Close drives any in-progress collection to completion, stops the
// background executor, and returns every segment to the storage provider.
// The heap is unusable afterwards.
func (h *Heap) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrHeapClosed
	}

	unpause := h.pauseBackgroundTask()
	h.waitForCollectionToFinishLocked()
	unpause()

	if h.backgroundExecutor != nil {
		h.backgroundExecutor.shutdown()
	}

	h.log.Infow(
		"Closing heap",
		"youngCollections", h.numYoungCollections,
		"oldCollections", h.numOldCollections,
		"compactions", h.numCompactions,
		"footprint", h.heapFootprint(),
	)

	var err error

	// Young generation.
	yg := h.youngGen.seg
	h.segs.unregister(yg.Start(), 1)
	h.space.UnmapRegion(yg.Start(), 1)
	err = multierr.Append(err, h.provider.Release(yg.Reservation()))
	h.crash.RemoveContextualCustomData(seginfo.YoungGenName(h.opts.Name))

	// Old generation unit segments.
	for i, seg := range h.oldGen.segments {
		h.segs.unregister(seg.Start(), 1)
		h.space.UnmapRegion(seg.Start(), 1)
		err = multierr.Append(err, h.provider.Release(seg.Reservation()))
		h.removeSegmentExtent(fmt.Sprintf("%d", h.oldGen.segSlots[i]))
	}
	h.oldGen.segments = nil

	// Jumbo segments.
	for i, j := range h.oldGen.jumbos {
		h.segs.unregister(j.Base(), j.NumSlots())
		h.space.UnmapRegion(j.Base(), j.NumSlots())
		err = multierr.Append(err, h.provider.Release(j.Reservation()))
		h.removeSegmentExtent(fmt.Sprintf("%d", h.oldGen.jumboSlots[i]))
	}
	h.oldGen.jumbos = nil

	// A compactee armed but never evacuated.
	if h.compactee.segment != nil {
		seg := h.compactee.segment
		h.segs.unregister(seg.Start(), 1)
		h.space.UnmapRegion(seg.Start(), 1)
		err = multierr.Append(err, h.provider.Release(seg.Reservation()))
		h.removeSegmentExtent(seginfo.CompacteeIndex)
		h.compactee = compacteeState{}
	}

	return err
}
