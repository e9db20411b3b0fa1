package gc

import (
	"time"

	"github.com/facebook/hermes-sub002/pkg/options"
)

// runtimeDescription names the collector build in analytics events.
func runtimeDescription() string {
	if concurrentGC {
		return "hades (concurrent)"
	}
	return "hades (incremental)"
}

// collectionStats accumulates the numbers of one collection cycle and
// produces the analytics event at the end.
type collectionStats struct {
	cause          string
	collectionType string
	tags           []string

	beginTime time.Time
	endTime   time.Time

	beforeAllocated uint64
	beforeExternal  uint64
	sizeBefore      uint64
	sizeAfter       uint64

	sweptBytes         uint64
	sweptExternalBytes uint64
	markedBytes        uint64
}

func (h *Heap) beginCollectionStats(cause, collectionType string) *collectionStats {
	return &collectionStats{
		cause:          cause,
		collectionType: collectionType,
		beginTime:      time.Now(),
	}
}

func (s *collectionStats) addCollectionType(tag string) {
	s.tags = append(s.tags, tag)
}

func (s *collectionStats) setBeforeSizes(allocated, external, footprint uint64) {
	s.beforeAllocated = allocated
	s.beforeExternal = external
	s.sizeBefore = footprint
}

func (s *collectionStats) setSweptBytes(n uint64) {
	s.sweptBytes = n
}

func (s *collectionStats) setSweptExternalBytes(n uint64) {
	s.sweptExternalBytes = n
}

func (s *collectionStats) setAfterSize(footprint uint64) {
	s.sizeAfter = footprint
}

func (s *collectionStats) setEndTime() {
	s.endTime = time.Now()
}

// elapsed returns the wall time since the collection began; usable while
// the collection is still running.
func (s *collectionStats) elapsed() time.Duration {
	if s.endTime.IsZero() {
		return time.Since(s.beginTime)
	}
	return s.endTime.Sub(s.beginTime)
}

func (s *collectionStats) afterAllocated() uint64 {
	if s.sweptBytes > s.beforeAllocated {
		return 0
	}
	return s.beforeAllocated - s.sweptBytes
}

func (s *collectionStats) afterExternal() uint64 {
	if s.sweptExternalBytes > s.beforeExternal {
		return 0
	}
	return s.beforeExternal - s.sweptExternalBytes
}

// recordGCStats publishes a finished cycle to the log, the metrics, and
// the analytics callback.
func (h *Heap) recordGCStats(s *collectionStats, young bool) {
	d := s.elapsed()

	total := h.numOldCollections
	if young {
		total = h.numYoungCollections
		h.metrics.observeYoung(d)
	}

	var survival float64
	if s.beforeAllocated > 0 {
		survival = float64(s.afterAllocated()) / float64(s.beforeAllocated)
	}

	h.log.Debugw(
		"Collection finished",
		"type", s.collectionType,
		"cause", s.cause,
		"tags", s.tags,
		"duration", d,
		"allocatedBefore", s.beforeAllocated,
		"allocatedAfter", s.afterAllocated(),
		"sizeBefore", s.sizeBefore,
		"sizeAfter", s.sizeAfter,
	)
	h.metrics.setHeapSizes(h.heapFootprint(), h.oldGen.totalAllocated())

	if cb := h.opts.AnalyticsCallback; cb != nil {
		cb(options.AnalyticsEvent{
			Runtime:          runtimeDescription(),
			CollectionType:   s.collectionType,
			Cause:            s.cause,
			Duration:         d,
			AllocatedBefore:  s.beforeAllocated,
			AllocatedAfter:   s.afterAllocated(),
			SizeBefore:       s.sizeBefore,
			SizeAfter:        s.sizeAfter,
			SurvivalRatio:    survival,
			TotalCollections: total,
		})
	}
}

// checkTripwireAndSubmitStats finishes the bookkeeping of a completed old
// collection: the tripwire check against surviving bytes and the deferred
// stats emission. GC mutex held, no collection in progress.
func (h *Heap) checkTripwireAndSubmitStats() {
	if h.ogStats == nil {
		return
	}
	used := h.ogStats.afterAllocated() + h.ogStats.afterExternal()
	h.publishCrashHeapInfo(h.ogStats.afterAllocated(), h.ogStats.afterExternal())
	h.checkTripwire(used)
	h.recordGCStats(h.ogStats, false)
	h.ogStats = nil
}

// checkTripwire fires the host's tripwire callback when surviving bytes
// crossed the configured limit, at most once per crossing.
func (h *Heap) checkTripwire(usedBytes uint64) {
	limit := h.opts.TripwireLimit
	if limit == 0 || h.opts.TripwireCallback == nil {
		return
	}

	if usedBytes < limit {
		h.tripwireArmed = true
		return
	}
	if !h.tripwireArmed {
		return
	}
	h.tripwireArmed = false

	err := h.opts.TripwireCallback(options.TripwireContext{
		AllocatedBytes: usedBytes,
		HeapFootprint:  h.heapFootprint(),
		Limit:          limit,
	})
	if err != nil {
		// Tripwire failures are diagnostics-only; never fatal.
		h.log.Errorw("Heap tripwire callback failed", "error", err)
	}
}

// HeapInfo is a point-in-time summary for hosts and tests.
type HeapInfo struct {
	AllocatedBytes      uint64
	ExternalBytes       uint64
	HeapFootprint       uint64
	MallocSize          uint64
	NumYoungCollections uint64
	NumOldCollections   uint64
	NumCompactions      uint64
	TotalAllocatedBytes uint64
}

// Info reports current heap statistics.
func (h *Heap) Info() HeapInfo {
	unpause := h.pauseBackgroundTask()
	defer unpause()

	return HeapInfo{
		AllocatedBytes:      h.oldGen.totalAllocated() + h.youngGen.seg.Used(),
		ExternalBytes:       h.oldGen.externalBytes + h.ygExternalBytes,
		HeapFootprint:       h.heapFootprint(),
		MallocSize:          h.callbacks.MallocSize(),
		NumYoungCollections: h.numYoungCollections,
		NumOldCollections:   h.numOldCollections,
		NumCompactions:      h.numCompactions,
		TotalAllocatedBytes: h.totalAllocatedBytes + h.youngGen.seg.Used(),
	}
}
