package gc

import (
	"time"

	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/seginfo"
)

const (
	causeNaturalYoung = "young-full"
	causeNaturalOld   = "old-threshold"
)

// pauseBackgroundTask stops the background collector at its next phase-step
// boundary and acquires the GC mutex. The returned function releases the
// mutex and lets the background task resume. In incremental mode it is just
// the mutex.
func (h *Heap) pauseBackgroundTask() func() {
	if concurrentGC && h.backgroundExecutor != nil {
		// The background task checks this flag between steps and yields the
		// mutex on the condition variable, so the mutator never waits
		// behind a long stretch of background work.
		h.ogPaused.Store(true)
		h.gcMu.Lock()
		h.ogPaused.Store(false)
		h.ogPauseCond.Broadcast()
	} else {
		h.gcMu.Lock()
	}
	return h.gcMu.Unlock
}

// oldGenCollection begins an old-generation cycle. It is only entered at
// the end of a young collection, when the nursery is empty, so the snapshot
// taken here covers every live cell. GC mutex held.
func (h *Heap) oldGenCollection(cause string, forceCompaction bool) {
	// Join any finished background task before reusing its slot.
	if h.ogTaskDone != nil {
		h.gcMu.Unlock()
		<-h.ogTaskDone
		h.gcMu.Lock()
		h.ogTaskDone = nil
	}

	if h.ogStats != nil {
		h.recordGCStats(h.ogStats, false)
	}
	h.ogStats = h.beginCollectionStats(cause, "old")
	h.ogStats.setBeforeSizes(
		h.oldGen.totalAllocated(), h.oldGen.externalBytes, h.heapFootprint(),
	)

	if h.opts.RevertToYGAtTTI {
		// The first old collection is as good a signal as any that startup
		// is over; stop promoting whole young segments.
		h.promoteYGToOG = false
	}

	// Clear stale liveness: mark bits of every old segment and jumbo cell,
	// and the host's symbol marks.
	for _, seg := range h.oldGen.segments {
		seg.Marks().ClearAll()
	}
	for _, j := range h.oldGen.jumbos {
		j.SetMarked(false)
	}
	h.callbacks.UnmarkSymbols()

	h.marker = newMarkState(h.callbacks.SymbolsEnd())

	// Roots are marked before any concurrent work starts, so root marking
	// is atomic with respect to the mutator.
	acceptor := &markAcceptor{h: h, m: h.marker}
	h.markRoots(acceptor, true)
	// Weak roots are not visited here; they can only be cleared once
	// liveness is known.

	h.phase = PhaseMark
	h.ogMarkingBarriers.Store(true)

	// Selecting the compactee must precede any concurrent marking so that
	// barriers and promotions observe a consistent compactee range.
	h.prepareCompactee(forceCompaction)

	// Pin the sweep at today's segment count; later segments only receive
	// born-marked cells.
	h.oldGen.initializeSweep()

	h.metrics.observeOldStart()

	if !concurrentGC {
		h.marker.byteDrainRate = h.getDrainRate()
		return
	}
	h.collectOGInBackground()
}

// collectOGInBackground schedules the phase loop on the background
// executor. GC mutex held.
func (h *Heap) collectOGInBackground() {
	done := make(chan struct{})
	h.ogTaskDone = done
	h.backgroundExecutor.add(func() {
		defer close(done)
		h.gcMu.Lock()
		defer h.gcMu.Unlock()
		for {
			// Yield the mutex to a waiting mutator between steps.
			for h.ogPaused.Load() {
				h.ogPauseCond.Wait()
			}
			h.incrementalCollect(true)
			if h.phase == PhaseNone || h.phase == PhaseCompleteMarking {
				return
			}
		}
	})
}

// incrementalCollect advances the current old collection by one bounded
// step. GC mutex held.
func (h *Heap) incrementalCollect(backgroundThread bool) {
	switch h.phase {
	case PhaseNone:

	case PhaseMark:
		limit := h.marker.byteDrainRate
		if concurrentGC {
			limit = concurrentMarkLimit
		}
		if !h.drainSomeWork(limit) {
			h.phase = PhaseCompleteMarking
		}

	case PhaseCompleteMarking:
		// The complete-marking pause belongs to the mutator; the
		// background task exits and is restarted for sweeping.
		if !backgroundThread {
			h.completeMarking()
			h.phase = PhaseSweep
		}

	case PhaseSweep:
		if !h.oldGen.sweepNext(h, backgroundThread) {
			h.ogStats.setEndTime()
			h.ogStats.setAfterSize(h.heapFootprint())
			h.phase = PhaseNone
			h.numOldCollections++
			h.metrics.observeOldEnd(h.ogStats.elapsed())
			if !backgroundThread {
				h.checkTripwireAndSubmitStats()
			}
		}
	}
}

// completeMarking is the stop-the-world pause that finishes the mark phase:
// barrier-uncovered roots are re-marked, the worklist drained, the
// ephemeron fixpoint run, weak structures and symbols updated, and the
// compactee armed for evacuation.
func (h *Heap) completeMarking() {
	// Update the threshold before marking anything more, so only the
	// concurrently marked bytes enter the rate estimate.
	h.updateOldGenThreshold()
	h.ogMarkingBarriers.Store(false)

	h.marker.global.flushPushChunk()

	acceptor := &markAcceptor{h: h, m: h.marker}
	h.callbacks.MarkRootsForCompleteMarking(acceptor)
	h.drainAllWork()

	h.completeWeakMapMarking(acceptor)

	// Arm the compactee: the next young collection evacuates it.
	h.compactee.evacStart = h.compactee.start

	// Null out weak roots whose referents did not survive.
	h.clearWeakRootsForOldGen()

	// Free symbols the cycle proved dead: the liveness bitmap is the union
	// of the marker's and the write barriers' marks.
	h.callbacks.FreeSymbols(h.marker.mergedSymbols())

	// Recycle weak-ref slots: unreferenced slots are freed, surviving ones
	// return to Unmarked for the next cycle.
	h.updateWeakReferencesForOldGen()

	h.ogStats.markedBytes = h.marker.markedBytes
	h.marker = nil
}

// updateOldGenThreshold adapts the collection-start threshold from the
// measured concurrent mark rate, so marking finishes before the heap
// fills. Incremental mode skips this; its drain rate is derived from the
// threshold directly and adapting both would ratchet.
func (h *Heap) updateOldGenThreshold() {
	if !concurrentGC {
		return
	}

	markedBytes := float64(h.marker.markedBytes)
	preAllocated := float64(h.ogStats.beforeAllocated)
	postAllocated := float64(h.oldGen.totalAllocated())

	// Bytes marked per byte allocated while marking ran. Small heaps
	// underestimate the true rate, which errs toward collecting early.
	denom := postAllocated - preAllocated
	if denom < 1 {
		denom = 1
	}
	rate := markedBytes / denom

	// A nearly-idle mutator produces a huge rate; clamp it, both because
	// the threshold asymptotically approaches 1 anyway and to avoid a
	// self-reinforcing late-start cycle.
	if rate > 20.0 {
		rate = 20.0
	}

	// Solve MarkRate = Threshold / (1 - Threshold) for the threshold; the
	// margin between it and the occupancy ratio grows with the rate.
	h.ogThreshold.update(rate / (rate + 1))
}

// getDrainRate sizes incremental mark steps so marking finishes across the
// young collections remaining before the old generation reaches its target
// size.
func (h *Heap) getDrainRate() uint64 {
	totalAllocated := h.oldGen.totalAllocated() + h.oldGen.externalBytes
	target := h.oldGen.targetSizeBytes
	if target < totalAllocated+1 {
		target = totalAllocated + 1
	}
	bytesToFill := target - totalAllocated

	preAllocated := h.ogStats.beforeAllocated
	marked := h.marker.markedBytes
	var bytesToMark uint64
	if preAllocated > marked {
		bytesToMark = preAllocated - marked
	}

	survival := uint64(h.ygAverageSurvivalBytes.value)
	drainRate := bytesToMark * survival / bytesToFill

	const byteDrainRateMin = 8192
	if drainRate < byteDrainRateMin {
		drainRate = byteDrainRateMin
	}
	return drainRate
}

// yieldToOldGen gives the tail of a young collection to the old one: in
// incremental mode it runs bounded mark or sweep steps; in concurrent mode
// it performs a pending complete-marking pause and restarts the background
// task for sweeping.
func (h *Heap) yieldToOldGen() {
	if !concurrentGC && h.phase != PhaseNone {
		if h.phase == PhaseMark {
			h.marker.byteDrainRate = h.getDrainRate()
		}
		budget := time.Duration(targetMaxPauseMs/2) * time.Millisecond
		initial := h.phase
		for {
			h.incrementalCollect(false)
			if h.phase != initial || h.ygStats.elapsed() >= budget {
				break
			}
		}
		return
	}

	if h.phase == PhaseCompleteMarking {
		h.incrementalCollect(false)
		h.collectOGInBackground()
	}
}

// prepareCompactee optionally selects the last old segment for evacuation
// during the next young collection. A buffer of one segment or 5% of the
// target, whichever is larger, keeps compactions from running
// back-to-back.
func (h *Heap) prepareCompactee(forceCompaction bool) {
	if h.promoteYGToOG {
		return
	}

	buffer := h.oldGen.targetSizeBytes / 20
	if buffer < heap.SegmentSize {
		buffer = heap.SegmentSize
	}
	threshold := h.oldGen.targetSizeBytes + buffer
	totalBytes := h.oldGen.size() + h.oldGen.externalBytes

	if (forceCompaction || totalBytes > threshold) && len(h.oldGen.segments) > 1 {
		seg, slot := h.oldGen.popSegment()
		h.compactee = compacteeState{
			segment: seg,
			slot:    slot,
			start:   seg.Start(),
		}
		seg.Reservation().SetName(seginfo.CompacteeName(h.opts.Name))
		h.publishSegmentExtent(seg, seginfo.CompacteeIndex)
	}
}

// waitForCollectionToFinishLocked drives any in-progress old collection to
// completion on the mutator. GC mutex held with the background paused.
func (h *Heap) waitForCollectionToFinishLocked() {
	for h.phase != PhaseNone {
		h.incrementalCollect(false)
	}
}

// Collect runs a full forced collection: it finishes any in-progress
// cycle, then drives a young collection that forces an old collection with
// compaction, completes that cycle, and finally evacuates any armed
// compactee.
func (h *Heap) Collect(cause string) {
	unpause := h.pauseBackgroundTask()
	h.waitForCollectionToFinishLocked()
	unpause()

	h.youngGenCollection(cause, true)

	unpause = h.pauseBackgroundTask()
	h.waitForCollectionToFinishLocked()
	evacPending := h.compactee.evacActive()
	unpause()

	if evacPending {
		h.youngGenCollection(cause, false)
	}
}

// TTIReached tells the heap the host considers startup over; if configured
// to, it reverts from whole-segment promotion to copying young
// collections.
func (h *Heap) TTIReached() {
	if h.opts.RevertToYGAtTTI {
		h.promoteYGToOG = false
	}
}
