package gc

import (
	"fmt"

	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/seginfo"
)

// Crash-manager publication. The heap identifies its collector once and
// keeps one contextual entry per live segment, keyed by the seginfo names,
// so a crash report can reconstruct the address-space layout.

func (h *Heap) publishGCKind() {
	h.crash.SetCustomData("HermesGC", runtimeDescription())
}

func extentString(start, end heap.Address) string {
	return fmt.Sprintf("%#x-%#x", uint64(start), uint64(end))
}

func (h *Heap) publishYoungGenExtent() {
	seg := h.youngGen.seg
	h.crash.SetContextualCustomData(
		seginfo.YoungGenName(h.opts.Name),
		extentString(seg.Start(), seg.End()),
	)
}

func (h *Heap) publishSegmentExtent(seg *heap.Segment, idx string) {
	h.crash.SetContextualCustomData(
		fmt.Sprintf("%s:HeapSegment:%s", h.opts.Name, idx),
		extentString(seg.Start(), seg.End()),
	)
}

func (h *Heap) publishJumboExtent(j *heap.JumboSegment, idx string) {
	h.crash.SetContextualCustomData(
		fmt.Sprintf("%s:HeapSegment:%s", h.opts.Name, idx),
		extentString(j.Base(), j.Base()+heap.Address(j.CellSize())),
	)
}

func (h *Heap) removeSegmentExtent(idx string) {
	h.crash.RemoveContextualCustomData(
		fmt.Sprintf("%s:HeapSegment:%s", h.opts.Name, idx),
	)
}

// publishCrashHeapInfo refreshes the headline numbers a crash report leads
// with. Called after each old collection, when they are most meaningful.
func (h *Heap) publishCrashHeapInfo(allocated, external uint64) {
	h.crash.SetContextualCustomData(
		h.opts.Name+":AllocatedBytes",
		fmt.Sprintf("%d", allocated),
	)
	h.crash.SetContextualCustomData(
		h.opts.Name+":ExternalBytes",
		fmt.Sprintf("%d", external),
	)
}
