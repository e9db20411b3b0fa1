package gc

import (
	"github.com/facebook/hermes-sub002/internal/cell"
	"github.com/facebook/hermes-sub002/internal/heap"
	"github.com/facebook/hermes-sub002/pkg/value"
)

// weakMapEntry packs one ephemeron: a weak root to the key and the index of
// the mapped value in the owning map's value storage.
type weakMapEntry struct {
	key        WeakRoot
	valueIndex uint32
}

// weakMapEntryTable is the collector-owned half of a WeakMap: a dense set
// of entries keyed by the key cell's stable object id, plus a weak root
// back to the owning map cell so the table dies with the map.
type weakMapEntryTable struct {
	owner      WeakRoot
	entries    map[uint64]*weakMapEntry
	freeValues []uint32
	numValues  uint32
}

const weakMapInitialCapacity = 4

// NewWeakMap allocates a weak map cell bound to a fresh entry table.
func (h *Heap) NewWeakMap() cell.WeakMap {
	var id uint32
	if n := len(h.freeWeakMapID); n > 0 {
		id = h.freeWeakMapID[n-1]
		h.freeWeakMapID = h.freeWeakMapID[:n-1]
	} else {
		id = uint32(len(h.weakMapTables))
		h.weakMapTables = append(h.weakMapTables, nil)
	}

	a := h.NewCell(cell.KindWeakMap, cell.WeakMapSize)
	wm := cell.InitWeakMap(h.space, a, id)
	h.weakMapTables[id] = &weakMapEntryTable{
		owner:   NewWeakRoot(a),
		entries: make(map[uint64]*weakMapEntry),
	}
	return wm
}

func (h *Heap) tableForMap(wm cell.WeakMap) *weakMapEntryTable {
	return h.weakMapTables[wm.EntryTableID(h.space)]
}

// refreshWeakMap re-resolves a weak map's address through its stable id.
// Any allocation can run a collection that moves the map cell, so mutator
// paths that allocate must reload the address before touching the cell
// again.
func (h *Heap) refreshWeakMap(wm *cell.WeakMap, mapID uint64) {
	if a, ok := h.tracker.ObjectForID(mapID); ok {
		wm.Addr = a
	}
}

// valueStorageForWrite returns the map's value storage, growing (or
// creating) it so that index idx is addressable. wm is refreshed in place
// when an allocation moves the map.
func (h *Heap) valueStorageForWrite(wm *cell.WeakMap, mapID uint64, idx uint32) cell.ArrayStorage {
	cp := wm.ValueStorage(h.space)
	if !cp.IsNull() {
		as := cell.ArrayStorage{Addr: heap.Decompress(cp)}
		if idx < as.Capacity(h.space) {
			if idx >= as.Size(h.space) {
				as.Resize(h, idx+1)
			}
			return as
		}
		// Grow: allocate a larger storage and migrate the live prefix.
		// The allocation can collect, moving both the map and the old
		// storage, so both are re-resolved afterwards.
		newCap := as.Capacity(h.space) * 2
		for newCap <= idx {
			newCap *= 2
		}
		grown, err := h.AllocArrayStorage(newCap, false)
		if err != nil {
			panic(err)
		}
		h.refreshWeakMap(wm, mapID)
		old := cell.ArrayStorage{Addr: heap.Decompress(wm.ValueStorage(h.space))}
		grown.Resize(h, old.Size(h.space))
		for i := uint32(0); i < old.Size(h.space); i++ {
			grown.Set(h, i, old.Get(h.space, i))
		}
		grown.Resize(h, idx+1)
		wm.SetValueStorage(h, heap.Compress(grown.Addr))
		return grown
	}

	capacity := uint32(weakMapInitialCapacity)
	for capacity <= idx {
		capacity *= 2
	}
	as, err := h.AllocArrayStorage(capacity, false)
	if err != nil {
		panic(err)
	}
	h.refreshWeakMap(wm, mapID)
	as.Resize(h, idx+1)
	wm.SetValueStorage(h, heap.Compress(as.Addr))
	return as
}

// WeakMapSet maps key to v in wm, replacing any existing mapping. The
// previous value, if any, is simply overwritten; its lifetime is governed
// by ordinary reachability from here on.
func (h *Heap) WeakMapSet(wm cell.WeakMap, key heap.Address, v value.SmallHermesValue) {
	t := h.tableForMap(wm)
	mapID := h.tracker.IDFor(wm.Addr)
	keyID := h.tracker.IDFor(key)

	if e, ok := t.entries[keyID]; ok && !e.key.ptr.IsNull() {
		as := cell.ArrayStorage{Addr: heap.Decompress(wm.ValueStorage(h.space))}
		as.Set(h, e.valueIndex, v)
		return
	}

	var idx uint32
	if n := len(t.freeValues); n > 0 {
		idx = t.freeValues[n-1]
		t.freeValues = t.freeValues[:n-1]
	} else {
		idx = t.numValues
		t.numValues++
	}

	// Growing the storage can run a collection that moves the map, the
	// key, and the value; the entry table survives moves because it is
	// keyed by stable ids and holds weak roots the evacuator updates.
	// Insert the entry first so the key root gets updated too, and pin the
	// value in a root across the allocation.
	t.entries[keyID] = &weakMapEntry{key: NewWeakRoot(key), valueIndex: idx}
	var valueRoot value.HermesValue
	if v.IsPointer() {
		valueRoot = value.EncodeObject(v.Pointer())
	}
	as := h.valueStorageForWriteWithRoot(&wm, mapID, idx, &valueRoot)
	if v.IsPointer() {
		v = v.UpdatePointer(valueRoot.Pointer())
	}
	as.Set(h, idx, v)
}

// valueStorageForWriteWithRoot is valueStorageForWrite with one extra
// temporary root kept alive and updated across any collection the growth
// triggers.
func (h *Heap) valueStorageForWriteWithRoot(
	wm *cell.WeakMap, mapID uint64, idx uint32, root *value.HermesValue,
) cell.ArrayStorage {
	h.tempRoots = append(h.tempRoots, root)
	as := h.valueStorageForWrite(wm, mapID, idx)
	h.tempRoots = h.tempRoots[:len(h.tempRoots)-1]
	return as
}

// WeakMapGet returns the value mapped to key, or false when the key is not
// present (or its entry's key cell has died).
func (h *Heap) WeakMapGet(wm cell.WeakMap, key heap.Address) (value.SmallHermesValue, bool) {
	t := h.tableForMap(wm)
	e, ok := t.entries[h.tracker.IDFor(key)]
	if !ok || e.key.ptr.IsNull() {
		return value.EncodeEmptySHV(), false
	}

	// Reading through the weak key revives it for the current cycle.
	h.weakRefReadBarrier(heap.Decompress(e.key.ptr))

	cp := wm.ValueStorage(h.space)
	if cp.IsNull() {
		return value.EncodeEmptySHV(), false
	}
	as := cell.ArrayStorage{Addr: heap.Decompress(cp)}
	return as.Get(h.space, e.valueIndex), true
}

// WeakMapHas reports whether key currently maps to a value.
func (h *Heap) WeakMapHas(wm cell.WeakMap, key heap.Address) bool {
	_, ok := h.WeakMapGet(wm, key)
	return ok
}

// WeakMapDelete removes key's mapping, returning whether one existed.
func (h *Heap) WeakMapDelete(wm cell.WeakMap, key heap.Address) bool {
	t := h.tableForMap(wm)
	keyID := h.tracker.IDFor(key)
	e, ok := t.entries[keyID]
	if !ok || e.key.ptr.IsNull() {
		return false
	}

	if cp := wm.ValueStorage(h.space); !cp.IsNull() {
		as := cell.ArrayStorage{Addr: heap.Decompress(cp)}
		as.Set(h, e.valueIndex, value.EncodeEmptySHV())
	}
	delete(t.entries, keyID)
	t.freeValues = append(t.freeValues, e.valueIndex)
	return true
}

// WeakMapSize returns the number of live entries, skipping entries whose
// keys have died but have not yet been purged by a collection.
func (h *Heap) WeakMapSize(wm cell.WeakMap) int {
	t := h.tableForMap(wm)
	n := 0
	for _, e := range t.entries {
		if !e.key.ptr.IsNull() {
			n++
		}
	}
	return n
}

// completeWeakMapMarking runs the ephemeron fixpoint over every weak map
// the marker reached, then clears the entries whose keys stayed
// unreachable. World stopped.
//
// The fixpoint alternates two steps until neither marks anything new:
// scanning each newly reached map with its value storage temporarily
// nulled out (so values are not retained wholesale), and marking the
// values of entries whose keys are now proven reachable. A map scanned
// while map B's scan made one of its keys reachable gets another pass, so
// cross-map key dependencies converge.
func (h *Heap) completeWeakMapMarking(acceptor *markAcceptor) {
	m := h.marker

	// Keys not yet proven reachable, per map. Rebuilt lazily; shrinks as
	// keys get marked.
	unreachableKeys := make(map[heap.Address][]uint64)
	scanned := make(map[heap.Address]bool)

	for {
		newReachableValueFound := false

		// reachableWeakMaps can grow while this loop drains: a value made
		// reachable may itself be a weak map.
		for i := 0; i < len(m.reachableWeakMaps); i++ {
			mapAddr := m.reachableWeakMaps[i]
			wm := cell.WeakMap{Addr: mapAddr}

			if !scanned[mapAddr] {
				// Scan the map with the value storage detached, so only
				// the map's own structure is marked, not every value.
				slot := wm.ValueStorageSlot()
				saved := h.space.ReadPointer(slot)
				h.space.WritePointer(slot, value.NullCompressedPointer)
				skipAcceptor := &markAcceptor{h: h, m: m, skipWeak: true}
				h.visitCell(mapAddr, skipAcceptor)
				h.drainAllWork()
				h.space.WritePointer(slot, saved)
				scanned[mapAddr] = true
				// Scanning may have made keys of earlier maps reachable;
				// force another full pass.
				newReachableValueFound = true
			}

			if h.markFromReachableWeakMapKeys(wm, unreachableKeys, acceptor) {
				newReachableValueFound = true
			}
		}

		if !newReachableValueFound {
			break
		}
	}

	// Keys that stayed unreachable take their values with them; then the
	// maps are scanned normally so the value storage itself is marked.
	for _, mapAddr := range m.reachableWeakMaps {
		wm := cell.WeakMap{Addr: mapAddr}
		h.clearEntriesWithUnreachableKeys(wm)
		h.visitCell(mapAddr, acceptor)
		h.drainAllWork()
	}
}

// markFromReachableWeakMapKeys marks the values of entries whose keys are
// now marked, pruning those keys from the unreachable list. Returns whether
// any value was newly marked.
func (h *Heap) markFromReachableWeakMapKeys(
	wm cell.WeakMap,
	unreachableKeys map[heap.Address][]uint64,
	acceptor *markAcceptor,
) bool {
	t := h.tableForMap(wm)

	keyList, ok := unreachableKeys[wm.Addr]
	if !ok {
		keyList = make([]uint64, 0, len(t.entries))
		for id := range t.entries {
			keyList = append(keyList, id)
		}
	}

	storageCP := wm.ValueStorage(h.space)
	newlyMarked := false
	remaining := keyList[:0]
	for _, keyID := range keyList {
		e, ok := t.entries[keyID]
		if !ok {
			continue
		}
		keyAddr := e.key.GetNoBarrier()
		if keyAddr == heap.NullAddress {
			// The key died in an earlier young collection; drop it from
			// consideration, clearing happens after the fixpoint.
			continue
		}
		if !h.cellIsMarked(keyAddr) {
			remaining = append(remaining, keyID)
			continue
		}
		// Key is reachable: its value must be kept alive.
		if !storageCP.IsNull() {
			as := cell.ArrayStorage{Addr: heap.Decompress(storageCP)}
			slot := as.ElementSlot(e.valueIndex)
			shv := h.space.ReadSmallValue(slot)
			if shv.IsPointer() && !shv.Pointer().IsNull() &&
				!h.cellIsMarked(heap.Decompress(shv.Pointer())) {
				acceptor.VisitSmallValue(slot)
				h.drainAllWork()
				newlyMarked = true
			}
		}
	}
	unreachableKeys[wm.Addr] = remaining
	return newlyMarked
}

// clearEntriesWithUnreachableKeys erases every entry whose key is dead or
// unmarked, emptying the mapped value slot.
func (h *Heap) clearEntriesWithUnreachableKeys(wm cell.WeakMap) {
	t := h.tableForMap(wm)
	storageCP := wm.ValueStorage(h.space)

	for keyID, e := range t.entries {
		keyAddr := e.key.GetNoBarrier()
		if keyAddr != heap.NullAddress && h.cellIsMarked(keyAddr) {
			continue
		}
		if !storageCP.IsNull() {
			as := cell.ArrayStorage{Addr: heap.Decompress(storageCP)}
			h.space.WriteSmallValue(as.ElementSlot(e.valueIndex), value.EncodeEmptySHV())
		}
		delete(t.entries, keyID)
		t.freeValues = append(t.freeValues, e.valueIndex)
	}
}
