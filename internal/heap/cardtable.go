package heap

// CardTable records, per 512-byte card of a unit segment, whether a write
// barrier has dirtied the card since it was last cleared, and where the
// first cell head at or before the card's start lies. The dirty bytes drive
// the old-to-young and old-to-compactee scans at the start of every young
// collection; the boundary bytes let those scans find a cell head to start
// walking from without searching backwards through the segment.
type CardTable struct {
	base Address

	// dirty holds one byte per card: zero is clean, nonzero dirty. Bytes
	// rather than bits so the mutator's relocation barrier is a single
	// unsynchronized store.
	dirty [CardsPerSegment]byte

	// boundaries locates cell heads. The entry for card i is either
	// non-negative, meaning the first cell head at or before the card's
	// start is entry*HeapAlign bytes before the card boundary, or negative,
	// meaning the head lies further back than 127 units: jump back
	// 2^(-entry) cards and consult that entry. The exponential back-off
	// keeps resolution logarithmic even for cells spanning the whole
	// segment.
	boundaries [CardsPerSegment]int8
}

const maxInlineBoundary = 127

// NewCardTable returns a card table for the segment based at base.
func NewCardTable(base Address) *CardTable {
	return &CardTable{base: base}
}

func (ct *CardTable) cardIndex(a Address) int {
	return int(a-ct.base) >> LogCardSize
}

// CardStart returns the address of the first byte of card idx.
func (ct *CardTable) CardStart(idx int) Address {
	return ct.base + Address(idx)<<LogCardSize
}

// DirtyCardForAddress marks the card containing a dirty.
func (ct *CardTable) DirtyCardForAddress(a Address) {
	ct.dirty[ct.cardIndex(a)] = 1
}

// DirtyCardsForRange marks every card overlapping [start, end) dirty. Range
// construction barriers use this instead of per-slot tagging.
func (ct *CardTable) DirtyCardsForRange(start, end Address) {
	first := ct.cardIndex(start)
	last := ct.cardIndex(end - 1)
	for i := first; i <= last; i++ {
		ct.dirty[i] = 1
	}
}

// IsCardDirty reports whether card idx is dirty.
func (ct *CardTable) IsCardDirty(idx int) bool {
	return ct.dirty[idx] != 0
}

// IsAddressDirty reports whether the card containing a is dirty.
func (ct *CardTable) IsAddressDirty(a Address) bool {
	return ct.dirty[ct.cardIndex(a)] != 0
}

// FindNextDirtyCard returns the index of the first dirty card in
// [from, limit), or limit if none.
func (ct *CardTable) FindNextDirtyCard(from, limit int) int {
	for from < limit && ct.dirty[from] == 0 {
		from++
	}
	return from
}

// FindNextCleanCard returns the index of the first clean card in
// [from, limit), or limit if none.
func (ct *CardTable) FindNextCleanCard(from, limit int) int {
	for from < limit && ct.dirty[from] != 0 {
		from++
	}
	return from
}

// ClearAllCards wipes the dirty bytes. The collector does this at the end
// of a young evacuation unless a concurrent mark still needs the dirt.
func (ct *CardTable) ClearAllCards() {
	for i := range ct.dirty {
		ct.dirty[i] = 0
	}
}

// UpdateBoundaries records the cell [start, end) in the boundary table: for
// every card boundary the cell crosses, the entry describes how far back
// the cell's head lies. The allocator calls this for each cell it carves,
// which keeps the invariant that every allocated byte's card can name the
// cell covering it.
func (ct *CardTable) UpdateBoundaries(start, end Address) {
	startCard := ct.cardIndex(start)
	// Only boundaries strictly inside the cell get entries for this cell;
	// the boundary at or before start belongs to an earlier cell.
	first := startCard + 1
	if ct.CardStart(startCard) == start {
		first = startCard
	}
	last := ct.cardIndex(end - 1)

	for i := first; i <= last; i++ {
		dist := (ct.CardStart(i) - start) >> LogHeapAlign
		if dist <= maxInlineBoundary {
			ct.boundaries[i] = int8(dist)
			continue
		}
		// Too far for an inline distance: store a back-off exponent. The
		// jump must land at or after the card of the cell head so the walk
		// stays within entries written for this cell.
		back := i - startCard
		exp := int8(0)
		for (1 << (exp + 1)) <= back && exp < 7 {
			exp++
		}
		ct.boundaries[i] = -exp
	}
}

// FirstCellHead resolves the boundary table for card idx: the address of
// the first cell head at or before the card's start.
func (ct *CardTable) FirstCellHead(idx int) Address {
	for ct.boundaries[idx] < 0 {
		idx -= 1 << uint(-ct.boundaries[idx])
	}
	return ct.CardStart(idx) - Address(ct.boundaries[idx])<<LogHeapAlign
}
