package hades

import (
	"github.com/facebook/hermes-sub002/pkg/value"
)

// SymbolTable interns symbol names and hands out dense ids. The collector
// treats ids as opaque; at the end of an old collection it returns a
// liveness bitmap and the table reclaims every id whose bit is clear,
// recycling it for future interning.
type SymbolTable struct {
	names  []string
	inUse  []bool
	byName map[string]value.SymbolID
	free   []value.SymbolID
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]value.SymbolID)}
}

// Intern returns the id for name, allocating one on first use.
func (t *SymbolTable) Intern(name string) value.SymbolID {
	if id, ok := t.byName[name]; ok {
		return id
	}

	var id value.SymbolID
	if n := len(t.free); n > 0 {
		id = t.free[n-1]
		t.free = t.free[:n-1]
		t.names[id] = name
		t.inUse[id] = true
	} else {
		id = value.SymbolID(len(t.names))
		t.names = append(t.names, name)
		t.inUse = append(t.inUse, true)
	}
	t.byName[name] = id
	return id
}

// Name returns the interned name of a live id.
func (t *SymbolTable) Name(id value.SymbolID) string {
	return t.names[id]
}

// SymbolsEnd returns one past the highest id ever allocated.
func (t *SymbolTable) SymbolsEnd() uint32 {
	return uint32(len(t.names))
}

// IsLive reports whether an id is currently allocated.
func (t *SymbolTable) IsLive(id value.SymbolID) bool {
	return int(id) < len(t.inUse) && t.inUse[id]
}

// FreeDead reclaims every id below the bitmap's coverage whose bit is
// clear. The collector calls this with the union of marker- and
// barrier-observed symbols.
func (t *SymbolTable) FreeDead(live []uint64) {
	covered := len(live) * 64
	for id := 0; id < len(t.names) && id < covered; id++ {
		if !t.inUse[id] {
			continue
		}
		if live[id/64]&(1<<(uint(id)%64)) != 0 {
			continue
		}
		delete(t.byName, t.names[id])
		t.names[id] = ""
		t.inUse[id] = false
		t.free = append(t.free, value.SymbolID(id))
	}
}

// NumLive counts allocated ids; diagnostics only.
func (t *SymbolTable) NumLive() int {
	n := 0
	for _, u := range t.inUse {
		if u {
			n++
		}
	}
	return n
}
