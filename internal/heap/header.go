package heap

// Every cell begins with a 64-bit header that encodes its kind and size,
// and, once the cell has been evacuated, the forwarding pointer to its new
// location. The layout is:
//
//	bits  0..7   cell kind
//	bit   8      forwarded flag
//	bits 32..63  cell size in bytes, or the forwarding pointer when the
//	             forwarded flag is set
//
// A size of zero marks a large cell: its true size is not representable in
// the header and is recovered from its jumbo segment's metadata. Kind and
// size are immutable after construction; the forwarded state is the single
// exception, installed by the evacuator while the mutator is paused.
type Header uint64

const (
	headerKindMask  = 0xFF
	headerFwdFlag   = 1 << 8
	headerHighShift = 32
)

// KindID is the raw cell-kind discriminant. The cell package layers its
// typed kind enumeration and metadata table on top of it.
type KindID uint8

// NewHeader builds a header for a live cell of the given kind and size.
func NewHeader(kind KindID, size uint32) Header {
	return Header(uint64(kind) | uint64(size)<<headerHighShift)
}

// Kind returns the cell kind.
func (h Header) Kind() KindID {
	return KindID(h & headerKindMask)
}

// Size returns the cell size in bytes; zero for large cells.
func (h Header) Size() uint32 {
	return uint32(h >> headerHighShift)
}

// IsForwarded reports whether the cell has been evacuated and the header
// now carries a forwarding pointer in place of the size.
func (h Header) IsForwarded() bool {
	return h&headerFwdFlag != 0
}

// ForwardingPointer returns the evacuated cell's new location.
func (h Header) ForwardingPointer() Address {
	return Address(uint32(h >> headerHighShift))
}

// WithForwarding returns the header rewritten to point at the cell's new
// location. Kind is preserved so finalization scans can still classify the
// original cell.
func (h Header) WithForwarding(to Address) Header {
	return Header(uint64(h.Kind()) | headerFwdFlag | uint64(uint32(to))<<headerHighShift)
}
