//go:build !unix

package vmem

import "fmt"

// reserve falls back to Go-heap backing on platforms without mmap. Release
// simply drops the reference and lets the Go runtime reclaim the pages.
func reserve(size uint64) (*Reservation, error) {
	if size == 0 {
		return nil, fmt.Errorf("cannot reserve an empty region")
	}
	return &Reservation{data: make([]byte, size)}, nil
}

// DropPages has no portable equivalent without mmap; zeroing would cost the
// very pages the caller is trying to give back, so it does nothing.
func DropPages(region []byte) error {
	return nil
}
