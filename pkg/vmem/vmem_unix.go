//go:build unix

package vmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// reserve maps an anonymous, private, zeroed region. The kernel commits
// pages lazily, so reserving a full segment costs address space rather than
// resident memory until the allocator actually touches it.
func reserve(size uint64) (*Reservation, error) {
	if size == 0 {
		return nil, fmt.Errorf("cannot reserve an empty region")
	}

	data, err := unix.Mmap(
		-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap of %d bytes failed: %w", size, err)
	}

	return &Reservation{data: data, unmap: unix.Munmap}, nil
}

// DropPages tells the kernel the byte range's contents are no longer needed,
// allowing resident pages to be reclaimed while keeping the mapping intact.
// The range must lie inside a single reservation. Failures are advisory and
// reported to the caller only for logging.
func DropPages(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	return unix.Madvise(region, unix.MADV_DONTNEED)
}
