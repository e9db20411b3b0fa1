// Package storage provides the memory reservations that back heap segments.
//
// This package was designed to solve the storage-provider half of the heap
// manager's contract: the collector above it thinks entirely in terms of
// fixed-size "unit" storages and larger, unit-multiple "jumbo" storages, and
// this package turns each of those requests into one contiguous anonymous
// memory region obtained from the host.
//
// Core Architecture:
//
// The provider hands out vmem reservations and keeps the authoritative
// footprint accounting for them. Every byte the heap holds, whether in an
// active segment, a jumbo cell, or a compactee awaiting release, is
// represented by exactly one live reservation created here. That makes the
// provider's reserved-bytes counter the number to compare against the
// configured heap ceiling, and the number published to crash reports.
//
// Unlike a file-backed store there is no recovery path: heap memory is
// process-lifetime only. What the provider does guarantee is that releases
// genuinely return memory to the host on platforms with mmap, and that a
// failure to reserve is reported as a typed storage-exhaustion error the
// collector can convert into its out-of-memory flow.
package storage

import (
	"fmt"

	"github.com/facebook/hermes-sub002/pkg/errors"
	"github.com/facebook/hermes-sub002/pkg/vmem"
	"go.uber.org/multierr"
)

var (
	// ErrProviderClosed is returned when a reservation is requested from a
	// provider that has been shut down.
	ErrProviderClosed = fmt.Errorf("operation failed: cannot access closed storage provider")
)

// New creates and initializes a new Provider instance.
func New(config *Config) (*Provider, error) {
	// Input validation ensures we have valid configuration before proceeding.
	if config == nil || config.Logger == nil {
		return nil, fmt.Errorf("invalid configuration")
	}

	config.Logger.Infow("Initializing segment storage provider")

	return &Provider{log: config.Logger}, nil
}

// Create reserves a zeroed region of exactly size bytes and attaches the
// given advisory name. The size must be a positive multiple of the unit
// segment size; the heap layer guarantees this, so violations are programmer
// errors surfaced as internal errors rather than validated per call.
func (p *Provider) Create(size uint64, name string) (*vmem.Reservation, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}

	res, err := vmem.Reserve(size)
	if err != nil {
		p.mu.Lock()
		footprint := p.reservedBytes
		p.mu.Unlock()

		p.log.Errorw(
			"Failed to reserve segment storage",
			"error", err,
			"size", size,
			"name", name,
			"reservedBytes", footprint,
		)
		return nil, errors.ClassifyStorageCreationError(err, size, footprint)
	}

	res.SetName(name)

	p.mu.Lock()
	p.reservedBytes += size
	p.numCreated++
	if p.reservedBytes > p.peakBytes {
		p.peakBytes = p.reservedBytes
	}
	p.mu.Unlock()

	p.log.Debugw(
		"Reserved segment storage",
		"size", size,
		"name", name,
	)

	return res, nil
}

// Release returns a reservation to the host and debits the accounting.
func (p *Provider) Release(res *vmem.Reservation) error {
	size := res.Size()
	name := res.Name()

	if err := res.Release(); err != nil {
		return fmt.Errorf("failed to release segment storage %q: %w", name, err)
	}

	p.mu.Lock()
	p.reservedBytes -= size
	p.numReleased++
	p.mu.Unlock()

	p.log.Debugw("Released segment storage", "size", size, "name", name)
	return nil
}

// ReservedBytes returns the bytes currently reserved from the host.
func (p *Provider) ReservedBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reservedBytes
}

// PeakBytes returns the high-water mark of reserved bytes.
func (p *Provider) PeakBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peakBytes
}

// Close shuts the provider down. Outstanding reservations stay valid; the
// heap releases them individually during its own shutdown, so Close only
// flips the lifecycle flag and reports leaked accounting.
func (p *Provider) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrProviderClosed
	}

	p.mu.Lock()
	reserved := p.reservedBytes
	created := p.numCreated
	released := p.numReleased
	p.mu.Unlock()

	p.log.Infow(
		"Closing segment storage provider",
		"reservedBytes", reserved,
		"numCreated", created,
		"numReleased", released,
	)

	var err error
	if reserved != 0 {
		err = multierr.Append(err, fmt.Errorf(
			"storage provider closed with %d bytes still reserved", reserved,
		))
	}
	return err
}
