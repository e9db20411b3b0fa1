package storage

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Provider represents the storage component responsible for reserving and
// releasing the memory regions that back heap segments. It owns the
// footprint accounting for every live reservation and is the single choke
// point through which the heap acquires memory from the host.
//
// The Provider struct encapsulates all the state needed to manage segment
// storage effectively: accounting for reserved bytes, a logger for
// observability, and lifecycle tracking so late reservations fail cleanly
// after shutdown.
type Provider struct {
	mu            sync.Mutex         // Protects the accounting fields below.
	reservedBytes uint64             // Bytes currently reserved from the host.
	peakBytes     uint64             // High-water mark of reservedBytes.
	numCreated    uint64             // Total reservations handed out.
	numReleased   uint64             // Total reservations returned.
	closed        atomic.Bool        // Flag indicating whether the provider has been closed.
	log           *zap.SugaredLogger // Structured logger for operational visibility and debugging.
}

// Config encapsulates all the configuration parameters required to
// initialize a Provider instance.
type Config struct {
	Logger *zap.SugaredLogger
}
