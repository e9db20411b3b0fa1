// Package options provides data structures and functions for configuring
// the heap manager. It defines the parameters that control heap sizing,
// collection scheduling, and diagnostics: minimum/initial/maximum heap
// sizes, the post-collection occupancy target, young-generation allocation
// behavior, and the tripwire and analytics hooks.
package options

import (
	"strings"
	"time"

	"github.com/facebook/hermes-sub002/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// TripwireContext carries the heap measurements available to a tripwire
// callback. The callback runs on the mutator thread after an old-generation
// collection whose surviving bytes exceeded the configured limit; it must not
// allocate on the heap that fired it.
type TripwireContext struct {
	// AllocatedBytes is the number of bytes in live cells plus external
	// memory credited against the heap at the end of the collection.
	AllocatedBytes uint64

	// HeapFootprint is the total number of bytes reserved from the storage
	// provider, including segment metadata overhead.
	HeapFootprint uint64

	// Limit echoes the configured tripwire limit that was crossed.
	Limit uint64
}

// AnalyticsEvent summarizes one completed collection cycle for the host's
// telemetry pipeline. One event is emitted per young collection and one per
// old collection.
type AnalyticsEvent struct {
	Runtime          string        // Description of the GC build, e.g. "hades (concurrent)".
	CollectionType   string        // "young" or "old".
	Cause            string        // What triggered the collection.
	Duration         time.Duration // Wall time the mutator was paused.
	AllocatedBefore  uint64        // Live bytes before the collection.
	AllocatedAfter   uint64        // Live bytes after the collection.
	SizeBefore       uint64        // Heap footprint before the collection.
	SizeAfter        uint64        // Heap footprint after the collection.
	SurvivalRatio    float64       // Fraction of scanned bytes that survived.
	TotalCollections uint64        // Running count of collections of this type.
}

// Defines the configuration parameters for a heap instance. It provides
// control over sizing, collection scheduling, and observability.
type Options struct {
	// Name identifies this heap in crash-manager custom data and metric
	// labels. Hosts embedding several runtimes give each a distinct name.
	//
	// Default: "hades"
	Name string `json:"name"`

	// MinHeapSize is the floor for the heap footprint in bytes. The old
	// generation's target size never adapts below it.
	//
	// Default: 4MB
	MinHeapSize uint64 `json:"minHeapSize"`

	// InitHeapSize seeds the old generation's target size before any
	// collection has produced occupancy measurements.
	//
	// Default: 32MB
	InitHeapSize uint64 `json:"initHeapSize"`

	// MaxHeapSize is the hard ceiling for the heap footprint in bytes.
	// Allocations that cannot be satisfied within it fail with OutOfMemory.
	//
	//  - Default: 1GB
	//  - Minimum: 8MB (one young + one old segment)
	MaxHeapSize uint64 `json:"maxHeapSize"`

	// OccupancyTarget is the desired ratio of live bytes to old-generation
	// size after a collection. Lower values trade memory for shorter
	// collections; higher values run the heap closer to full.
	//
	//  - Default: 0.5
	//  - Range: [0.25, 0.9]
	OccupancyTarget float64 `json:"occupancyTarget"`

	// AllocInYoung controls whether ordinary allocations go through the
	// young generation bump pointer. When false, every allocation is served
	// directly by the old generation; used for startup phases dominated by
	// long-lived objects.
	//
	// Default: true
	AllocInYoung bool `json:"allocInYoung"`

	// RevertToYGAtTTI promotes whole young segments into the old generation
	// until TTIReached is signalled, at which point normal copying young
	// collections resume. Pairs with AllocInYoung=false for fast startup.
	//
	// Default: false
	RevertToYGAtTTI bool `json:"revertToYGAtTTI"`

	// TripwireLimit is the number of surviving bytes after an old collection
	// above which the tripwire callback fires. Zero disables the tripwire.
	TripwireLimit uint64 `json:"tripwireLimit"`

	// TripwireCallback is invoked at most once per crossing of the tripwire
	// limit; it re-arms when a later collection finishes below the limit.
	// Errors returned from the callback are logged and dropped.
	TripwireCallback func(TripwireContext) error `json:"-"`

	// AnalyticsCallback receives one event per completed collection cycle.
	AnalyticsCallback func(AnalyticsEvent) `json:"-"`

	// MetricsRegisterer, when non-nil, receives the heap's Prometheus
	// collectors (footprint and allocated-bytes gauges, collection counters,
	// pause-duration histograms).
	MetricsRegisterer prometheus.Registerer `json:"-"`
}

// OptionFunc is a function type that modifies the heap configuration.
type OptionFunc func(*Options)

// Applies a predefined set of default configuration values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// Sets the heap name used in crash data and metric labels.
func WithName(name string) OptionFunc {
	return func(o *Options) {
		name = strings.TrimSpace(name)
		if name != "" {
			o.Name = name
		}
	}
}

// Sets the minimum, initial, and maximum heap sizes together. Values of zero
// keep the current setting, as does a maximum below MinConfigurableHeapSize.
// The three are not reordered; Validate rejects an unordered set.
func WithHeapSizes(min, init, max uint64) OptionFunc {
	return func(o *Options) {
		if min > 0 {
			o.MinHeapSize = min
		}
		if init > 0 {
			o.InitHeapSize = init
		}
		if max >= MinConfigurableHeapSize {
			o.MaxHeapSize = max
		}
	}
}

// Sets the maximum heap size.
func WithMaxHeapSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size >= MinConfigurableHeapSize {
			o.MaxHeapSize = size
		}
	}
}

// Sets the post-collection occupancy target.
func WithOccupancyTarget(target float64) OptionFunc {
	return func(o *Options) {
		if target >= MinOccupancyTarget && target <= MaxOccupancyTarget {
			o.OccupancyTarget = target
		}
	}
}

// Controls whether ordinary allocations are served by the young generation.
func WithAllocInYoung(enabled bool) OptionFunc {
	return func(o *Options) {
		o.AllocInYoung = enabled
	}
}

// Enables whole-segment young-generation promotion until the
// time-to-interactive signal arrives.
func WithRevertToYGAtTTI(enabled bool) OptionFunc {
	return func(o *Options) {
		o.RevertToYGAtTTI = enabled
	}
}

// Configures the heap-size tripwire.
func WithTripwire(limit uint64, callback func(TripwireContext) error) OptionFunc {
	return func(o *Options) {
		o.TripwireLimit = limit
		o.TripwireCallback = callback
	}
}

// Installs the analytics callback invoked after each collection.
func WithAnalyticsCallback(callback func(AnalyticsEvent)) OptionFunc {
	return func(o *Options) {
		o.AnalyticsCallback = callback
	}
}

// Installs the Prometheus registerer that receives the heap's collectors.
func WithMetricsRegisterer(reg prometheus.Registerer) OptionFunc {
	return func(o *Options) {
		o.MetricsRegisterer = reg
	}
}

// Validate checks the configuration for internal consistency. It returns a
// ValidationError describing the first violated constraint, or nil when the
// configuration is usable.
func (o *Options) Validate() error {
	if o.Name == "" {
		return errors.NewRequiredFieldError("name")
	}
	if o.MaxHeapSize < MinConfigurableHeapSize {
		return errors.NewFieldRangeError(
			"maxHeapSize", o.MaxHeapSize, MinConfigurableHeapSize, uint64(1)<<35,
		)
	}
	if o.MinHeapSize > o.MaxHeapSize {
		return errors.NewConfigurationValidationError(
			"minHeapSize", "minimum heap size exceeds maximum heap size",
		).WithProvided(o.MinHeapSize)
	}
	if o.InitHeapSize < o.MinHeapSize || o.InitHeapSize > o.MaxHeapSize {
		return errors.NewFieldRangeError(
			"initHeapSize", o.InitHeapSize, o.MinHeapSize, o.MaxHeapSize,
		)
	}
	if o.OccupancyTarget < MinOccupancyTarget || o.OccupancyTarget > MaxOccupancyTarget {
		return errors.NewFieldRangeError(
			"occupancyTarget", o.OccupancyTarget, MinOccupancyTarget, MaxOccupancyTarget,
		)
	}
	if o.TripwireLimit > 0 && o.TripwireCallback == nil {
		return errors.NewConfigurationValidationError(
			"tripwireCallback", "a tripwire limit is set but no callback is installed",
		)
	}
	return nil
}
