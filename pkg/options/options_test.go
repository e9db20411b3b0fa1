package options

import (
	"testing"

	"github.com/facebook/hermes-sub002/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	opts := NewDefaultOptions()
	require.NoError(t, opts.Validate())
	assert.Equal(t, DefaultHeapName, opts.Name)
	assert.True(t, opts.AllocInYoung)
	assert.False(t, opts.RevertToYGAtTTI)
}

func TestFunctionalOptions(t *testing.T) {
	opts := NewDefaultOptions()
	for _, fn := range []OptionFunc{
		WithName("isolate-7"),
		WithHeapSizes(8<<20, 16<<20, 128<<20),
		WithOccupancyTarget(0.6),
		WithAllocInYoung(false),
		WithRevertToYGAtTTI(true),
	} {
		fn(&opts)
	}

	require.NoError(t, opts.Validate())
	assert.Equal(t, "isolate-7", opts.Name)
	assert.EqualValues(t, 8<<20, opts.MinHeapSize)
	assert.EqualValues(t, 16<<20, opts.InitHeapSize)
	assert.EqualValues(t, 128<<20, opts.MaxHeapSize)
	assert.Equal(t, 0.6, opts.OccupancyTarget)
	assert.False(t, opts.AllocInYoung)
	assert.True(t, opts.RevertToYGAtTTI)
}

func TestSettersClampInvalidValues(t *testing.T) {
	opts := NewDefaultOptions()

	// Out-of-range values leave the previous setting in place.
	WithOccupancyTarget(0.01)(&opts)
	assert.Equal(t, DefaultOccupancyTarget, opts.OccupancyTarget)

	WithMaxHeapSize(1024)(&opts)
	assert.EqualValues(t, DefaultMaxHeapSize, opts.MaxHeapSize)

	WithName("   ")(&opts)
	assert.Equal(t, DefaultHeapName, opts.Name)
}

func TestValidateOrdering(t *testing.T) {
	opts := NewDefaultOptions()
	opts.MinHeapSize = opts.MaxHeapSize * 2
	err := opts.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	opts = NewDefaultOptions()
	opts.InitHeapSize = opts.MaxHeapSize * 2
	ve, ok := errors.AsValidationError(opts.Validate())
	require.True(t, ok)
	assert.Equal(t, "initHeapSize", ve.Field())
}

func TestValidateTripwireNeedsCallback(t *testing.T) {
	opts := NewDefaultOptions()
	opts.TripwireLimit = 1 << 20
	require.Error(t, opts.Validate())

	opts.TripwireCallback = func(TripwireContext) error { return nil }
	require.NoError(t, opts.Validate())
}
