package storage

import (
	"testing"

	"github.com/facebook/hermes-sub002/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(&Config{Logger: logger.NewNop()})
	require.NoError(t, err)
	return p
}

func TestProviderAccounting(t *testing.T) {
	p := newTestProvider(t)

	res, err := p.Create(4<<20, "test:HeapSegment:0")
	require.NoError(t, err)
	assert.EqualValues(t, 4<<20, p.ReservedBytes())
	assert.Equal(t, "test:HeapSegment:0", res.Name())

	res2, err := p.Create(4<<20, "test:HeapSegment:1")
	require.NoError(t, err)
	assert.EqualValues(t, 8<<20, p.ReservedBytes())
	assert.EqualValues(t, 8<<20, p.PeakBytes())

	require.NoError(t, p.Release(res))
	assert.EqualValues(t, 4<<20, p.ReservedBytes())
	assert.EqualValues(t, 8<<20, p.PeakBytes())

	require.NoError(t, p.Release(res2))
	require.NoError(t, p.Close())
}

func TestProviderRejectsAfterClose(t *testing.T) {
	p := newTestProvider(t)
	require.NoError(t, p.Close())

	_, err := p.Create(4<<20, "late")
	assert.ErrorIs(t, err, ErrProviderClosed)
	assert.ErrorIs(t, p.Close(), ErrProviderClosed)
}

func TestProviderCloseReportsLeaks(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.Create(4<<20, "leaked")
	require.NoError(t, err)

	assert.Error(t, p.Close(), "closing with live reservations must report the leak")
}

func TestProviderZeroedRegions(t *testing.T) {
	p := newTestProvider(t)
	res, err := p.Create(4<<20, "zeroed")
	require.NoError(t, err)

	for _, b := range res.Bytes() {
		if b != 0 {
			t.Fatal("segment storage must be zeroed")
		}
	}
	require.NoError(t, p.Release(res))
	require.NoError(t, p.Close())
}
