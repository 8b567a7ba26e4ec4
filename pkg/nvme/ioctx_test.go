package nvme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtxPool_AcquireReleaseRoundTrip(t *testing.T) {
	p := newCtxPool(4)
	assert.Equal(t, 0, p.inFlight())

	h1, ctx1, err := p.acquire()
	require.NoError(t, err)
	ctx1.lba = 42
	assert.Equal(t, 1, p.inFlight())

	got := p.get(h1)
	assert.EqualValues(t, 42, got.lba)

	p.release(h1)
	assert.Equal(t, 0, p.inFlight())
}

func TestCtxPool_ExhaustionReturnsError(t *testing.T) {
	p := newCtxPool(2)
	_, _, err := p.acquire()
	require.NoError(t, err)
	_, _, err = p.acquire()
	require.NoError(t, err)

	_, _, err = p.acquire()
	assert.ErrorIs(t, err, ErrContextPoolFull)
}

func TestCtxPool_DoubleReleaseIsNoop(t *testing.T) {
	p := newCtxPool(2)
	h, _, err := p.acquire()
	require.NoError(t, err)
	p.release(h)
	assert.NotPanics(t, func() { p.release(h) })
	assert.Equal(t, 0, p.inFlight())
}
