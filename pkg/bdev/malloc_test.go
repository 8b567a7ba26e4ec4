package bdev

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMallocDevice_ReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	dev := NewMalloc("disk0", Geometry{BlockSize: 512, NumBlocks: 16})
	h, err := dev.Open(ctx, 0)
	require.NoError(t, err)
	defer h.Close(ctx)

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}

	n, err := h.WriteAt(ctx, 512, data)
	require.NoError(t, err)
	assert.Equal(t, 512, n)

	readBack := make([]byte, 512)
	n, err = h.ReadAt(ctx, 512, readBack)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, data, readBack)
}

func TestMallocDevice_RejectsUnalignedOffset(t *testing.T) {
	ctx := context.Background()
	dev := NewMalloc("disk0", Geometry{BlockSize: 512, NumBlocks: 16})
	h, err := dev.Open(ctx, 0)
	require.NoError(t, err)

	_, err = h.ReadAt(ctx, 100, make([]byte, 512))
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestMallocDevice_UnmapZeroesRange(t *testing.T) {
	ctx := context.Background()
	dev := NewMalloc("disk0", Geometry{BlockSize: 512, NumBlocks: 16})
	h, err := dev.Open(ctx, 0)
	require.NoError(t, err)

	data := make([]byte, 512)
	for i := range data {
		data[i] = 0xff
	}
	_, err = h.WriteAt(ctx, 0, data)
	require.NoError(t, err)

	done := make(chan error, 1)
	err = h.UnmapBlocks(ctx, 0, 1, func(arg any, err error) { done <- err }, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)

	readBack := make([]byte, 512)
	_, err = h.ReadAt(ctx, 0, readBack)
	require.NoError(t, err)
	for _, b := range readBack {
		assert.Zero(t, b)
	}
}

func TestMallocDevice_ReadPastEndFails(t *testing.T) {
	ctx := context.Background()
	dev := NewMalloc("disk0", Geometry{BlockSize: 512, NumBlocks: 2})
	h, err := dev.Open(ctx, 0)
	require.NoError(t, err)

	_, err = h.ReadAt(ctx, 512, make([]byte, 1024))
	assert.ErrorIs(t, err, ErrInvalidOffset)
}
