package label

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/bdev"
)

const (
	testBlockSize = 512
	testNumBlocks = 1024 * 1024 // 512 MiB device
	testDataSize  = 256 * 1024 * 1024
)

func TestGenerate_ProducesConsistentHeaders(t *testing.T) {
	guid := FromUUID(uuid.New())
	l, err := Generate(guid, testBlockSize, testNumBlocks, testDataSize)
	require.NoError(t, err)

	assert.Equal(t, StatusNeither, l.Status)
	assert.Equal(t, guid, l.Primary.GUID)
	assert.Equal(t, l.Primary.GUID, l.Secondary.GUID)
	assert.Equal(t, l.Primary.LBASelf, l.Secondary.LBAAlt)
	assert.Equal(t, l.Primary.LBAAlt, l.Secondary.LBASelf)
	assert.Equal(t, l.Primary.TableCRC, l.Secondary.TableCRC)

	meta, ok := l.GetPartition(metaPartitionName)
	require.True(t, ok)
	data, ok := l.GetPartition(dataPartitionName)
	require.True(t, ok)
	assert.Less(t, meta.EntEnd, data.EntStart)
}

func TestGenerate_DeviceTooSmallForMetadata(t *testing.T) {
	guid := FromUUID(uuid.New())
	_, err := Generate(guid, testBlockSize, 64, testDataSize)
	assert.ErrorIs(t, err, ErrDeviceTooSmall)
}

func TestWriteThenProbe_RoundTrip(t *testing.T) {
	ctx := context.Background()
	guid := FromUUID(uuid.New())
	l, err := Generate(guid, testBlockSize, testNumBlocks, testDataSize)
	require.NoError(t, err)

	dev := bdev.NewMalloc("disk0", bdev.Geometry{BlockSize: testBlockSize, NumBlocks: testNumBlocks})
	h, err := dev.Open(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, Write(ctx, h, l))

	probed, err := Probe(ctx, h, testBlockSize, testNumBlocks)
	require.NoError(t, err)
	assert.Equal(t, StatusBoth, probed.Status)
	assert.Equal(t, guid, probed.Primary.GUID)
	assert.Equal(t, l.Primary.TableCRC, probed.Primary.TableCRC)

	meta, ok := probed.GetPartition(metaPartitionName)
	require.True(t, ok)
	assert.Equal(t, metaPartitionName, meta.Name)
}

func TestProbe_ReconstructsFromSecondaryWhenPrimaryCorrupt(t *testing.T) {
	ctx := context.Background()
	guid := FromUUID(uuid.New())
	l, err := Generate(guid, testBlockSize, testNumBlocks, testDataSize)
	require.NoError(t, err)

	dev := bdev.NewMalloc("disk1", bdev.Geometry{BlockSize: testBlockSize, NumBlocks: testNumBlocks})
	h, err := dev.Open(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, Write(ctx, h, l))

	garbage := make([]byte, testBlockSize)
	_, err = h.WriteAt(ctx, testBlockSize, garbage)
	require.NoError(t, err)

	probed, err := Probe(ctx, h, testBlockSize, testNumBlocks)
	require.NoError(t, err)
	assert.Equal(t, StatusSecondary, probed.Status)
}

func TestGUID_RoundTripsThroughUUID(t *testing.T) {
	u := uuid.New()
	g := FromUUID(u)
	assert.Equal(t, u, g.ToUUID())
}
