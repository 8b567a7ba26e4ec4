package nexus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/errstore"
	"github.com/nexusd/nexusd/pkg/registry"
)

func mallocURIs(prefix string, n int, sizeMB int) []string {
	uris := make([]string, n)
	for i := 0; i < n; i++ {
		uris[i] = fmt.Sprintf("malloc:///%s-%d?size_mb=%d", prefix, i, sizeMB)
	}
	return uris
}

func TestCreate_FreshNexusCreateLabels(t *testing.T) {
	cfg := Config{
		Name:        "nexus-fresh",
		SizeBytes:   8 * 1024 * 1024,
		ChildURIs:   mallocURIs("nexus-fresh-child", 3, 16),
		ErrorPolicy: errstore.DefaultPolicy,
		Registry:    registry.New(),
		LabelMode:   LabelModeCreate,
	}

	n, err := Create(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, n.Children(), 3)
	assert.Len(t, n.OpenChildren(), 3)
	assert.Equal(t, uint32(4096), n.BlockSize())
	assert.Greater(t, n.NumBlocks(), uint64(0))
}

func TestCreate_RejectsMismatchedBlockSizes(t *testing.T) {
	cfg := Config{
		Name:        "nexus-mixed",
		SizeBytes:   8 * 1024 * 1024,
		ChildURIs:   []string{"malloc:///nexus-mixed-0?size_mb=16&blk_size=4096", "malloc:///nexus-mixed-1?size_mb=16&blk_size=512"},
		ErrorPolicy: errstore.DefaultPolicy,
		Registry:    registry.New(),
		LabelMode:   LabelModeCreate,
	}
	_, err := Create(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrMixedBlockSizes)
}

func TestCreate_RejectsDeviceTooSmall(t *testing.T) {
	cfg := Config{
		Name:        "nexus-small",
		SizeBytes:   64 * 1024 * 1024,
		ChildURIs:   mallocURIs("nexus-small-child", 2, 1),
		ErrorPolicy: errstore.DefaultPolicy,
		Registry:    registry.New(),
		LabelMode:   LabelModeCreate,
	}
	_, err := Create(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCreate_NoChildrenFails(t *testing.T) {
	cfg := Config{
		Name:        "nexus-empty",
		SizeBytes:   8 * 1024 * 1024,
		ErrorPolicy: errstore.DefaultPolicy,
	}
	_, err := Create(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNexusIncomplete)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	cfg := Config{
		Name:        "nexus-rw",
		SizeBytes:   8 * 1024 * 1024,
		ChildURIs:   mallocURIs("nexus-rw-child", 2, 16),
		ErrorPolicy: errstore.DefaultPolicy,
		Registry:    registry.New(),
		LabelMode:   LabelModeCreate,
	}
	n, err := Create(context.Background(), cfg)
	require.NoError(t, err)

	offset := int64(n.DataOffset() * uint64(n.BlockSize()))
	buf := make([]byte, n.BlockSize())
	for i := range buf {
		buf[i] = 0x42
	}

	_, err = n.WriteAt(context.Background(), offset, buf)
	require.NoError(t, err)

	readBuf := make([]byte, n.BlockSize())
	_, err = n.ReadAt(context.Background(), offset, readBuf)
	require.NoError(t, err)
	assert.Equal(t, buf, readBuf)
}
