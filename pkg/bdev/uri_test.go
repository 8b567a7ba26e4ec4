package bdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI_Malloc(t *testing.T) {
	p, err := ParseURI("malloc:///disk0?size_mb=64&blk_size=512")
	require.NoError(t, err)
	assert.Equal(t, SchemeMalloc, p.Scheme)
	assert.Equal(t, "disk0", p.Path)
	assert.EqualValues(t, 64, p.SizeMB)
	assert.EqualValues(t, 512, p.BlockSize)
}

func TestParseURI_AioRejectsBadBlockSize(t *testing.T) {
	_, err := ParseURI("aio:///tmp/disk0.img?blk_size=1000")
	assert.ErrorIs(t, err, ErrUriInvalid)
}

func TestParseURI_NvmfRequiresNQN(t *testing.T) {
	_, err := ParseURI("nvmf://10.0.0.1:4420")
	assert.ErrorIs(t, err, ErrUriInvalid)
}

func TestParseURI_Nvmf(t *testing.T) {
	p, err := ParseURI("nvmf://10.0.0.1:4420/nqn.2019-05.io.openebs:disk0")
	require.NoError(t, err)
	assert.Equal(t, SchemeNvmf, p.Scheme)
	assert.Equal(t, "10.0.0.1", p.Host)
	assert.Equal(t, 4420, p.Port)
	assert.Equal(t, "nqn.2019-05.io.openebs:disk0", p.NQN)
}

func TestParseURI_RejectsUnknownQueryParam(t *testing.T) {
	_, err := ParseURI("malloc:///disk0?size_mb=64&bogus=1")
	assert.ErrorIs(t, err, ErrUriInvalid)
}

func TestParseURI_SizeMBAndNumBlocksMutuallyExclusive(t *testing.T) {
	_, err := ParseURI("malloc:///disk0?size_mb=64&num_blocks=100")
	assert.ErrorIs(t, err, ErrUriInvalid)
}

func TestParseURI_UnrecognizedScheme(t *testing.T) {
	_, err := ParseURI("ftp:///disk0")
	assert.ErrorIs(t, err, ErrUriInvalid)
}

func TestDeriveSizeBytes(t *testing.T) {
	p := &ParsedURI{SizeMB: 4096}
	size, err := p.DeriveSizeBytes(512)
	require.NoError(t, err)
	assert.EqualValues(t, 4096*1024*1024, size)

	p2 := &ParsedURI{NumBlocks: 2048}
	size2, err := p2.DeriveSizeBytes(512)
	require.NoError(t, err)
	assert.EqualValues(t, 2048*512, size2)

	_, err = (&ParsedURI{}).DeriveSizeBytes(512)
	assert.Error(t, err)
}
