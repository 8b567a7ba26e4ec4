package nexus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/errstore"
)

// failingDevice is a test-only BlockDevice that fails every WriteAt/ReadAt
// until its fail counter is exhausted, used to exercise the nexus's
// fan-out/error-store/fault-on-errors behavior without a real backend.
type failingDevice struct {
	name string
	geom bdev.Geometry

	mu        sync.Mutex
	data      []byte
	failCount int
}

func newFailingDevice(name string, geom bdev.Geometry) *failingDevice {
	return &failingDevice{name: name, geom: geom, data: make([]byte, geom.Bytes())}
}

func (d *failingDevice) Kind() bdev.Kind         { return bdev.KindMalloc }
func (d *failingDevice) Name() string            { return d.name }
func (d *failingDevice) Geometry() bdev.Geometry { return d.geom }
func (d *failingDevice) Destroy(ctx context.Context) error { return nil }

func (d *failingDevice) Open(ctx context.Context, core int) (bdev.BlockDeviceHandle, error) {
	return &failingHandle{dev: d}, nil
}

type failingHandle struct{ dev *failingDevice }

func (h *failingHandle) Geometry() bdev.Geometry { return h.dev.Geometry() }
func (h *failingHandle) Close(ctx context.Context) error { return nil }

func (h *failingHandle) shouldFail() bool {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.dev.failCount > 0 {
		h.dev.failCount--
		return true
	}
	return false
}

func (h *failingHandle) ReadAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.shouldFail() {
		return 0, bdev.ErrReadFailed
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	n := copy(buf, h.dev.data[off:])
	return n, nil
}

func (h *failingHandle) WriteAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.shouldFail() {
		return 0, bdev.ErrWriteFailed
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	n := copy(h.dev.data[off:], buf)
	return n, nil
}

func (h *failingHandle) ReadV(ctx context.Context, iov []bdev.IoVec, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingHandle) WriteV(ctx context.Context, iov []bdev.IoVec, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingHandle) UnmapBlocks(ctx context.Context, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingHandle) WriteZeroes(ctx context.Context, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingHandle) Reset(ctx context.Context, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}

func newNexusWithFailingChild(t *testing.T, policy errstore.Policy) (*Nexus, *child.Child) {
	t.Helper()
	geom := bdev.Geometry{BlockSize: 4096, NumBlocks: 4096}

	goodDev := bdev.NewMalloc(t.Name()+"-good", geom)
	badDev := newFailingDevice(t.Name()+"-bad", geom)

	n := &Nexus{
		Name:      t.Name(),
		blockSize: 4096,
		numBlocks: 1024,
		errPol:    policy,
	}

	good := child.New("good", "malloc:///good", policy)
	require.NoError(t, good.Open(context.Background(), goodDev, 4096, 4096))
	require.NoError(t, good.MarkSynced())

	bad := child.New("bad", "malloc:///bad", policy)
	require.NoError(t, bad.Open(context.Background(), badDev, 4096, 4096))
	require.NoError(t, bad.MarkSynced())

	n.children = []*child.Child{good, bad}
	return n, bad
}

func TestFaultOnErrors_ChildFaultedAfterThresholdExceeded(t *testing.T) {
	policy := errstore.Policy{
		Enabled:       true,
		Size:          64,
		MaxErrors:     4,
		GenericAction: errstore.ActionFault,
	}
	n, bad := newNexusWithFailingChild(t, policy)
	badDevRef := bad.Device().(*failingDevice)
	badDevRef.failCount = 20

	// WriteAt fans out to every Open child, so each call drives one
	// failure on the bad child regardless of read-path ordering.
	buf := make([]byte, 4096)
	for i := 0; i < 6; i++ {
		_, err := n.WriteAt(context.Background(), 0, buf)
		assert.NoError(t, err) // good child still accepts the write
	}

	assert.Equal(t, child.StateFaulted, bad.State())
	assert.Equal(t, child.ReasonIoError, bad.FaultReason())

	// Subsequent I/O succeeds entirely via the remaining good child.
	_, err := n.WriteAt(context.Background(), 0, buf)
	assert.NoError(t, err)
	_, err = n.ReadAt(context.Background(), 0, buf)
	assert.NoError(t, err)
}

func TestRetrySemantics_WriteSucceedsWhenFailuresBelowRetries(t *testing.T) {
	policy := errstore.Policy{Enabled: true, Size: 64, MaxErrors: 100, GenericAction: errstore.ActionFault}
	n, bad := newNexusWithFailingChild(t, policy)
	badDevRef := bad.Device().(*failingDevice)

	badDevRef.failCount = 1 // one failure, then succeeds
	buf := make([]byte, 4096)
	_, err := n.WriteAt(context.Background(), 0, buf)
	assert.NoError(t, err) // good child still accepts the write
	assert.Equal(t, child.StateOpen, bad.State(), "one failure under MaxErrors=100 must not fault the child")
}
