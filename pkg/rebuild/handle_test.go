package rebuild

import (
	"context"
	"errors"

	"github.com/nexusd/nexusd/pkg/bdev"
)

// failingRebuildHandle is a test-only BlockDeviceHandle whose ReadAt always
// fails when fail is true, used to exercise Job's failure path.
type failingRebuildHandle struct {
	fail bool
}

func (h *failingRebuildHandle) Geometry() bdev.Geometry { return bdev.Geometry{BlockSize: 4096, NumBlocks: 64} }
func (h *failingRebuildHandle) Close(ctx context.Context) error { return nil }

func (h *failingRebuildHandle) ReadAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.fail {
		return 0, errors.New("rebuild test: injected read failure")
	}
	return len(buf), nil
}

func (h *failingRebuildHandle) WriteAt(ctx context.Context, off int64, buf []byte) (int, error) {
	return len(buf), nil
}

func (h *failingRebuildHandle) ReadV(ctx context.Context, iov []bdev.IoVec, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingRebuildHandle) WriteV(ctx context.Context, iov []bdev.IoVec, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingRebuildHandle) UnmapBlocks(ctx context.Context, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingRebuildHandle) WriteZeroes(ctx context.Context, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
func (h *failingRebuildHandle) Reset(ctx context.Context, cb bdev.CompletionFunc, arg any) error {
	cb(arg, nil)
	return nil
}
