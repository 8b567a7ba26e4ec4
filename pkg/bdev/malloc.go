package bdev

import (
	"context"
	"sync"
)

// mallocDevice is an in-memory backend: all blocks live in a single byte
// slice. Used for tests and for the "malloc" URI scheme.
type mallocDevice struct {
	name string
	geom Geometry

	mu   sync.RWMutex
	data []byte
}

// NewMalloc creates an in-memory BlockDevice of the given geometry, zero
// filled.
func NewMalloc(name string, geom Geometry) BlockDevice {
	return &mallocDevice{
		name: name,
		geom: geom,
		data: make([]byte, geom.Bytes()),
	}
}

func (d *mallocDevice) Kind() Kind         { return KindMalloc }
func (d *mallocDevice) Name() string       { return d.name }
func (d *mallocDevice) Geometry() Geometry { return d.geom }

func (d *mallocDevice) Open(ctx context.Context, core int) (BlockDeviceHandle, error) {
	return &mallocHandle{dev: d}, nil
}

func (d *mallocDevice) Destroy(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = nil
	return nil
}

// mallocHandle dispatches I/O directly against the backing slice under the
// device's lock. There is no queue pair or poller to simulate for this
// backend; ReadV/WriteV still run their callbacks synchronously so callers
// written against the asynchronous contract work unmodified.
type mallocHandle struct {
	dev    *mallocDevice
	closed bool
}

func (h *mallocHandle) Geometry() Geometry { return h.dev.Geometry() }

func (h *mallocHandle) ReadAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.closed {
		return 0, ErrNoDevice
	}
	if err := CheckAlignment(off, int64(len(buf)), h.dev.geom.BlockSize); err != nil {
		return 0, err
	}
	h.dev.mu.RLock()
	defer h.dev.mu.RUnlock()
	if off+int64(len(buf)) > int64(len(h.dev.data)) {
		return 0, ErrInvalidOffset
	}
	n := copy(buf, h.dev.data[off:off+int64(len(buf))])
	return n, nil
}

func (h *mallocHandle) WriteAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.closed {
		return 0, ErrNoDevice
	}
	if err := CheckAlignment(off, int64(len(buf)), h.dev.geom.BlockSize); err != nil {
		return 0, err
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if off+int64(len(buf)) > int64(len(h.dev.data)) {
		return 0, ErrInvalidOffset
	}
	n := copy(h.dev.data[off:off+int64(len(buf))], buf)
	return n, nil
}

func (h *mallocHandle) ReadV(ctx context.Context, iov []IoVec, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	off := int64(lba) * int64(h.dev.geom.BlockSize)
	var err error
	for _, v := range iov {
		var n int
		n, err = h.ReadAt(ctx, off, v.Buf)
		off += int64(n)
		if err != nil {
			break
		}
	}
	if cb != nil {
		cb(arg, err)
	}
	return nil
}

func (h *mallocHandle) WriteV(ctx context.Context, iov []IoVec, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	off := int64(lba) * int64(h.dev.geom.BlockSize)
	var err error
	for _, v := range iov {
		var n int
		n, err = h.WriteAt(ctx, off, v.Buf)
		off += int64(n)
		if err != nil {
			break
		}
	}
	if cb != nil {
		cb(arg, err)
	}
	return nil
}

func (h *mallocHandle) UnmapBlocks(ctx context.Context, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	err := h.zeroRange(lba, nblocks)
	if cb != nil {
		cb(arg, err)
	}
	return nil
}

func (h *mallocHandle) WriteZeroes(ctx context.Context, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	// Write-zeroes is implemented as deallocate, per SPEC_FULL.md §4.2.
	return h.UnmapBlocks(ctx, lba, nblocks, cb, arg)
}

func (h *mallocHandle) zeroRange(lba, nblocks uint64) error {
	if h.closed {
		return ErrNoDevice
	}
	bs := uint64(h.dev.geom.BlockSize)
	start := lba * bs
	end := start + nblocks*bs
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if end > uint64(len(h.dev.data)) {
		return ErrInvalidOffset
	}
	for i := start; i < end; i++ {
		h.dev.data[i] = 0
	}
	return nil
}

func (h *mallocHandle) Reset(ctx context.Context, cb CompletionFunc, arg any) error {
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *mallocHandle) Close(ctx context.Context) error {
	h.closed = true
	return nil
}
