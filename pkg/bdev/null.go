package bdev

import "context"

// nullDevice discards all writes and returns zero-filled reads. Used for
// throughput testing of the fan-out path without real storage behind it.
type nullDevice struct {
	name string
	geom Geometry
}

// NewNull creates a discard-backend BlockDevice of the given geometry.
func NewNull(name string, geom Geometry) BlockDevice {
	return &nullDevice{name: name, geom: geom}
}

func (d *nullDevice) Kind() Kind         { return KindNull }
func (d *nullDevice) Name() string       { return d.name }
func (d *nullDevice) Geometry() Geometry { return d.geom }

func (d *nullDevice) Open(ctx context.Context, core int) (BlockDeviceHandle, error) {
	return &nullHandle{dev: d}, nil
}

func (d *nullDevice) Destroy(ctx context.Context) error { return nil }

type nullHandle struct {
	dev    *nullDevice
	closed bool
}

func (h *nullHandle) Geometry() Geometry { return h.dev.Geometry() }

func (h *nullHandle) ReadAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.closed {
		return 0, ErrNoDevice
	}
	if err := CheckAlignment(off, int64(len(buf)), h.dev.geom.BlockSize); err != nil {
		return 0, err
	}
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

func (h *nullHandle) WriteAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.closed {
		return 0, ErrNoDevice
	}
	if err := CheckAlignment(off, int64(len(buf)), h.dev.geom.BlockSize); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (h *nullHandle) ReadV(ctx context.Context, iov []IoVec, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	for _, v := range iov {
		for i := range v.Buf {
			v.Buf[i] = 0
		}
	}
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *nullHandle) WriteV(ctx context.Context, iov []IoVec, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *nullHandle) UnmapBlocks(ctx context.Context, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *nullHandle) WriteZeroes(ctx context.Context, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *nullHandle) Reset(ctx context.Context, cb CompletionFunc, arg any) error {
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *nullHandle) Close(ctx context.Context) error {
	h.closed = true
	return nil
}
