package bdev

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// aioDevice backs a child with a local file, accessed through positioned
// pread/pwrite rather than a seek+read/write pair so concurrent handles on
// different cores never race on a shared file offset.
type aioDevice struct {
	path string
	geom Geometry
	file *os.File
	fd   int
}

// OpenAIO opens (creating if necessary) the file at path as an AIO backend
// with the given block size. If the file is smaller than minBytes, it is
// extended; an existing larger file is left untouched and its size is used
// to compute NumBlocks.
func OpenAIO(path string, blockSize uint32, minBytes uint64) (BlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, fmt.Errorf("aio: open %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("aio: stat %q: %w", path, err)
	}

	size := uint64(info.Size())
	if size < minBytes {
		if err := f.Truncate(int64(minBytes)); err != nil {
			f.Close()
			return nil, fmt.Errorf("aio: truncate %q: %w", path, err)
		}
		size = minBytes
	}

	return &aioDevice{
		path: path,
		geom: Geometry{BlockSize: blockSize, NumBlocks: size / uint64(blockSize)},
		file: f,
		fd:   int(f.Fd()),
	}, nil
}

func (d *aioDevice) Kind() Kind         { return KindAIO }
func (d *aioDevice) Name() string       { return d.path }
func (d *aioDevice) Geometry() Geometry { return d.geom }

func (d *aioDevice) Open(ctx context.Context, core int) (BlockDeviceHandle, error) {
	return &aioHandle{dev: d}, nil
}

func (d *aioDevice) Destroy(ctx context.Context) error {
	return d.file.Close()
}

type aioHandle struct {
	dev    *aioDevice
	closed bool
}

func (h *aioHandle) Geometry() Geometry { return h.dev.Geometry() }

func (h *aioHandle) ReadAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.closed {
		return 0, ErrNoDevice
	}
	if err := CheckAlignment(off, int64(len(buf)), h.dev.geom.BlockSize); err != nil {
		return 0, err
	}
	n, err := unix.Pread(h.dev.fd, buf, off)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return n, nil
}

func (h *aioHandle) WriteAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if h.closed {
		return 0, ErrNoDevice
	}
	if err := CheckAlignment(off, int64(len(buf)), h.dev.geom.BlockSize); err != nil {
		return 0, err
	}
	n, err := unix.Pwrite(h.dev.fd, buf, off)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return n, nil
}

func (h *aioHandle) ReadV(ctx context.Context, iov []IoVec, lba, nblocks uint64, cb CompletionFunc, arg any) error {
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

func (h *aioHandle) WriteV(ctx context.Context, iov []IoVec, lba, nblocks uint64, cb CompletionFunc, arg any) error {
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

func (h *aioHandle) UnmapBlocks(ctx context.Context, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	err := h.zero(lba, nblocks)
	if cb != nil {
		cb(arg, err)
	}
	return nil
}

func (h *aioHandle) WriteZeroes(ctx context.Context, lba, nblocks uint64, cb CompletionFunc, arg any) error {
	return h.UnmapBlocks(ctx, lba, nblocks, cb, arg)
}

func (h *aioHandle) zero(lba, nblocks uint64) error {
	if h.closed {
		return ErrNoDevice
	}
	bs := h.dev.geom.BlockSize
	zeros := make([]byte, bs)
	off := int64(lba) * int64(bs)
	for i := uint64(0); i < nblocks; i++ {
		if _, err := unix.Pwrite(h.dev.fd, zeros, off); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		off += int64(bs)
	}
	return nil
}

func (h *aioHandle) Reset(ctx context.Context, cb CompletionFunc, arg any) error {
	err := h.dev.file.Sync()
	if cb != nil {
		cb(arg, err)
	}
	return nil
}

func (h *aioHandle) Close(ctx context.Context) error {
	h.closed = true
	return nil
}
