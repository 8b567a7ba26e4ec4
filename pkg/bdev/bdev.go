// Package bdev defines the block device abstraction that every nexus child
// is opened against: a uniform read/write/readv/writev/unmap/write-zeroes/
// reset/admin interface, polymorphic over backend variants (NVMe-oF, local
// AIO, in-memory malloc, discard-only null, and loopback alias).
package bdev

import (
	"context"
	"errors"
)

// Kind identifies which backend variant a BlockDevice implements.
type Kind string

const (
	KindNVMe     Kind = "nvme"
	KindAIO      Kind = "aio"
	KindMalloc   Kind = "malloc"
	KindNull     Kind = "null"
	KindLoopback Kind = "loopback"
)

// Geometry describes a block device's fixed layout.
type Geometry struct {
	BlockSize uint32
	NumBlocks uint64
}

// Bytes returns the device's total addressable size in bytes.
func (g Geometry) Bytes() uint64 {
	return uint64(g.BlockSize) * g.NumBlocks
}

// IoVec is a single scatter-gather buffer.
type IoVec struct {
	Buf []byte
}

// CompletionFunc is invoked exactly once when an asynchronous operation
// reaches a terminal state (success or failure).
type CompletionFunc func(arg any, err error)

// BlockDevice is the handle-independent identity and geometry of a backend.
// It is created once per child and is safe for concurrent use; per-core I/O
// goes through a BlockDeviceHandle obtained via Open.
type BlockDevice interface {
	Kind() Kind
	Name() string
	Geometry() Geometry

	// Open returns a handle bound to the calling core. core is an opaque
	// integer identifying the worker that will use the handle; handles are
	// not safe to share across cores (see SPEC_FULL.md §5).
	Open(ctx context.Context, core int) (BlockDeviceHandle, error)

	// Destroy releases any backend-level resources (files, simulated
	// controllers). Destroy is idempotent.
	Destroy(ctx context.Context) error
}

// BlockDeviceHandle dispatches I/O for one (BlockDevice, core) pair.
type BlockDeviceHandle interface {
	ReadAt(ctx context.Context, offBytes int64, buf []byte) (int, error)
	WriteAt(ctx context.Context, offBytes int64, buf []byte) (int, error)

	ReadV(ctx context.Context, iov []IoVec, lba uint64, nblocks uint64, cb CompletionFunc, arg any) error
	WriteV(ctx context.Context, iov []IoVec, lba uint64, nblocks uint64, cb CompletionFunc, arg any) error

	UnmapBlocks(ctx context.Context, lba uint64, nblocks uint64, cb CompletionFunc, arg any) error
	WriteZeroes(ctx context.Context, lba uint64, nblocks uint64, cb CompletionFunc, arg any) error

	Reset(ctx context.Context, cb CompletionFunc, arg any) error

	Geometry() Geometry

	// Close releases handle-local resources (channels, queue pairs). Close
	// does not destroy the underlying BlockDevice.
	Close(ctx context.Context) error
}

// Sentinel errors shared by all backend variants. Backend-specific dispatch
// errors live in pkg/nvme/errors.go.
var (
	ErrBdevExists   = errors.New("bdev: device already exists")
	ErrBdevNotFound = errors.New("bdev: device not found")
	ErrInvalidOffset = errors.New("bdev: offset/length not aligned to block size")
	ErrNoDevice     = errors.New("bdev: no live device on this channel")
	ErrReadFailed   = errors.New("bdev: read failed")
	ErrWriteFailed  = errors.New("bdev: write failed")
	ErrDeviceTooSmall = errors.New("bdev: device too small")
)

// CheckAlignment validates that an offset and length are both multiples of
// blockSize, returning ErrInvalidOffset otherwise.
func CheckAlignment(off, length int64, blockSize uint32) error {
	bs := int64(blockSize)
	if off%bs != 0 || length%bs != 0 {
		return ErrInvalidOffset
	}
	return nil
}
