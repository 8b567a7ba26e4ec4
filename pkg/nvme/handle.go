package nvme

import (
	"context"
	"sync/atomic"

	"github.com/nexusd/nexusd/pkg/bdev"
)

// maxDeallocateRanges is the maximum number of ranges a single Dataset
// Management (deallocate) command may carry, per the NVMe spec's DMRSL
// convention also honored by the original's unmap range-packing.
const maxDeallocateRanges = 256

// maxBlocksPerRange is the widest single range a deallocate descriptor can
// express (a 32-bit block count).
const maxBlocksPerRange = 0xFFFFFFFF

// handle is the nvme package's bdev.BlockDeviceHandle implementation: it
// resolves a per-core Channel from the controller, walks scatter-gather
// lists through sgCursor, and dispatches through the fixed-size ctxPool.
type handle struct {
	ctrlr  *Controller
	core   int
	ch     *Channel
	closed int32
}

// Open binds a handle to the calling core, creating that core's Channel (and
// its queue pair / poll group) on first use.
func (c *Controller) Open(ctx context.Context, core int) (bdev.BlockDeviceHandle, error) {
	ch := c.channelFor(core, 1000)
	return &handle{ctrlr: c, core: core, ch: ch}, nil
}

func (h *handle) Geometry() bdev.Geometry { return h.ctrlr.Geometry() }

func (h *handle) liveOrErr() error {
	if atomic.LoadInt32(&h.closed) != 0 {
		return bdev.ErrNoDevice
	}
	if !h.ch.hasLiveQpair() {
		return &DispatchError{Op: "io", Errno: "ENODEV"}
	}
	return nil
}

// dispatch is the common submit path from SPEC_FULL.md §4.2: check
// alignment, check the queue pair is live, acquire a context, perform the
// simulated synchronous driver submit, then hand the handle to the channel
// for asynchronous completion.
func (h *handle) dispatch(typ ioType, lba, nblocks uint64, iov []bdev.IoVec, cb bdev.CompletionFunc, arg any, do func() error) error {
	if err := h.liveOrErr(); err != nil {
		return err
	}

	handleID, ctx, err := h.ch.pool.acquire()
	if err != nil {
		return &DispatchError{Op: ioTypeName(typ), Errno: "ENOMEM", LBA: lba, NBlocks: nblocks}
	}
	ctx.cb, ctx.arg, ctx.typ, ctx.lba, ctx.nblk = cb, arg, typ, lba, nblocks
	if iov != nil {
		ctx.sg = sgCursor{iov: iov}
	}

	if err := do(); err != nil {
		h.ch.pool.release(handleID)
		return &DispatchError{Op: ioTypeName(typ), Errno: "EINVAL", LBA: lba, NBlocks: nblocks}
	}

	h.ch.submit(handleID)
	return nil
}

func ioTypeName(t ioType) string {
	switch t {
	case ioTypeRead:
		return "read"
	case ioTypeWrite:
		return "write"
	case ioTypeUnmap:
		return "unmap"
	case ioTypeAdmin:
		return "admin"
	case ioTypeReset:
		return "reset"
	default:
		return "unknown"
	}
}

func (h *handle) blockSize() int64 { return int64(h.Geometry().BlockSize) }

func (h *handle) ReadAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if err := bdev.CheckAlignment(off, int64(len(buf)), h.ctrlr.geom.BlockSize); err != nil {
		return 0, err
	}
	if err := h.ctrlr.readAt(off, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (h *handle) WriteAt(ctx context.Context, off int64, buf []byte) (int, error) {
	if err := bdev.CheckAlignment(off, int64(len(buf)), h.ctrlr.geom.BlockSize); err != nil {
		return 0, err
	}
	if err := h.ctrlr.writeAt(off, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// ReadV walks iov through an sgCursor, reading each element at its
// cumulative offset from lba, then dispatches for asynchronous completion.
func (h *handle) ReadV(ctx context.Context, iov []bdev.IoVec, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	base := int64(lba) * h.blockSize()
	return h.dispatch(ioTypeRead, lba, nblocks, iov, cb, arg, func() error {
		cursor := sgCursor{iov: iov}
		off := base
		for {
			buf, ok := cursor.NextSGE()
			if !ok {
				break
			}
			if err := h.ctrlr.readAt(off, buf); err != nil {
				return err
			}
			off += int64(len(buf))
		}
		h.ch.recordRead(cursor.totalLen())
		return nil
	})
}

func (h *handle) WriteV(ctx context.Context, iov []bdev.IoVec, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	base := int64(lba) * h.blockSize()
	return h.dispatch(ioTypeWrite, lba, nblocks, iov, cb, arg, func() error {
		cursor := sgCursor{iov: iov}
		off := base
		for {
			buf, ok := cursor.NextSGE()
			if !ok {
				break
			}
			if err := h.ctrlr.writeAt(off, buf); err != nil {
				return err
			}
			off += int64(len(buf))
		}
		h.ch.recordWrite(cursor.totalLen())
		return nil
	})
}

// UnmapBlocks packs [lba, lba+nblocks) into deallocate ranges no wider than
// maxBlocksPerRange each; a request needing more than maxDeallocateRanges
// fails synchronously with EINVAL rather than silently truncating, per
// SPEC_FULL.md's testable property P5.
func (h *handle) UnmapBlocks(ctx context.Context, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	ranges := packRanges(lba, nblocks)
	if len(ranges) > maxDeallocateRanges {
		return &DispatchError{Op: "unmap", Errno: "EINVAL", LBA: lba, NBlocks: nblocks}
	}
	return h.dispatch(ioTypeUnmap, lba, nblocks, nil, cb, arg, func() error {
		bs := uint64(h.Geometry().BlockSize)
		for _, r := range ranges {
			if err := h.ctrlr.zeroRange(int64(r.lba*bs), int64(r.nblk*bs)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteZeroes is implemented as deallocate, matching the backend convention
// used throughout pkg/bdev.
func (h *handle) WriteZeroes(ctx context.Context, lba, nblocks uint64, cb bdev.CompletionFunc, arg any) error {
	return h.UnmapBlocks(ctx, lba, nblocks, cb, arg)
}

type blockRange struct {
	lba  uint64
	nblk uint64
}

func packRanges(lba, nblocks uint64) []blockRange {
	var ranges []blockRange
	remaining := nblocks
	cur := lba
	for remaining > 0 {
		n := uint64(maxBlocksPerRange)
		if remaining < n {
			n = remaining
		}
		ranges = append(ranges, blockRange{lba: cur, nblk: n})
		cur += n
		remaining -= n
	}
	return ranges
}

// Reset cancels all in-flight I/O on this handle's channel with
// NvmeError(aborted), reconnects the queue pair, then reports success to the
// caller's own completion — the adapter pattern from SPEC_FULL.md §4.2 that
// lets Reset share the same CompletionFunc contract as every other op.
func (h *handle) Reset(ctx context.Context, cb bdev.CompletionFunc, arg any) error {
	h.ch.Reset()
	if cb != nil {
		cb(arg, nil)
	}
	return nil
}

func (h *handle) Close(ctx context.Context) error {
	atomic.StoreInt32(&h.closed, 1)
	return nil
}

// NvmeIdentifyCtrlr is the NVMe-specific admin passthrough exposed beyond
// the generic bdev.BlockDeviceHandle surface; it reads controller identity
// without a full I/O round trip.
func (h *handle) NvmeIdentifyCtrlr(ctx context.Context) (name string, geom bdev.Geometry, err error) {
	if err := h.liveOrErr(); err != nil {
		return "", bdev.Geometry{}, err
	}
	return h.ctrlr.Name(), h.ctrlr.Geometry(), nil
}
