package nvme

import (
	"sync"

	"github.com/nexusd/nexusd/pkg/bdev"
)

// ioType distinguishes the operation an ioCtx was allocated for.
type ioType int

const (
	ioTypeRead ioType = iota
	ioTypeWrite
	ioTypeUnmap
	ioTypeAdmin
	ioTypeReset
)

// ioCtx is the per-operation I/O context. It holds no reference to its
// owning channel at all: the Channel that acquired it from its own ctxPool
// completes it, addressing it by its 32-bit slot index, per the
// arena-indexed design decided in SPEC_FULL.md §9.
type ioCtx struct {
	cb   bdev.CompletionFunc
	arg  any
	typ  ioType
	lba  uint64
	nblk uint64
	sg   sgCursor
}

// ctxPool is a fixed-capacity arena of ioCtx slots indexed by a 32-bit
// handle. Allocation is synchronous and fails with ErrContextPoolFull on
// exhaustion rather than growing, mirroring the original's fixed-size
// IOCTX_POOL.
type ctxPool struct {
	mu    sync.Mutex
	slots []ioCtx
	free  []uint32
	inUse []bool
}

// defaultCtxPoolSize mirrors the original driver's fixed pool size
// (64*1024 - 1).
const defaultCtxPoolSize = 64*1024 - 1

func newCtxPool(capacity int) *ctxPool {
	if capacity <= 0 {
		capacity = defaultCtxPoolSize
	}
	p := &ctxPool{
		slots: make([]ioCtx, capacity),
		free:  make([]uint32, capacity),
		inUse: make([]bool, capacity),
	}
	for i := range p.free {
		p.free[i] = uint32(capacity - 1 - i)
	}
	return p
}

// acquire returns a handle to a zeroed ioCtx slot, or ErrContextPoolFull if
// the arena is exhausted.
func (p *ctxPool) acquire() (uint32, *ioCtx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, nil, ErrContextPoolFull
	}
	h := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[h] = true
	p.slots[h] = ioCtx{}
	return h, &p.slots[h], nil
}

// release returns a handle to the free list. Double-release is a no-op to
// make completion paths safe to call defensively.
func (p *ctxPool) release(h uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(h) >= len(p.inUse) || !p.inUse[h] {
		return
	}
	p.inUse[h] = false
	p.free = append(p.free, h)
}

// get returns the ioCtx for a handle. Only valid between acquire and release.
func (p *ctxPool) get(h uint32) *ioCtx {
	return &p.slots[h]
}

// inFlight returns the number of currently-acquired contexts.
func (p *ctxPool) inFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}
