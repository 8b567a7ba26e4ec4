package nvme

import (
	"sync"
	"sync/atomic"
	"time"
)

// queuePair is the simulated analogue of an SPDK qpair: a connected/
// disconnected flag. While nil on the owning Channel, no I/O may be
// dispatched (SPEC_FULL.md §4.1).
type queuePair struct {
	id int
}

// Stats accumulates per-channel I/O counters.
type Stats struct {
	ReadsIssued  uint64
	WritesIssued uint64
	BytesRead    uint64
	BytesWritten uint64
}

// Channel multiplexes all I/O from one core to one Controller through a
// single simulated queue pair, with a background completion poller — the Go
// rendition of the original's NvmeIoChannelInner, minus the raw pointers: the
// owning channel is never stored inside an ioCtx; contexts are addressed by
// their 32-bit slot index in the channel's own ctxPool.
type Channel struct {
	ctrlr *Controller
	core  int
	pool  *ctxPool

	mu          sync.Mutex
	qpair       *queuePair
	outstanding map[uint32]bool
	statsMu     sync.Mutex
	stats       Stats

	inFlight int32

	completions    chan uint32
	pollInterval   time.Duration
	stopCh         chan struct{}
	stoppedCh      chan struct{}
	nextQpairID    int
}

// newChannel runs the six-step creation sequence from SPEC_FULL.md §4.1:
// fetch/raise queue-pair options (simulated as a no-op), allocate the queue
// pair, create the poll group, add the queue pair to it, register the named
// completion poller, then connect the queue pair. Any failure in a real
// driver would unwind the earlier steps in reverse; the simulated allocation
// here cannot fail, so that unwind path has no observable branch but the
// ordering is preserved for fidelity.
func newChannel(ctrlr *Controller, core int, pollIntervalUs int) *Channel {
	if pollIntervalUs <= 0 {
		pollIntervalUs = 1000
	}

	ch := &Channel{
		ctrlr:        ctrlr,
		core:         core,
		pool:         newCtxPool(0),
		outstanding:  make(map[uint32]bool),
		completions:  make(chan uint32, defaultCtxPoolSize),
		pollInterval: time.Duration(pollIntervalUs) * time.Microsecond,
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}

	// Step 2: allocate the queue pair.
	ch.qpair = &queuePair{id: ch.nextQpairID}
	ch.nextQpairID++

	// Steps 3-5 (poll group creation, qpair-to-poll-group add, poller
	// registration) collapse to starting the poller goroutine, which owns
	// the completions channel as its poll group.
	go ch.pollLoop()

	// Step 6: connect the queue pair. Simulated connect always succeeds.
	return ch
}

// pollLoop is the named completion poller: it runs at pollInterval and
// drains whatever completions have been produced since the last tick,
// invoking each one's callback. It reports no hint to a scheduler here since
// Go has no cooperative-reactor poll-return-value convention, but the
// drain-on-tick structure mirrors nvme_poll's batch-processing behavior.
func (ch *Channel) pollLoop() {
	defer close(ch.stoppedCh)
	ticker := time.NewTicker(ch.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ch.stopCh:
			ch.drainCompletions()
			return
		case <-ticker.C:
			ch.drainCompletions()
		case h := <-ch.completions:
			ch.completeOne(h, nil)
		}
	}
}

func (ch *Channel) drainCompletions() {
	for {
		select {
		case h := <-ch.completions:
			ch.completeOne(h, nil)
		default:
			return
		}
	}
}

// completeOne resolves an ioCtx handle to success or the given override
// error, invokes the user callback, and returns the context to the pool.
func (ch *Channel) completeOne(h uint32, overrideErr error) {
	ch.mu.Lock()
	if !ch.outstanding[h] {
		ch.mu.Unlock()
		return
	}
	delete(ch.outstanding, h)
	ch.mu.Unlock()

	ctx := ch.pool.get(h)
	cb, arg := ctx.cb, ctx.arg
	atomic.AddInt32(&ch.inFlight, -1)
	ch.pool.release(h)

	if cb != nil {
		cb(arg, overrideErr)
	}
}

// submit registers a handle as outstanding and enqueues it for completion.
// Called after the simulated driver submit has synchronously performed the
// operation against the controller's backing store.
func (ch *Channel) submit(h uint32) {
	ch.mu.Lock()
	ch.outstanding[h] = true
	ch.mu.Unlock()
	atomic.AddInt32(&ch.inFlight, 1)
	ch.completions <- h
}

// hasLiveQpair reports whether the channel currently has a connected queue
// pair. Dispatch must fail with ENODEV whenever this is false.
func (ch *Channel) hasLiveQpair() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.qpair != nil
}

// Reset clears the queue pair, synchronously fails every in-flight I/O with
// NvmeError(aborted) — satisfying P7 — then reinitializes the channel from
// the same primitive sequence used at creation, reusing the existing poll
// group (the completions channel and poller goroutine are never restarted).
func (ch *Channel) Reset() {
	ch.mu.Lock()
	ch.qpair = nil
	pending := make([]uint32, 0, len(ch.outstanding))
	for h := range ch.outstanding {
		pending = append(pending, h)
	}
	ch.mu.Unlock()

	for _, h := range pending {
		ch.completeOne(h, &NvmeError{Status: StatusAborted})
	}

	ch.mu.Lock()
	ch.qpair = &queuePair{id: ch.nextQpairID}
	ch.nextQpairID++
	ch.mu.Unlock()
}

// InFlight returns the current in-flight I/O count.
func (ch *Channel) InFlight() int {
	return int(atomic.LoadInt32(&ch.inFlight))
}

// Stats returns a copy of the channel's accumulated I/O statistics.
func (ch *Channel) StatsSnapshot() Stats {
	ch.statsMu.Lock()
	defer ch.statsMu.Unlock()
	return ch.stats
}

func (ch *Channel) recordRead(bytes int) {
	ch.statsMu.Lock()
	ch.stats.ReadsIssued++
	ch.stats.BytesRead += uint64(bytes)
	ch.statsMu.Unlock()
}

func (ch *Channel) recordWrite(bytes int) {
	ch.statsMu.Lock()
	ch.stats.WritesIssued++
	ch.stats.BytesWritten += uint64(bytes)
	ch.statsMu.Unlock()
}

// destroy tears the channel down in strict reverse order of creation: remove
// queue pair from poll group (clear it), unregister the poller, destroy the
// poll group (close the completions channel consumer), free the queue pair.
func (ch *Channel) destroy() {
	ch.mu.Lock()
	ch.qpair = nil
	ch.mu.Unlock()
	close(ch.stopCh)
	<-ch.stoppedCh
}
