// Package rebuild implements the background copier that resynchronizes a
// child: a job walks the source device block-by-block, copying data into
// the destination, and can be paused, resumed, or stopped by its owner.
package rebuild

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nexusd/nexusd/pkg/bdev"
)

// State is one node of a rebuild job's lifecycle.
type State string

const (
	StateInit      State = "init"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Job copies blocks from SourceURI to DestURI, one segment at a time.
type Job struct {
	SourceURI string
	DestURI   string

	blockSize uint32
	numBlocks uint64
	segment   uint64 // blocks copied per step

	src bdev.BlockDeviceHandle
	dst bdev.BlockDeviceHandle

	mu    sync.Mutex
	state State

	nextBlock uint64

	pauseCh  chan struct{}
	resumeCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}

	running int32
}

// NewJob constructs a job in state Init. segment sets how many blocks are
// copied per step; callers typically pick this so one step takes on the
// order of milliseconds.
func NewJob(sourceURI, destURI string, src, dst bdev.BlockDeviceHandle, blockSize uint32, numBlocks uint64, segment uint64) *Job {
	if segment == 0 {
		segment = 256
	}
	return &Job{
		SourceURI: sourceURI,
		DestURI:   destURI,
		blockSize: blockSize,
		numBlocks: numBlocks,
		segment:   segment,
		src:       src,
		dst:       dst,
		state:     StateInit,
		pauseCh:   make(chan struct{}, 1),
		resumeCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Progress() (copied, total uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextBlock, j.numBlocks
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Run drives the copy loop to completion, failure, or a stop request. It is
// meant to be launched on its own goroutine by the caller; Run returns once
// the job reaches a terminal state.
func (j *Job) Run(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&j.running, 0, 1) {
		return
	}
	defer close(j.doneCh)
	defer atomic.StoreInt32(&j.running, 0)

	j.setState(StateRunning)

	buf := make([]byte, uint64(j.blockSize)*j.segment)

	for {
		select {
		case <-ctx.Done():
			j.setState(StateFailed)
			return
		case <-j.stopCh:
			j.setState(StateStopped)
			return
		case <-j.pauseCh:
			// Cooperative: a paused job has no outstanding I/O by
			// construction, since the copy loop only suspends between
			// whole segments, never mid-segment.
			j.setState(StatePaused)
			select {
			case <-j.resumeCh:
				j.setState(StateRunning)
			case <-j.stopCh:
				j.setState(StateStopped)
				return
			case <-ctx.Done():
				j.setState(StateFailed)
				return
			}
			continue
		default:
		}

		j.mu.Lock()
		start := j.nextBlock
		j.mu.Unlock()
		if start >= j.numBlocks {
			j.setState(StateCompleted)
			return
		}

		n := j.segment
		if start+n > j.numBlocks {
			n = j.numBlocks - start
		}
		chunk := buf[:n*uint64(j.blockSize)]

		if _, err := j.src.ReadAt(ctx, int64(start*uint64(j.blockSize)), chunk); err != nil {
			j.setState(StateFailed)
			return
		}
		if _, err := j.dst.WriteAt(ctx, int64(start*uint64(j.blockSize)), chunk); err != nil {
			j.setState(StateFailed)
			return
		}

		j.mu.Lock()
		j.nextBlock = start + n
		j.mu.Unlock()
	}
}

// Pause requests the job suspend at the next segment boundary. It does not
// block; use Wait or poll State to observe the transition.
func (j *Job) Pause() error {
	if j.State() != StateRunning {
		return fmt.Errorf("%w: job for %q is in state %q, not running", ErrInvalidTransition, j.DestURI, j.State())
	}
	select {
	case j.pauseCh <- struct{}{}:
	default:
	}
	return nil
}

// Resume requests a paused job continue.
func (j *Job) Resume() error {
	if j.State() != StatePaused {
		return fmt.Errorf("%w: job for %q is in state %q, not paused", ErrInvalidTransition, j.DestURI, j.State())
	}
	select {
	case j.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Stop requests the job halt, whether running or paused.
func (j *Job) Stop() {
	select {
	case <-j.stopCh:
	default:
		close(j.stopCh)
	}
}

// Wait blocks until the job reaches a terminal state.
func (j *Job) Wait() {
	<-j.doneCh
}
