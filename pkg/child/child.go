// Package child implements a nexus's view of one block-device backend: its
// URI, current lifecycle state, error-store, and the state-machine
// transitions a nexus drives it through.
package child

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/errstore"
)

// State is one node of the child lifecycle state machine.
type State string

const (
	StateInit        State = "init"
	StateConfigInvalid State = "config_invalid"
	StateOpen        State = "open"
	StateClosed      State = "closed"
	StateFaulted     State = "faulted"
	StateDestroying  State = "destroying"
)

// FaultReason records why a child transitioned to Faulted.
type FaultReason string

const (
	ReasonOutOfSync    FaultReason = "out_of_sync"
	ReasonIoError      FaultReason = "io_error"
	ReasonRebuildFailed FaultReason = "rebuild_failed"
	ReasonTimeout      FaultReason = "timeout"
)

// Child is a nexus's handle on one backend block device plus its lifecycle
// state. All state transitions are serialized by the owning nexus's
// reconfigure mutex; Child itself only guards its own fields so a status
// read never blocks behind a reconfigure.
type Child struct {
	Name string
	URI  string

	mu     sync.RWMutex
	state  State
	reason FaultReason

	dev    bdev.BlockDevice
	errors *errstore.Store

	metaIndexLBA uint64
}

// New constructs a child in the Init state. policy governs its error-store;
// per SPEC_FULL.md §9 this is an immutable value, never a shared mutable
// singleton, so each child gets its own Store built from the same Policy
// value.
func New(name, uri string, policy errstore.Policy) *Child {
	return &Child{
		Name:   name,
		URI:    uri,
		state:  StateInit,
		errors: errstore.New(policy),
	}
}

func (c *Child) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Child) FaultReason() FaultReason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

func (c *Child) Device() bdev.BlockDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dev
}

func (c *Child) ErrorStore() *errstore.Store { return c.errors }

func (c *Child) MetadataIndexLBA() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metaIndexLBA
}

func (c *Child) SetMetadataIndexLBA(lba uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metaIndexLBA = lba
}

// Open binds the child to a live block device, confirming its geometry
// against the nexus's requirements, then transitions Init or Closed ->
// Faulted(OutOfSync). Every newly opened child starts there — it must go through a
// rebuild before it is considered a synced member of the stripe, unless the
// caller explicitly marks it synced afterward (fresh-nexus construction
// does this).
func (c *Child) Open(ctx context.Context, dev bdev.BlockDevice, requiredBlockSize uint32, requiredBlocks uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInit && c.state != StateClosed {
		return fmt.Errorf("%w: child %q is in state %q, not init/closed", ErrInvalidTransition, c.Name, c.state)
	}

	geom := dev.Geometry()
	if geom.BlockSize != requiredBlockSize {
		return fmt.Errorf("%w: child %q block size %d != nexus block size %d", ErrChildGeometry, c.Name, geom.BlockSize, requiredBlockSize)
	}
	if geom.NumBlocks < requiredBlocks {
		return fmt.Errorf("%w: child %q has %d blocks, need at least %d", ErrChildGeometry, c.Name, geom.NumBlocks, requiredBlocks)
	}

	c.dev = dev
	c.state = StateFaulted
	c.reason = ReasonOutOfSync
	return nil
}

// MarkSynced transitions a freshly-opened, still-OutOfSync child directly to
// Open, used when a fresh nexus creates its children from scratch and there
// is nothing to rebuild.
func (c *Child) MarkSynced() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateFaulted || c.reason != ReasonOutOfSync {
		return fmt.Errorf("%w: child %q is not awaiting initial sync", ErrInvalidTransition, c.Name)
	}
	c.state = StateOpen
	c.reason = ""
	return nil
}

// Fault transitions Open -> Faulted(reason). Refusal policy (last-healthy
// child protection) is the nexus's responsibility, not the child's — Child
// only enforces that it is currently Open.
func (c *Child) Fault(reason FaultReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return fmt.Errorf("%w: child %q is in state %q, not open", ErrInvalidTransition, c.Name, c.state)
	}
	c.state = StateFaulted
	c.reason = reason
	return nil
}

// Online transitions Faulted -> Open, clearing the fault reason and
// resetting the error-store history. Called once a rebuild into this child
// has completed.
func (c *Child) Online() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateFaulted {
		return fmt.Errorf("%w: child %q is in state %q, not faulted", ErrInvalidTransition, c.Name, c.state)
	}
	c.state = StateOpen
	c.reason = ""
	c.errors.Reset()
	return nil
}

// Offline transitions Open -> Closed. The child stays bound to its device
// until Destroy.
func (c *Child) Offline(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return fmt.Errorf("%w: child %q is in state %q, not open", ErrInvalidTransition, c.Name, c.state)
	}
	c.state = StateClosed
	return nil
}

// Destroy transitions Faulted or Closed -> Destroying and tears down the underlying
// block device. It is the terminal transition; the Child must be dropped by
// its owner afterward.
func (c *Child) Destroy(ctx context.Context) error {
	c.mu.Lock()
	dev := c.dev
	if c.state != StateFaulted && c.state != StateClosed {
		c.mu.Unlock()
		return fmt.Errorf("%w: child %q is in state %q, not faulted/closed", ErrInvalidTransition, c.Name, c.state)
	}
	c.state = StateDestroying
	c.mu.Unlock()

	if dev != nil {
		return dev.Destroy(ctx)
	}
	return nil
}

// IsOpen reports whether the child is currently eligible for the nexus I/O
// fan-out path.
func (c *Child) IsOpen() bool {
	return c.State() == StateOpen
}
