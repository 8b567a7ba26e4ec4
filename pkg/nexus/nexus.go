// Package nexus implements the striping block-I/O engine: a nexus takes N
// children, synchronizes their on-disk labels, and presents the union as one
// logical block device, fanning writes out to every open child and serving
// reads from one.
package nexus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/errstore"
	"github.com/nexusd/nexusd/pkg/label"
	"github.com/nexusd/nexusd/pkg/rebuild"
	"github.com/nexusd/nexusd/pkg/registry"
)

// LabelMode selects how Create synchronizes child labels.
type LabelMode int

const (
	// LabelModeValidate requires every child to already carry a valid,
	// consistent label (status Both) and derives nexus geometry from it.
	LabelModeValidate LabelMode = iota
	// LabelModeUpdate repairs a partially-written or stale label per
	// child, generating a fresh one only where the existing layout does
	// not match.
	LabelModeUpdate
	// LabelModeCreate unconditionally writes a brand-new label to every
	// child, discarding anything already on disk.
	LabelModeCreate
)

// Nexus is one logical striped block device backed by N children.
type Nexus struct {
	Name string

	mu sync.RWMutex

	blockSize   uint32
	numBlocks   uint64
	dataOffset  uint64 // in blocks, relative to each child's start
	alignment   uint32

	children     []*child.Child
	reconfigMu   sync.Mutex

	reg      *registry.Registry
	rebuilds *rebuild.Registry
	errPol   errstore.Policy
	core     int
}

// Status reports a nexus's overall condition, derived from its children's
// states rather than tracked as separate mutable state.
type Status string

const (
	// StatusOpen means every child is Open.
	StatusOpen Status = "open"
	// StatusDegraded means at least one child is not Open, but at least
	// one is.
	StatusDegraded Status = "degraded"
	// StatusFaulted means zero children are Open; the nexus cannot serve
	// I/O. Invariant (d): a nexus with zero open children is Faulted.
	StatusFaulted Status = "faulted"
)

// Status returns the nexus's current derived status.
func (n *Nexus) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	total := len(n.children)
	open := 0
	for _, c := range n.children {
		if c.IsOpen() {
			open++
		}
	}
	switch {
	case open == 0:
		return StatusFaulted
	case open < total:
		return StatusDegraded
	default:
		return StatusOpen
	}
}

// Config carries the parameters to Create a nexus.
type Config struct {
	Name          string
	SizeBytes     uint64
	ChildURIs     []string
	ErrorPolicy   errstore.Policy
	Registry      *registry.Registry
	Rebuilds      *rebuild.Registry
	LabelMode     LabelMode
	Core          int
}

// Create registers each child URI, opens them all against the requested
// geometry, synchronizes labels per mode, and returns the assembled nexus.
// Any failure during construction closes every child that did open —
// partial success is never observable.
func Create(ctx context.Context, cfg Config) (*Nexus, error) {
	if len(cfg.ChildURIs) == 0 {
		return nil, fmt.Errorf("%w: nexus %q has no children", ErrNexusIncomplete, cfg.Name)
	}

	n := &Nexus{
		Name:     cfg.Name,
		reg:      cfg.Registry,
		rebuilds: cfg.Rebuilds,
		errPol:   cfg.ErrorPolicy,
		core:     cfg.Core,
	}

	devices := make([]bdev.BlockDevice, 0, len(cfg.ChildURIs))
	children := make([]*child.Child, 0, len(cfg.ChildURIs))

	cleanup := func() {
		for _, c := range children {
			_ = c.Destroy(ctx)
		}
	}

	// Probe geometry from the first child that opens, then require every
	// other child to match it exactly.
	var commonBlockSize uint32
	var maxAlignment uint32 = 1

	for i, uri := range cfg.ChildURIs {
		name := fmt.Sprintf("%s-%d", cfg.Name, i)

		dev, err := bdev.NewFromURI(uri)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create child from uri %q: %w", uri, err)
		}
		devices = append(devices, dev)

		geom := dev.Geometry()
		if commonBlockSize == 0 {
			commonBlockSize = geom.BlockSize
		} else if geom.BlockSize != commonBlockSize {
			cleanup()
			return nil, fmt.Errorf("%w: child %q has block size %d, expected %d", ErrMixedBlockSizes, name, geom.BlockSize, commonBlockSize)
		}
		if geom.BlockSize > maxAlignment {
			maxAlignment = geom.BlockSize
		}

		requiredBlocks := blocksFor(cfg.SizeBytes+label.MetadataPartitionSize, uint64(geom.BlockSize))

		c := child.New(name, uri, cfg.ErrorPolicy)
		if err := c.Open(ctx, dev, commonBlockSize, requiredBlocks); err != nil {
			cleanup()
			return nil, err
		}
		children = append(children, c)

		if cfg.Registry != nil {
			if err := cfg.Registry.Add(cfg.Name, c); err != nil {
				cleanup()
				return nil, err
			}
		}
	}

	n.blockSize = commonBlockSize
	n.alignment = maxAlignment
	n.children = children

	if err := n.syncLabels(ctx, cfg.LabelMode, cfg.SizeBytes); err != nil {
		cleanup()
		return nil, err
	}

	for _, c := range children {
		if c.State() == child.StateFaulted && c.FaultReason() == child.ReasonOutOfSync {
			if err := c.MarkSynced(); err != nil {
				cleanup()
				return nil, err
			}
		}
	}

	return n, nil
}

func blocksFor(byteLen, blockSize uint64) uint64 {
	return (byteLen + blockSize - 1) / blockSize
}

// BlockSize returns the nexus's logical block size.
func (n *Nexus) BlockSize() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.blockSize
}

// NumBlocks returns the nexus's logical block count.
func (n *Nexus) NumBlocks() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.numBlocks
}

// DataOffset returns the per-child block offset where payload data starts.
func (n *Nexus) DataOffset() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dataOffset
}

// Children returns a snapshot of the current child list.
func (n *Nexus) Children() []*child.Child {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*child.Child, len(n.children))
	copy(out, n.children)
	return out
}

// OpenChildren returns only the children currently in state Open.
func (n *Nexus) OpenChildren() []*child.Child {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*child.Child
	for _, c := range n.children {
		if c.IsOpen() {
			out = append(out, c)
		}
	}
	return out
}

func newGUID() label.GUID {
	return label.FromUUID(uuid.New())
}
