package nexus

import (
	"context"
	"fmt"

	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/label"
	"github.com/nexusd/nexusd/pkg/rebuild"
	"github.com/nexusd/nexusd/pkg/registry"
)

// ReconfigureFunc is invoked once per topology-changing event, after the
// change has taken effect, so callers (per-core I/O channels, the rebuild
// engine) can refresh their view of the child list.
type ReconfigureFunc func(n *Nexus)

// RestartRebuildFunc is invoked once per rebuild job that FaultChild
// cancelled because its source child faulted out from under it (the
// faulted child was not the job's own destination). The nexus hands back
// the destination child name; the caller is responsible for choosing a new
// source and relaunching the job.
type RestartRebuildFunc func(ctx context.Context, destChildName string)

// cancelRebuildsForChild stops and deregisters every rebuild job touching
// c, as either source or destination, and returns the jobs that were
// cancelled. A nil rebuild registry (e.g. in tests that construct a Nexus
// directly) makes this a no-op.
func (n *Nexus) cancelRebuildsForChild(c *child.Child) []*rebuild.Job {
	if n.rebuilds == nil {
		return nil
	}
	seen := make(map[string]*rebuild.Job)
	for _, j := range n.rebuilds.ForSource(c.URI) {
		seen[j.DestURI] = j
	}
	for _, j := range n.rebuilds.ForDestChild(c.URI) {
		seen[j.DestURI] = j
	}
	jobs := make([]*rebuild.Job, 0, len(seen))
	for _, j := range seen {
		j.Stop()
		n.rebuilds.Remove(j.DestURI)
		jobs = append(jobs, j)
	}
	return jobs
}

// childNameForURI returns the name of the child constructed from uri, or
// "" if none matches.
func (n *Nexus) childNameForURI(uri string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.children {
		if c.URI == uri {
			return c.Name
		}
	}
	return ""
}

// AddChild creates a block device from uri, verifies its geometry, opens
// it, marks it Faulted(OutOfSync), and inserts it keyed by child name. Any
// failure after device creation tears the device back down so no orphaned
// backend survives a rejected add.
func (n *Nexus) AddChild(ctx context.Context, name, uri string, onReconfigure ReconfigureFunc) (*child.Child, error) {
	n.reconfigMu.Lock()
	defer n.reconfigMu.Unlock()

	n.mu.RLock()
	for _, existing := range n.children {
		if existing.Name == name {
			n.mu.RUnlock()
			return nil, fmt.Errorf("%w: child %q already present on nexus %q", registry.ErrAlreadyRegistered, name, n.Name)
		}
	}
	blockSize := n.blockSize
	numBlocks := n.numBlocks + blocksFor(label.MetadataPartitionSize, uint64(blockSize))
	n.mu.RUnlock()

	dev, err := bdev.NewFromURI(uri)
	if err != nil {
		return nil, fmt.Errorf("create child from uri %q: %w", uri, err)
	}

	c := child.New(name, uri, n.errPol)
	if err := c.Open(ctx, dev, blockSize, numBlocks); err != nil {
		_ = dev.Destroy(ctx)
		return nil, err
	}

	if n.reg != nil {
		if err := n.reg.Add(n.Name, c); err != nil {
			_ = dev.Destroy(ctx)
			return nil, err
		}
	}

	n.mu.Lock()
	n.children = append(n.children, c)
	n.mu.Unlock()

	if onReconfigure != nil {
		onReconfigure(n)
	}
	return c, nil
}

// RemoveChild refuses to remove the last child, otherwise closes it and
// drops it from the child list.
func (n *Nexus) RemoveChild(ctx context.Context, name string, onReconfigure ReconfigureFunc) error {
	n.reconfigMu.Lock()
	defer n.reconfigMu.Unlock()

	n.mu.Lock()
	if len(n.children) <= 1 {
		n.mu.Unlock()
		return fmt.Errorf("%w: nexus %q has one child", ErrRemoveLastChild, n.Name)
	}

	idx := -1
	for i, c := range n.children {
		if c.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		n.mu.Unlock()
		return fmt.Errorf("%w: %q on nexus %q", ErrChildNotFound, name, n.Name)
	}
	c := n.children[idx]
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	n.mu.Unlock()

	n.cancelRebuildsForChild(c)

	if c.State() == child.StateOpen {
		if err := c.Offline(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrCloseChild, err)
		}
	}
	if err := c.Destroy(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCloseChild, err)
	}

	if n.reg != nil {
		n.reg.Remove(n.Name, name)
	}

	if onReconfigure != nil {
		onReconfigure(n)
	}
	return nil
}

// FaultChild refuses to fault a child if fewer than two children exist, or
// if doing so would leave zero Open children. Any rebuild job touching the
// faulted child (as source or destination) is cancelled; jobs for which the
// faulted child was only the source are handed to restartRebuild so the
// caller can relaunch them against a new source.
func (n *Nexus) FaultChild(ctx context.Context, name string, reason child.FaultReason, onReconfigure ReconfigureFunc, restartRebuild RestartRebuildFunc) error {
	n.reconfigMu.Lock()
	defer n.reconfigMu.Unlock()

	n.mu.RLock()
	if len(n.children) < 2 {
		n.mu.RUnlock()
		return fmt.Errorf("%w: nexus %q has fewer than two children", ErrFaultingLastHealthyChild, n.Name)
	}
	var target *child.Child
	openCount := 0
	for _, c := range n.children {
		if c.Name == name {
			target = c
		}
		if c.IsOpen() {
			openCount++
		}
	}
	n.mu.RUnlock()

	if target == nil {
		return fmt.Errorf("%w: %q on nexus %q", ErrChildNotFound, name, n.Name)
	}
	if target.IsOpen() && openCount <= 1 {
		return fmt.Errorf("%w: %q is the last open child on nexus %q", ErrFaultingLastHealthyChild, name, n.Name)
	}

	cancelled := n.cancelRebuildsForChild(target)

	if err := target.Fault(reason); err != nil {
		return err
	}
	if onReconfigure != nil {
		onReconfigure(n)
	}

	if restartRebuild != nil {
		for _, j := range cancelled {
			if j.DestURI == target.URI {
				// The faulted child was the job's own destination; it
				// stays Faulted rather than being restarted here.
				continue
			}
			if destName := n.childNameForURI(j.DestURI); destName != "" {
				restartRebuild(ctx, destName)
			}
		}
	}
	return nil
}

// OnlineChild transitions a Faulted child back to Open, used once a rebuild
// into it has completed.
func (n *Nexus) OnlineChild(name string, onReconfigure ReconfigureFunc) error {
	n.reconfigMu.Lock()
	defer n.reconfigMu.Unlock()

	c, err := n.findChild(name)
	if err != nil {
		return err
	}
	if err := c.Online(); err != nil {
		return err
	}
	if onReconfigure != nil {
		onReconfigure(n)
	}
	return nil
}

// OfflineChild transitions an Open child to Closed, taking it out of the
// fan-out path without destroying its backing device. Refused if the child
// is the last Open child, since that would leave the nexus with zero Open
// children (invariant (d): such a nexus is Faulted).
func (n *Nexus) OfflineChild(ctx context.Context, name string, onReconfigure ReconfigureFunc) error {
	n.reconfigMu.Lock()
	defer n.reconfigMu.Unlock()

	c, err := n.findChild(name)
	if err != nil {
		return err
	}
	if c.IsOpen() && len(n.OpenChildren()) <= 1 {
		return fmt.Errorf("%w: %q is the last open child on nexus %q", ErrFaultingLastHealthyChild, name, n.Name)
	}
	if err := c.Offline(ctx); err != nil {
		return err
	}
	if onReconfigure != nil {
		onReconfigure(n)
	}
	return nil
}

func (n *Nexus) findChild(name string) (*child.Child, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.children {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q on nexus %q", ErrChildNotFound, name, n.Name)
}
