package nexus

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/errstore"
)

// ReadPolicy selects which Open child a read is served from.
type ReadPolicy int

const (
	// ReadPolicyRoundRobin cycles through Open children on successive
	// reads.
	ReadPolicyRoundRobin ReadPolicy = iota
	// ReadPolicyLeftmost always prefers the first Open child, falling
	// back to the next on failure.
	ReadPolicyLeftmost
)

// WriteAt writes to the nexus's logical address space, fanning the write out
// in parallel to every currently Open child via errgroup. The initiator sees
// a single completion only once every child has responded; any child
// failure is recorded against that child's error-store and may fault it,
// but the write still succeeds overall if at least one child accepted it —
// a nexus with zero successful children surfaces the aggregate error.
func (n *Nexus) WriteAt(ctx context.Context, offBytes int64, buf []byte) (int, error) {
	children := n.OpenChildren()
	if len(children) == 0 {
		return 0, ErrChildMissing
	}

	var g errgroup.Group
	results := make([]error, len(children))

	for i, c := range children {
		i, c := i, c
		g.Go(func() error {
			dev := c.Device()
			h, err := dev.Open(ctx, n.core)
			if err != nil {
				results[i] = err
				n.recordChildError(c, err)
				return nil
			}
			defer h.Close(ctx)

			_, err = h.WriteAt(ctx, offBytes, buf)
			results[i] = err
			if err != nil {
				n.recordChildError(c, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var lastErr error
	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			lastErr = err
		}
	}
	if successes == 0 {
		return 0, fmt.Errorf("bdev: write failed on all children: %w", lastErr)
	}
	return len(buf), nil
}

// ReadAt serves a read from one Open child, retrying on the next Open child
// on failure, failing only once every Open child has been tried.
func (n *Nexus) ReadAt(ctx context.Context, offBytes int64, buf []byte) (int, error) {
	children := n.OpenChildren()
	if len(children) == 0 {
		return 0, ErrChildMissing
	}

	var lastErr error
	for _, c := range children {
		dev := c.Device()
		h, err := dev.Open(ctx, n.core)
		if err != nil {
			lastErr = err
			n.recordChildError(c, err)
			continue
		}

		nread, err := h.ReadAt(ctx, offBytes, buf)
		h.Close(ctx)
		if err == nil {
			return nread, nil
		}
		lastErr = err
		n.recordChildError(c, err)
	}
	return 0, fmt.Errorf("bdev: read failed on all open children: %w", lastErr)
}

// recordChildError runs a child I/O failure through its error-store and
// applies the resulting action, faulting the child if the threshold was
// crossed and doing so would not leave the nexus with zero Open children.
func (n *Nexus) recordChildError(c *child.Child, ioErr error) {
	kind := errstore.KindGeneric
	if isTimeout(ioErr) {
		kind = errstore.KindTimeout
	}

	action := c.ErrorStore().Record(kind, time.Now())
	if action != errstore.ActionFault {
		return
	}

	n.reconfigMu.Lock()
	defer n.reconfigMu.Unlock()

	open := n.OpenChildren()
	if len(open) <= 1 {
		// Faulting the last healthy child is refused at this layer too;
		// FaultChild enforces the same rule for the explicit admin path.
		return
	}
	_ = c.Fault(child.ReasonIoError)
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}
