package nexus

import (
	"context"
	"fmt"

	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/label"
)

// syncLabels dispatches to the requested label synchronization mode. It runs
// during Create, before any child is marked synced, so every child handle
// opened here is closed again before returning.
func (n *Nexus) syncLabels(ctx context.Context, mode LabelMode, sizeBytes uint64) error {
	switch mode {
	case LabelModeValidate:
		return n.validateChildLabels(ctx)
	case LabelModeUpdate:
		return n.updateChildLabels(ctx, sizeBytes)
	case LabelModeCreate:
		return n.createChildLabels(ctx, sizeBytes)
	default:
		return fmt.Errorf("nexus: unknown label mode %d", mode)
	}
}

func (n *Nexus) withHandle(ctx context.Context, dev bdev.BlockDevice, fn func(bdev.BlockDeviceHandle) error) error {
	h, err := dev.Open(ctx, n.core)
	if err != nil {
		return err
	}
	defer h.Close(ctx)
	return fn(h)
}

// validateChildLabels requires every child to already carry a valid,
// status=Both label with both partitions present, the MayaData start
// offset identical across all children, and sets the nexus's data_offset
// and logical block count from that common layout.
func (n *Nexus) validateChildLabels(ctx context.Context) error {
	var commonOffset uint64
	var haveOffset bool
	var minDataBlocks uint64

	for _, c := range n.children {
		dev := c.Device()
		var lbl *label.Label
		geom := dev.Geometry()

		err := n.withHandle(ctx, dev, func(h bdev.BlockDeviceHandle) error {
			var perr error
			lbl, perr = label.Probe(ctx, h, geom.BlockSize, geom.NumBlocks)
			return perr
		})
		if err != nil {
			return fmt.Errorf("%w: child %q: %v", ErrInvalidLabel, c.Name, err)
		}
		if lbl.Status != label.StatusBoth {
			return fmt.Errorf("%w: child %q label status %q, want both", ErrInvalidLabel, c.Name, lbl.Status)
		}
		if _, ok := lbl.GetPartition("MayaMeta"); !ok {
			return fmt.Errorf("%w: child %q missing MayaMeta partition", ErrInvalidLabel, c.Name)
		}
		dataPart, ok := lbl.GetPartition("MayaData")
		if !ok {
			return fmt.Errorf("%w: child %q missing MayaData partition", ErrInvalidLabel, c.Name)
		}

		offset, err := lbl.PartitionOffset("MayaData")
		if err != nil {
			return err
		}
		if !haveOffset {
			commonOffset = offset
			haveOffset = true
		} else if offset != commonOffset {
			return fmt.Errorf("%w: child %q MayaData offset %d != %d", ErrDataOffsetMismatch, c.Name, offset, commonOffset)
		}

		dataBlocks := dataPart.EntEnd - dataPart.EntStart + 1
		if minDataBlocks == 0 || dataBlocks < minDataBlocks {
			minDataBlocks = dataBlocks
		}
	}

	n.mu.Lock()
	n.dataOffset = commonOffset / uint64(n.blockSize)
	n.numBlocks = minDataBlocks
	n.mu.Unlock()
	return nil
}

// updateChildLabels repairs each child's label in place where possible,
// writing only the half the probe reports missing, and otherwise falls back
// to generating a fresh label for that child.
func (n *Nexus) updateChildLabels(ctx context.Context, sizeBytes uint64) error {
	var commonOffset uint64
	var minDataBlocks uint64

	for _, c := range n.children {
		dev := c.Device()
		geom := dev.Geometry()

		var lbl *label.Label
		err := n.withHandle(ctx, dev, func(h bdev.BlockDeviceHandle) error {
			var perr error
			lbl, perr = label.Probe(ctx, h, geom.BlockSize, geom.NumBlocks)
			return perr
		})

		needsFresh := err != nil
		if !needsFresh {
			_, hasMeta := lbl.GetPartition("MayaMeta")
			_, hasData := lbl.GetPartition("MayaData")
			needsFresh = !hasMeta || !hasData
		}

		if needsFresh {
			lbl, err = label.Generate(newGUID(), geom.BlockSize, geom.NumBlocks, sizeBytes)
			if err != nil {
				return fmt.Errorf("%w: child %q: %v", ErrInvalidLabel, c.Name, err)
			}
		}

		if lbl.Status != label.StatusBoth {
			if err := n.withHandle(ctx, dev, func(h bdev.BlockDeviceHandle) error {
				return label.Write(ctx, h, lbl)
			}); err != nil {
				return fmt.Errorf("%w: child %q: %v", ErrReReadError, c.Name, err)
			}
		}

		c.SetMetadataIndexLBA(lbl.Primary.LBAStart)

		offset, err := lbl.PartitionOffset("MayaData")
		if err != nil {
			return err
		}
		if commonOffset == 0 {
			commonOffset = offset
		} else if offset != commonOffset {
			return fmt.Errorf("%w: child %q MayaData offset %d != %d", ErrDataOffsetMismatch, c.Name, offset, commonOffset)
		}

		dataPart, _ := lbl.GetPartition("MayaData")
		dataBlocks := dataPart.EntEnd - dataPart.EntStart + 1
		if minDataBlocks == 0 || dataBlocks < minDataBlocks {
			minDataBlocks = dataBlocks
		}
	}

	n.mu.Lock()
	n.dataOffset = commonOffset / uint64(n.blockSize)
	n.numBlocks = minDataBlocks
	n.mu.Unlock()
	return nil
}

// createChildLabels unconditionally generates and writes a new label to
// every child, used for a fresh nexus with no prior on-disk state.
func (n *Nexus) createChildLabels(ctx context.Context, sizeBytes uint64) error {
	var commonOffset uint64
	var minDataBlocks uint64

	for _, c := range n.children {
		dev := c.Device()
		geom := dev.Geometry()

		lbl, err := label.Generate(newGUID(), geom.BlockSize, geom.NumBlocks, sizeBytes)
		if err != nil {
			return fmt.Errorf("%w: child %q: %v", ErrInvalidLabel, c.Name, err)
		}

		if err := n.withHandle(ctx, dev, func(h bdev.BlockDeviceHandle) error {
			return label.Write(ctx, h, lbl)
		}); err != nil {
			return fmt.Errorf("%w: child %q: %v", ErrReReadError, c.Name, err)
		}

		c.SetMetadataIndexLBA(lbl.Primary.LBAStart)

		offset, err := lbl.PartitionOffset("MayaData")
		if err != nil {
			return err
		}
		if commonOffset == 0 {
			commonOffset = offset
		}

		dataPart, _ := lbl.GetPartition("MayaData")
		dataBlocks := dataPart.EntEnd - dataPart.EntStart + 1
		if minDataBlocks == 0 || dataBlocks < minDataBlocks {
			minDataBlocks = dataBlocks
		}
	}

	n.mu.Lock()
	n.dataOffset = commonOffset / uint64(n.blockSize)
	n.numBlocks = minDataBlocks
	n.mu.Unlock()
	return nil
}
