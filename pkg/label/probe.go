package label

import (
	"context"
	"fmt"
	"reflect"

	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/bufpool"
)

// Probe reads and validates the on-disk label from a child's block device
// handle. A device whose primary header is missing or corrupt but whose
// secondary header checks out (or vice versa) is still accepted, with
// Status reflecting which half survived; the missing half is reconstructed
// in memory so the caller can immediately repair the disk with Write.
func Probe(ctx context.Context, h bdev.BlockDeviceHandle, blockSize uint32, numBlocks uint64) (*Label, error) {
	bs := uint64(blockSize)

	mbrBuf := bufpool.Get(int(bs))
	defer bufpool.Put(mbrBuf)
	if _, err := h.ReadAt(ctx, 0, mbrBuf); err != nil {
		return nil, fmt.Errorf("label: read mbr: %w", err)
	}
	// The protective MBR occupies the last 72 bytes of sector 0.
	mbr, err := unmarshalMBR(mbrBuf[len(mbrBuf)-72:])
	if err != nil {
		return nil, err
	}

	headerBuf := bufpool.Get(int(bs))
	defer bufpool.Put(headerBuf)
	var status Status
	var primary, secondary GPTHeader
	var active *GPTHeader

	if _, err := h.ReadAt(ctx, int64(bs), headerBuf); err != nil {
		return nil, fmt.Errorf("label: read primary header: %w", err)
	}

	primaryHdr, primaryErr := readHeaderAt(headerBuf, bs, numBlocks, true)
	if primaryErr == nil {
		primary = primaryHdr
		active = &primary

		secOff := int64((numBlocks - 1) * bs)
		if _, err := h.ReadAt(ctx, secOff, headerBuf); err != nil {
			return nil, fmt.Errorf("label: read secondary header: %w", err)
		}
		secondaryHdr, secondaryErr := readHeaderAt(headerBuf, bs, numBlocks, false)
		if secondaryErr == nil {
			if err := consistencyCheck(&primary, &secondaryHdr); err != nil {
				return nil, err
			}
			secondary = secondaryHdr
			status = StatusBoth
		} else {
			secondary, err = primary.toSecondary()
			if err != nil {
				return nil, err
			}
			status = StatusPrimary
		}
	} else {
		secOff := int64((numBlocks - 1) * bs)
		if _, err := h.ReadAt(ctx, secOff, headerBuf); err != nil {
			return nil, fmt.Errorf("label: read secondary header: %w", err)
		}
		secondaryHdr, secondaryErr := readHeaderAt(headerBuf, bs, numBlocks, false)
		if secondaryErr != nil {
			return nil, primaryErr
		}
		secondary = secondaryHdr
		active = &secondary
		primary, err = secondary.toPrimary()
		if err != nil {
			return nil, err
		}
		status = StatusSecondary
	}

	if mbr.Entries[0].NumSectors != 0xffffffff && uint64(mbr.Entries[0].NumSectors) != primary.LBAAlt {
		return nil, fmt.Errorf("%w: protective MBR size disagrees with GPT header", ErrInvalidLabel)
	}

	tableBlocks := blocksFor(uint64(active.EntrySize)*uint64(active.NumEntries), bs)
	tableBuf := bufpool.Get(int(tableBlocks * bs))
	defer bufpool.Put(tableBuf)
	tableOff := int64(active.LBATable * bs)
	if _, err := h.ReadAt(ctx, tableOff, tableBuf); err != nil {
		return nil, fmt.Errorf("label: read partition table: %w", err)
	}

	partitions := make([]GPTEntry, active.NumEntries)
	for i := uint32(0); i < active.NumEntries; i++ {
		e, err := unmarshalEntry(tableBuf[i*gptHeaderEntrySize : (i+1)*gptHeaderEntrySize])
		if err != nil {
			return nil, err
		}
		partitions[i] = e
	}
	if err := validatePartitions(partitions, active); err != nil {
		return nil, err
	}

	return &Label{
		Status:     status,
		BlockSize:  bs,
		MBR:        mbr,
		Primary:    primary,
		Secondary:  secondary,
		Partitions: partitions,
	}, nil
}

func readHeaderAt(buf []byte, blockSize uint64, numBlocks uint64, primary bool) (GPTHeader, error) {
	h, err := unmarshalHeader(buf)
	if err != nil {
		return GPTHeader{}, err
	}
	if primary {
		if err := validatePrimaryHeader(&h, blockSize, numBlocks); err != nil {
			return GPTHeader{}, err
		}
	} else {
		if err := validateSecondaryHeader(&h, blockSize, numBlocks); err != nil {
			return GPTHeader{}, err
		}
	}
	return h, nil
}

func validatePrimaryHeader(h *GPTHeader, blockSize, numBlocks uint64) error {
	if h.LBASelf != 1 {
		return fmt.Errorf("%w: primary header not at lba 1", ErrInvalidLabel)
	}
	if h.LBAAlt+1 != numBlocks {
		return fmt.Errorf("%w: secondary header location inconsistent with device size", ErrInvalidLabel)
	}
	if h.LBAEnd >= h.LBAAlt {
		return fmt.Errorf("%w: last usable block overruns secondary header", ErrInvalidLabel)
	}
	if h.LBATable != h.LBASelf+1 {
		return fmt.Errorf("%w: partition table location inconsistent", ErrInvalidLabel)
	}
	if uint64(h.NumEntries)*uint64(h.EntrySize) > gptPartitionTableSize {
		return fmt.Errorf("%w: partition table too large", ErrInvalidLabel)
	}
	if h.LBATable+blocksFor(gptPartitionTableSize, blockSize) > h.LBAStart {
		return fmt.Errorf("%w: partition table overlaps first usable block", ErrInvalidLabel)
	}
	return nil
}

func validateSecondaryHeader(h *GPTHeader, blockSize, numBlocks uint64) error {
	if h.LBAAlt != 1 {
		return fmt.Errorf("%w: primary header not at lba 1", ErrInvalidLabel)
	}
	if h.LBASelf+1 != numBlocks {
		return fmt.Errorf("%w: secondary header location inconsistent with device size", ErrInvalidLabel)
	}
	if h.LBAAlt >= h.LBAStart {
		return fmt.Errorf("%w: first usable block underruns primary header", ErrInvalidLabel)
	}
	if h.LBATable != h.LBAEnd+1 {
		return fmt.Errorf("%w: partition table location inconsistent", ErrInvalidLabel)
	}
	if uint64(h.NumEntries)*uint64(h.EntrySize) > gptPartitionTableSize {
		return fmt.Errorf("%w: partition table too large", ErrInvalidLabel)
	}
	if h.LBATable+blocksFor(gptPartitionTableSize, blockSize) > h.LBASelf {
		return fmt.Errorf("%w: partition table overlaps secondary header", ErrInvalidLabel)
	}
	return nil
}

func validatePartitions(partitions []GPTEntry, header *GPTHeader) error {
	for i := range partitions {
		e := &partitions[i]
		if e.EntStart > 0 && e.EntStart < header.LBAStart {
			return fmt.Errorf("%w: partition %d starts before first usable block", ErrInvalidLabel, i)
		}
		if e.EntStart > e.EntEnd {
			return fmt.Errorf("%w: partition %d has negative size", ErrInvalidLabel, i)
		}
		if e.EntEnd > header.LBAEnd {
			return fmt.Errorf("%w: partition %d ends after last usable block", ErrInvalidLabel, i)
		}
	}
	crc, err := ChecksumPartitions(partitions, header.NumEntries)
	if err != nil {
		return err
	}
	if crc != header.TableCRC {
		return fmt.Errorf("%w: partition table checksum mismatch", ErrInvalidLabel)
	}
	return nil
}

func consistencyCheck(primary, secondary *GPTHeader) error {
	switch {
	case primary.LBASelf != secondary.LBAAlt, primary.LBAAlt != secondary.LBASelf:
		return fmt.Errorf("%w: primary/secondary header locations disagree", ErrInvalidLabel)
	case primary.LBAStart != secondary.LBAStart:
		return fmt.Errorf("%w: primary/secondary first usable block disagree", ErrInvalidLabel)
	case primary.LBAEnd != secondary.LBAEnd:
		return fmt.Errorf("%w: primary/secondary last usable block disagree", ErrInvalidLabel)
	case primary.GUID != secondary.GUID:
		return fmt.Errorf("%w: primary/secondary disk guid disagree", ErrInvalidLabel)
	case primary.NumEntries != secondary.NumEntries:
		return fmt.Errorf("%w: primary/secondary partition entry count disagree", ErrInvalidLabel)
	case primary.EntrySize != secondary.EntrySize:
		return fmt.Errorf("%w: primary/secondary partition entry size disagree", ErrInvalidLabel)
	case primary.TableCRC != secondary.TableCRC:
		return fmt.Errorf("%w: primary/secondary partition table checksum disagree", ErrInvalidLabel)
	}
	return nil
}

// Write persists a label to disk, writing only the half(ves) missing per
// l.Status: Both needs no write at all, Primary/Secondary each need only
// the half that was reconstructed in memory, and Neither needs both. After
// writing, it reads the label back and compares it against what was
// intended; a mismatch is a fatal ErrReReadError, since it means the
// device is not faithfully storing what was just sent to it.
func Write(ctx context.Context, h bdev.BlockDeviceHandle, l *Label) error {
	switch l.Status {
	case StatusBoth:
		// Disk already carries a consistent primary and secondary; nothing
		// to write.
	case StatusPrimary:
		// Primary is already valid on disk; only the secondary was
		// reconstructed in memory and needs writing out.
		if err := writeSecondary(ctx, h, l); err != nil {
			return err
		}
	case StatusSecondary:
		// Secondary is already valid on disk; only the primary (MBR +
		// primary header/table) was reconstructed and needs writing out.
		if err := writePrimary(ctx, h, l); err != nil {
			return err
		}
	default:
		// Neither half survived: write both.
		if err := writePrimary(ctx, h, l); err != nil {
			return err
		}
		if err := writeSecondary(ctx, h, l); err != nil {
			return err
		}
	}

	if err := reReadAndVerify(ctx, h, l); err != nil {
		return err
	}

	l.Status = StatusBoth
	return nil
}

// writePrimary writes the protective MBR, primary GPT header, and primary
// partition table.
func writePrimary(ctx context.Context, h bdev.BlockDeviceHandle, l *Label) error {
	bs := l.BlockSize

	sector0 := bufpool.Get(int(bs))
	defer bufpool.Put(sector0)
	for i := range sector0 {
		sector0[i] = 0
	}
	copy(sector0[len(sector0)-72:], l.MBR.marshal())
	if _, err := h.WriteAt(ctx, 0, sector0); err != nil {
		return fmt.Errorf("label: write mbr: %w", err)
	}

	primaryBuf := bufpool.Get(int(bs))
	defer bufpool.Put(primaryBuf)
	for i := range primaryBuf {
		primaryBuf[i] = 0
	}
	copy(primaryBuf, l.Primary.marshal())
	if _, err := h.WriteAt(ctx, int64(l.Primary.LBASelf*bs), primaryBuf); err != nil {
		return fmt.Errorf("label: write primary header: %w", err)
	}

	if err := writeTable(ctx, h, l.Primary.LBATable*bs, l.Partitions, l.Primary.NumEntries); err != nil {
		return fmt.Errorf("label: write primary partition table: %w", err)
	}
	return nil
}

// writeSecondary writes the secondary GPT header and secondary partition
// table.
func writeSecondary(ctx context.Context, h bdev.BlockDeviceHandle, l *Label) error {
	bs := l.BlockSize

	secondaryBuf := bufpool.Get(int(bs))
	defer bufpool.Put(secondaryBuf)
	for i := range secondaryBuf {
		secondaryBuf[i] = 0
	}
	copy(secondaryBuf, l.Secondary.marshal())
	if _, err := h.WriteAt(ctx, int64(l.Secondary.LBASelf*bs), secondaryBuf); err != nil {
		return fmt.Errorf("label: write secondary header: %w", err)
	}

	if err := writeTable(ctx, h, l.Secondary.LBATable*bs, l.Partitions, l.Secondary.NumEntries); err != nil {
		return fmt.Errorf("label: write secondary partition table: %w", err)
	}
	return nil
}

// reReadAndVerify probes the label back off h and compares it field-for-field
// against the label just written, per l.Status's intent (the half(ves) that
// were supposed to be on disk). Any mismatch, including a failed probe, is
// reported as ErrReReadError.
func reReadAndVerify(ctx context.Context, h bdev.BlockDeviceHandle, l *Label) error {
	geom := h.Geometry()
	reread, err := Probe(ctx, h, uint32(l.BlockSize), geom.NumBlocks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReReadError, err)
	}
	if reread.MBR != l.MBR || reread.Primary != l.Primary || reread.Secondary != l.Secondary {
		return fmt.Errorf("%w: header mismatch after write", ErrReReadError)
	}
	if !reflect.DeepEqual(reread.Partitions, l.Partitions) {
		return fmt.Errorf("%w: partition table mismatch after write", ErrReReadError)
	}
	return nil
}

func writeTable(ctx context.Context, h bdev.BlockDeviceHandle, byteOffset uint64, partitions []GPTEntry, numEntries uint32) error {
	bs := h.Geometry().BlockSize
	raw := uint64(numEntries) * gptHeaderEntrySize
	padded := blocksFor(raw, uint64(bs)) * uint64(bs)

	buf := bufpool.Get(int(padded))
	defer bufpool.Put(buf)
	for i := range buf {
		buf[i] = 0
	}
	for i := range partitions {
		copy(buf[i*gptHeaderEntrySize:(i+1)*gptHeaderEntrySize], partitions[i].marshal())
	}
	_, err := h.WriteAt(ctx, int64(byteOffset), buf)
	return err
}
