// Package label implements the GPT-compatible on-disk label every nexus
// writes to its children: a protective MBR, a primary and secondary GPT
// header, and a two-entry partition table splitting the device into a small
// "MayaMeta" metadata partition and a "MayaData" payload partition. The
// format matches a standard GPT disk closely enough that any GPT-aware tool
// can read it with the nexus out of the data path; the only domain-specific
// marker is the partition type GUID.
package label

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Status reports how the primary and secondary labels on a device relate to
// each other after a probe.
type Status int

const (
	// StatusNeither means neither header was present/valid; the device is
	// unlabeled.
	StatusNeither Status = iota
	// StatusBoth means both headers are present, valid, and consistent.
	StatusBoth
	// StatusPrimary means only the primary header is valid; the secondary
	// was reconstructed from it.
	StatusPrimary
	// StatusSecondary means only the secondary header is valid; the
	// primary was reconstructed from it.
	StatusSecondary
)

func (s Status) String() string {
	switch s {
	case StatusBoth:
		return "both"
	case StatusPrimary:
		return "primary"
	case StatusSecondary:
		return "secondary"
	default:
		return "neither"
	}
}

// MetadataPartitionTypeID is the partition type GUID marking the
// nexus-owned metadata partition. It has no significance to generic GPT
// tooling beyond identifying that the partition belongs to this system.
const MetadataPartitionTypeID = "27663382-e5e6-11e9-81b4-ca5ca5ca5ca5"

// MetadataPartitionSize is the fixed size of the "MayaMeta" partition.
const MetadataPartitionSize uint64 = 4 * 1024 * 1024

const (
	metaPartitionName = "MayaMeta"
	dataPartitionName = "MayaData"
)

var (
	ErrDeviceTooSmall = errors.New("label: device too small to accommodate metadata partition")
	ErrInvalidLabel   = errors.New("label: on-disk label is invalid")
	// ErrReReadError is returned by Write when the label read back from
	// the device after writing does not match what was written.
	ErrReReadError = errors.New("label: re-read mismatch after write")
)

// Label is the fully decoded on-disk label: the protective MBR, both GPT
// headers, and the partition table (index 0 is always "MayaMeta", index 1
// is always "MayaData").
type Label struct {
	Status     Status
	BlockSize  uint64
	MBR        ProtectiveMBR
	Primary    GPTHeader
	Secondary  GPTHeader
	Partitions []GPTEntry
}

// Generate builds a brand-new label for a device of the given geometry and
// payload size. The resulting label has StatusNeither since it has not yet
// been written to any device.
func Generate(guid GUID, blockSize uint32, numBlocks uint64, dataSizeBytes uint64) (*Label, error) {
	mbr := defaultMBR()
	mbr.Entries[0].protect(numBlocks)

	primary := newHeader(guid, blockSize, numBlocks)

	partitions, err := makePartitions(&primary, blockSize, dataSizeBytes)
	if err != nil {
		return nil, err
	}

	tableCRC, err := ChecksumPartitions(partitions, primary.NumEntries)
	if err != nil {
		return nil, err
	}
	primary.TableCRC = tableCRC
	if err := primary.computeChecksum(); err != nil {
		return nil, err
	}

	secondary, err := primary.toSecondary()
	if err != nil {
		return nil, err
	}

	return &Label{
		Status:     StatusNeither,
		BlockSize:  uint64(blockSize),
		MBR:        mbr,
		Primary:    primary,
		Secondary:  secondary,
		Partitions: partitions,
	}, nil
}

// makePartitions lays out the fixed MayaMeta/MayaData pair within the
// header's usable LBA range.
func makePartitions(header *GPTHeader, blockSize uint32, dataSizeBytes uint64) ([]GPTEntry, error) {
	metaBlocks := blocksFor(MetadataPartitionSize, uint64(blockSize))
	dataStart := header.LBAStart + metaBlocks

	if dataStart > header.LBAEnd {
		return nil, fmt.Errorf("%w: num_blocks=%d block_size=%d", ErrDeviceTooSmall, header.LBAAlt+1, blockSize)
	}

	dataBlocks := blocksFor(dataSizeBytes, uint64(blockSize))
	dataEnd := dataStart + dataBlocks - 1
	if dataEnd > header.LBAEnd {
		dataEnd = header.LBAEnd
	}

	typeID, err := parseGUID(MetadataPartitionTypeID)
	if err != nil {
		return nil, err
	}

	return []GPTEntry{
		{
			EntType:  typeID,
			EntGUID:  randomGUID(),
			EntStart: header.LBAStart,
			EntEnd:   dataStart - 1,
			Name:     metaPartitionName,
		},
		{
			EntType:  typeID,
			EntGUID:  randomGUID(),
			EntStart: dataStart,
			EntEnd:   dataEnd,
			Name:     dataPartitionName,
		},
	}, nil
}

// GetPartition locates a partition by name.
func (l *Label) GetPartition(name string) (*GPTEntry, bool) {
	for i := range l.Partitions {
		if l.Partitions[i].Name == name {
			return &l.Partitions[i], true
		}
	}
	return nil, false
}

// PartitionOffset returns the byte offset of a named partition.
func (l *Label) PartitionOffset(name string) (uint64, error) {
	p, ok := l.GetPartition(name)
	if !ok {
		return 0, fmt.Errorf("%w: no partition named %q", ErrInvalidLabel, name)
	}
	return p.EntStart * l.BlockSize, nil
}

// PartitionSize returns the byte size of a named partition.
func (l *Label) PartitionSize(name string) (uint64, error) {
	p, ok := l.GetPartition(name)
	if !ok {
		return 0, fmt.Errorf("%w: no partition named %q", ErrInvalidLabel, name)
	}
	return (p.EntEnd - p.EntStart + 1) * l.BlockSize, nil
}

// blocksFor rounds byteLen up to the nearest multiple of blockSize,
// expressed in blocks.
func blocksFor(byteLen uint64, blockSize uint64) uint64 {
	return (byteLen + blockSize - 1) / blockSize
}

func randomGUID() GUID {
	return FromUUID(uuid.New())
}

func parseGUID(s string) (GUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("label: invalid type guid %q: %w", s, err)
	}
	return FromUUID(id), nil
}
