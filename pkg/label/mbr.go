package label

import (
	"encoding/binary"
	"fmt"
)

// pmbrSignature is the fixed boot signature bytes at the end of sector 0.
var pmbrSignature = [2]byte{0x55, 0xaa}

const mbrEntrySize = 16

// MBREntry is one of the four classic MBR partition table slots.
type MBREntry struct {
	Attributes byte
	CHSStart   [3]byte
	EntType    byte
	CHSLast    [3]byte
	LBAStart   uint32
	NumSectors uint32
}

// protect turns this slot into a protective-MBR entry spanning the whole
// disk (type 0xEE), clamping the sector count to the 32-bit max when the
// real size doesn't fit, per the GPT spec's protective MBR convention.
func (e *MBREntry) protect(numBlocks uint64) {
	e.Attributes = 0x00
	e.EntType = 0xee
	e.CHSStart = [3]byte{0x00, 0x02, 0x00}
	e.CHSLast = [3]byte{0xff, 0xff, 0xff}
	e.LBAStart = 1

	if numBlocks-1 > 0xffffffff {
		e.NumSectors = 0xffffffff
	} else {
		e.NumSectors = uint32(numBlocks - 1)
	}
}

func (e *MBREntry) marshal() []byte {
	buf := make([]byte, mbrEntrySize)
	buf[0] = e.Attributes
	copy(buf[1:4], e.CHSStart[:])
	buf[4] = e.EntType
	copy(buf[5:8], e.CHSLast[:])
	binary.LittleEndian.PutUint32(buf[8:12], e.LBAStart)
	binary.LittleEndian.PutUint32(buf[12:16], e.NumSectors)
	return buf
}

func unmarshalMBREntry(buf []byte) MBREntry {
	var e MBREntry
	e.Attributes = buf[0]
	copy(e.CHSStart[:], buf[1:4])
	e.EntType = buf[4]
	copy(e.CHSLast[:], buf[5:8])
	e.LBAStart = binary.LittleEndian.Uint32(buf[8:12])
	e.NumSectors = binary.LittleEndian.Uint32(buf[12:16])
	return e
}

// ProtectiveMBR occupies the last 72 bytes of sector 0 (offset 440-512):
// four MBR partition entries followed by the 0x55AA boot signature. Only
// entry 0 is populated; entries 1-3 stay zeroed. It exists purely so
// non-GPT-aware tools don't mistake the disk for unpartitioned, per the GPT
// spec's protective-MBR convention — the nexus itself never reads it.
type ProtectiveMBR struct {
	DiskSignature uint32
	Entries       [4]MBREntry
	Signature     [2]byte
}

func defaultMBR() ProtectiveMBR {
	return ProtectiveMBR{Signature: pmbrSignature}
}

// marshal encodes the 72-byte protective MBR tail (offset 440 within sector
// 0).
func (m *ProtectiveMBR) marshal() []byte {
	buf := make([]byte, 72)
	binary.LittleEndian.PutUint32(buf[0:4], m.DiskSignature)
	// 2 reserved bytes at [4:6]
	off := 6
	for i := range m.Entries {
		copy(buf[off:off+mbrEntrySize], m.Entries[i].marshal())
		off += mbrEntrySize
	}
	copy(buf[off:off+2], m.Signature[:])
	return buf
}

func unmarshalMBR(buf []byte) (ProtectiveMBR, error) {
	if len(buf) < 72 {
		return ProtectiveMBR{}, fmt.Errorf("%w: short MBR buffer", ErrInvalidLabel)
	}
	var m ProtectiveMBR
	m.DiskSignature = binary.LittleEndian.Uint32(buf[0:4])
	off := 6
	for i := range m.Entries {
		m.Entries[i] = unmarshalMBREntry(buf[off : off+mbrEntrySize])
		off += mbrEntrySize
	}
	copy(m.Signature[:], buf[off:off+2])
	if m.Signature != pmbrSignature {
		return ProtectiveMBR{}, fmt.Errorf("%w: bad protective MBR signature", ErrInvalidLabel)
	}
	return m, nil
}
