package label

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"unicode/utf16"

	"github.com/google/uuid"
)

// GUID is a GPT-style mixed-endian GUID: the first three fields are stored
// little-endian on disk, unlike the big-endian RFC4122 layout google/uuid
// uses in memory. ToUUID/FromUUID convert between the two.
type GUID [16]byte

// FromUUID converts an RFC4122 UUID into its on-disk GPT byte order.
func FromUUID(u uuid.UUID) GUID {
	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(g[8:16], u[8:16])
	return g
}

// ToUUID converts a GPT on-disk GUID back into an RFC4122 UUID.
func (g GUID) ToUUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(g[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(g[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(g[6:8]))
	copy(u[8:16], g[8:16])
	return u
}

func (g GUID) String() string { return g.ToUUID().String() }

const (
	gptHeaderSize         = 92
	gptHeaderEntrySize    = 128
	gptPartitionTableSize = 128 * 128 // 128 entries * 128 bytes
	gptDataOffset         = 1024 * 1024
	gptNumEntries         = 2 // only MayaMeta + MayaData, padded to entry_size in the checksum
)

var (
	gptHeaderSignature = [8]byte{0x45, 0x46, 0x49, 0x20, 0x50, 0x41, 0x52, 0x54} // "EFI PART"
	gptHeaderRevision  = [4]byte{0x00, 0x00, 0x01, 0x00}
)

// GPTHeader is the fixed 92-byte GPT header, primary or secondary.
type GPTHeader struct {
	Signature    [8]byte
	Revision     [4]byte
	HeaderSize   uint32
	SelfChecksum uint32
	Reserved     [4]byte
	LBASelf      uint64
	LBAAlt       uint64
	LBAStart     uint64
	LBAEnd       uint64
	GUID         GUID
	LBATable     uint64
	NumEntries   uint32
	EntrySize    uint32
	TableCRC     uint32
}

// newHeader builds a fresh primary header for a device with the given
// geometry; table_crc and self_checksum are left zero for the caller to
// fill in once the partition table is known.
func newHeader(guid GUID, blockSize uint32, numBlocks uint64) GPTHeader {
	partitionBlocks := blocksFor(gptPartitionTableSize, uint64(blockSize))
	dataStart := blocksFor(gptDataOffset, uint64(blockSize))

	return GPTHeader{
		Signature:  gptHeaderSignature,
		Revision:   gptHeaderRevision,
		HeaderSize: gptHeaderSize,
		LBASelf:    1,
		LBAAlt:     numBlocks - 1,
		LBAStart:   dataStart,
		LBAEnd:     numBlocks - partitionBlocks - 2,
		GUID:       guid,
		LBATable:   2,
		NumEntries: gptNumEntries,
		EntrySize:  gptHeaderEntrySize,
	}
}

// marshal encodes the header into its fixed 92-byte on-disk form.
func (h *GPTHeader) marshal() []byte {
	buf := make([]byte, gptHeaderSize)
	w := bytes.NewBuffer(buf[:0])
	binary.Write(w, binary.LittleEndian, h.Signature)
	binary.Write(w, binary.LittleEndian, h.Revision)
	binary.Write(w, binary.LittleEndian, h.HeaderSize)
	binary.Write(w, binary.LittleEndian, h.SelfChecksum)
	binary.Write(w, binary.LittleEndian, h.Reserved)
	binary.Write(w, binary.LittleEndian, h.LBASelf)
	binary.Write(w, binary.LittleEndian, h.LBAAlt)
	binary.Write(w, binary.LittleEndian, h.LBAStart)
	binary.Write(w, binary.LittleEndian, h.LBAEnd)
	binary.Write(w, binary.LittleEndian, h.GUID)
	binary.Write(w, binary.LittleEndian, h.LBATable)
	binary.Write(w, binary.LittleEndian, h.NumEntries)
	binary.Write(w, binary.LittleEndian, h.EntrySize)
	binary.Write(w, binary.LittleEndian, h.TableCRC)
	return w.Bytes()
}

// unmarshalHeader decodes a 92-byte buffer into a GPTHeader, validating the
// signature, revision, and size fields before touching the checksum.
func unmarshalHeader(buf []byte) (GPTHeader, error) {
	if len(buf) < gptHeaderSize {
		return GPTHeader{}, fmt.Errorf("%w: short header buffer", ErrInvalidLabel)
	}
	var h GPTHeader
	r := bytes.NewReader(buf[:gptHeaderSize])
	binary.Read(r, binary.LittleEndian, &h.Signature)
	binary.Read(r, binary.LittleEndian, &h.Revision)
	binary.Read(r, binary.LittleEndian, &h.HeaderSize)
	binary.Read(r, binary.LittleEndian, &h.SelfChecksum)
	binary.Read(r, binary.LittleEndian, &h.Reserved)
	binary.Read(r, binary.LittleEndian, &h.LBASelf)
	binary.Read(r, binary.LittleEndian, &h.LBAAlt)
	binary.Read(r, binary.LittleEndian, &h.LBAStart)
	binary.Read(r, binary.LittleEndian, &h.LBAEnd)
	binary.Read(r, binary.LittleEndian, &h.GUID)
	binary.Read(r, binary.LittleEndian, &h.LBATable)
	binary.Read(r, binary.LittleEndian, &h.NumEntries)
	binary.Read(r, binary.LittleEndian, &h.EntrySize)
	binary.Read(r, binary.LittleEndian, &h.TableCRC)

	if h.HeaderSize != gptHeaderSize {
		return GPTHeader{}, fmt.Errorf("%w: header size %d != %d", ErrInvalidLabel, h.HeaderSize, gptHeaderSize)
	}
	if h.Signature != gptHeaderSignature {
		return GPTHeader{}, fmt.Errorf("%w: bad GPT signature", ErrInvalidLabel)
	}
	if h.Revision != gptHeaderRevision {
		return GPTHeader{}, fmt.Errorf("%w: unsupported GPT revision", ErrInvalidLabel)
	}

	want := h.SelfChecksum
	if err := h.computeChecksum(); err != nil {
		return GPTHeader{}, err
	}
	if h.SelfChecksum != want {
		return GPTHeader{}, fmt.Errorf("%w: GPT header checksum mismatch", ErrInvalidLabel)
	}
	h.SelfChecksum = want
	return h, nil
}

// computeChecksum recomputes SelfChecksum over the header with the checksum
// field itself zeroed, the same convention bincode-based GPT tooling uses.
func (h *GPTHeader) computeChecksum() error {
	h.SelfChecksum = 0
	h.SelfChecksum = crc32.ChecksumIEEE(h.marshal())
	return nil
}

// toSecondary derives the backup header location from a checksummed
// primary header.
func (h *GPTHeader) toSecondary() (GPTHeader, error) {
	sec := *h
	sec.LBASelf = h.LBAAlt
	sec.LBAAlt = h.LBASelf
	sec.LBATable = h.LBAEnd + 1
	if err := sec.computeChecksum(); err != nil {
		return GPTHeader{}, err
	}
	return sec, nil
}

// toPrimary derives the primary header location from a checksummed
// secondary header — used when only the secondary survived a probe.
func (h *GPTHeader) toPrimary() (GPTHeader, error) {
	pri := *h
	pri.LBASelf = h.LBAAlt
	pri.LBAAlt = h.LBASelf
	pri.LBATable = h.LBAAlt + 1
	if err := pri.computeChecksum(); err != nil {
		return GPTHeader{}, err
	}
	return pri, nil
}

// GPTEntry is one 128-byte partition table entry.
type GPTEntry struct {
	EntType  GUID
	EntGUID  GUID
	EntStart uint64
	EntEnd   uint64
	EntAttr  uint64
	Name     string // decoded from a fixed 36 UTF-16 code unit field
}

func (e *GPTEntry) marshal() []byte {
	buf := make([]byte, gptHeaderEntrySize)
	copy(buf[0:16], e.EntType[:])
	copy(buf[16:32], e.EntGUID[:])
	binary.LittleEndian.PutUint64(buf[32:40], e.EntStart)
	binary.LittleEndian.PutUint64(buf[40:48], e.EntEnd)
	binary.LittleEndian.PutUint64(buf[48:56], e.EntAttr)
	encodeGPTName(buf[56:128], e.Name)
	return buf
}

func unmarshalEntry(buf []byte) (GPTEntry, error) {
	if len(buf) < gptHeaderEntrySize {
		return GPTEntry{}, fmt.Errorf("%w: short partition entry buffer", ErrInvalidLabel)
	}
	var e GPTEntry
	copy(e.EntType[:], buf[0:16])
	copy(e.EntGUID[:], buf[16:32])
	e.EntStart = binary.LittleEndian.Uint64(buf[32:40])
	e.EntEnd = binary.LittleEndian.Uint64(buf[40:48])
	e.EntAttr = binary.LittleEndian.Uint64(buf[48:56])
	e.Name = decodeGPTName(buf[56:128])
	return e, nil
}

// encodeGPTName packs name as up to 36 UTF-16LE code units, zero-padded —
// the fixed 72-byte "newtype" field the original's GptName serializer
// produces rather than a length-prefixed string.
func encodeGPTName(dst []byte, name string) {
	units := utf16.Encode([]rune(name))
	if len(units) > 36 {
		units = units[:36]
	}
	for i, u := range units {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], u)
	}
}

func decodeGPTName(src []byte) string {
	units := make([]uint16, 0, 36)
	for i := 0; i < 36; i++ {
		u := binary.LittleEndian.Uint16(src[i*2 : i*2+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// ChecksumPartitions computes the CRC32 IEEE checksum over a partition
// table, padding with default (all-zero) entries up to size entries so
// checksums computed from differently-sized in-memory slices of the same
// on-disk table always agree.
func ChecksumPartitions(partitions []GPTEntry, size uint32) (uint32, error) {
	digest := crc32.NewIEEE()
	for i := range partitions {
		digest.Write(partitions[i].marshal())
	}
	var pad GPTEntry
	padded := pad.marshal()
	for i := uint32(len(partitions)); i < size; i++ {
		digest.Write(padded)
	}
	return digest.Sum32(), nil
}
