// Package engine wires configuration, the nexus manager, metrics, and
// persistence together into the running daemon, and holds the Badger-backed
// state store used to recall nexus/child/rebuild topology across restarts.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/nexus"
	"github.com/nexusd/nexusd/pkg/rebuild"
)

// ChildSnapshot is the persisted view of one child, enough to report status
// before it is re-probed live at startup.
type ChildSnapshot struct {
	Name   string            `json:"name"`
	URI    string            `json:"uri"`
	State  child.State       `json:"state"`
	Reason child.FaultReason `json:"reason,omitempty"`
}

// NexusSnapshot is the persisted view of one nexus and its children.
type NexusSnapshot struct {
	Name       string          `json:"name"`
	BlockSize  uint32          `json:"block_size"`
	NumBlocks  uint64          `json:"num_blocks"`
	DataOffset uint64          `json:"data_offset"`
	Status     nexus.Status    `json:"status"`
	Children   []ChildSnapshot `json:"children"`
}

// RebuildSnapshot is the persisted view of one rebuild job.
type RebuildSnapshot struct {
	SourceURI string        `json:"source_uri"`
	DestURI   string        `json:"dest_uri"`
	State     rebuild.State `json:"state"`
	NextBlock uint64        `json:"next_block"`
	NumBlocks uint64        `json:"num_blocks"`
}

const (
	nexusKeyPrefix   = "nexus:"
	rebuildKeyPrefix = "rebuild:"
)

func nexusKey(name string) []byte   { return []byte(nexusKeyPrefix + name) }
func rebuildKey(destURI string) []byte { return []byte(rebuildKeyPrefix + destURI) }

// Store is the embedded KV store backing engine state persistence. It is
// written on every mutating nexus/child/rebuild operation and read back at
// startup to report last-known topology before children are re-probed live.
//
// This rendition repurposes Badger (already a teacher dependency, there used
// for content-addressed metadata) as a small snapshot store rather than a
// content index — a nexus engine has no content-addressed data of its own,
// only topology and lifecycle state to recall across a restart.
type Store struct {
	db *badger.DB
}

// OpenStore opens (creating if necessary) a Badger store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("engine: open state store at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveNexus persists a nexus's current topology snapshot.
func (s *Store) SaveNexus(snap NexusSnapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("engine: encode nexus snapshot for %q: %w", snap.Name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nexusKey(snap.Name), buf)
	})
}

// LoadNexus reads back a nexus's last-persisted snapshot.
func (s *Store) LoadNexus(name string) (*NexusSnapshot, error) {
	var snap NexusSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nexusKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: nexus %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListNexuses returns every persisted nexus snapshot.
func (s *Store) ListNexuses() ([]NexusSnapshot, error) {
	var out []NexusSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(nexusKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var snap NexusSnapshot
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	return out, err
}

// DeleteNexus removes a nexus's persisted snapshot.
func (s *Store) DeleteNexus(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(nexusKey(name))
	})
}

// SaveRebuild persists a rebuild job snapshot, keyed by destination URI. The
// envelope is a handful of fixed-width fields, so it is XDR-encoded rather
// than pulled through a general-purpose JSON marshaler.
func (s *Store) SaveRebuild(snap RebuildSnapshot) error {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &snap); err != nil {
		return fmt.Errorf("engine: encode rebuild snapshot for %q: %w", snap.DestURI, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rebuildKey(snap.DestURI), buf.Bytes())
	})
}

// DeleteRebuild removes a rebuild job's persisted snapshot.
func (s *Store) DeleteRebuild(destURI string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(rebuildKey(destURI))
	})
}

// ListRebuilds returns every persisted rebuild snapshot.
func (s *Store) ListRebuilds() ([]RebuildSnapshot, error) {
	var out []RebuildSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(rebuildKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var snap RebuildSnapshot
			if err := it.Item().Value(func(val []byte) error {
				_, err := xdr.Unmarshal(bytes.NewReader(val), &snap)
				return err
			}); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	return out, err
}
