package engine

import "errors"

// ErrNotFound is returned when a requested nexus is not registered with the
// engine, or a requested nexus or rebuild snapshot is not present in the
// state store.
var ErrNotFound = errors.New("engine: snapshot not found")
