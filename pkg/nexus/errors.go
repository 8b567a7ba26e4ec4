package nexus

import "errors"

var (
	// ErrChildGeometry is returned when a candidate child's block size or
	// block count cannot satisfy the nexus's requirements.
	ErrChildGeometry = errors.New("nexus: child geometry incompatible")

	// ErrChildMissing is returned when an I/O is attempted against a
	// nexus with zero Open children.
	ErrChildMissing = errors.New("nexus: no open children")

	// ErrChildNotFound is returned when a named child does not exist on
	// the nexus.
	ErrChildNotFound = errors.New("nexus: child not found")

	// ErrMixedBlockSizes is returned when a nexus's children report
	// different block sizes.
	ErrMixedBlockSizes = errors.New("nexus: children report mixed block sizes")

	// ErrNexusIncomplete is returned when a nexus is constructed with no
	// children, or loses all of them.
	ErrNexusIncomplete = errors.New("nexus: incomplete, no children")

	// ErrDestroyLastChild is returned when a caller attempts to destroy
	// the only remaining child of a nexus.
	ErrDestroyLastChild = errors.New("nexus: refusing to destroy the last child")

	// ErrRemoveLastChild is returned when a caller attempts to remove the
	// only remaining child of a nexus.
	ErrRemoveLastChild = errors.New("nexus: refusing to remove the last child")

	// ErrFaultingLastHealthyChild is returned when faulting a child would
	// leave the nexus with zero Open children, or the nexus has fewer
	// than two children to begin with.
	ErrFaultingLastHealthyChild = errors.New("nexus: refusing to fault the last healthy child")

	// ErrCloseChild is returned when a child fails to close cleanly
	// during removal.
	ErrCloseChild = errors.New("nexus: failed to close child")

	// ErrDataOffsetMismatch is returned when children report different
	// MayaData partition offsets during label synchronization.
	ErrDataOffsetMismatch = errors.New("nexus: children report mismatched data offsets")

	// ErrInvalidLabel is returned when a child's on-disk label fails
	// validation during label synchronization.
	ErrInvalidLabel = errors.New("nexus: child label invalid")

	// ErrReReadError is returned when a label written to a child reads
	// back different from what was written.
	ErrReReadError = errors.New("nexus: label re-read mismatch after write")
)
