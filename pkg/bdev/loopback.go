package bdev

import "context"

// loopbackDevice is an alias-only wrapper around an already-registered
// BlockDevice, identified by name. It adds no behavior of its own; it
// exists so a child URI can reference an existing local bdev under a second
// name/UUID without duplicating storage.
type loopbackDevice struct {
	name   string
	target BlockDevice
}

// NewLoopback wraps an existing BlockDevice under a new name.
func NewLoopback(name string, target BlockDevice) BlockDevice {
	return &loopbackDevice{name: name, target: target}
}

func (d *loopbackDevice) Kind() Kind         { return KindLoopback }
func (d *loopbackDevice) Name() string       { return d.name }
func (d *loopbackDevice) Geometry() Geometry { return d.target.Geometry() }

func (d *loopbackDevice) Open(ctx context.Context, core int) (BlockDeviceHandle, error) {
	return d.target.Open(ctx, core)
}

// Destroy is a no-op: a loopback alias does not own the target device's
// lifetime.
func (d *loopbackDevice) Destroy(ctx context.Context) error { return nil }
