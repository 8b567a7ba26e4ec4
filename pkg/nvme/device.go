package nvme

import (
	"context"

	"github.com/nexusd/nexusd/pkg/bdev"
)

// Kind and Destroy complete Controller's implementation of bdev.BlockDevice;
// Name, Geometry, and Open are defined in controller.go and handle.go
// respectively. A Controller is the bdev-scheme backend for "nvmf" URIs: one
// simulated controller per child, opened once per worker core.
func (c *Controller) Kind() bdev.Kind { return bdev.KindNVMe }

// Destroy removes the controller from the process-wide directory and tears
// down every channel opened against it.
func (c *Controller) Destroy(ctx context.Context) error {
	return RemoveController(c.name)
}
