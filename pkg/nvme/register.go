package nvme

import (
	"fmt"

	"github.com/nexusd/nexusd/pkg/bdev"
)

func init() {
	bdev.RegisterNvmfConstructor(newFromURI)
}

// newFromURI resolves the simulated controller addressed by an
// "nvmf://host:port/nqn" child URI. A real initiator would discover the
// target's geometry over the fabric during connect; the simulated transport
// has no fabric to discover over, so the controller must already have been
// registered (by NewController, on the simulated "target" side) under the
// same host:port/nqn name before a child can connect to it.
func newFromURI(p *bdev.ParsedURI) (bdev.BlockDevice, error) {
	name := fmt.Sprintf("%s:%d/%s", p.Host, p.Port, p.NQN)
	return LookupController(name)
}
