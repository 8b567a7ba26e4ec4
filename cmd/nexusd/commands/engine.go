package commands

import (
	"context"
	"fmt"

	"github.com/nexusd/nexusd/pkg/config"
	"github.com/nexusd/nexusd/pkg/engine"
)

// withEngine loads configuration, opens the engine in-process (re-probing
// every configured nexus's children from their on-disk labels per its
// label mode), runs fn, and closes the engine's state store on the way out.
// There is no network control plane in this rendition: every mutating
// subcommand is, itself, the in-process admin client.
func withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	return fn(eng)
}
