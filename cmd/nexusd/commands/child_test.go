package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildAddAndList(t *testing.T) {
	cfgPath := writeTestConfig(t)

	err := runCmd(t, cfgPath, "child", "add", "t0", "extra", "malloc:///cmdtest-extra?size_mb=32")
	require.NoError(t, err)

	err = runCmd(t, cfgPath, "child", "list", "t0", "-o", "json")
	require.NoError(t, err)
}

func TestChildFault(t *testing.T) {
	cfgPath := writeTestConfig(t)

	err := runCmd(t, cfgPath, "child", "fault", "t0", "t0-1", "--reason", "io_error")
	require.NoError(t, err)
}

func TestChildOnline_RejectsAlreadyOpenChild(t *testing.T) {
	cfgPath := writeTestConfig(t)

	// Each CLI invocation opens a fresh engine from the configuration file,
	// so t0-1 starts Open here regardless of any earlier invocation; online
	// is only a valid transition from Faulted.
	err := runCmd(t, cfgPath, "child", "online", "t0", "t0-1")
	require.Error(t, err)
}

func TestChildFault_RejectsUnknownReason(t *testing.T) {
	cfgPath := writeTestConfig(t)

	err := runCmd(t, cfgPath, "child", "fault", "t0", "t0-1", "--reason", "bogus")
	require.Error(t, err)
}

func TestChildRemove_UnknownNexus(t *testing.T) {
	cfgPath := writeTestConfig(t)

	err := runCmd(t, cfgPath, "child", "remove", "missing-nexus", "t0-1")
	assert.Error(t, err)
}
