package nexus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/errstore"
	"github.com/nexusd/nexusd/pkg/registry"
)

func newTestNexus(t *testing.T, name string, numChildren int) *Nexus {
	t.Helper()
	cfg := Config{
		Name:        name,
		SizeBytes:   8 * 1024 * 1024,
		ChildURIs:   mallocURIs(name+"-child", numChildren, 16),
		ErrorPolicy: errstore.DefaultPolicy,
		Registry:    registry.New(),
		LabelMode:   LabelModeCreate,
	}
	n, err := Create(context.Background(), cfg)
	require.NoError(t, err)
	return n
}

// Regression test for the "add_child keying bug": two children with
// different names added to the same nexus must remain independently
// addressable, never collapse to one entry under a shared key.
func TestAddChild_DistinctChildNamesDoNotCollide(t *testing.T) {
	n := newTestNexus(t, "nexus-keying", 1)

	_, err := n.AddChild(context.Background(), "extra-a", "malloc:///nexus-keying-extra-a?size_mb=16", nil)
	require.NoError(t, err)
	_, err = n.AddChild(context.Background(), "extra-b", "malloc:///nexus-keying-extra-b?size_mb=16", nil)
	require.NoError(t, err)

	assert.Len(t, n.Children(), 3)
	names := map[string]bool{}
	for _, c := range n.Children() {
		names[c.Name] = true
	}
	assert.True(t, names["extra-a"])
	assert.True(t, names["extra-b"])
}

func TestAddChild_NewChildStartsFaultedOutOfSync(t *testing.T) {
	n := newTestNexus(t, "nexus-addfault", 1)
	c, err := n.AddChild(context.Background(), "extra", "malloc:///nexus-addfault-extra?size_mb=16", nil)
	require.NoError(t, err)
	assert.Equal(t, child.StateFaulted, c.State())
	assert.Equal(t, child.ReasonOutOfSync, c.FaultReason())
}

func TestRemoveChild_RefusesLastChild(t *testing.T) {
	n := newTestNexus(t, "nexus-removelast", 1)
	only := n.Children()[0]
	err := n.RemoveChild(context.Background(), only.Name, nil)
	assert.ErrorIs(t, err, ErrRemoveLastChild)
}

func TestRemoveChild_RemovesNamedChild(t *testing.T) {
	n := newTestNexus(t, "nexus-remove2", 2)
	victim := n.Children()[0]
	err := n.RemoveChild(context.Background(), victim.Name, nil)
	require.NoError(t, err)
	assert.Len(t, n.Children(), 1)
}

func TestFaultChild_RefusesWithFewerThanTwoChildren(t *testing.T) {
	n := newTestNexus(t, "nexus-faultone", 1)
	only := n.Children()[0]
	err := n.FaultChild(context.Background(), only.Name, child.ReasonIoError, nil, nil)
	assert.ErrorIs(t, err, ErrFaultingLastHealthyChild)
}

func TestFaultChild_RefusesLeavingZeroOpenChildren(t *testing.T) {
	n := newTestNexus(t, "nexus-faultlastopen", 2)
	children := n.Children()
	require.NoError(t, n.FaultChild(context.Background(), children[0].Name, child.ReasonIoError, nil, nil))

	err := n.FaultChild(context.Background(), children[1].Name, child.ReasonIoError, nil, nil)
	assert.ErrorIs(t, err, ErrFaultingLastHealthyChild)
}

func TestFaultThenOnlineChild(t *testing.T) {
	n := newTestNexus(t, "nexus-faultonline", 2)
	children := n.Children()
	require.NoError(t, n.FaultChild(context.Background(), children[0].Name, child.ReasonIoError, nil, nil))
	assert.Equal(t, child.StateFaulted, children[0].State())

	require.NoError(t, n.OnlineChild(children[0].Name, nil))
	assert.Equal(t, child.StateOpen, children[0].State())
}
