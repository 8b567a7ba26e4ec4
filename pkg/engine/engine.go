package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nexusd/nexusd/internal/logger"
	"github.com/nexusd/nexusd/pkg/bdev"
	"github.com/nexusd/nexusd/pkg/child"
	"github.com/nexusd/nexusd/pkg/config"
	"github.com/nexusd/nexusd/pkg/errstore"
	"github.com/nexusd/nexusd/pkg/metrics"
	"github.com/nexusd/nexusd/pkg/nexus"
	"github.com/nexusd/nexusd/pkg/rebuild"
	"github.com/nexusd/nexusd/pkg/registry"
)

// maxConcurrentRebuilds bounds how many rebuild jobs may run at once across
// the whole engine, independent of how many nexuses/children request one. It
// is a secondary admission guard: StartRebuild is already naturally limited
// to one job per destination by the rebuild registry, but nothing otherwise
// stops every child on every nexus from rebuilding simultaneously and
// saturating the source devices' I/O.
const maxConcurrentRebuilds = 4

// Engine is the running nexusd daemon's top-level object: every configured
// nexus, the child registry they share, the rebuild job registry, the
// metrics sink, and the state store they all persist into.
type Engine struct {
	mu      sync.RWMutex
	nexuses map[string]*nexus.Nexus

	reg         *registry.Registry
	rebuilds    *rebuild.Registry
	rebuildSem  *semaphore.Weighted
	store       *Store
	metrics     metrics.EngineMetrics
	errPol      errstore.Policy
}

// Open builds an Engine from cfg: opens the state store, constructs every
// configured nexus, and leaves the engine ready to serve I/O and admin
// requests. Any nexus construction failure tears down nexuses already
// built and returns the error.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	store, err := OpenStore(cfg.StateStore.Path)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		nexuses:    make(map[string]*nexus.Nexus),
		reg:        registry.New(),
		rebuilds:   rebuild.NewRegistry(),
		rebuildSem: semaphore.NewWeighted(maxConcurrentRebuilds),
		store:      store,
		metrics:    metrics.NewEngineMetrics(),
		errPol:     errorPolicyFromConfig(cfg.ErrorStore),
	}

	for _, nc := range cfg.Nexuses {
		if _, err := e.createNexus(ctx, nc); err != nil {
			e.closeAll(ctx)
			_ = store.Close()
			return nil, fmt.Errorf("engine: construct nexus %q: %w", nc.Name, err)
		}
	}

	return e, nil
}

// errorPolicyFromConfig translates the configuration-file error-store
// section into an errstore.Policy value.
func errorPolicyFromConfig(cfg config.ErrorStoreConfig) errstore.Policy {
	return errstore.Policy{
		Enabled:          cfg.Enabled,
		Size:             cfg.Size,
		Retention:        cfg.Retention,
		MaxErrors:        cfg.MaxErrors,
		GenericAction:    errstore.Action(strings.ToLower(cfg.Action)),
		TimeoutMaxErrors: cfg.TimeoutMaxErrors,
		TimeoutAction:    errstore.Action(strings.ToLower(cfg.TimeoutAction)),
	}
}

func labelModeFromConfig(mode string) nexus.LabelMode {
	switch mode {
	case "validate":
		return nexus.LabelModeValidate
	case "create":
		return nexus.LabelModeCreate
	default:
		return nexus.LabelModeUpdate
	}
}

func (e *Engine) createNexus(ctx context.Context, nc config.NexusConfig) (*nexus.Nexus, error) {
	n, err := nexus.Create(ctx, nexus.Config{
		Name:        nc.Name,
		SizeBytes:   nc.SizeBytes,
		ChildURIs:   nc.ChildURIs,
		ErrorPolicy: e.errPol,
		Registry:    e.reg,
		Rebuilds:    e.rebuilds,
		LabelMode:   labelModeFromConfig(nc.LabelMode),
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.nexuses[nc.Name] = n
	e.mu.Unlock()

	e.persistNexus(n)
	return n, nil
}

// Nexus returns the named nexus, or an error if it is not registered.
func (e *Engine) Nexus(name string) (*nexus.Nexus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.nexuses[name]
	if !ok {
		return nil, fmt.Errorf("%w: nexus %q", ErrNotFound, name)
	}
	return n, nil
}

// Nexuses returns every constructed nexus.
func (e *Engine) Nexuses() []*nexus.Nexus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*nexus.Nexus, 0, len(e.nexuses))
	for _, n := range e.nexuses {
		out = append(out, n)
	}
	return out
}

// AddChild adds a child to the named nexus and persists the resulting
// topology.
func (e *Engine) AddChild(ctx context.Context, nexusName, childName, uri string) (*child.Child, error) {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return nil, err
	}
	c, err := n.AddChild(ctx, childName, uri, e.onReconfigure)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveChild removes a child from the named nexus and persists the
// resulting topology.
func (e *Engine) RemoveChild(ctx context.Context, nexusName, childName string) error {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return err
	}
	return n.RemoveChild(ctx, childName, e.onReconfigure)
}

// FaultChild marks a child Faulted on the named nexus. Any rebuild job
// touching the child is cancelled; jobs whose destination is some other
// child are restarted against a newly chosen healthy source.
func (e *Engine) FaultChild(ctx context.Context, nexusName, childName string, reason child.FaultReason) error {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return err
	}
	return n.FaultChild(ctx, childName, reason, e.onReconfigure, func(ctx context.Context, destChildName string) {
		e.restartRebuild(ctx, n, destChildName)
	})
}

// restartRebuild picks a new source among the nexus's currently Open
// children (any child other than destChildName) and relaunches a rebuild
// job into destChildName. Used after FaultChild cancels a job whose source
// just faulted out from under it.
func (e *Engine) restartRebuild(ctx context.Context, n *nexus.Nexus, destChildName string) {
	var sourceURI string
	for _, c := range n.Children() {
		if c.Name != destChildName && c.IsOpen() {
			sourceURI = c.URI
			break
		}
	}
	if sourceURI == "" {
		logger.Warn("no healthy source available to restart rebuild",
			"nexus", n.Name, "child", destChildName)
		return
	}
	if _, err := e.StartRebuild(ctx, n.Name, destChildName, sourceURI, 0); err != nil {
		logger.Warn("failed to restart rebuild after source child fault",
			"nexus", n.Name, "child", destChildName, logger.Err(err))
	}
}

// OnlineChild transitions a child back to Open on the named nexus.
func (e *Engine) OnlineChild(nexusName, childName string) error {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return err
	}
	return n.OnlineChild(childName, e.onReconfigure)
}

// OfflineChild transitions a child to Closed on the named nexus.
func (e *Engine) OfflineChild(ctx context.Context, nexusName, childName string) error {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return err
	}
	return n.OfflineChild(ctx, childName, e.onReconfigure)
}

// onReconfigure persists the nexus's new topology and reports the open
// child count to metrics; it is passed to every nexus topology-changing
// call as the ReconfigureFunc.
func (e *Engine) onReconfigure(n *nexus.Nexus) {
	e.persistNexus(n)
	if e.metrics != nil {
		e.metrics.SetOpenChildren(n.Name, len(n.OpenChildren()))
	}
}

func (e *Engine) persistNexus(n *nexus.Nexus) {
	snap := NexusSnapshot{
		Name:       n.Name,
		BlockSize:  n.BlockSize(),
		NumBlocks:  n.NumBlocks(),
		DataOffset: n.DataOffset(),
		Status:     n.Status(),
	}
	for _, c := range n.Children() {
		snap.Children = append(snap.Children, ChildSnapshot{
			Name:   c.Name,
			URI:    c.URI,
			State:  c.State(),
			Reason: c.FaultReason(),
		})
	}
	if err := e.store.SaveNexus(snap); err != nil {
		logger.Warn("failed to persist nexus snapshot", "nexus", n.Name, logger.Err(err))
	}
}

// StartRebuild constructs and launches a rebuild job copying sourceURI into
// the named nexus's destChild, running it in the background. Only one job
// may target a given destination at a time.
func (e *Engine) StartRebuild(ctx context.Context, nexusName, destChild, sourceURI string, segment uint64) (*rebuild.Job, error) {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return nil, err
	}

	var dst *child.Child
	for _, c := range n.Children() {
		if c.Name == destChild {
			dst = c
		}
	}
	if dst == nil {
		return nil, fmt.Errorf("engine: rebuild destination %q not found on nexus %q", destChild, nexusName)
	}

	srcDev, err := bdev.NewFromURI(sourceURI)
	if err != nil {
		return nil, fmt.Errorf("engine: open rebuild source: %w", err)
	}
	srcHandle, err := srcDev.Open(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("engine: open rebuild source handle: %w", err)
	}
	dstHandle, err := dst.Device().Open(ctx, 0)
	if err != nil {
		_ = srcHandle.Close(ctx)
		return nil, fmt.Errorf("engine: open rebuild destination handle: %w", err)
	}

	if segment == 0 {
		segment = 256
	}
	job := rebuild.NewJob(sourceURI, dst.URI, srcHandle, dstHandle, n.BlockSize(), n.NumBlocks(), segment)
	if err := e.rebuilds.Add(job); err != nil {
		_ = srcHandle.Close(ctx)
		_ = dstHandle.Close(ctx)
		return nil, err
	}

	if err := e.rebuildSem.Acquire(ctx, 1); err != nil {
		e.rebuilds.Remove(dst.URI)
		_ = srcHandle.Close(ctx)
		_ = dstHandle.Close(ctx)
		return nil, fmt.Errorf("engine: wait for rebuild admission slot: %w", err)
	}

	go func() {
		defer e.rebuildSem.Release(1)
		job.Run(ctx)
		e.onRebuildDone(nexusName, dst.Name, job)
	}()

	return job, nil
}

func (e *Engine) onRebuildDone(nexusName, destChildName string, job *rebuild.Job) {
	if job.State() == rebuild.StateCompleted {
		if err := e.OnlineChild(nexusName, destChildName); err != nil {
			logger.Warn("failed to online child after rebuild completion",
				"nexus", nexusName, "child", destChildName, logger.Err(err))
		}
	}
	if e.metrics != nil {
		e.metrics.RecordRebuildOutcome(nexusName, destChildName, string(job.State()))
	}

	copied, total := job.Progress()
	snap := RebuildSnapshot{
		SourceURI: job.SourceURI,
		DestURI:   job.DestURI,
		State:     job.State(),
		NextBlock: copied,
		NumBlocks: total,
	}
	if err := e.store.SaveRebuild(snap); err != nil {
		logger.Warn("failed to persist rebuild snapshot", "dest", job.DestURI, logger.Err(err))
	}
}

// Rebuilds returns every rebuild job known to the engine, keyed by
// destination child URI.
func (e *Engine) Rebuilds() []*rebuild.Job {
	e.mu.RLock()
	names := make([]string, 0, len(e.nexuses))
	for name := range e.nexuses {
		names = append(names, name)
	}
	e.mu.RUnlock()

	var out []*rebuild.Job
	for _, name := range names {
		n, err := e.Nexus(name)
		if err != nil {
			continue
		}
		for _, c := range n.Children() {
			if job, err := e.rebuilds.Get(c.URI); err == nil {
				out = append(out, job)
			}
		}
	}
	return out
}

// RebuildsForNexus returns every rebuild job targeting one of nexusName's
// children.
func (e *Engine) RebuildsForNexus(nexusName string) ([]*rebuild.Job, error) {
	n, err := e.Nexus(nexusName)
	if err != nil {
		return nil, err
	}

	var out []*rebuild.Job
	for _, c := range n.Children() {
		if job, err := e.rebuilds.Get(c.URI); err == nil {
			out = append(out, job)
		}
	}
	return out, nil
}

func (e *Engine) closeAll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, n := range e.nexuses {
		for _, c := range n.Children() {
			_ = c.Destroy(ctx)
		}
		delete(e.nexuses, name)
	}
}

// Close tears down the engine's state store. It does not destroy any
// nexus's children, since a clean shutdown leaves backing devices intact
// for the next startup to re-probe.
func (e *Engine) Close() error {
	return e.store.Close()
}
