// Package registry holds the process-wide directory of children, keyed by
// (nexus name, child name). It exists to break the natural cyclic reference
// between a nexus and its children: a nexus looks children up by name
// instead of holding them inline, so the rebuild engine and the admin
// surface can both reach a child without reaching through its nexus first.
package registry

import (
	"fmt"
	"sync"

	"github.com/nexusd/nexusd/pkg/child"
)

type key struct {
	nexus string
	child string
}

// Registry is a (nexusName, childName)-keyed directory of *child.Child.
// Keying by the pair, rather than by child name alone, keeps a same-named
// child on two different nexuses from colliding.
type Registry struct {
	mu       sync.RWMutex
	children map[key]*child.Child
}

func New() *Registry {
	return &Registry{children: make(map[key]*child.Child)}
}

// Add registers c under (nexusName, c.Name). It is an error to register a
// name already present for that nexus.
func (r *Registry) Add(nexusName string, c *child.Child) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{nexus: nexusName, child: c.Name}
	if _, ok := r.children[k]; ok {
		return fmt.Errorf("%w: child %q already registered on nexus %q", ErrAlreadyRegistered, c.Name, nexusName)
	}
	r.children[k] = c
	return nil
}

// Get looks up a child by (nexusName, childName).
func (r *Registry) Get(nexusName, childName string) (*child.Child, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.children[key{nexus: nexusName, child: childName}]
	if !ok {
		return nil, fmt.Errorf("%w: child %q on nexus %q", ErrNotFound, childName, nexusName)
	}
	return c, nil
}

// Remove drops a child from the registry. It does not touch the child's
// lifecycle state — callers must Destroy it first.
func (r *Registry) Remove(nexusName, childName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.children, key{nexus: nexusName, child: childName})
}

// ListForNexus returns every child currently registered under nexusName, in
// no particular order.
func (r *Registry) ListForNexus(nexusName string) []*child.Child {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*child.Child
	for k, c := range r.children {
		if k.nexus == nexusName {
			out = append(out, c)
		}
	}
	return out
}
