package rebuild

import (
	"fmt"
	"sync"
)

// Registry is the process-wide job directory, keyed by destination URI
// (at most one job per destination) and indexed by source URI for reverse
// lookups (needed when a child is removed and any rebuild reading from it
// must be cancelled too).
type Registry struct {
	mu        sync.Mutex
	byDest    map[string]*Job
	bySource  map[string]map[string]*Job // sourceURI -> destURI -> job
}

func NewRegistry() *Registry {
	return &Registry{
		byDest:   make(map[string]*Job),
		bySource: make(map[string]map[string]*Job),
	}
}

// Add registers job under its destination URI, failing if a job for that
// destination already exists.
func (r *Registry) Add(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byDest[job.DestURI]; ok {
		return fmt.Errorf("%w: destination %q already has a rebuild job", ErrJobExists, job.DestURI)
	}
	r.byDest[job.DestURI] = job

	bySrc, ok := r.bySource[job.SourceURI]
	if !ok {
		bySrc = make(map[string]*Job)
		r.bySource[job.SourceURI] = bySrc
	}
	bySrc[job.DestURI] = job
	return nil
}

// Get looks up the job for a destination URI.
func (r *Registry) Get(destURI string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byDest[destURI]
	if !ok {
		return nil, fmt.Errorf("%w: destination %q", ErrJobNotFound, destURI)
	}
	return job, nil
}

// ForSource returns every job currently reading from sourceURI.
func (r *Registry) ForSource(sourceURI string) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	bySrc, ok := r.bySource[sourceURI]
	if !ok {
		return nil
	}
	out := make([]*Job, 0, len(bySrc))
	for _, j := range bySrc {
		out = append(out, j)
	}
	return out
}

// ForDestChild returns the job targeting destURI, if any, as a
// single-element slice — convenience for callers that treat source and
// destination symmetrically when cancelling rebuilds touching a child.
func (r *Registry) ForDestChild(destURI string) []*Job {
	job, err := r.Get(destURI)
	if err != nil {
		return nil
	}
	return []*Job{job}
}

// Remove drops the job for destURI from both indexes.
func (r *Registry) Remove(destURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byDest[destURI]
	if !ok {
		return
	}
	delete(r.byDest, destURI)
	if bySrc, ok := r.bySource[job.SourceURI]; ok {
		delete(bySrc, destURI)
		if len(bySrc) == 0 {
			delete(r.bySource, job.SourceURI)
		}
	}
}
