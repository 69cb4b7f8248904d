package job

import (
	"sync"

	"github.com/phrazzld/media-pipeline/internal/domain"
)

// Registry holds the available jobs in registration order.
type Registry struct {
	mu   sync.RWMutex
	jobs []Job
}

// NewRegistry creates a registry with the given jobs.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register appends a job. Later registrations lose priority ties.
func (r *Registry) Register(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, j)
}

// Select returns the job with the lowest priority among those that can
// process a, preferring the earliest registered on ties. It returns false
// when no job accepts the artifact.
func (r *Registry) Select(a *domain.Artifact) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Job
	for _, j := range r.jobs {
		if !j.CanProcess(a) {
			continue
		}
		if best == nil || j.Priority() < best.Priority() {
			best = j
		}
	}

	return best, best != nil
}

// Lookup returns the job registered under name.
func (r *Registry) Lookup(name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, j := range r.jobs {
		if j.Name() == name {
			return j, true
		}
	}
	return nil, false
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
