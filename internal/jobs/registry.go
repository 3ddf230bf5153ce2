// Package jobs tracks async merge jobs: an in-memory registry of records,
// a manager that runs them, and pluggable dispatch strategies.
package jobs

import (
	"sync"

	"github.com/gendew/merge-video/internal/models"
)

// Registry is the in-memory job store. Records live for the process
// lifetime; readers get copies so they never observe a worker mid-write.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*models.Job)}
}

func (r *Registry) Insert(job *models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Get returns a copy of the job record.
func (r *Registry) Get(id string) (models.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	out := *job
	out.Warnings = append([]string(nil), job.Warnings...)
	out.TempFiles = append([]string(nil), job.TempFiles...)
	return out, true
}

// Update applies fn to the stored record under the write lock. It reports
// whether the job exists.
func (r *Registry) Update(id string, fn func(*models.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	return true
}
