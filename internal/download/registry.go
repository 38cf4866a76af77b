package download

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// registry is the concurrency-safe store of job records. Every read and
// write is serialized through the single embedded mutex; no code path may
// mutate a Job outside of the update method, and readers only ever receive
// copies. Records are never removed - they persist until process shutdown,
// even though the file they reference may be deleted from under them.
type registry struct {
	*sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newRegistry() *registry {
	return &registry{
		Mutex: &sync.Mutex{},
		jobs:  make(map[uuid.UUID]*Job),
	}
}

func (reg *registry) insert(job *Job) {
	reg.Lock()
	defer reg.Unlock()

	reg.jobs[job.ID] = job
}

// update applies the provided mutation to the job with a matching ID while
// holding the registry lock, stamping the job's UpdatedAt on the way out.
// Returns false if no such job exists.
func (reg *registry) update(id uuid.UUID, mutate func(*Job)) bool {
	reg.Lock()
	defer reg.Unlock()

	job, ok := reg.jobs[id]
	if !ok {
		return false
	}

	mutate(job)
	job.UpdatedAt = time.Now()
	return true
}

// snapshot returns a deep copy of the job with a matching ID, safe to hold
// and read without any further synchronization.
func (reg *registry) snapshot(id uuid.UUID) (Job, bool) {
	reg.Lock()
	defer reg.Unlock()

	job, ok := reg.jobs[id]
	if !ok {
		return Job{}, false
	}

	return copyJob(job), true
}

// recent returns snapshots of the most-recently-created jobs, newest first.
// A limit of zero (or less) returns every record.
func (reg *registry) recent(limit int) []Job {
	reg.Lock()
	snapshots := make([]Job, 0, len(reg.jobs))
	for _, job := range reg.jobs {
		snapshots = append(snapshots, copyJob(job))
	}
	reg.Unlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}

	return snapshots
}

func copyJob(job *Job) Job {
	clone := *job
	clone.Log = append([]string(nil), job.Log...)
	return clone
}
