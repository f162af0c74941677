package web

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// Job tracks one background crawl or upload.
type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	URL       string         `json:"url,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Status    JobStatus      `json:"status"`
	Progress  int            `json:"progress"`
	Total     int            `json:"total"`
	Current   string         `json:"current,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Error     string         `json:"error,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
}

// JobRegistry is an in-memory job store. Jobs live for the lifetime of the
// process.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewJobRegistry returns an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*Job)}
}

// Create registers a new pending job and returns its id.
func (r *JobRegistry) Create(job Job) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	job.ID = uuid.NewString()[:8]
	job.Status = JobPending
	job.StartedAt = time.Now().UTC()
	r.jobs[job.ID] = &job
	return job.ID
}

// Get returns a copy of the job, or false when the id is unknown.
func (r *JobRegistry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns copies of all jobs, newest first.
func (r *JobRegistry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// Update applies fn to the job under the registry lock. Unknown ids are
// ignored.
func (r *JobRegistry) Update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}
