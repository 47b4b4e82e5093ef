package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultJobHistory is how many finished and running jobs are kept.
const DefaultJobHistory = 200

// JobTrigger says what started a poll cycle.
type JobTrigger string

const (
	TriggerScheduled JobTrigger = "scheduled"
	TriggerManual    JobTrigger = "manual"
)

// JobStatus is the outcome of a poll cycle.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job records one poll cycle.
type Job struct {
	ID          string        `json:"id"`
	ServerID    string        `json:"server_id"`
	ServerName  string        `json:"server_name"`
	Trigger     JobTrigger    `json:"trigger"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Categories  []string      `json:"categories,omitempty"`
	RetryCount  int           `json:"retry_count"`
}

// JobFilter narrows Jobs.List. Zero fields match everything.
type JobFilter struct {
	ServerID string
	Status   JobStatus
	Limit    int
}

// JobStats summarises the jobs currently held.
type JobStats struct {
	Total           int               `json:"total"`
	ByStatus        map[JobStatus]int `json:"by_status"`
	SuccessRate     float64           `json:"success_rate"`
	AverageDuration time.Duration     `json:"average_duration"`
}

// Jobs is a bounded log of poll cycles, newest last.
type Jobs struct {
	mu   sync.Mutex
	size int
	jobs []*Job
	byID map[string]*Job
	now  func() time.Time
}

// NewJobs creates a log keeping the last size jobs.
func NewJobs(size int) *Jobs {
	if size <= 0 {
		size = DefaultJobHistory
	}
	return &Jobs{size: size, byID: make(map[string]*Job), now: time.Now}
}

// Start records a running job and returns its id.
func (j *Jobs) Start(server Server, trigger JobTrigger, retryCount int) string {
	now := j.now()
	job := &Job{
		ID:         uuid.NewString(),
		ServerID:   server.ID,
		ServerName: server.Name,
		Trigger:    trigger,
		Status:     JobRunning,
		CreatedAt:  now,
		StartedAt:  now,
		RetryCount: retryCount,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs = append(j.jobs, job)
	j.byID[job.ID] = job
	if over := len(j.jobs) - j.size; over > 0 {
		for _, old := range j.jobs[:over] {
			delete(j.byID, old.ID)
		}
		j.jobs = append([]*Job(nil), j.jobs[over:]...)
	}
	return job.ID
}

// Finish closes the job with status. A job already evicted from the log is
// ignored.
func (j *Jobs) Finish(id string, status JobStatus, categories []string, err error) {
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.byID[id]
	if !ok {
		return
	}
	job.Status = status
	job.CompletedAt = &now
	job.Duration = now.Sub(job.StartedAt)
	job.Categories = categories
	if err != nil {
		job.Error = err.Error()
	}
}

// Get returns a copy of the job with id.
func (j *Jobs) Get(id string) (Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.byID[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns matching jobs, newest first.
func (j *Jobs) List(filter JobFilter) []Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Job
	for i := len(j.jobs) - 1; i >= 0; i-- {
		job := j.jobs[i]
		if filter.ServerID != "" && job.ServerID != filter.ServerID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, *job)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Stats counts jobs by status. Success rate and average duration only
// consider finished jobs.
func (j *Jobs) Stats() JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := JobStats{Total: len(j.jobs), ByStatus: make(map[JobStatus]int)}
	var finished int
	var total time.Duration
	for _, job := range j.jobs {
		stats.ByStatus[job.Status]++
		if job.Status == JobRunning {
			continue
		}
		finished++
		total += job.Duration
	}
	if finished > 0 {
		stats.SuccessRate = float64(stats.ByStatus[JobCompleted]) / float64(finished)
		stats.AverageDuration = total / time.Duration(finished)
	}
	return stats
}

// Clear drops every finished job. Running jobs stay so they can be finished.
func (j *Jobs) Clear() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.jobs[:0]
	removed := 0
	for _, job := range j.jobs {
		if job.Status == JobRunning {
			kept = append(kept, job)
			continue
		}
		delete(j.byID, job.ID)
		removed++
	}
	j.jobs = kept
	return removed
}
