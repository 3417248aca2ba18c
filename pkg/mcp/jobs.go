package mcp

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether a job with this status may still make progress
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// JobProgress holds the crawl counters of a job
type JobProgress struct {
	PagesVisited   int64 `json:"pages_visited"`
	PagesFailed    int64 `json:"pages_failed"`
	ReportsWritten int64 `json:"reports_written"`
	ReportsFailed  int64 `json:"reports_failed"`
	PagesQueued    int   `json:"pages_queued"`
	Dequeued       int   `json:"dequeued"`
}

// Job represents a background crawl job
type Job struct {
	ID           string      `json:"id"`
	SeedURL      string      `json:"seed_url"`
	Host         string      `json:"host"`
	RunID        string      `json:"run_id,omitempty"`
	OutputDir    string      `json:"output_dir"`
	Status       JobStatus   `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  time.Time   `json:"completed_at,omitempty"`
	Progress     JobProgress `json:"progress"`
	ErrorMessage string      `json:"error_message,omitempty"`

	// Internal fields
	ctx      context.Context
	cancel   context.CancelFunc
	progress func() JobProgress // Live counters while running
}

// JobManager manages background crawl jobs
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	byhost map[string]string // host -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		byhost: make(map[string]string),
	}
}

// CreateJob registers a pending job for host. When a job for the same host is
// still active, that job is returned with created=false.
func (m *JobManager) CreateJob(seedURL, host, outputDir string) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	host = strings.ToLower(host)
	if existingID, exists := m.byhost[host]; exists {
		if existing := m.jobs[existingID]; existing != nil && existing.Status.IsActive() {
			return m.snapshotLocked(existing), false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.New().String(),
		SeedURL:   seedURL,
		Host:      host,
		OutputDir: outputDir,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.byhost[host] = j.ID
	return *j, true
}

// GetJob returns a snapshot of a job, with live progress while it runs
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, exists := m.jobs[jobID]
	if !exists {
		return Job{}, false
	}
	return m.snapshotLocked(j), true
}

func (m *JobManager) snapshotLocked(j *Job) Job {
	snap := *j
	if j.progress != nil && j.Status.IsActive() {
		snap.Progress = j.progress()
	}
	snap.ctx, snap.cancel, snap.progress = nil, nil, nil
	return snap
}

// IsRunning checks if a job is currently active for a host
func (m *JobManager) IsRunning(host string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, exists := m.byhost[strings.ToLower(host)]; exists {
		j := m.jobs[jobID]
		return j != nil && j.Status.IsActive()
	}
	return false
}

// Start moves a pending job to running and attaches its live progress source
func (m *JobManager) Start(jobID, runID string, progress func() JobProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, exists := m.jobs[jobID]; exists && j.Status == JobStatusPending {
		j.Status = JobStatusRunning
		j.RunID = runID
		j.progress = progress
	}
}

// Finish records the final status and counters of a job.
// A job already cancelled stays cancelled.
func (m *JobManager) Finish(jobID string, status JobStatus, final JobProgress, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists {
		return
	}
	j.Progress = final
	j.progress = nil
	if errorMsg != "" {
		j.ErrorMessage = errorMsg
	}
	if j.Status == JobStatusCancelled {
		return
	}
	j.Status = status
	j.CompletedAt = time.Now()
	j.cancel()
	delete(m.byhost, j.Host)
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, exists := m.jobs[jobID]; exists && j.Status.IsActive() {
		j.cancel()
		j.Status = JobStatusCancelled
		j.CompletedAt = time.Now()
		delete(m.byhost, j.Host)
		return true
	}
	return false
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.Status.IsActive() {
			j.cancel()
			j.Status = JobStatusCancelled
			j.CompletedAt = time.Now()
		}
	}
	m.byhost = make(map[string]string)
}

// ListJobs returns snapshots of all jobs, oldest first
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, m.snapshotLocked(j))
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.Before(jobs[k].StartedAt) })
	return jobs
}

// GetContext returns the context for a job (for running the crawler)
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if j, exists := m.jobs[jobID]; exists {
		return j.ctx
	}
	return context.Background()
}
