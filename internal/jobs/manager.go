package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/profile"
	"github.com/maltedev/basket-harvester/internal/queue"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidMaxPages = errors.New("max_pages cannot be negative")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job tracks one queued harvest
type Job struct {
	ID          uuid.UUID          `json:"id"`
	Profile     string             `json:"profile"`
	MaxPages    int                `json:"max_pages"`
	Status      Status             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
	Run         *models.HarvestRun `json:"run,omitempty"`
}

// Stats summarizes the jobs known to the manager
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	TotalRecords  int `json:"total_records"`
}

// Manager queues harvests and executes them one at a time, so at most one
// crawl session is open per process.
type Manager struct {
	queue  queue.Queue
	runner Runner
	jobs   map[uuid.UUID]*Job
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewManager(q queue.Queue, runner Runner, logger *slog.Logger) *Manager {
	return &Manager{
		queue:  q,
		runner: runner,
		jobs:   make(map[uuid.UUID]*Job),
		logger: logger.With("component", "job_manager"),
	}
}

// CreateJob queues a harvest of a builtin profile. maxPages of 0 keeps the
// configured ceiling.
func (m *Manager) CreateJob(ctx context.Context, profileName string, maxPages int) (*Job, error) {
	if maxPages < 0 {
		return nil, ErrInvalidMaxPages
	}

	if _, err := profile.Builtin(profileName); err != nil {
		return nil, err
	}

	task := queue.NewTask(profileName, maxPages, "")
	job := &Job{
		ID:        task.ID,
		Profile:   profileName,
		MaxPages:  maxPages,
		Status:    StatusPending,
		CreatedAt: task.CreatedAt,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if err := m.queue.Push(task); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "profile", profileName, "max_pages", maxPages)
	return m.snapshot(job), nil
}

func (m *Manager) GetJob(id uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.snapshot(job), nil
}

// ListJobs returns all jobs, newest first
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, m.snapshot(job))
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs)}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		if job.Run != nil {
			stats.TotalRecords += job.Run.RecordCount
		}
	}
	return stats
}

// snapshot copies a job so callers never see it change under them.
// Callers hold m.mu.
func (m *Manager) snapshot(job *Job) *Job {
	c := *job
	return &c
}

func (m *Manager) updateJobStatus(id uuid.UUID, status Status, run *models.HarvestRun, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}

	now := time.Now()
	job.Status = status

	switch status {
	case StatusRunning:
		job.StartedAt = &now
	case StatusCompleted, StatusFailed:
		job.CompletedAt = &now
		job.Run = run
		if err != nil {
			job.Error = err.Error()
		}
	}
}
