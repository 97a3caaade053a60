// Package job tracks asynchronous pipeline runs in process memory so HTTP
// callers can poll their status. Jobs are not persisted: a restart forgets
// them, which matches their role as short-lived invocation handles. The
// durable scrape history lives in the store.
package job

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// retention is how long finished jobs stay pollable before pruning.
const retention = 10 * time.Minute

// Progress is the caller-visible completion state of a job. Percent is
// 0-100 and never decreases.
type Progress struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	Percent      int    `json:"percent"`
	LeadsFound   int    `json:"leadsFound,omitempty"`
	LeadsNew     int    `json:"leadsNew,omitempty"`
	LeadsUpdated int    `json:"leadsUpdated,omitempty"`
	LastBusiness string `json:"lastBusiness,omitempty"`
}

// Job is a snapshot of one tracked run.
type Job struct {
	ID        string            `json:"jobId"`
	Kind      string            `json:"kind"`
	Status    Status            `json:"status"`
	Params    map[string]string `json:"params,omitempty"`
	Output    []string          `json:"output"`
	Progress  Progress          `json:"progress"`
	StartedAt time.Time         `json:"startedAt"`

	cancel context.CancelFunc
}

// Tracker owns the in-memory job table. All methods are safe for concurrent
// use; snapshots returned to callers are copies.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job), now: time.Now}
}

// Start registers a new running job and returns its ID plus a context the
// runner should honor. Starting a job also prunes expired finished jobs.
func (t *Tracker) Start(ctx context.Context, kind string, params map[string]string) (string, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	id := fmt.Sprintf("job_%s", uuid.NewString()[:8])

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	t.jobs[id] = &Job{
		ID:        id,
		Kind:      kind,
		Status:    StatusRunning,
		Params:    params,
		StartedAt: t.now().UTC(),
		cancel:    cancel,
	}
	return id, runCtx
}

// Append adds a line to the job's output log.
func (t *Tracker) Append(id, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		j.Output = append(j.Output, line)
	}
}

// SetProgress updates the job's progress. Percent is recomputed from
// Current/Total and clamped so it never runs backwards or past 100.
func (t *Tracker) SetProgress(id string, p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	if p.Total > 0 {
		p.Percent = int(math.Round(100 * float64(p.Current) / float64(p.Total)))
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	if p.Percent < j.Progress.Percent {
		p.Percent = j.Progress.Percent
	}
	j.Progress = p
}

// Complete marks a running job completed and forces progress to 100%.
func (t *Tracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok || j.Status != StatusRunning {
		return
	}
	j.Status = StatusCompleted
	j.Progress.Percent = 100
	j.cancel()
}

// Fail marks a running job failed and logs the reason.
func (t *Tracker) Fail(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok || j.Status != StatusRunning {
		return
	}
	j.Status = StatusFailed
	j.Output = append(j.Output, "ERROR: "+reason)
	j.cancel()
}

// Cancel requests cooperative cancellation of a running job. The runner
// notices its context and finishes the job as failed.
func (t *Tracker) Cancel(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok || j.Status != StatusRunning {
		return false
	}
	j.cancel()
	return true
}

// Get returns a snapshot of one job.
func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return snapshot(j), true
}

// List returns snapshots of all tracked jobs, newest first.
func (t *Tracker) List() []Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, snapshot(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// pruneLocked drops finished jobs older than the retention window. Running
// jobs are never pruned.
func (t *Tracker) pruneLocked() {
	cutoff := t.now().UTC().Add(-retention)
	for id, j := range t.jobs {
		if j.Status != StatusRunning && j.StartedAt.Before(cutoff) {
			delete(t.jobs, id)
		}
	}
}

func snapshot(j *Job) Job {
	c := *j
	c.cancel = nil
	c.Output = append([]string(nil), j.Output...)
	if j.Params != nil {
		c.Params = make(map[string]string, len(j.Params))
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	return c
}
