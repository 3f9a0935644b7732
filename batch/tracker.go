package batch

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Summary is an aggregate snapshot over every tracked job.
type Summary struct {
	OverallProgress float64 `json:"overallProgress"`
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Running         int     `json:"running"`
	Pending         int     `json:"pending"`
	Cancelled       int     `json:"cancelled"`
}

// Tracker owns every Job. All reads and writes go through its lock; callers
// only ever see copies.
type Tracker struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	nextSeq uint64
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

// Add registers a job. Reusing an id overwrites the previous record.
func (t *Tracker) Add(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	j := job.Copy()
	j.seq = t.nextSeq
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	t.jobs[j.ID] = j
}

type update struct {
	progress *float64
	status   Status
	task     string
	err      string
}

// UpdateOption sets one field in Update.
type UpdateOption func(*update)

func WithProgress(p float64) UpdateOption {
	return func(u *update) { u.progress = &p }
}

func WithStatus(s Status) UpdateOption {
	return func(u *update) { u.status = s }
}

func WithTask(task string) UpdateOption {
	return func(u *update) { u.task = task }
}

func WithError(msg string) UpdateOption {
	return func(u *update) { u.err = msg }
}

// Update applies a partial update. It reports false, changing nothing, when the
// id is unknown or the requested status change is not a legal transition.
// Progress is clamped to [0,1] and never moves backwards.
func (t *Tracker) Update(id string, opts ...UpdateOption) bool {
	var u update
	for _, opt := range opts {
		opt(&u)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return false
	}
	if u.status != "" {
		if u.status == job.Status && job.IsTerminal() {
			return false
		}
		if u.status != job.Status && !validTransition(job.Status, u.status) {
			return false
		}
	}

	if u.progress != nil && !math.IsNaN(*u.progress) {
		p := math.Max(0, math.Min(1, *u.progress))
		if p > job.Progress {
			job.Progress = p
		}
	}
	if u.status != "" && u.status != job.Status {
		job.Status = u.status
		now := time.Now()
		if u.status == StatusRunning && job.StartedAt.IsZero() {
			job.StartedAt = now
		}
		if job.IsTerminal() {
			job.CompletedAt = now
		}
	}
	if u.task != "" {
		job.CurrentTask = u.task
	}
	if u.err != "" && job.Error == "" && job.Status == StatusFailed {
		job.Error = u.err
	}
	return true
}

// AppendResult adds an export result to a job.
func (t *Tracker) AppendResult(id string, r Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return false
	}
	job.Results = append(job.Results, r)
	return true
}

// Get returns a snapshot of the job, or false if it is not tracked.
func (t *Tracker) Get(id string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Copy(), true
}

// All returns snapshots of every job, oldest first.
func (t *Tracker) All() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job.Copy())
	}
	sortByCreation(out)
	return out
}

// Aggregate scans every job and returns counts plus mean progress.
func (t *Tracker) Aggregate() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	var sum float64
	for _, job := range t.jobs {
		s.Total++
		sum += job.Progress
		switch job.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	if s.Total > 0 {
		s.OverallProgress = sum / float64(s.Total)
	}
	return s
}

// ClearTerminal drops completed, failed and cancelled jobs and returns their ids.
func (t *Tracker) ClearTerminal() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for id, job := range t.jobs {
		if job.IsTerminal() {
			delete(t.jobs, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// claimNextPending moves the oldest pending job to running and returns a
// snapshot of it.
func (t *Tracker) claimNextPending(task string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var next *Job
	for _, job := range t.jobs {
		if job.Status != StatusPending {
			continue
		}
		if next == nil || createdBefore(job, next) {
			next = job
		}
	}
	if next == nil {
		return nil, false
	}

	next.Status = StatusRunning
	next.CurrentTask = task
	if next.StartedAt.IsZero() {
		next.StartedAt = time.Now()
	}
	return next.Copy(), true
}

// cancelPending marks a pending job cancelled. Jobs in any other state are
// left alone.
func (t *Tracker) cancelPending(id, task string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Status != StatusPending {
		return false
	}
	job.Status = StatusCancelled
	job.CurrentTask = task
	job.CompletedAt = time.Now()
	return true
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

func createdBefore(a, b *Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func sortByCreation(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return createdBefore(jobs[i], jobs[j])
	})
}
