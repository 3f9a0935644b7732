package batch

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingJob(id string) *Job {
	return &Job{
		ID:              id,
		InputPath:       "/media/" + id + ".mp4",
		DisplayName:     id + ".mp4",
		SourceLanguage:  AutoLanguage,
		TargetLanguages: []string{TranscribeTarget},
		OutputFormats:   []string{"srt"},
		Status:          StatusPending,
	}
}

func TestTracker_AddAndGet(t *testing.T) {
	tr := NewTracker()
	tr.Add(pendingJob("a"))

	job, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	// Snapshots are detached from the tracked record.
	job.Status = StatusFailed
	job.TargetLanguages[0] = "es"
	again, _ := tr.Get("a")
	assert.Equal(t, StatusPending, again.Status)
	assert.Equal(t, TranscribeTarget, again.TargetLanguages[0])

	_, ok = tr.Get("missing")
	assert.False(t, ok)
}

func TestTracker_Update(t *testing.T) {
	t.Run("unknown id is a no-op", func(t *testing.T) {
		tr := NewTracker()
		assert.False(t, tr.Update("nope", WithProgress(0.5)))
	})

	t.Run("progress is clamped and never decreases", func(t *testing.T) {
		tr := NewTracker()
		tr.Add(pendingJob("a"))

		require.True(t, tr.Update("a", WithProgress(-3)))
		job, _ := tr.Get("a")
		assert.Equal(t, 0.0, job.Progress)

		tr.Update("a", WithProgress(0.6))
		tr.Update("a", WithProgress(0.2))
		job, _ = tr.Get("a")
		assert.Equal(t, 0.6, job.Progress)

		tr.Update("a", WithProgress(7))
		job, _ = tr.Get("a")
		assert.Equal(t, 1.0, job.Progress)
	})

	t.Run("timestamps follow status", func(t *testing.T) {
		tr := NewTracker()
		tr.Add(pendingJob("a"))

		require.True(t, tr.Update("a", WithStatus(StatusRunning), WithTask("working")))
		job, _ := tr.Get("a")
		assert.False(t, job.StartedAt.IsZero())
		assert.True(t, job.CompletedAt.IsZero())
		assert.Equal(t, "working", job.CurrentTask)

		require.True(t, tr.Update("a", WithStatus(StatusCompleted)))
		job, _ = tr.Get("a")
		assert.False(t, job.CompletedAt.IsZero())
		assert.Equal(t, "working", job.CurrentTask, "unsupplied fields stay unchanged")
	})

	t.Run("illegal transitions change nothing", func(t *testing.T) {
		tr := NewTracker()
		tr.Add(pendingJob("a"))

		assert.False(t, tr.Update("a", WithStatus(StatusCompleted), WithProgress(0.5)))
		job, _ := tr.Get("a")
		assert.Equal(t, StatusPending, job.Status)
		assert.Equal(t, 0.0, job.Progress)

		require.True(t, tr.Update("a", WithStatus(StatusRunning)))
		assert.False(t, tr.Update("a", WithStatus(StatusCancelled)))
		assert.False(t, tr.Update("a", WithStatus(StatusPaused)))
		require.True(t, tr.Update("a", WithStatus(StatusFailed), WithError("boom")))
		assert.False(t, tr.Update("a", WithStatus(StatusCompleted)))

		job, _ = tr.Get("a")
		assert.Equal(t, StatusFailed, job.Status)
	})

	t.Run("terminal jobs reject their own status", func(t *testing.T) {
		tr := NewTracker()
		tr.Add(pendingJob("a"))
		require.True(t, tr.Update("a", WithStatus(StatusCancelled)))
		before, _ := tr.Get("a")

		assert.False(t, tr.Update("a", WithStatus(StatusCancelled), WithTask("again")))
		after, _ := tr.Get("a")
		assert.Equal(t, before, after)
	})

	t.Run("error is set once on failure", func(t *testing.T) {
		tr := NewTracker()
		tr.Add(pendingJob("a"))
		tr.Update("a", WithStatus(StatusRunning))
		tr.Update("a", WithStatus(StatusFailed), WithError("first"))
		tr.Update("a", WithError("second"))

		job, _ := tr.Get("a")
		assert.Equal(t, "first", job.Error)
	})
}

func TestTracker_AllIsOrderedByCreation(t *testing.T) {
	tr := NewTracker()
	same := time.Now()
	for _, id := range []string{"c", "a", "b"} {
		j := pendingJob(id)
		j.CreatedAt = same
		tr.Add(j)
	}
	older := pendingJob("z")
	older.CreatedAt = same.Add(-time.Minute)
	tr.Add(older)

	var ids []string
	for _, j := range tr.All() {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"z", "c", "a", "b"}, ids)
}

func TestTracker_Aggregate(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, Summary{}, tr.Aggregate())

	for i, p := range []float64{0.0, 0.5, 1.0} {
		j := pendingJob(fmt.Sprintf("j%d", i))
		j.Progress = p
		tr.Add(j)
	}
	tr.Update("j1", WithStatus(StatusRunning))
	tr.Update("j2", WithStatus(StatusRunning))
	tr.Update("j2", WithStatus(StatusCompleted))

	s := tr.Aggregate()
	assert.InDelta(t, 0.5, s.OverallProgress, 1e-9)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 0, s.Failed)
}

func TestTracker_ClearTerminal(t *testing.T) {
	tr := NewTracker()
	for _, id := range []string{"pending", "running", "done", "failed", "cancelled"} {
		tr.Add(pendingJob(id))
	}
	tr.Update("running", WithStatus(StatusRunning))
	tr.Update("done", WithStatus(StatusRunning))
	tr.Update("done", WithStatus(StatusCompleted))
	tr.Update("failed", WithStatus(StatusRunning))
	tr.Update("failed", WithStatus(StatusFailed))
	tr.Update("cancelled", WithStatus(StatusCancelled))

	removed := tr.ClearTerminal()
	assert.Equal(t, []string{"cancelled", "done", "failed"}, removed)

	var left []string
	for _, j := range tr.All() {
		left = append(left, j.ID)
	}
	assert.ElementsMatch(t, []string{"pending", "running"}, left)
}

func TestTracker_ClaimNextPendingIsFIFO(t *testing.T) {
	tr := NewTracker()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		j := pendingJob(id)
		j.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		tr.Add(j)
	}
	tr.Update("a", WithStatus(StatusCancelled))

	job, ok := tr.claimNextPending("init")
	require.True(t, ok)
	assert.Equal(t, "b", job.ID)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, "init", job.CurrentTask)
	assert.False(t, job.StartedAt.IsZero())

	job, ok = tr.claimNextPending("init")
	require.True(t, ok)
	assert.Equal(t, "c", job.ID)

	_, ok = tr.claimNextPending("init")
	assert.False(t, ok)
}

func TestTracker_CancelPending(t *testing.T) {
	tr := NewTracker()
	tr.Add(pendingJob("a"))
	tr.Add(pendingJob("b"))
	tr.Update("b", WithStatus(StatusRunning))

	assert.True(t, tr.cancelPending("a", "stopped"))
	assert.False(t, tr.cancelPending("a", "stopped"))
	assert.False(t, tr.cancelPending("b", "stopped"))
	assert.False(t, tr.cancelPending("missing", "stopped"))

	job, _ := tr.Get("a")
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, "stopped", job.CurrentTask)
	assert.False(t, job.CompletedAt.IsZero())

	job, _ = tr.Get("b")
	assert.Equal(t, StatusRunning, job.Status)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 20; i++ {
		tr.Add(pendingJob(fmt.Sprintf("j%d", i)))
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("j%d", (i+w)%20)
				tr.Update(id, WithProgress(float64(i)/200))
				tr.Aggregate()
				tr.All()
				tr.AppendResult(id, Result{Filename: "x.srt"})
			}
		}(w)
	}
	wg.Wait()

	for _, j := range tr.All() {
		assert.GreaterOrEqual(t, j.Progress, 0.0)
		assert.LessOrEqual(t, j.Progress, 1.0)
	}
}
