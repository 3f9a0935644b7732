package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"subsai/analytics"
	"subsai/config"
	"subsai/logger"

	"github.com/lithammer/shortuuid/v4"
)

// State is the processor-level lifecycle, separate from job status.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StatePaused     State = "paused"
)

const defaultStopTimeout = 5 * time.Second

// Dependencies are the capabilities a Processor drives. Translator, Sink and
// Analytics are optional.
type Dependencies struct {
	Transcribers TranscriberFactory
	Translator   Translator
	Renderer     Renderer
	Sink         ArtifactSink
	Analytics    analytics.Sink
}

// Processor runs submitted jobs one at a time on a single background worker.
// All job state lives in its Tracker.
type Processor struct {
	cfg     *config.Config
	deps    Dependencies
	tracker *Tracker

	mu         sync.Mutex
	active     bool
	stopping   bool
	currentID  string
	done       chan struct{}
	onProgress func()
}

func NewProcessor(cfg *config.Config, deps Dependencies) (*Processor, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Transcribers == nil {
		return nil, errors.New("transcriber factory is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	return &Processor{
		cfg:     cfg,
		deps:    deps,
		tracker: NewTracker(),
	}, nil
}

// Tracker exposes the underlying job registry for read access.
func (p *Processor) Tracker() *Tracker {
	return p.tracker
}

// SetProgressCallback registers fn to run on the worker after every job.
func (p *Processor) SetProgressCallback(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onProgress = fn
}

// AddJob validates a submission, registers it as pending and returns its id.
// It does not start processing.
func (p *Processor) AddJob(path, name string, size int64, opts JobOptions) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrEmptyInputPath
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(path)
	}

	source := strings.TrimSpace(opts.SourceLanguage)
	if source == "" {
		source = AutoLanguage
	}

	targets := opts.TargetLanguages
	if targets == nil {
		targets = []string{TranscribeTarget}
	}
	if len(targets) == 0 {
		return "", ErrNoTargetLanguages
	}
	cleanTargets := make([]string, 0, len(targets))
	// Targets sharing a filename suffix would overwrite each other's artifacts.
	suffixOwner := make(map[string]string, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			return "", ErrInvalidLanguage
		}
		if t != TranscribeTarget && p.deps.Translator == nil {
			return "", fmt.Errorf("%w: cannot translate to %s", ErrTranslationUnavailable, t)
		}
		suffix := t
		if t == TranscribeTarget {
			suffix = languageSuffix(source)
		}
		if owner, seen := suffixOwner[suffix]; seen {
			if owner == t {
				continue
			}
			return "", fmt.Errorf("%w: %s and %s both produce %q files", ErrConflictingTargets, owner, t, suffix)
		}
		suffixOwner[suffix] = t
		cleanTargets = append(cleanTargets, t)
	}

	formats := opts.OutputFormats
	if formats == nil {
		formats = []string{"srt"}
	}
	if len(formats) == 0 {
		return "", ErrNoOutputFormats
	}
	cleanFormats := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if !p.deps.Renderer.Supports(f) {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
		if !slices.Contains(cleanFormats, f) {
			cleanFormats = append(cleanFormats, f)
		}
	}

	export := opts.ExportOptions
	if export.Folder == "" {
		export.Folder = p.cfg.S3Folder
	}

	job := &Job{
		ID:              shortuuid.New(),
		InputPath:       path,
		DisplayName:     name,
		ByteSize:        size,
		SourceLanguage:  source,
		TargetLanguages: cleanTargets,
		OutputFormats:   cleanFormats,
		ExportOptions:   export,
		Status:          StatusPending,
		Results:         []Result{},
		CreatedAt:       time.Now(),
	}
	p.tracker.Add(job)
	logger.Info("Added job", "job_id", job.ID, "file", name)
	return job.ID, nil
}

// Start spawns the worker. It returns false when a worker is already active.
// Cancelling ctx stops the worker between jobs and is passed to the
// capabilities of the in-flight job.
func (p *Processor) Start(ctx context.Context) bool {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		logger.Warn("Batch processing is already running")
		return false
	}
	p.active = true
	p.stopping = false
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go p.processQueue(ctx, done)
	logger.Info("Started batch processing")
	return true
}

// Pause lets the current job finish and keeps the worker from starting another.
func (p *Processor) Pause() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	logger.Info("Paused batch processing")
}

// Stop signals the worker like Pause and then waits up to the configured stop
// timeout for it to exit.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.stopping = true
	active, done := p.active, p.done
	p.mu.Unlock()

	if active && done != nil {
		timeout := p.cfg.StopTimeout
		if timeout <= 0 {
			timeout = defaultStopTimeout
		}
		select {
		case <-done:
		case <-time.After(timeout):
			logger.Warn("Worker still finishing its current job", "job_id", p.CurrentJobID())
		}
	}
	logger.Info("Stopped batch processing")
}

// Wait blocks until the most recently started worker exits.
func (p *Processor) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Processor) IsProcessing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// CurrentJobID returns the running job's id, or "" when idle.
func (p *Processor) CurrentJobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentID
}

func (p *Processor) State() State {
	p.mu.Lock()
	active, stopping := p.active, p.stopping
	p.mu.Unlock()

	switch {
	case active && stopping:
		return StatePaused
	case active:
		return StateProcessing
	case stopping && p.tracker.Aggregate().Pending > 0:
		return StatePaused
	default:
		return StateIdle
	}
}

func (p *Processor) GetJob(id string) (*Job, bool) {
	return p.tracker.Get(id)
}

func (p *Processor) AllJobs() []*Job {
	return p.tracker.All()
}

func (p *Processor) Progress() Summary {
	return p.tracker.Aggregate()
}

// CancelJob cancels a job that has not started yet.
func (p *Processor) CancelJob(id string) bool {
	ok := p.tracker.cancelPending(id, "Job cancelled by user")
	if ok {
		logger.Info("Cancelled job", "job_id", id)
	}
	return ok
}

// ClearCompleted forgets terminal jobs and removes their scratch directories.
// Call it only while no job is in flight.
func (p *Processor) ClearCompleted() int {
	removed := p.tracker.ClearTerminal()
	for _, id := range removed {
		if err := os.RemoveAll(p.jobDir(id)); err != nil {
			logger.Warn("Failed to remove job scratch directory", "job_id", id, "error", err)
		}
	}
	return len(removed)
}

// ArtifactPath resolves filename among a job's exported results.
func (p *Processor) ArtifactPath(jobID, filename string) (string, error) {
	job, ok := p.tracker.Get(jobID)
	if !ok {
		return "", jobNotFoundError(jobID)
	}
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("%w: invalid filename", ErrArtifactNotFound)
	}
	for _, r := range job.Results {
		if r.Filename == filename {
			return r.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, filename)
}

func (p *Processor) processQueue(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.active = false
		p.currentID = ""
		p.mu.Unlock()
		close(done)
	}()

	for !p.shouldStop(ctx) {
		job, ok := p.tracker.claimNextPending("Initializing transcription model...")
		if !ok {
			logger.Debug("No pending jobs left")
			return
		}

		p.setCurrent(job.ID)
		p.runJob(ctx, job)
		p.setCurrent("")

		p.mu.Lock()
		cb := p.onProgress
		p.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

func (p *Processor) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *Processor) setCurrent(id string) {
	p.mu.Lock()
	p.currentID = id
	p.mu.Unlock()
}

// runJob executes one job's pipeline and records its terminal status. Nothing
// escapes: a failing or panicking pipeline only fails this job.
func (p *Processor) runJob(ctx context.Context, job *Job) {
	started := time.Now()
	log := logger.With("job_id", job.ID)
	log.Info("Starting job", "file", job.DisplayName)
	p.track(ctx, job, analytics.Event{
		Type: analytics.EventTranscriptionStart,
		Data: map[string]any{
			"model":            p.cfg.WhisperModel,
			"file_size":        job.ByteSize,
			"source_language":  job.SourceLanguage,
			"target_languages": job.TargetLanguages,
			"output_formats":   job.OutputFormats,
		},
	})

	err := p.safeProcess(ctx, job)
	elapsed := time.Since(started)

	if err != nil {
		log.Error("Error processing job", "error", err)
		p.tracker.Update(job.ID, WithStatus(StatusFailed), WithError(err.Error()))
		p.track(ctx, job, analytics.Event{
			Type: analytics.EventTranscriptionError,
			Data: map[string]any{
				"model":           p.cfg.WhisperModel,
				"processing_time": elapsed.Seconds(),
				"error":           err.Error(),
			},
		})
		return
	}

	p.tracker.Update(job.ID,
		WithProgress(1.0),
		WithStatus(StatusCompleted),
		WithTask("Processing completed successfully"),
	)
	p.track(ctx, job, analytics.Event{
		Type: analytics.EventTranscriptionComplete,
		Data: map[string]any{
			"model":           p.cfg.WhisperModel,
			"processing_time": elapsed.Seconds(),
		},
	})
	for _, target := range job.TargetLanguages {
		if target == TranscribeTarget {
			continue
		}
		p.track(ctx, job, analytics.Event{
			Type: analytics.EventTranslation,
			Data: map[string]any{"source_language": job.SourceLanguage, "target_language": target},
		})
	}
	log.Info("Completed job", "duration", elapsed.Round(time.Millisecond))
}

func (p *Processor) safeProcess(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processJob(ctx, job)
}

const analyticsTimeout = 2 * time.Second

// track forwards an event to the analytics sink. Failures are only logged.
func (p *Processor) track(ctx context.Context, job *Job, ev analytics.Event) {
	if p.deps.Analytics == nil {
		return
	}
	ev.UserID = p.cfg.UserID
	ev.JobID = job.ID
	if ev.Filename == "" {
		ev.Filename = job.DisplayName
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyticsTimeout)
	defer cancel()
	if err := p.deps.Analytics.Track(tctx, ev); err != nil {
		logger.Warn("Failed to record analytics event", "job_id", job.ID, "event", ev.Type, "error", err)
	}
}

func (p *Processor) jobDir(id string) string {
	return filepath.Join(p.cfg.ScratchDir, id)
}
