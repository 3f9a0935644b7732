package batch

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusPaused is never assigned to a job. Pausing is a processor-level
	// signal, see Processor.State.
	StatusPaused Status = "paused"
)

// TranscribeTarget is the target-language sentinel meaning "keep the original
// transcription".
const TranscribeTarget = "transcribe"

// AutoLanguage lets the transcriber detect the source language.
const AutoLanguage = "auto"

// ExportOptions controls what happens to each rendered artifact.
type ExportOptions struct {
	Upload bool   `json:"upload"`
	Folder string `json:"folder,omitempty"`
}

// Result describes one exported artifact. Entries are append-only.
type Result struct {
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	Language    string `json:"language"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	Uploaded    bool   `json:"uploaded"`
	UploadURL   string `json:"uploadUrl,omitempty"`
	UploadError string `json:"uploadError,omitempty"`
}

// Job is one submitted file together with its configuration and runtime state.
type Job struct {
	ID              string        `json:"id"`
	InputPath       string        `json:"inputPath"`
	DisplayName     string        `json:"displayName"`
	ByteSize        int64         `json:"byteSize"`
	SourceLanguage  string        `json:"sourceLanguage"`
	TargetLanguages []string      `json:"targetLanguages"`
	OutputFormats   []string      `json:"outputFormats"`
	ExportOptions   ExportOptions `json:"exportOptions"`
	Status          Status        `json:"status"`
	Progress        float64       `json:"progress"`
	CurrentTask     string        `json:"currentTask,omitempty"`
	Results         []Result      `json:"results"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       time.Time     `json:"startedAt,omitzero"`
	CompletedAt     time.Time     `json:"completedAt,omitzero"`

	// seq breaks CreatedAt ties so submission order is always recoverable.
	seq uint64
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// Copy returns a deep copy safe to hand out beyond the tracker lock.
func (j *Job) Copy() *Job {
	c := *j
	c.TargetLanguages = append([]string(nil), j.TargetLanguages...)
	c.OutputFormats = append([]string(nil), j.OutputFormats...)
	c.Results = make([]Result, len(j.Results))
	copy(c.Results, j.Results)
	return &c
}

// JobOptions carries the per-file configuration of a submission. Nil slices
// take the defaults; non-nil empty slices are rejected.
type JobOptions struct {
	SourceLanguage  string
	TargetLanguages []string
	OutputFormats   []string
	ExportOptions   ExportOptions
}
