package batch

import (
	"errors"
	"fmt"
)

// Sentinel errors for submissions and lookups. Check them with errors.Is().
var (
	ErrEmptyInputPath         = errors.New("input path is required")
	ErrNoTargetLanguages      = errors.New("at least one target language is required")
	ErrNoOutputFormats        = errors.New("at least one output format is required")
	ErrInvalidLanguage        = errors.New("language code must not be blank")
	ErrUnsupportedFormat      = errors.New("unsupported output format")
	ErrTranslationUnavailable = errors.New("no translator configured")
	ErrConflictingTargets     = errors.New("target languages produce the same file name")
	ErrJobNotFound            = errors.New("job not found")
	ErrArtifactNotFound       = errors.New("artifact not found")
)

func jobNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
	StageRender     Stage = "render"
	StageWrite      Stage = "write"
)

// StageError is a stage-aware pipeline failure.
type StageError struct {
	Stage  Stage
	Target string // language or filename the stage was working on, if any
	Err    error
}

func (e *StageError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
