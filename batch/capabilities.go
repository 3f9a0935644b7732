package batch

import (
	"context"

	"subsai/subtitle"
)

// ModelConfig is handed to a TranscriberFactory when a job's model is created.
type ModelConfig struct {
	SourceLanguage string
	// Task is always TranscribeTarget; translation is done by a Translator.
	Task string
}

// TranscriberFactory creates a transcription model for one job.
type TranscriberFactory interface {
	Create(model string, cfg ModelConfig) (Transcriber, error)
}

// Transcriber turns a media file into a subtitle sequence.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (subtitle.Sequence, error)
}

// Translator translates every cue of a sequence, keeping timings.
type Translator interface {
	Translate(ctx context.Context, seq subtitle.Sequence, source, target string) (subtitle.Sequence, error)
}

// Renderer renders a sequence to a subtitle file format.
type Renderer interface {
	Render(ctx context.Context, seq subtitle.Sequence, format string) ([]byte, error)
	Supports(format string) bool
}

// ArtifactSink persists rendered artifacts outside the scratch directory and
// returns where they ended up.
type ArtifactSink interface {
	Upload(ctx context.Context, content []byte, filename, folder string) (string, error)
}
