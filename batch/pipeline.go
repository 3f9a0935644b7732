package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subsai/analytics"
	"subsai/logger"
	"subsai/subtitle"
)

// Progress checkpoints. Exporting fills the span between exportStart and
// exportEnd; only completion reaches 1.0.
const (
	transcribeStart = 0.1
	exportStart     = 0.3
	exportEnd       = 0.9
)

// processJob transcribes once, then renders every (language, format) pair in
// the order given.
func (p *Processor) processJob(ctx context.Context, job *Job) error {
	model, err := p.deps.Transcribers.Create(p.cfg.WhisperModel, ModelConfig{
		SourceLanguage: job.SourceLanguage,
		Task:           TranscribeTarget,
	})
	if err != nil {
		return &StageError{Stage: StageTranscribe, Err: fmt.Errorf("create model: %w", err)}
	}

	p.tracker.Update(job.ID,
		WithProgress(transcribeStart),
		WithTask(fmt.Sprintf("Transcribing audio (%s)...", job.SourceLanguage)),
	)
	base, err := model.Transcribe(ctx, job.InputPath)
	if err != nil {
		return &StageError{Stage: StageTranscribe, Err: err}
	}
	p.tracker.Update(job.ID, WithProgress(exportStart))

	total := len(job.TargetLanguages) * len(job.OutputFormats)
	completed := 0
	stem := baseName(job.DisplayName)

	for _, target := range job.TargetLanguages {
		subs := base
		suffix := languageSuffix(job.SourceLanguage)
		if target != TranscribeTarget {
			p.tracker.Update(job.ID,
				WithProgress(exportProgress(completed, total)),
				WithTask(fmt.Sprintf("Translating to %s...", target)),
			)
			if p.deps.Translator == nil {
				return &StageError{Stage: StageTranslate, Target: target, Err: ErrTranslationUnavailable}
			}
			subs, err = p.deps.Translator.Translate(ctx, base.Clone(), job.SourceLanguage, target)
			if err != nil {
				return &StageError{Stage: StageTranslate, Target: target, Err: err}
			}
			suffix = target
		}

		for _, format := range job.OutputFormats {
			p.tracker.Update(job.ID,
				WithProgress(exportProgress(completed, total)),
				WithTask(fmt.Sprintf("Generating %s for %s...", strings.ToUpper(format), target)),
			)
			filename := OutputFilename(stem, suffix, format, job.TargetLanguages)
			if err := p.export(ctx, job, subs, suffix, filename, format); err != nil {
				return err
			}
			completed++
			p.tracker.Update(job.ID, WithProgress(exportProgress(completed, total)))
		}
	}
	return nil
}

// export renders one artifact, writes it to the job's scratch directory and
// optionally uploads it. Upload failures are recorded on the result only.
func (p *Processor) export(ctx context.Context, job *Job, subs subtitle.Sequence, lang, filename, format string) error {
	content, err := p.deps.Renderer.Render(ctx, subs, format)
	if err != nil {
		return &StageError{Stage: StageRender, Target: filename, Err: err}
	}

	dir := p.jobDir(job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StageError{Stage: StageWrite, Target: filename, Err: err}
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return &StageError{Stage: StageWrite, Target: filename, Err: err}
	}

	result := Result{
		Filename: filename,
		Format:   format,
		Language: lang,
		Path:     path,
		Size:     int64(len(content)),
	}
	if job.ExportOptions.Upload {
		p.upload(ctx, job, content, &result)
	}

	p.tracker.AppendResult(job.ID, result)
	p.track(ctx, job, analytics.Event{
		Type:     analytics.EventDownload,
		Filename: filename,
		Data:     map[string]any{"format": format, "file_size": result.Size},
	})
	logger.Info("Exported artifact", "job_id", job.ID, "file", filename, "format", format)
	return nil
}

var errSinkNotConfigured = errors.New("artifact storage not configured")

func (p *Processor) upload(ctx context.Context, job *Job, content []byte, result *Result) {
	if p.deps.Sink == nil {
		result.UploadError = errSinkNotConfigured.Error()
		logger.Warn("Upload requested but no storage configured", "job_id", job.ID, "file", result.Filename)
		return
	}

	url, err := p.deps.Sink.Upload(ctx, content, result.Filename, job.ExportOptions.Folder)
	if err != nil {
		result.UploadError = err.Error()
		logger.Warn("Upload failed", "job_id", job.ID, "file", result.Filename, "error", err)
		return
	}
	result.Uploaded = true
	result.UploadURL = url
	logger.Info("Uploaded artifact", "job_id", job.ID, "file", result.Filename, "url", url)
	p.track(ctx, job, analytics.Event{
		Type:     analytics.EventUpload,
		Filename: result.Filename,
		Data:     map[string]any{"folder": job.ExportOptions.Folder, "url": url},
	})
}

// OutputFilename names an artifact. The language suffix is dropped only when
// the job's single target is the transcription itself.
func OutputFilename(base, langSuffix, format string, targets []string) string {
	if len(targets) > 1 || (len(targets) == 1 && targets[0] != TranscribeTarget) {
		return fmt.Sprintf("%s-%s.%s", base, langSuffix, format)
	}
	return fmt.Sprintf("%s.%s", base, format)
}

func languageSuffix(source string) string {
	if source == "" || source == AutoLanguage {
		return "original"
	}
	return source
}

func baseName(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func exportProgress(completed, total int) float64 {
	if total <= 0 {
		return exportStart
	}
	return exportStart + (exportEnd-exportStart)*float64(completed)/float64(total)
}
