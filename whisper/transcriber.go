// Package whisper runs the openai-whisper CLI as a batch transcriber.
package whisper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"subsai/batch"
	"subsai/config"
	"subsai/logger"
	"subsai/subtitle"
)

// CommandRunner executes bin with args and returns its combined output.
type CommandRunner func(ctx context.Context, bin string, args []string) ([]byte, error)

func execRunner(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

type Option func(*Factory)

// WithRunner replaces process execution, mostly for tests.
func WithRunner(r CommandRunner) Option {
	return func(f *Factory) {
		f.run = r
		f.lookPath = false
	}
}

func WithResourceChecker(c ResourceChecker) Option {
	return func(f *Factory) { f.check = c }
}

// Factory creates whisper-backed transcribers. It implements batch.TranscriberFactory.
type Factory struct {
	cfg      *config.Config
	extra    []string
	run      CommandRunner
	check    ResourceChecker
	lookPath bool
}

func NewFactory(cfg *config.Config, opts ...Option) (*Factory, error) {
	extra, err := SplitArgs(cfg.WhisperArgs)
	if err != nil {
		return nil, err
	}
	if err := ValidateArgs(extra); err != nil {
		return nil, err
	}

	f := &Factory{
		cfg:      cfg,
		extra:    extra,
		run:      execRunner,
		check:    CheckResources,
		lookPath: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Factory) Create(model string, mc batch.ModelConfig) (batch.Transcriber, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("whisper model name is required")
	}
	if f.lookPath {
		if _, err := exec.LookPath(f.cfg.WhisperBin); err != nil {
			return nil, fmt.Errorf("whisper binary not found or not in PATH: %s", f.cfg.WhisperBin)
		}
	}
	task := mc.Task
	if task == "" {
		task = batch.TranscribeTarget
	}
	return &Transcriber{
		factory:  f,
		model:    model,
		language: mc.SourceLanguage,
		task:     task,
	}, nil
}

// Transcriber is one configured whisper model.
type Transcriber struct {
	factory  *Factory
	model    string
	language string
	task     string
}

// Transcribe runs whisper on path and parses the SRT it writes.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (subtitle.Sequence, error) {
	cfg := t.factory.cfg

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not open input file: %w", err)
	}
	if cfg.MaxInputSize > 0 && info.Size() > cfg.MaxInputSize {
		return nil, fmt.Errorf("input file size %d exceeds limit of %d bytes", info.Size(), cfg.MaxInputSize)
	}

	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create scratch directory: %w", err)
	}
	if t.factory.check != nil {
		err := t.factory.check(Thresholds{
			IdleCPU:  cfg.ThrottleCPU,
			FreeMem:  cfg.ThrottleFreeMem,
			FreeDisk: cfg.ThrottleFreeDisk,
			DiskPath: cfg.ScratchDir,
		})
		if err != nil {
			return nil, fmt.Errorf("insufficient system resources: %w", err)
		}
	}

	outDir, err := os.MkdirTemp(cfg.ScratchDir, "whisper_")
	if err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	if cfg.WhisperTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.WhisperTimeout)
		defer cancel()
	}

	args := t.args(path, outDir)
	logger.Debug("Executing whisper", "bin", cfg.WhisperBin, "args", strings.Join(args, " "))
	out, err := t.factory.run(ctx, cfg.WhisperBin, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper execution aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("whisper execution failed: %w: %s", err, tail(out, 512))
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := os.Open(filepath.Join(outDir, stem+".srt"))
	if err != nil {
		return nil, fmt.Errorf("whisper produced no subtitles: %w", err)
	}
	defer f.Close()

	info, err = f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return subtitle.Sequence{}, nil
	}
	return subtitle.ParseSRT(f)
}

func (t *Transcriber) args(input, outDir string) []string {
	args := []string{
		input,
		"--model", t.model,
		"--task", t.task,
		"--output_format", "srt",
		"--output_dir", outDir,
	}
	if t.language != "" && t.language != batch.AutoLanguage {
		args = append(args, "--language", t.language)
	}
	return append(args, t.factory.extra...)
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
