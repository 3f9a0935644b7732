package subtitle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedFormat is returned for a format no writer or converter handles.
var ErrUnsupportedFormat = errors.New("unsupported subtitle format")

// Converter turns rendered SRT content into another format, usually via a remote service.
type Converter interface {
	Convert(ctx context.Context, srt []byte) ([]byte, error)
}

type writerFunc func(seq Sequence) ([]byte, error)

// Renderer renders sequences to the built-in formats plus any registered converters.
type Renderer struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

func NewRenderer() *Renderer {
	return &Renderer{converters: make(map[string]Converter)}
}

// RegisterConverter makes format available; its content is produced by converting SRT.
func (r *Renderer) RegisterConverter(format string, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[normalize(format)] = c
}

var builtin = map[string]writerFunc{
	"srt":  writeSRT,
	"vtt":  writeVTT,
	"ass":  writeSSA,
	"ssa":  writeSSA,
	"ttml": writeTTML,
	"txt":  writeText,
	"json": writeJSON,
}

// Supports reports whether Render accepts format.
func (r *Renderer) Supports(format string) bool {
	format = normalize(format)
	if _, ok := builtin[format]; ok {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.converters[format]
	return ok
}

// Formats lists every supported format, sorted.
func (r *Renderer) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(builtin)+len(r.converters))
	for f := range builtin {
		out = append(out, f)
	}
	for f := range r.converters {
		if _, dup := builtin[f]; !dup {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Render renders seq in the requested format. An empty sequence renders to empty
// content for built-in formats.
func (r *Renderer) Render(ctx context.Context, seq Sequence, format string) ([]byte, error) {
	format = normalize(format)
	if write, ok := builtin[format]; ok {
		if len(seq) == 0 && format != "json" {
			return []byte{}, nil
		}
		return write(seq)
	}

	r.mu.RLock()
	conv, ok := r.converters[format]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	srt := []byte{}
	if len(seq) > 0 {
		var err error
		if srt, err = writeSRT(seq); err != nil {
			return nil, err
		}
	}
	out, err := conv.Convert(ctx, srt)
	if err != nil {
		return nil, fmt.Errorf("convert to %s: %w", format, err)
	}
	return out, nil
}

func normalize(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

func writeSRT(seq Sequence) ([]byte, error) {
	var buf bytes.Buffer
	if err := toAstisub(seq).WriteToSRT(&buf); err != nil {
		return nil, fmt.Errorf("write srt: %w", err)
	}
	return buf.Bytes(), nil
}

func writeVTT(seq Sequence) ([]byte, error) {
	var buf bytes.Buffer
	if err := toAstisub(seq).WriteToWebVTT(&buf); err != nil {
		return nil, fmt.Errorf("write vtt: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSSA(seq Sequence) ([]byte, error) {
	var buf bytes.Buffer
	if err := toAstisub(seq).WriteToSSA(&buf); err != nil {
		return nil, fmt.Errorf("write ssa: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTTML(seq Sequence) ([]byte, error) {
	var buf bytes.Buffer
	if err := toAstisub(seq).WriteToTTML(&buf); err != nil {
		return nil, fmt.Errorf("write ttml: %w", err)
	}
	return buf.Bytes(), nil
}

func writeText(seq Sequence) ([]byte, error) {
	var buf bytes.Buffer
	for _, cue := range seq {
		buf.WriteString(cue.Text)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type jsonCue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func writeJSON(seq Sequence) ([]byte, error) {
	cues := make([]jsonCue, 0, len(seq))
	for i, cue := range seq {
		cues = append(cues, jsonCue{
			Index: i + 1,
			Start: cue.Start.Seconds(),
			End:   cue.End.Seconds(),
			Text:  cue.Text,
		})
	}
	return json.MarshalIndent(cues, "", "  ")
}
