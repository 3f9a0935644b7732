// Package analytics records usage events emitted while jobs run. Sinks are
// best-effort: callers log their errors and carry on.
package analytics

import (
	"context"
	"errors"
	"time"
)

type EventType string

const (
	EventTranscriptionStart    EventType = "transcription_start"
	EventTranscriptionComplete EventType = "transcription_complete"
	EventTranscriptionError    EventType = "transcription_error"
	EventTranslation           EventType = "translation"
	EventDownload              EventType = "download"
	EventUpload                EventType = "upload"
)

type Event struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"userId,omitempty"`
	JobID     string         `json:"jobId,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives analytics events.
type Sink interface {
	Track(ctx context.Context, ev Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Track(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Track(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}
