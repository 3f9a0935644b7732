// Package subtitle holds the cue sequence produced by transcription and the
// renderers that turn it into subtitle files.
package subtitle

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
)

// Cue is one timed subtitle line.
type Cue struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Sequence is an ordered list of cues.
type Sequence []Cue

// Clone returns a copy that can be modified without touching s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// ParseSRT reads SRT content into a Sequence. Multi-line cues keep their line breaks.
func ParseSRT(r io.Reader) (Sequence, error) {
	subs, err := astisub.ReadFromSRT(r)
	if err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}
	return fromAstisub(subs), nil
}

func fromAstisub(subs *astisub.Subtitles) Sequence {
	seq := make(Sequence, 0, len(subs.Items))
	for _, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, line := range item.Lines {
			parts := make([]string, 0, len(line.Items))
			for _, li := range line.Items {
				parts = append(parts, li.Text)
			}
			lines = append(lines, strings.Join(parts, " "))
		}
		seq = append(seq, Cue{
			Start: item.StartAt,
			End:   item.EndAt,
			Text:  strings.Join(lines, "\n"),
		})
	}
	return seq
}

func toAstisub(seq Sequence) *astisub.Subtitles {
	subs := astisub.NewSubtitles()
	for i, cue := range seq {
		item := &astisub.Item{
			Index:   i + 1,
			StartAt: cue.Start,
			EndAt:   cue.End,
		}
		for _, text := range strings.Split(cue.Text, "\n") {
			item.Lines = append(item.Lines, astisub.Line{
				Items: []astisub.LineItem{{Text: text}},
			})
		}
		subs.Items = append(subs.Items, item)
	}
	return subs
}
