// Package translate translates subtitle cues through a local Ollama server.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"subsai/subtitle"
)

// Config captures the Ollama connection settings.
type Config struct {
	Host    string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// Ollama translates cue text with a chat model. It implements batch.Translator.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

func NewOllama(cfg Config) (*Ollama, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, errors.New("ollama host is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("ollama model is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Ollama{host: host, model: model, client: hc}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Translate returns seq with every cue's text translated. Timings are kept
// and blank cues are passed through.
func (o *Ollama) Translate(ctx context.Context, seq subtitle.Sequence, source, target string) (subtitle.Sequence, error) {
	out := seq.Clone()
	prompt := systemPrompt(source, target)
	for i := range out {
		if strings.TrimSpace(out[i].Text) == "" {
			continue
		}
		text, err := o.chat(ctx, prompt, out[i].Text)
		if err != nil {
			return nil, fmt.Errorf("translate cue %d: %w", i+1, err)
		}
		out[i].Text = text
	}
	return out, nil
}

func systemPrompt(source, target string) string {
	if source == "" || source == "auto" {
		source = "the detected source language"
	}
	return fmt.Sprintf("You are a professional translator. Translate the following text from %s to %s. "+
		"Return only the translation, no explanations or additional text.", source, target)
}

func (o *Ollama) chat(ctx context.Context, system, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to translate with Ollama on %s: %w", o.host, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("ollama returned %s", resp.Status)
		}
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned %s: %s", resp.Status, cr.Error)
	}
	return cleanResponse(cr.Message.Content), nil
}

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkTag   = regexp.MustCompile(`(?i)</?think[^>]*>`)
)

// cleanResponse strips reasoning blocks and collapses whitespace. If nothing
// is left the trimmed raw text is returned.
func cleanResponse(text string) string {
	cleaned := thinkBlock.ReplaceAllString(text, "")
	cleaned = thinkTag.ReplaceAllString(cleaned, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return strings.TrimSpace(text)
	}
	return cleaned
}
