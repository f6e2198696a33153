// Package summary asks a local Ollama model for a short written account of
// a trip from its subtitle cues.
package summary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/fieldlog/trackexport/internal/subtitle"
)

// ErrNoSegments is returned when there is nothing to summarize.
var ErrNoSegments = errors.New("no subtitle segments to summarize")

// Summarizer talks to an Ollama server through the official API client.
type Summarizer struct {
	client *api.Client
	model  string
	log    *zap.SugaredLogger
}

// Option configures a Summarizer.
type Option func(*options)

type options struct {
	timeout time.Duration
	log     *zap.SugaredLogger
}

// WithTimeout bounds each request. The first call may load the model,
// so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// New creates a Summarizer for the Ollama server at host using model.
func New(host, model string, opts ...Option) (*Summarizer, error) {
	o := options{timeout: 120 * time.Second, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}
	if model == "" {
		return nil, errors.New("summary: model is required")
	}
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("summary: invalid host URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("summary: invalid host URL %q", host)
	}
	return &Summarizer{
		client: api.NewClient(base, &http.Client{Timeout: o.timeout}),
		model:  model,
		log:    o.log,
	}, nil
}

// Model returns the configured model name.
func (s *Summarizer) Model() string { return s.model }

// Available reports whether the server answers a heartbeat.
func (s *Summarizer) Available(ctx context.Context) bool {
	return s.client.Heartbeat(ctx) == nil
}

// WaitForReady polls the server until it responds or ctx expires. The
// summary is optional, so a false result is not an error.
func (s *Summarizer) WaitForReady(ctx context.Context) bool {
	if s.Available(ctx) {
		return true
	}
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.Available(ctx) {
				s.log.Infow("ollama ready", "model", s.model)
				return true
			}
		}
	}
}

// Summarize returns a short markdown account of the trip.
func (s *Summarizer) Summarize(ctx context.Context, segments []subtitle.Segment) (string, error) {
	if len(segments) == 0 {
		return "", ErrNoSegments
	}

	stream := false
	var resp api.ChatResponse
	err := s.client.Chat(ctx, &api.ChatRequest{
		Model: s.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(segments)},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": 0.3,
			"num_predict": 400,
		},
	}, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	text := clean(resp.Message.Content)
	if text == "" {
		return "", errors.New("ollama returned an empty summary")
	}
	s.log.Debugw("summary generated", "model", s.model, "segments", len(segments), "chars", len(text))
	return text, nil
}
