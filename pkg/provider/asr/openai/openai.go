// Package openai provides a speech recognition provider backed by the
// OpenAI transcription API (Whisper and successors).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anima-voice/anima/internal/resilience"
	"github.com/anima-voice/anima/pkg/provider/vad"
)

const defaultModel = "whisper-1"

// Provider implements asr.Provider using the OpenAI transcription endpoint.
// It is stateless and safe for concurrent use across sessions.
type Provider struct {
	client   oai.Client
	model    string
	language string
	retry    resilience.RetryConfig
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithLanguage hints the spoken language as an ISO-639-1 code.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI ASR Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
	}, nil
}

// Transcribe implements asr.Provider. The utterance is re-encoded as a
// 16-bit WAV and uploaded in one shot.
func (p *Provider) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	wav := encodeWAV(samples, vad.SampleRate)

	return resilience.RetryResult(ctx, p.retry, func(ctx context.Context) (string, error) {
		params := oai.AudioTranscriptionNewParams{
			Model: oai.AudioModel(p.model),
			File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		}
		if p.language != "" {
			params.Language = oai.String(p.language)
		}

		resp, err := p.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			var apiErr *oai.Error
			if errors.As(err, &apiErr) {
				return "", resilience.ClassifyStatus(apiErr.StatusCode, fmt.Errorf("openai: transcribe: %w", err))
			}
			return "", fmt.Errorf("openai: transcribe: %w", err)
		}
		return resp.Text, nil
	})
}

// Close implements asr.Provider.
func (p *Provider) Close() error {
	return nil
}
