// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Synthesized audio is written as MP3 into a cache directory; the analyzer
// derives duration and a volume envelope from the file afterwards.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/anima-voice/anima/internal/resilience"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "alloy"
)

// Provider implements tts.Provider using the OpenAI speech endpoint.
// It is stateless apart from the cache directory and safe for concurrent
// use across sessions.
type Provider struct {
	client   oai.Client
	model    string
	voice    string
	speed    float64
	cacheDir string
	retry    resilience.RetryConfig
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	voice   string
	speed   float64
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Defaults to "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice sets the voice name (e.g. "alloy", "nova"). Defaults to "alloy".
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithSpeed sets the speaking rate multiplier in [0.25, 4.0].
func WithSpeed(speed float64) Option {
	return func(c *config) {
		c.speed = speed
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider writing audio files under
// cacheDir, which is created if missing.
func New(apiKey, cacheDir string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if cacheDir == "" {
		return nil, fmt.Errorf("openai: cacheDir must not be empty")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("openai: create cache dir: %w", err)
	}

	cfg := &config{model: defaultModel, voice: defaultVoice}
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
		voice:    cfg.voice,
		speed:    cfg.speed,
		cacheDir: cacheDir,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("openai: text must not be empty")
	}

	return resilience.RetryResult(ctx, p.retry, func(ctx context.Context) (string, error) {
		params := oai.AudioSpeechNewParams{
			Model:          oai.SpeechModel(p.model),
			Input:          text,
			Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
			ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
		}
		if p.speed > 0 {
			params.Speed = oai.Float(p.speed)
		}

		resp, err := p.client.Audio.Speech.New(ctx, params)
		if err != nil {
			var apiErr *oai.Error
			if errors.As(err, &apiErr) {
				return "", resilience.ClassifyStatus(apiErr.StatusCode, fmt.Errorf("openai: synthesize: %w", err))
			}
			return "", fmt.Errorf("openai: synthesize: %w", err)
		}
		defer resp.Body.Close()

		path := filepath.Join(p.cacheDir, uuid.NewString()+".mp3")
		f, err := os.Create(path)
		if err != nil {
			return "", resilience.Permanent(fmt.Errorf("openai: create audio file: %w", err))
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("openai: write audio file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("openai: close audio file: %w", err)
		}
		return path, nil
	})
}

// Close implements tts.Provider.
func (p *Provider) Close() error {
	return nil
}
