package main

import (
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/anima-voice/anima/internal/config"
	"github.com/anima-voice/anima/internal/vad"
	"github.com/anima-voice/anima/pkg/provider/agent"
	agentanyllm "github.com/anima-voice/anima/pkg/provider/agent/anyllm"
	agentmock "github.com/anima-voice/anima/pkg/provider/agent/mock"
	agentoai "github.com/anima-voice/anima/pkg/provider/agent/openai"
	"github.com/anima-voice/anima/pkg/provider/asr"
	asrmock "github.com/anima-voice/anima/pkg/provider/asr/mock"
	asroai "github.com/anima-voice/anima/pkg/provider/asr/openai"
	"github.com/anima-voice/anima/pkg/provider/tts"
	ttsmock "github.com/anima-voice/anima/pkg/provider/tts/mock"
	ttsoai "github.com/anima-voice/anima/pkg/provider/tts/openai"
	vadprov "github.com/anima-voice/anima/pkg/provider/vad"
	"github.com/anima-voice/anima/pkg/provider/vad/energy"
	vadmock "github.com/anima-voice/anima/pkg/provider/vad/mock"
	"github.com/anima-voice/anima/pkg/provider/vad/silero"
	"github.com/anima-voice/anima/pkg/types"
)

// builtinProviders maps categories to the implementations that ship with
// anima. Used for startup logging.
var builtinProviders = map[string][]string{
	"agent": {"openai", "anyllm", "mock"},
	"asr":   {"openai", "mock"},
	"tts":   {"openai", "mock"},
	"vad":   {"silero", "energy", "mock"},
}

// registerBuiltinProviders wires all built-in fragment schemas and provider
// factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Agent ─────────────────────────────────────────────────────────────────

	reg.RegisterAgent("openai",
		func() config.ServiceConfig { return &config.AgentOpenAIConfig{} },
		func(sc config.ServiceConfig, systemPrompt string) (agent.Provider, error) {
			c := sc.(*config.AgentOpenAIConfig)
			var opts []agentoai.Option
			if c.BaseURL != "" {
				opts = append(opts, agentoai.WithBaseURL(c.BaseURL))
			}
			if c.TimeoutSeconds > 0 {
				opts = append(opts, agentoai.WithTimeout(time.Duration(c.TimeoutSeconds)*time.Second))
			}
			if c.Temperature > 0 {
				opts = append(opts, agentoai.WithTemperature(c.Temperature))
			}
			if c.MaxTokens > 0 {
				opts = append(opts, agentoai.WithMaxTokens(c.MaxTokens))
			}
			return agentoai.New(c.APIKey, c.Model, systemPrompt, opts...)
		})

	reg.RegisterAgent("anyllm",
		func() config.ServiceConfig { return &config.AgentAnyLLMConfig{} },
		func(sc config.ServiceConfig, systemPrompt string) (agent.Provider, error) {
			c := sc.(*config.AgentAnyLLMConfig)
			var opts []anyllmlib.Option
			if c.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(c.APIKey))
			}
			if c.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(c.BaseURL))
			}
			p, err := agentanyllm.New(c.Backend, c.Model, systemPrompt, opts...)
			if err != nil {
				return nil, err
			}
			if c.Temperature > 0 {
				p.SetTemperature(c.Temperature)
			}
			if c.MaxTokens > 0 {
				p.SetMaxTokens(c.MaxTokens)
			}
			return p, nil
		})

	reg.RegisterAgent("mock",
		func() config.ServiceConfig { return &config.AgentMockConfig{} },
		func(sc config.ServiceConfig, _ string) (agent.Provider, error) {
			c := sc.(*config.AgentMockConfig)
			return &agentmock.Provider{
				Chunks:        []types.Chunk{{Type: types.ChunkText, Text: c.Reply}},
				RecordHistory: true,
			}, nil
		})

	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("openai",
		func() config.ServiceConfig { return &config.ASROpenAIConfig{} },
		func(sc config.ServiceConfig) (asr.Provider, error) {
			c := sc.(*config.ASROpenAIConfig)
			var opts []asroai.Option
			if c.Model != "" {
				opts = append(opts, asroai.WithModel(c.Model))
			}
			if c.Language != "" {
				opts = append(opts, asroai.WithLanguage(c.Language))
			}
			if c.BaseURL != "" {
				opts = append(opts, asroai.WithBaseURL(c.BaseURL))
			}
			if c.TimeoutSeconds > 0 {
				opts = append(opts, asroai.WithTimeout(time.Duration(c.TimeoutSeconds)*time.Second))
			}
			return asroai.New(c.APIKey, opts...)
		})

	reg.RegisterASR("mock",
		func() config.ServiceConfig { return &config.ASRMockConfig{} },
		func(sc config.ServiceConfig) (asr.Provider, error) {
			c := sc.(*config.ASRMockConfig)
			return &asrmock.Provider{Text: c.Text}, nil
		})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai",
		func() config.ServiceConfig { return &config.TTSOpenAIConfig{} },
		func(sc config.ServiceConfig) (tts.Provider, error) {
			c := sc.(*config.TTSOpenAIConfig)
			var opts []ttsoai.Option
			if c.Model != "" {
				opts = append(opts, ttsoai.WithModel(c.Model))
			}
			if c.Voice != "" {
				opts = append(opts, ttsoai.WithVoice(c.Voice))
			}
			if c.Speed > 0 {
				opts = append(opts, ttsoai.WithSpeed(c.Speed))
			}
			if c.BaseURL != "" {
				opts = append(opts, ttsoai.WithBaseURL(c.BaseURL))
			}
			if c.TimeoutSeconds > 0 {
				opts = append(opts, ttsoai.WithTimeout(time.Duration(c.TimeoutSeconds)*time.Second))
			}
			cacheDir := c.CacheDir
			if cacheDir == "" {
				cacheDir = "cache"
			}
			return ttsoai.New(c.APIKey, cacheDir, opts...)
		})

	reg.RegisterTTS("mock",
		func() config.ServiceConfig { return &config.TTSMockConfig{} },
		func(sc config.ServiceConfig) (tts.Provider, error) {
			c := sc.(*config.TTSMockConfig)
			return &ttsmock.Provider{Dir: c.CacheDir}, nil
		})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("silero",
		func() config.ServiceConfig { return &config.VADSileroConfig{} },
		func(sc config.ServiceConfig) (*vad.Segmenter, error) {
			c := sc.(*config.VADSileroConfig)
			det, err := silero.New(c.ModelPath)
			if err != nil {
				// A missing model or runtime degrades to the energy
				// detector; the state machine semantics are unchanged.
				slog.Warn("silero model unavailable, using energy detector",
					"model_path", c.ModelPath, "error", err)
				return vad.NewSegmenter(c.Segmenter.SegmenterConfig(), energy.NewDefault()), nil
			}
			// Energy fallback keeps the voice loop alive if the model
			// runtime dies mid-session.
			return vad.NewSegmenter(c.Segmenter.SegmenterConfig(), det, energy.NewDefault()), nil
		})

	reg.RegisterVAD("energy",
		func() config.ServiceConfig { return &config.VADEnergyConfig{} },
		func(sc config.ServiceConfig) (*vad.Segmenter, error) {
			c := sc.(*config.VADEnergyConfig)
			var det vadprov.Detector
			if c.FloorDB == 0 && c.CeilingDB == 0 {
				det = energy.NewDefault()
			} else {
				d, err := energy.New(c.FloorDB, c.CeilingDB)
				if err != nil {
					return nil, err
				}
				det = d
			}
			return vad.NewSegmenter(c.Segmenter.SegmenterConfig(), det), nil
		})

	reg.RegisterVAD("mock",
		func() config.ServiceConfig { return &config.VADMockConfig{} },
		func(sc config.ServiceConfig) (*vad.Segmenter, error) {
			c := sc.(*config.VADMockConfig)
			det := &vadmock.Detector{Prob: c.Prob}
			return vad.NewSegmenter(c.Segmenter.SegmenterConfig(), det), nil
		})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}
