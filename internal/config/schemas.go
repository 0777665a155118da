package config

import (
	"time"

	"github.com/anima-voice/anima/internal/vad"
)

// Builtin fragment schemas. Each struct maps one services/{category}/*.yaml
// variant; the Type field must match the registered discriminator.

// AgentOpenAIConfig configures the OpenAI chat agent.
type AgentOpenAIConfig struct {
	Type           string  `yaml:"type"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ProviderType implements ServiceConfig.
func (c *AgentOpenAIConfig) ProviderType() string { return "openai" }

// AgentAnyLLMConfig configures the multi-vendor agent. Backend selects the
// underlying chat API (openai, anthropic, gemini, ollama, deepseek,
// mistral, groq, llamacpp, llamafile).
type AgentAnyLLMConfig struct {
	Type        string  `yaml:"type"`
	Backend     string  `yaml:"backend"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ProviderType implements ServiceConfig.
func (c *AgentAnyLLMConfig) ProviderType() string { return "anyllm" }

// AgentMockConfig configures the deterministic test agent.
type AgentMockConfig struct {
	Type  string `yaml:"type"`
	Reply string `yaml:"reply"`
}

// ProviderType implements ServiceConfig.
func (c *AgentMockConfig) ProviderType() string { return "mock" }

// ASROpenAIConfig configures OpenAI speech recognition.
type ASROpenAIConfig struct {
	Type           string `yaml:"type"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ProviderType implements ServiceConfig.
func (c *ASROpenAIConfig) ProviderType() string { return "openai" }

// ASRMockConfig configures the scripted test recognizer.
type ASRMockConfig struct {
	Type string `yaml:"type"`
	Text string `yaml:"text"`
}

// ProviderType implements ServiceConfig.
func (c *ASRMockConfig) ProviderType() string { return "mock" }

// TTSOpenAIConfig configures OpenAI speech synthesis.
type TTSOpenAIConfig struct {
	Type           string  `yaml:"type"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Voice          string  `yaml:"voice"`
	Speed          float64 `yaml:"speed"`
	CacheDir       string  `yaml:"cache_dir"`
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ProviderType implements ServiceConfig.
func (c *TTSOpenAIConfig) ProviderType() string { return "openai" }

// TTSMockConfig configures the silent-file test synthesizer.
type TTSMockConfig struct {
	Type     string `yaml:"type"`
	CacheDir string `yaml:"cache_dir"`
}

// ProviderType implements ServiceConfig.
func (c *TTSMockConfig) ProviderType() string { return "mock" }

// SegmenterSettings tunes the VAD state machine. Zero values fall back to
// vad.DefaultConfig.
type SegmenterSettings struct {
	SmoothingWindow   int     `yaml:"smoothing_window"`
	ProbThreshold     float64 `yaml:"prob_threshold"`
	DBThreshold       float64 `yaml:"db_threshold"`
	RequiredHits      int     `yaml:"required_hits"`
	RequiredMisses    int     `yaml:"required_misses"`
	PreRollWindows    int     `yaml:"pre_roll_windows"`
	MinUtteranceBytes int     `yaml:"min_utterance_bytes"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// SegmenterConfig materializes the settings over the defaults.
func (s SegmenterSettings) SegmenterConfig() vad.Config {
	cfg := vad.DefaultConfig()
	if s.SmoothingWindow > 0 {
		cfg.SmoothingWindow = s.SmoothingWindow
	}
	if s.ProbThreshold > 0 {
		cfg.ProbThreshold = s.ProbThreshold
	}
	if s.DBThreshold > 0 {
		cfg.DBThreshold = s.DBThreshold
	}
	if s.RequiredHits > 0 {
		cfg.RequiredHits = s.RequiredHits
	}
	if s.RequiredMisses > 0 {
		cfg.RequiredMisses = s.RequiredMisses
	}
	if s.PreRollWindows > 0 {
		cfg.PreRollWindows = s.PreRollWindows
	}
	if s.MinUtteranceBytes > 0 {
		cfg.MinUtteranceBytes = s.MinUtteranceBytes
	}
	if s.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	}
	return cfg
}

// VADSileroConfig configures the Silero model detector.
type VADSileroConfig struct {
	Type      string            `yaml:"type"`
	ModelPath string            `yaml:"model_path"`
	Segmenter SegmenterSettings `yaml:",inline"`
}

// ProviderType implements ServiceConfig.
func (c *VADSileroConfig) ProviderType() string { return "silero" }

// VADEnergyConfig configures the energy-threshold detector.
type VADEnergyConfig struct {
	Type      string            `yaml:"type"`
	FloorDB   float64           `yaml:"floor_db"`
	CeilingDB float64           `yaml:"ceiling_db"`
	Segmenter SegmenterSettings `yaml:",inline"`
}

// ProviderType implements ServiceConfig.
func (c *VADEnergyConfig) ProviderType() string { return "energy" }

// VADMockConfig configures the scripted test detector.
type VADMockConfig struct {
	Type      string            `yaml:"type"`
	Prob      float64           `yaml:"prob"`
	Segmenter SegmenterSettings `yaml:",inline"`
}

// ProviderType implements ServiceConfig.
func (c *VADMockConfig) ProviderType() string { return "mock" }
