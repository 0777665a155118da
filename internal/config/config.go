// Package config provides the configuration schema, loader, and provider
// registry for the anima server.
//
// The main config names one service per category; each name resolves to a
// YAML fragment under services/{category}/{name}.yaml carrying a `type`
// discriminator. The registry maps (category, type) to the fragment's
// schema prototype and the provider factory, so adding a provider touches
// neither the loader nor the session manager.
package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// LogLevel controls log verbosity for the anima server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level scale. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Category identifies a provider category.
type Category string

const (
	CategoryAgent Category = "agent"
	CategoryASR   Category = "asr"
	CategoryTTS   Category = "tts"
	CategoryVAD   Category = "vad"
)

// Categories lists all provider categories in fragment-resolution order.
var Categories = []Category{CategoryAgent, CategoryASR, CategoryTTS, CategoryVAD}

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryAgent, CategoryASR, CategoryTTS, CategoryVAD:
		return true
	}
	return false
}

// ServiceConfig is implemented by every provider fragment schema. The
// returned type is the fragment's discriminator value.
type ServiceConfig interface {
	ProviderType() string
}

// ServiceNames holds the per-category service names from the main config.
// An empty name leaves that category unconfigured (TTS and VAD are
// optional; agent is required).
type ServiceNames struct {
	Agent string `yaml:"agent"`
	ASR   string `yaml:"asr"`
	TTS   string `yaml:"tts"`
	VAD   string `yaml:"vad"`
}

// Name returns the configured service name for category.
func (s ServiceNames) Name(c Category) string {
	switch c {
	case CategoryAgent:
		return s.Agent
	case CategoryASR:
		return s.ASR
	case CategoryTTS:
		return s.TTS
	case CategoryVAD:
		return s.VAD
	}
	return ""
}

// SystemConfig holds network and logging settings.
type SystemConfig struct {
	// Host is the listen address (e.g. "0.0.0.0").
	Host string `yaml:"host"`

	// Port is the listen TCP port.
	Port int `yaml:"port"`

	// Debug enables verbose per-window VAD logging and /debug endpoints.
	Debug bool `yaml:"debug"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ResolvedServices holds the decoded per-category fragments after Load.
// Unconfigured categories are nil.
type ResolvedServices struct {
	Agent ServiceConfig
	ASR   ServiceConfig
	TTS   ServiceConfig
	VAD   ServiceConfig
}

// Get returns the resolved fragment for category.
func (r ResolvedServices) Get(c Category) ServiceConfig {
	switch c {
	case CategoryAgent:
		return r.Agent
	case CategoryASR:
		return r.ASR
	case CategoryTTS:
		return r.TTS
	case CategoryVAD:
		return r.VAD
	}
	return nil
}

func (r *ResolvedServices) set(c Category, sc ServiceConfig) {
	switch c {
	case CategoryAgent:
		r.Agent = sc
	case CategoryASR:
		r.ASR = sc
	case CategoryTTS:
		r.TTS = sc
	case CategoryVAD:
		r.VAD = sc
	}
}

// AppConfig is the fully loaded configuration: the main file plus every
// referenced service fragment, post env-interpolation and overrides.
type AppConfig struct {
	// Persona is the persona name; the persona file lives at
	// personas/{name}.yaml next to the main config.
	Persona string

	// ServiceNames are the per-category fragment names from the main file.
	ServiceNames ServiceNames

	// System holds network and logging settings.
	System SystemConfig

	// Services are the decoded fragments.
	Services ResolvedServices
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg *AppConfig) error {
	var errs []error

	if cfg.System.LogLevel != "" && !cfg.System.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("system.log_level %q is invalid; valid values: debug, info, warn, error", cfg.System.LogLevel))
	}
	if cfg.System.Port < 0 || cfg.System.Port > 65535 {
		errs = append(errs, fmt.Errorf("system.port %d is out of range [0, 65535]", cfg.System.Port))
	}
	if cfg.ServiceNames.Agent == "" {
		errs = append(errs, errors.New("services.agent is required"))
	}
	if cfg.ServiceNames.ASR != "" && cfg.Services.ASR == nil {
		errs = append(errs, errors.New("services.asr named but not resolved"))
	}

	return errors.Join(errs...)
}
