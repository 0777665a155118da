package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/anima-voice/anima/internal/vad"
	"github.com/anima-voice/anima/pkg/provider/agent"
	"github.com/anima-voice/anima/pkg/provider/asr"
	"github.com/anima-voice/anima/pkg/provider/tts"
)

// Registry errors.
var (
	// ErrUnknownProvider is returned when no registration exists for a
	// (category, type) pair.
	ErrUnknownProvider = errors.New("config: provider not registered")

	// ErrConfigTypeMismatch is returned when a ServiceConfig's static type
	// does not match the registered schema prototype.
	ErrConfigTypeMismatch = errors.New("config: service config type mismatch")
)

// AgentFactory builds a per-session agent provider from its validated
// fragment and the persona system prompt.
type AgentFactory func(cfg ServiceConfig, systemPrompt string) (agent.Provider, error)

// ASRFactory builds a recognition provider from its validated fragment.
type ASRFactory func(cfg ServiceConfig) (asr.Provider, error)

// TTSFactory builds a synthesis provider from its validated fragment.
type TTSFactory func(cfg ServiceConfig) (tts.Provider, error)

// VADFactory builds a per-session VAD segmenter (detector plus state
// machine) from its validated fragment.
type VADFactory func(cfg ServiceConfig) (*vad.Segmenter, error)

// Prototype returns a fresh zero value of a fragment schema for the loader
// to decode into.
type Prototype func() ServiceConfig

type agentRegistration struct {
	prototype Prototype
	factory   AgentFactory
}

type asrRegistration struct {
	prototype Prototype
	factory   ASRFactory
}

type ttsRegistration struct {
	prototype Prototype
	factory   TTSFactory
}

type vadRegistration struct {
	prototype Prototype
	factory   VADFactory
}

// Registry maps (category, type) to a fragment schema prototype and a
// provider factory. Registration happens at startup; lookups are
// read-mostly. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	agent map[string]agentRegistration
	asr   map[string]asrRegistration
	tts   map[string]ttsRegistration
	vad   map[string]vadRegistration
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		agent: make(map[string]agentRegistration),
		asr:   make(map[string]asrRegistration),
		tts:   make(map[string]ttsRegistration),
		vad:   make(map[string]vadRegistration),
	}
}

// RegisterAgent registers an agent provider under typ. Subsequent calls
// with the same typ overwrite the previous registration.
func (r *Registry) RegisterAgent(typ string, prototype Prototype, factory AgentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agent[typ] = agentRegistration{prototype: prototype, factory: factory}
}

// RegisterASR registers a recognition provider under typ.
func (r *Registry) RegisterASR(typ string, prototype Prototype, factory ASRFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[typ] = asrRegistration{prototype: prototype, factory: factory}
}

// RegisterTTS registers a synthesis provider under typ.
func (r *Registry) RegisterTTS(typ string, prototype Prototype, factory TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[typ] = ttsRegistration{prototype: prototype, factory: factory}
}

// RegisterVAD registers a VAD provider under typ.
func (r *Registry) RegisterVAD(typ string, prototype Prototype, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[typ] = vadRegistration{prototype: prototype, factory: factory}
}

// Prototype returns a fresh schema value for (category, typ), for the
// loader's discriminated decode.
func (r *Registry) Prototype(category Category, typ string) (ServiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var proto Prototype
	switch category {
	case CategoryAgent:
		if reg, ok := r.agent[typ]; ok {
			proto = reg.prototype
		}
	case CategoryASR:
		if reg, ok := r.asr[typ]; ok {
			proto = reg.prototype
		}
	case CategoryTTS:
		if reg, ok := r.tts[typ]; ok {
			proto = reg.prototype
		}
	case CategoryVAD:
		if reg, ok := r.vad[typ]; ok {
			proto = reg.prototype
		}
	default:
		return nil, fmt.Errorf("config: unknown category %q", category)
	}

	if proto == nil {
		return nil, fmt.Errorf("%w: %s/%q", ErrUnknownProvider, category, typ)
	}
	return proto(), nil
}

// CreateAgent instantiates an agent provider from cfg. The cfg's static
// type must match the registered prototype for its discriminator.
func (r *Registry) CreateAgent(cfg ServiceConfig, systemPrompt string) (agent.Provider, error) {
	r.mu.RLock()
	reg, ok := r.agent[cfg.ProviderType()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: agent/%q", ErrUnknownProvider, cfg.ProviderType())
	}
	if err := checkSchema(CategoryAgent, cfg, reg.prototype); err != nil {
		return nil, err
	}
	return reg.factory(cfg, systemPrompt)
}

// CreateASR instantiates a recognition provider from cfg.
func (r *Registry) CreateASR(cfg ServiceConfig) (asr.Provider, error) {
	r.mu.RLock()
	reg, ok := r.asr[cfg.ProviderType()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrUnknownProvider, cfg.ProviderType())
	}
	if err := checkSchema(CategoryASR, cfg, reg.prototype); err != nil {
		return nil, err
	}
	return reg.factory(cfg)
}

// CreateTTS instantiates a synthesis provider from cfg.
func (r *Registry) CreateTTS(cfg ServiceConfig) (tts.Provider, error) {
	r.mu.RLock()
	reg, ok := r.tts[cfg.ProviderType()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrUnknownProvider, cfg.ProviderType())
	}
	if err := checkSchema(CategoryTTS, cfg, reg.prototype); err != nil {
		return nil, err
	}
	return reg.factory(cfg)
}

// CreateVAD instantiates a fresh per-session segmenter from cfg.
func (r *Registry) CreateVAD(cfg ServiceConfig) (*vad.Segmenter, error) {
	r.mu.RLock()
	reg, ok := r.vad[cfg.ProviderType()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrUnknownProvider, cfg.ProviderType())
	}
	if err := checkSchema(CategoryVAD, cfg, reg.prototype); err != nil {
		return nil, err
	}
	return reg.factory(cfg)
}

// checkSchema rejects a config whose static type differs from the
// registered schema.
func checkSchema(category Category, cfg ServiceConfig, proto Prototype) error {
	want := reflect.TypeOf(proto())
	got := reflect.TypeOf(cfg)
	if want != got {
		return fmt.Errorf("%w: %s/%q expects %s, got %s",
			ErrConfigTypeMismatch, category, cfg.ProviderType(), want, got)
	}
	return nil
}
