package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the main config location when neither the CLI flag nor
// ANIMA_CONFIG is set.
const DefaultPath = "config/config.yaml"

// ResolvePath picks the main config path: CLI flag value, then the
// ANIMA_CONFIG environment variable, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("ANIMA_CONFIG"); env != "" {
		return env
	}
	return DefaultPath
}

// mainFile mirrors the on-disk main config structure.
type mainFile struct {
	Persona  string       `yaml:"persona"`
	Services ServiceNames `yaml:"services"`
	System   SystemConfig `yaml:"system"`
}

// Load reads the main config at path, resolves every referenced service
// fragment from services/{category}/{name}.yaml relative to the main file,
// interpolates environment variables into string fields, applies the hard
// environment overrides, and validates the result. All failure modes are
// fatal: the caller should not start with a partial config.
func Load(path string, reg *Registry) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read main config %q: %w", path, err)
	}

	var main mainFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&main); err != nil {
		return nil, fmt.Errorf("config: decode main config %q: %w", path, err)
	}

	cfg := &AppConfig{
		Persona:      main.Persona,
		ServiceNames: main.Services,
		System:       main.System,
	}

	baseDir := filepath.Dir(path)
	for _, category := range Categories {
		name := cfg.ServiceNames.Name(category)
		if name == "" {
			continue
		}
		sc, err := loadFragment(baseDir, category, name, reg)
		if err != nil {
			return nil, err
		}
		cfg.Services.set(category, sc)
	}

	interpolateValue(reflect.ValueOf(cfg).Elem())
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// loadFragment reads one service fragment and decodes it through the
// registry's schema for its discriminator.
func loadFragment(baseDir string, category Category, name string, reg *Registry) (ServiceConfig, error) {
	path := filepath.Join(baseDir, "services", string(category), name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s fragment %q: %w", category, path, err)
	}

	// First pass: pull out the discriminator only.
	var probe struct {
		Type string `yaml:"type"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("config: decode %s/%s: %w", category, name, err)
	}
	if probe.Type == "" {
		return nil, fmt.Errorf("config: %s/%s: missing type discriminator", category, name)
	}

	proto, err := reg.Prototype(category, probe.Type)
	if err != nil {
		return nil, fmt.Errorf("config: %s/%s: %w", category, name, err)
	}

	// Second pass: strict decode into the schema.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(proto); err != nil {
		return nil, fmt.Errorf("config: decode %s/%s as %q: %w", category, name, probe.Type, err)
	}
	return proto, nil
}

// envPattern matches ${NAME} and $NAME tokens inside string values.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv substitutes environment variables in s. Missing variables
// become the empty string and are logged at debug.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(token string) string {
		m := envPattern.FindStringSubmatch(token)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			slog.Debug("config: environment variable not set, substituting empty string", "name", name)
			return ""
		}
		return value
	})
}

// interpolateValue walks v recursively and applies expandEnv to every
// settable string field.
func interpolateValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			interpolateValue(v.Elem())
		}
	case reflect.Struct:
		for i := range v.NumField() {
			f := v.Field(i)
			if f.CanSet() || f.Kind() == reflect.Interface || f.Kind() == reflect.Pointer {
				interpolateValue(f)
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			interpolateValue(v.Index(i))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			elem := v.MapIndex(key)
			if elem.Kind() == reflect.String {
				v.SetMapIndex(key, reflect.ValueOf(expandEnv(elem.String())))
			}
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(expandEnv(v.String()))
		}
	}
}

// applyEnvOverrides forces well-known environment variables over the loaded
// values: credentials and models for the provider fragments, host and port
// for the listener.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("LLM_API_KEY"); v != "" && cfg.Services.Agent != nil {
		setFieldByTag(cfg.Services.Agent, "api_key", v)
	}
	if v := os.Getenv("LLM_MODEL"); v != "" && cfg.Services.Agent != nil {
		setFieldByTag(cfg.Services.Agent, "model", v)
	}
	if v := os.Getenv("ASR_API_KEY"); v != "" && cfg.Services.ASR != nil {
		setFieldByTag(cfg.Services.ASR, "api_key", v)
	}
	if v := os.Getenv("TTS_API_KEY"); v != "" && cfg.Services.TTS != nil {
		setFieldByTag(cfg.Services.TTS, "api_key", v)
	}
	if v := os.Getenv("ANIMA_HOST"); v != "" {
		cfg.System.Host = v
	}
	if v := os.Getenv("ANIMA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.System.Port = port
		} else {
			slog.Warn("config: ANIMA_PORT is not a number, ignoring", "value", v)
		}
	}
}

// setFieldByTag assigns value to the string field of sc carrying the given
// yaml tag, if present. Fragments without such a field are left alone.
func setFieldByTag(sc ServiceConfig, tag, value string) bool {
	v := reflect.ValueOf(sc)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return false
	}
	t := v.Type()
	for i := range t.NumField() {
		if t.Field(i).Tag.Get("yaml") != tag {
			continue
		}
		f := v.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(value)
			return true
		}
	}
	return false
}

// DumpTree serializes cfg back into the on-disk layout: a map of relative
// file paths to YAML content. Writing the tree under a directory and
// calling Load on its config.yaml yields an equivalent configuration
// (post env-interpolation).
func DumpTree(cfg *AppConfig) (map[string][]byte, error) {
	out := make(map[string][]byte)

	main, err := yaml.Marshal(mainFile{
		Persona:  cfg.Persona,
		Services: cfg.ServiceNames,
		System:   cfg.System,
	})
	if err != nil {
		return nil, fmt.Errorf("config: marshal main config: %w", err)
	}
	out["config.yaml"] = main

	for _, category := range Categories {
		sc := cfg.Services.Get(category)
		name := cfg.ServiceNames.Name(category)
		if sc == nil || name == "" {
			continue
		}
		data, err := yaml.Marshal(sc)
		if err != nil {
			return nil, fmt.Errorf("config: marshal %s/%s: %w", category, name, err)
		}
		out[filepath.Join("services", string(category), name+".yaml")] = data
	}
	return out, nil
}
