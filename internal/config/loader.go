package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"openai", "whisper"},
	"vad":   {"energy"},
	"audio": {"system"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Unknown provider names warn rather than fail; third-party providers
	// register at runtime under arbitrary names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Fallback chains. A fallback without a primary is a configuration
	// mistake rather than a degraded mode; nesting is not supported.
	errs = append(errs, validateFallbacks("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateFallbacks("stt", cfg.Providers.STT)...)
	errs = append(errs, validateFallbacks("vad", cfg.Providers.VAD)...)

	// Degraded-mode warnings. Missing providers are valid configurations;
	// the pipeline substitutes templated answers or skips transcription.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; answers will use templated fallbacks")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; audio will be captured but not transcribed")
	}
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; meetings will not be archived")
	}

	// Pipeline bounds.
	p := cfg.Pipeline
	if p.WindowCapacity < 0 {
		errs = append(errs, fmt.Errorf("pipeline.window_capacity %d must not be negative", p.WindowCapacity))
	}
	if p.ContextLines < 0 {
		errs = append(errs, fmt.Errorf("pipeline.context_lines %d must not be negative", p.ContextLines))
	}
	if p.ContextLines > 0 && p.WindowCapacity > 0 && p.ContextLines > p.WindowCapacity {
		errs = append(errs, fmt.Errorf("pipeline.context_lines %d exceeds pipeline.window_capacity %d", p.ContextLines, p.WindowCapacity))
	}
	if p.DedupThreshold < 0 || p.DedupThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.dedup_threshold %.2f is out of range [0, 1]", p.DedupThreshold))
	}
	if p.ModelThreshold < 0 || p.ModelThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.model_threshold %.2f is out of range [0, 1]", p.ModelThreshold))
	}
	switch p.DedupSimilarity {
	case "", SimilarityJaccard, SimilarityJaroWinkler:
	default:
		errs = append(errs, fmt.Errorf("pipeline.dedup_similarity %q is invalid; valid values: %s, %s", p.DedupSimilarity, SimilarityJaccard, SimilarityJaroWinkler))
	}
	if p.DedupHorizon < 0 {
		errs = append(errs, fmt.Errorf("pipeline.dedup_horizon %s must not be negative", p.DedupHorizon.Std()))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", p.Temperature))
	}
	if s := p.Segmenter; s.MinSpeechFraction < 0 || s.MinSpeechFraction > 1 {
		errs = append(errs, fmt.Errorf("pipeline.segmenter.min_speech_fraction %.2f is out of range [0, 1]", s.MinSpeechFraction))
	}

	// Discord
	if cfg.Discord.Token != "" && cfg.Discord.GuildID == "" {
		slog.Warn("discord.token is set but discord.guild_id is empty; meeting references must carry a guild ID")
	}

	return errors.Join(errs...)
}

// validateFallbacks checks the fallback chain declared on a provider entry.
func validateFallbacks(kind string, entry ProviderEntry) []error {
	if len(entry.Fallbacks) == 0 {
		return nil
	}
	var errs []error
	if entry.Name == "" {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks requires a primary provider name", kind))
	}
	for i, fb := range entry.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d] (%s): nested fallbacks are not supported", kind, i, fb.Name))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
