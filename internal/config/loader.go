package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidSTTFallbackNames lists the recognised fallback transcription
// providers. Used by [Validate] to warn about unrecognised names.
var ValidSTTFallbackNames = []string{"openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, resolves ${VAR} secret
// references from the environment, applies defaults and validates the
// result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	resolveSecrets(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveSecrets replaces "${VAR}" values in credential fields with the
// corresponding environment variable. Unset variables resolve to empty so
// validation reports the missing credential rather than a cryptic auth error
// later.
func resolveSecrets(cfg *Config) {
	cfg.Backend.Token = expandSecret(cfg.Backend.Token)
	for i := range cfg.Providers.STTFallbacks {
		cfg.Providers.STTFallbacks[i].APIKey = expandSecret(cfg.Providers.STTFallbacks[i].APIKey)
	}
}

func expandSecret(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

// applyDefaults fills zero values with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = 16000
	}
	if cfg.Capture.FrameSizeMs == 0 {
		cfg.Capture.FrameSizeMs = 20
	}
	if cfg.Capture.MaxAutoDuration == 0 {
		cfg.Capture.MaxAutoDuration = Duration(10 * time.Second)
	}
	if cfg.Capture.SpeechThreshold == 0 {
		cfg.Capture.SpeechThreshold = 0.5
	}
	if cfg.Capture.SilenceThreshold == 0 {
		cfg.Capture.SilenceThreshold = 0.35
	}
	if cfg.Capture.HangoverFrames == 0 {
		cfg.Capture.HangoverFrames = 25
	}
	if cfg.Playback.CacheSize == 0 {
		cfg.Playback.CacheSize = 256
	}
	if cfg.Playback.CacheTTL == 0 {
		cfg.Playback.CacheTTL = Duration(30 * time.Minute)
	}
	if cfg.Playback.ProbeAttempts == 0 {
		cfg.Playback.ProbeAttempts = 10
	}
	if cfg.Playback.ProbeDelay == 0 {
		cfg.Playback.ProbeDelay = Duration(500 * time.Millisecond)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}
	if rl := cfg.Server.RateLimit; rl != nil {
		if rl.RequestsPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("server.rate_limit.requests_per_second %.2f must be positive", rl.RequestsPerSecond))
		}
		if rl.Burst < 0 {
			errs = append(errs, fmt.Errorf("server.rate_limit.burst %d must not be negative", rl.Burst))
		}
	}

	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if cfg.Backend.Token == "" {
		slog.Warn("backend.token is empty; requests to the tutoring API will be unauthenticated")
	}

	for i, p := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if !slices.Contains(ValidSTTFallbackNames, p.Name) {
			slog.Warn("unknown fallback provider name",
				"name", p.Name,
				"known", ValidSTTFallbackNames,
			)
		}
		if p.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for provider %q", prefix, p.Name))
		}
	}

	if !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StoreSQLite && cfg.Store.SQLitePath == "" {
		errs = append(errs, errors.New("store.sqlite_path is required when store.backend is sqlite"))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}
	if cfg.Store.Backend == StoreMemory {
		slog.Warn("store.backend is memory; learner progress will be lost on restart")
	}

	if cfg.Capture.SpeechThreshold < 0 || cfg.Capture.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("capture.speech_threshold %.2f is out of range [0, 1]", cfg.Capture.SpeechThreshold))
	}
	if cfg.Capture.SilenceThreshold < 0 || cfg.Capture.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("capture.silence_threshold %.2f is out of range [0, 1]", cfg.Capture.SilenceThreshold))
	}
	if cfg.Capture.SilenceThreshold > cfg.Capture.SpeechThreshold {
		errs = append(errs, fmt.Errorf("capture.silence_threshold %.2f must not exceed capture.speech_threshold %.2f", cfg.Capture.SilenceThreshold, cfg.Capture.SpeechThreshold))
	}
	if cfg.Capture.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be at least 8000", cfg.Capture.SampleRate))
	}
	if cfg.Capture.FrameSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("capture.frame_size_ms %d must be positive", cfg.Capture.FrameSizeMs))
	}
	if cfg.Capture.MaxAutoDuration < 0 {
		errs = append(errs, errors.New("capture.max_auto_duration must not be negative"))
	}

	if cfg.Playback.CacheSize < 0 {
		errs = append(errs, errors.New("playback.cache_size must not be negative"))
	}
	if cfg.Playback.ProbeAttempts < 1 {
		errs = append(errs, fmt.Errorf("playback.probe_attempts %d must be at least 1", cfg.Playback.ProbeAttempts))
	}

	return errors.Join(errs...)
}
