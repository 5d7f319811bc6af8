package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
backend:
  base_url: https://api.example.com
  token: secret-token
  timeout: 15s
providers:
  stt_fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
store:
  backend: sqlite
  sqlite_path: /var/lib/parlance/progress.db
capture:
  max_auto_duration: 8s
  speech_threshold: 0.6
  silence_threshold: 0.4
playback:
  cache_ttl: 10m
  probe_attempts: 5
  probe_delay: 250ms
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level: %q", cfg.Server.LogLevel)
	}
	if cfg.Backend.Timeout.Std() != 15*time.Second {
		t.Errorf("backend timeout: %v", cfg.Backend.Timeout.Std())
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("store backend: %q", cfg.Store.Backend)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Model != "whisper-1" {
		t.Errorf("stt fallbacks: %+v", cfg.Providers.STTFallbacks)
	}
	if cfg.Capture.MaxAutoDuration.Std() != 8*time.Second {
		t.Errorf("max_auto_duration: %v", cfg.Capture.MaxAutoDuration.Std())
	}
	if cfg.Playback.ProbeDelay.Std() != 250*time.Millisecond {
		t.Errorf("probe_delay: %v", cfg.Playback.ProbeDelay.Std())
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: https://api.example.com
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen_addr: %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default log_level: %q", cfg.Server.LogLevel)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("default store backend: %q", cfg.Store.Backend)
	}
	if cfg.Capture.SampleRate != 16000 || cfg.Capture.FrameSizeMs != 20 {
		t.Errorf("capture defaults: %+v", cfg.Capture)
	}
	if cfg.Capture.MaxAutoDuration.Std() != 10*time.Second {
		t.Errorf("default max_auto_duration: %v", cfg.Capture.MaxAutoDuration.Std())
	}
	if cfg.Playback.CacheSize != 256 || cfg.Playback.CacheTTL.Std() != 30*time.Minute {
		t.Errorf("playback defaults: %+v", cfg.Playback)
	}
	if cfg.Playback.ProbeAttempts != 10 || cfg.Playback.ProbeDelay.Std() != 500*time.Millisecond {
		t.Errorf("probe defaults: %+v", cfg.Playback)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: https://api.example.com
  basepath: /v1
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing base url",
			yaml: `server: {listen_addr: ":8080"}`,
			want: "backend.base_url is required",
		},
		{
			name: "bad log level",
			yaml: "server: {log_level: verbose}\nbackend: {base_url: https://x}",
			want: "server.log_level",
		},
		{
			name: "bad store backend",
			yaml: "backend: {base_url: https://x}\nstore: {backend: redis}",
			want: "store.backend",
		},
		{
			name: "sqlite without path",
			yaml: "backend: {base_url: https://x}\nstore: {backend: sqlite}",
			want: "store.sqlite_path is required",
		},
		{
			name: "postgres without dsn",
			yaml: "backend: {base_url: https://x}\nstore: {backend: postgres}",
			want: "store.postgres_dsn is required",
		},
		{
			name: "fallback without key",
			yaml: "backend: {base_url: https://x}\nproviders:\n  stt_fallbacks:\n    - name: openai",
			want: "api_key is required",
		},
		{
			name: "silence above speech threshold",
			yaml: "backend: {base_url: https://x}\ncapture: {speech_threshold: 0.3, silence_threshold: 0.7}",
			want: "silence_threshold",
		},
		{
			name: "tls missing key file",
			yaml: "backend: {base_url: https://x}\nserver:\n  tls: {cert_file: /etc/parlance/cert.pem}",
			want: "server.tls requires",
		},
		{
			name: "nonpositive rate limit",
			yaml: "backend: {base_url: https://x}\nserver:\n  rate_limit: {requests_per_second: 0}",
			want: "requests_per_second",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
server: {log_level: loud}
store: {backend: redis}
`))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"backend.base_url", "server.log_level", "store.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestSecretResolution(t *testing.T) {
	t.Setenv("PARLANCE_TEST_TOKEN", "from-env")
	t.Setenv("PARLANCE_TEST_KEY", "sk-env")

	cfg, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: https://api.example.com
  token: ${PARLANCE_TEST_TOKEN}
providers:
  stt_fallbacks:
    - name: openai
      api_key: ${PARLANCE_TEST_KEY}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Backend.Token != "from-env" {
		t.Errorf("token: %q", cfg.Backend.Token)
	}
	if cfg.Providers.STTFallbacks[0].APIKey != "sk-env" {
		t.Errorf("api_key: %q", cfg.Providers.STTFallbacks[0].APIKey)
	}
}

func TestBadDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: https://x
  timeout: fifteen
`))
	if err == nil || !strings.Contains(err.Error(), "parse duration") {
		t.Errorf("bad duration: %v", err)
	}
}
