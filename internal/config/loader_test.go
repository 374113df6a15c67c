package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hiplay/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("live:\n  api_key: k\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.InputSampleRate != 16000 || cfg.Audio.OutputSampleRate != 24000 {
		t.Errorf("rates = %d/%d, want 16000/24000", cfg.Audio.InputSampleRate, cfg.Audio.OutputSampleRate)
	}
	if cfg.Audio.FrameSize != 2048 {
		t.Errorf("frame_size = %d, want 2048", cfg.Audio.FrameSize)
	}
	if cfg.Audio.LevelGain != 500 {
		t.Errorf("level_gain = %v, want 500", cfg.Audio.LevelGain)
	}
	if cfg.Reconnect.Backoff != 500*time.Millisecond || cfg.Reconnect.MaxBackoff != 5*time.Second || cfg.Reconnect.MaxRetries != 5 {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	if !config.Enabled(cfg.Reconnect.Enabled, true) {
		t.Error("reconnect should default to enabled")
	}
	if len(cfg.Voices) != len(config.DefaultVoices) {
		t.Fatalf("voices = %d, want %d", len(cfg.Voices), len(config.DefaultVoices))
	}
	if cfg.Live.Voice != "Paraibana" {
		t.Errorf("live.voice = %q, want Paraibana", cfg.Live.Voice)
	}
}

func TestLoadFromReader_FullDocument(t *testing.T) {
	t.Parallel()
	doc := `
server:
  log_level: debug
  log_file: /tmp/hiplay.log
  metrics_addr: ":9464"
live:
  api_key: secret
  model: custom-model
  voice: Kore
  system_instruction: Be brief.
  google_search: false
  transcription:
    input: false
reconnect:
  enabled: false
  backoff: 250ms
  max_backoff: 2s
  max_retries: 3
voices:
  - id: Kore
    api_voice: Kore
    persona: Direct and technical.
transcript:
  path: /tmp/hiplay.db
`
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Live.Model != "custom-model" || cfg.Live.APIKey != "secret" {
		t.Errorf("live = %+v", cfg.Live)
	}
	if config.Enabled(cfg.Live.GoogleSearch, true) {
		t.Error("google_search should be disabled")
	}
	if config.Enabled(cfg.Live.Transcription.Input, true) || !config.Enabled(cfg.Live.Transcription.Output, true) {
		t.Error("transcription flags not applied")
	}
	if cfg.Reconnect.Backoff != 250*time.Millisecond || cfg.Reconnect.MaxRetries != 3 {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	v, ok := cfg.Voice("Kore")
	if !ok || v.Name != "Kore" || v.Persona != "Direct and technical." {
		t.Errorf("Voice(Kore) = %+v, %v", v, ok)
	}
	if got := cfg.VoiceIDs(); len(got) != 1 || got[0] != "Kore" {
		t.Errorf("VoiceIDs = %v", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("live:\n  api_key: k\n  bogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_APIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "fallback")

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Live.APIKey != "fallback" {
		t.Errorf("api_key = %q, want fallback", cfg.Live.APIKey)
	}

	t.Setenv("GEMINI_API_KEY", "primary")
	cfg, err = config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Live.APIKey != "primary" {
		t.Errorf("api_key = %q, want primary", cfg.Live.APIKey)
	}
}

func TestLoadFromReader_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for missing api key, got nil")
	}
	if !strings.Contains(err.Error(), "live.api_key") {
		t.Errorf("error should mention live.api_key, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "bad log level",
			doc:  "live:\n  api_key: k\nserver:\n  log_level: bananas\n",
			want: []string{"server.log_level"},
		},
		{
			name: "bad metrics addr",
			doc:  "live:\n  api_key: k\nserver:\n  metrics_addr: nope\n",
			want: []string{"server.metrics_addr"},
		},
		{
			name: "frame size out of range",
			doc:  "live:\n  api_key: k\naudio:\n  frame_size: 100\n",
			want: []string{"audio.frame_size"},
		},
		{
			name: "max backoff below backoff",
			doc:  "live:\n  api_key: k\nreconnect:\n  backoff: 2s\n  max_backoff: 1s\n",
			want: []string{"reconnect.max_backoff"},
		},
		{
			name: "duplicate voice and missing api voice",
			doc:  "live:\n  api_key: k\nvoices:\n  - id: A\n    api_voice: Puck\n  - id: A\n",
			want: []string{"duplicate", "voices[1].api_voice"},
		},
		{
			name: "unknown selected voice",
			doc:  "live:\n  api_key: k\n  voice: Nobody\n",
			want: []string{"live.voice"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.doc))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hiplay.yaml")
	if err := os.WriteFile(path, []byte("live:\n  api_key: k\n  voice: Kore\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Live.Voice != "Kore" {
		t.Errorf("live.voice = %q, want Kore", cfg.Live.Voice)
	}
}
