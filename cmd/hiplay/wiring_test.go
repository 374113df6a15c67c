package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hiplay/internal/config"
	"github.com/MrWong99/hiplay/internal/session"
)

func loadTestConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestSessionConfig(t *testing.T) {
	cfg := loadTestConfig(t, `
live:
  api_key: test-key
  voice: Baiana
  system_instruction: Seja breve.
  google_search: false
  transcription:
    output: false
audio:
  frame_size: 1024
reconnect:
  backoff: 250ms
  max_retries: 3
voices:
  - id: Paraibana
    api_voice: Puck
  - id: Baiana
    api_voice: Zephyr
    persona: Oxe.
`)

	scfg, voices := sessionConfig(cfg)
	if len(voices) != 2 || voices[0].Name != "Paraibana" {
		t.Fatalf("voices = %+v", voices)
	}
	if scfg.Voice.ID != "Baiana" || scfg.Voice.APIVoice != "Zephyr" || scfg.Voice.Persona != "Oxe." {
		t.Errorf("active voice = %+v, want Baiana", scfg.Voice)
	}
	if scfg.SystemInstruction != "Seja breve." {
		t.Errorf("SystemInstruction = %q", scfg.SystemInstruction)
	}
	if scfg.GoogleSearch || !scfg.InputTranscription || scfg.OutputTranscription {
		t.Errorf("flags: search=%v in=%v out=%v, want false true false",
			scfg.GoogleSearch, scfg.InputTranscription, scfg.OutputTranscription)
	}
	if scfg.FrameSize != 1024 || scfg.OutputSampleRate != 24000 || scfg.LevelGain != 500 {
		t.Errorf("audio = %d/%d/%v", scfg.FrameSize, scfg.OutputSampleRate, scfg.LevelGain)
	}
	r := scfg.Reconnect
	if !r.Enabled || r.Backoff != 250*time.Millisecond || r.MaxBackoff != 5*time.Second || r.MaxRetries != 3 {
		t.Errorf("reconnect = %+v", r)
	}
}

func TestProviderOptions(t *testing.T) {
	cfg := loadTestConfig(t, "live:\n  api_key: k\n")
	if got := len(providerOptions(cfg)); got != 0 {
		t.Errorf("default options = %d, want 0", got)
	}

	cfg = loadTestConfig(t, "live:\n  api_key: k\n  base_url: ws://localhost:1/ws\n  setup_timeout: 3s\n")
	if got := len(providerOptions(cfg)); got != 2 {
		t.Errorf("options = %d, want 2", got)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := logLevel(tc.in); got != tc.want {
			t.Errorf("logLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadConfig_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, fromFile, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if fromFile {
		t.Error("fromFile = true for a missing file")
	}
	if cfg.Live.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.Live.APIKey)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hiplay.yaml")
	if err := os.WriteFile(path, []byte("live:\n  api_key: file-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, fromFile, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !fromFile || cfg.Live.APIKey != "file-key" {
		t.Errorf("fromFile = %v key = %q", fromFile, cfg.Live.APIKey)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hiplay.yaml")
	if err := os.WriteFile(path, []byte("bogus: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadConfig(path); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLogOutput(t *testing.T) {
	w, closeFn, err := logOutput("", false)
	if err != nil || w != io.Discard {
		t.Errorf("TUI without file: %v, %v; want io.Discard", w, err)
	}
	closeFn()

	w, closeFn, err = logOutput("", true)
	if err != nil || w != os.Stderr {
		t.Errorf("headless without file: %v, %v; want stderr", w, err)
	}
	closeFn()

	path := filepath.Join(t.TempDir(), "hiplay.log")
	w, closeFn, err = logOutput(path, false)
	if err != nil {
		t.Fatalf("logOutput(file): %v", err)
	}
	if _, err := io.WriteString(w, "hello\n"); err != nil {
		t.Fatal(err)
	}
	closeFn()
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello\n" {
		t.Errorf("log file = %q, %v", data, err)
	}
}

func TestSessionReady(t *testing.T) {
	tests := []struct {
		name    string
		status  session.Status
		wantErr string
	}{
		{"idle", session.Status{State: session.StateIdle}, ""},
		{"connected", session.Status{State: session.StateConnected}, ""},
		{"retrying", session.Status{State: session.StateError, Reconnecting: true, Err: errors.New("eof")}, ""},
		{"failed", session.Status{State: session.StateError, Err: errors.New("no microphone")}, "no microphone"},
		{"auth", session.Status{State: session.StateError, AuthRequired: true, Err: errors.New("API key not valid")}, "authorization required: API key not valid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := sessionReady(func() session.Status { return tc.status })
			if c.Name != "session" {
				t.Errorf("Name = %q", c.Name)
			}
			err := c.Check(context.Background())
			switch {
			case tc.wantErr == "" && err != nil:
				t.Errorf("Check = %v, want nil", err)
			case tc.wantErr != "" && (err == nil || err.Error() != tc.wantErr):
				t.Errorf("Check = %v, want %q", err, tc.wantErr)
			}
		})
	}
}
