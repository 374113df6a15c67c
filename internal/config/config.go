// Package config provides the configuration schema, loader, and hot-reload
// watcher for hiplay.
package config

import "time"

// LogLevel controls log verbosity.
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

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultFrameSize        = 2048
	DefaultLevelGain        = 500
	DefaultBackoff          = 500 * time.Millisecond
	DefaultMaxBackoff       = 5 * time.Second
	DefaultMaxRetries       = 5
)

// Environment variables consulted when live.api_key is empty, in order.
var APIKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Live       LiveConfig       `yaml:"live"`
	Audio      AudioConfig      `yaml:"audio"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Voices     []VoiceConfig    `yaml:"voices"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds logging and diagnostics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives log output while the terminal UI owns the screen.
	// Empty means stderr in headless mode and discard in TUI mode.
	LogFile string `yaml:"log_file"`

	// MetricsAddr is the listen address of the Prometheus /metrics endpoint
	// (e.g. ":9464"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LiveConfig configures the realtime endpoint.
type LiveConfig struct {
	// APIKey authenticates against the endpoint. Falls back to [APIKeyEnv].
	APIKey string `yaml:"api_key"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// BaseURL overrides the WebSocket endpoint, mainly for testing.
	BaseURL string `yaml:"base_url"`

	// Voice is the ID of the persona selected on startup. Defaults to the
	// first entry of voices.
	Voice string `yaml:"voice"`

	// SystemInstruction is the base prompt. The active persona is appended.
	SystemInstruction string `yaml:"system_instruction"`

	// GoogleSearch enables search grounding. Default true.
	GoogleSearch *bool `yaml:"google_search"`

	// Transcription toggles partial transcripts. Both default to true.
	Transcription TranscriptionConfig `yaml:"transcription"`

	// SetupTimeout bounds the wait for the setup handshake.
	SetupTimeout time.Duration `yaml:"setup_timeout"`
}

// TranscriptionConfig toggles the input and output transcription streams.
type TranscriptionConfig struct {
	Input  *bool `yaml:"input"`
	Output *bool `yaml:"output"`
}

// AudioConfig configures the capture and playback devices.
type AudioConfig struct {
	InputSampleRate  int     `yaml:"input_sample_rate"`
	OutputSampleRate int     `yaml:"output_sample_rate"`
	FrameSize        int     `yaml:"frame_size"`
	LevelGain        float64 `yaml:"level_gain"`

	// InputDevice is passed to ffmpeg as the capture input. Empty selects
	// the platform default.
	InputDevice string `yaml:"input_device"`

	FFmpegPath string `yaml:"ffmpeg_path"`
	FFplayPath string `yaml:"ffplay_path"`
}

// ReconnectConfig controls automatic reconnection after a remote close.
type ReconnectConfig struct {
	// Enabled defaults to true.
	Enabled    *bool         `yaml:"enabled"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	MaxRetries int           `yaml:"max_retries"`
}

// VoiceConfig is one selectable persona.
type VoiceConfig struct {
	// ID is the persona identifier used by the switchVoice tool.
	ID string `yaml:"id"`

	// APIVoice is the endpoint's prebuilt voice name, e.g. "Puck".
	APIVoice string `yaml:"api_voice"`

	// Name is the display name. Defaults to ID.
	Name string `yaml:"name"`

	// Persona is appended to the system instruction while this voice is
	// active.
	Persona string `yaml:"persona"`
}

// TranscriptConfig configures transcript persistence.
type TranscriptConfig struct {
	// Path is the SQLite database file. Empty keeps the transcript in
	// memory only.
	Path string `yaml:"path"`
}

// DefaultVoices is used when the config lists no voices.
var DefaultVoices = []VoiceConfig{
	{ID: "Paraibana", APIVoice: "Puck", Name: "Paraibana"},
	{ID: "Baiana", APIVoice: "Zephyr", Name: "Baiana"},
	{ID: "Carioca", APIVoice: "Puck", Name: "Carioca"},
	{ID: "Kore", APIVoice: "Kore", Name: "Kore"},
}

// Enabled reports the value of an optional flag, or def when unset.
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Voice returns the voice with the given id.
func (c *Config) Voice(id string) (VoiceConfig, bool) {
	for _, v := range c.Voices {
		if v.ID == id {
			return v, true
		}
	}
	return VoiceConfig{}, false
}

// VoiceIDs returns the configured persona identifiers in order.
func (c *Config) VoiceIDs() []string {
	ids := make([]string, len(c.Voices))
	for i, v := range c.Voices {
		ids[i] = v.ID
	}
	return ids
}
