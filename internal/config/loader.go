package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/hiplay/pkg/audio/capture"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills defaults, resolves the
// API key from the environment when the file leaves it empty, and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = DefaultInputSampleRate
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Audio.LevelGain == 0 {
		cfg.Audio.LevelGain = DefaultLevelGain
	}
	if cfg.Reconnect.Backoff == 0 {
		cfg.Reconnect.Backoff = DefaultBackoff
	}
	if cfg.Reconnect.MaxBackoff == 0 {
		cfg.Reconnect.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Reconnect.MaxRetries == 0 {
		cfg.Reconnect.MaxRetries = DefaultMaxRetries
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = append([]VoiceConfig(nil), DefaultVoices...)
	}
	for i := range cfg.Voices {
		if cfg.Voices[i].Name == "" {
			cfg.Voices[i].Name = cfg.Voices[i].ID
		}
	}
	if cfg.Live.Voice == "" && len(cfg.Voices) > 0 {
		cfg.Live.Voice = cfg.Voices[0].ID
	}
}

// ApplyEnv resolves live.api_key from the first non-empty variable in
// [APIKeyEnv] when the file does not set it.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Live.APIKey != "" {
		return
	}
	for _, name := range APIKeyEnv {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			cfg.Live.APIKey = strings.TrimSpace(v)
			return
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("server.metrics_addr %q is invalid: %w", cfg.Server.MetricsAddr, err))
		}
	}

	// Live
	if cfg.Live.APIKey == "" {
		errs = append(errs, fmt.Errorf("live.api_key is required (or set %s)", strings.Join(APIKeyEnv, " or ")))
	}
	if cfg.Live.SetupTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.setup_timeout must not be negative"))
	}

	// Audio
	if cfg.Audio.InputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate must be positive"))
	}
	if cfg.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be positive"))
	}
	if cfg.Audio.FrameSize < capture.MinFrameSize || cfg.Audio.FrameSize > capture.MaxFrameSize {
		errs = append(errs, fmt.Errorf("audio.frame_size %d is out of range [%d, %d]", cfg.Audio.FrameSize, capture.MinFrameSize, capture.MaxFrameSize))
	}
	if cfg.Audio.LevelGain <= 0 {
		errs = append(errs, fmt.Errorf("audio.level_gain must be positive"))
	}

	// Reconnect
	if cfg.Reconnect.Backoff < 0 {
		errs = append(errs, fmt.Errorf("reconnect.backoff must not be negative"))
	}
	if cfg.Reconnect.MaxBackoff < cfg.Reconnect.Backoff {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff %s is shorter than reconnect.backoff %s", cfg.Reconnect.MaxBackoff, cfg.Reconnect.Backoff))
	}
	if cfg.Reconnect.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries must not be negative"))
	}

	// Voices
	seen := make(map[string]int, len(cfg.Voices))
	for i, v := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[v.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of voices[%d]", prefix, v.ID, prev))
			}
			seen[v.ID] = i
		}
		if v.APIVoice == "" {
			errs = append(errs, fmt.Errorf("%s.api_voice is required", prefix))
		}
	}
	if cfg.Live.Voice != "" {
		if _, ok := seen[cfg.Live.Voice]; !ok {
			errs = append(errs, fmt.Errorf("live.voice %q does not name a configured voice", cfg.Live.Voice))
		}
	}

	return errors.Join(errs...)
}
