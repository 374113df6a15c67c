package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/hiplay/internal/config"
	"github.com/MrWong99/hiplay/internal/health"
	"github.com/MrWong99/hiplay/internal/session"
	"github.com/MrWong99/hiplay/pkg/provider/live/gemini"
)

// sessionConfig maps the file configuration onto the session manager's.
func sessionConfig(cfg *config.Config) (session.Config, []session.Voice) {
	voices := make([]session.Voice, len(cfg.Voices))
	for i, v := range cfg.Voices {
		voices[i] = session.Voice{
			ID:       v.ID,
			APIVoice: v.APIVoice,
			Name:     v.Name,
			Persona:  v.Persona,
		}
	}

	var active session.Voice
	for _, v := range voices {
		if v.ID == cfg.Live.Voice {
			active = v
			break
		}
	}

	return session.Config{
		Voice:               active,
		SystemInstruction:   cfg.Live.SystemInstruction,
		Model:               cfg.Live.Model,
		InputTranscription:  config.Enabled(cfg.Live.Transcription.Input, true),
		OutputTranscription: config.Enabled(cfg.Live.Transcription.Output, true),
		GoogleSearch:        config.Enabled(cfg.Live.GoogleSearch, true),
		FrameSize:           cfg.Audio.FrameSize,
		LevelGain:           cfg.Audio.LevelGain,
		OutputSampleRate:    cfg.Audio.OutputSampleRate,
		Reconnect: session.ReconnectPolicy{
			Enabled:    config.Enabled(cfg.Reconnect.Enabled, true),
			Backoff:    cfg.Reconnect.Backoff,
			MaxBackoff: cfg.Reconnect.MaxBackoff,
			MaxRetries: cfg.Reconnect.MaxRetries,
		},
	}, voices
}

// providerOptions returns the gemini options for cfg. The model is not set
// here; it travels with every connect so a reload can change it.
func providerOptions(cfg *config.Config) []gemini.Option {
	var opts []gemini.Option
	if cfg.Live.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.Live.BaseURL))
	}
	if cfg.Live.SetupTimeout > 0 {
		opts = append(opts, gemini.WithSetupTimeout(cfg.Live.SetupTimeout))
	}
	return opts
}

// logLevel converts a config level to slog's.
func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sessionReady fails while the session sits in an error it will not retry
// on its own.
func sessionReady(status func() session.Status) health.Checker {
	return health.Checker{Name: "session", Check: func(context.Context) error {
		st := status()
		if st.State != session.StateError || st.Reconnecting {
			return nil
		}
		err := st.Err
		if err == nil {
			err = errors.New("session failed")
		}
		if st.AuthRequired {
			return fmt.Errorf("authorization required: %w", err)
		}
		return err
	}}
}
