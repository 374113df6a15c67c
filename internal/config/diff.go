package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without restarting the process are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LiveChanged reports a change to the negotiated session settings:
	// model, endpoint, instruction, grounding, transcription or the active
	// voice. A connected session must be restarted to pick it up.
	LiveChanged bool

	// VoicesChanged reports an added, removed or edited persona.
	VoicesChanged bool

	// ReconnectChanged reports a change to the reconnect policy.
	ReconnectChanged bool
}

// SessionChanged reports whether the diff affects the realtime session.
func (d ConfigDiff) SessionChanged() bool {
	return d.LiveChanged || d.VoicesChanged || d.ReconnectChanged
}

// Diff compares old and new configs and returns what changed.
// Audio device settings, the metrics address and the transcript path are
// bound at startup and deliberately not tracked.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.LiveChanged = !liveEqual(old.Live, new.Live)
	d.VoicesChanged = !slices.Equal(old.Voices, new.Voices)
	d.ReconnectChanged = !reconnectEqual(old.Reconnect, new.Reconnect)
	return d
}

func liveEqual(a, b LiveConfig) bool {
	return a.APIKey == b.APIKey &&
		a.Model == b.Model &&
		a.BaseURL == b.BaseURL &&
		a.Voice == b.Voice &&
		a.SystemInstruction == b.SystemInstruction &&
		a.SetupTimeout == b.SetupTimeout &&
		Enabled(a.GoogleSearch, true) == Enabled(b.GoogleSearch, true) &&
		Enabled(a.Transcription.Input, true) == Enabled(b.Transcription.Input, true) &&
		Enabled(a.Transcription.Output, true) == Enabled(b.Transcription.Output, true)
}

func reconnectEqual(a, b ReconnectConfig) bool {
	return Enabled(a.Enabled, true) == Enabled(b.Enabled, true) &&
		a.Backoff == b.Backoff &&
		a.MaxBackoff == b.MaxBackoff &&
		a.MaxRetries == b.MaxRetries
}
