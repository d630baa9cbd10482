package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that are applied to new calls without a restart are tracked;
// provider, storage, notification and listener changes need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanged is set when the voice, instructions, opening template or
	// turn detection mode of the engine changed.
	AgentChanged bool

	// TurnsChanged is set when any turn detection tuning changed.
	TurnsChanged bool

	// TranscriptChanged is set when transcript assembly or filtering changed.
	TranscriptChanged bool

	// RestartRequired is set when a field outside the hot-reloadable set
	// changed. Those changes are ignored until the next start.
	RestartRequired bool
}

// Any reports whether any hot-reloadable field changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.AgentChanged || d.TurnsChanged || d.TranscriptChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Agent, new.Agent
	d.AgentChanged = oa.Voice != na.Voice ||
		oa.Instructions != na.Instructions ||
		oa.OpeningTemplate != na.OpeningTemplate ||
		oa.ServerVAD != na.ServerVAD ||
		oa.Summary != na.Summary ||
		oa.Connect != na.Connect

	d.TurnsChanged = old.Turns != new.Turns

	ot, nt := old.Transcript, new.Transcript
	d.TranscriptChanged = ot.Mode != nt.Mode ||
		ot.Language != nt.Language ||
		ot.FlushChars != nt.FlushChars ||
		ot.TurnTimeout != nt.TurnTimeout ||
		ot.FinalizeTimeout != nt.FinalizeTimeout ||
		ot.NoSpeechThreshold != nt.NoSpeechThreshold ||
		ot.LogprobFloor != nt.LogprobFloor ||
		ot.MinSegment != nt.MinSegment ||
		!slices.Equal(ot.Boilerplate, nt.Boilerplate)

	d.RestartRequired = old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.MediaPath != new.Server.MediaPath ||
		!providersEqual(old.Providers, new.Providers) ||
		old.Notify.Log != new.Notify.Log ||
		old.Notify.Discord != new.Notify.Discord ||
		old.Notify.Slack != new.Notify.Slack ||
		old.Storage != new.Storage ||
		ot.MaxConcurrent != nt.MaxConcurrent

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.Realtime, b.Realtime) &&
		entryEqual(a.Transcriber, b.Transcriber) &&
		entryEqual(a.LLM, b.LLM) &&
		slices.EqualFunc(a.TranscriberFallback, b.TranscriberFallback, entryEqual) &&
		slices.EqualFunc(a.LLMFallback, b.LLMFallback, entryEqual)
}

// entryEqual compares the scalar fields of two entries. Options maps are
// compared by key set and formatted value.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
