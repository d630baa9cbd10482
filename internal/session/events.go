package session

import "github.com/MrWong99/phonebridge/pkg/provider/s2s"

// event is a message for the session loop.
type event interface{ isEvent() }

type evStart struct {
	streamID string
	prompt   string
	echo     bool
}

type evAudio struct{ data []byte }

type evEnd struct{}

// evTimer is a silence timer expiry for the given debouncer generation.
type evTimer struct{ gen uint64 }

// evConnected reports the outcome of an engine dial.
type evConnected struct {
	handle s2s.SessionHandle
	err    error
}

// evEngine carries one engine event; events from a replaced handle are
// ignored.
type evEngine struct {
	handle s2s.SessionHandle
	event  s2s.Event
}

// evEngineClosed reports that a handle's event stream ended.
type evEngineClosed struct {
	handle s2s.SessionHandle
	err    error
}

// evTranscribed reports a finished per-turn transcription.
type evTranscribed struct{ turn *callerTurn }

func (evStart) isEvent()        {}
func (evAudio) isEvent()        {}
func (evEnd) isEvent()          {}
func (evTimer) isEvent()        {}
func (evConnected) isEvent()    {}
func (evEngine) isEvent()       {}
func (evEngineClosed) isEvent() {}
func (evTranscribed) isEvent()  {}
