// Package s2s defines the Provider interface for speech-to-speech
// conversational engines.
//
// A speech-to-speech engine accepts caller audio and produces spoken agent
// responses plus a running text rendition of what it says. The call relay
// drives turn-taking itself: it appends caller audio, commits the buffer
// when the caller falls silent and explicitly requests each response. The
// engine's own voice-activity detection may be enabled through
// [SessionConfig.ServerVAD] but is off by default.
//
// Implementations must be safe for concurrent use. All engine output is
// delivered on a single ordered event channel so consumers observe responses
// starting, streaming and finishing in the order the engine produced them.
package s2s

import (
	"context"
	"errors"
)

// ErrClosed is returned by SessionHandle methods called after Close.
var ErrClosed = errors.New("s2s: session closed")

// Audio formats understood by the engine.
const (
	FormatG711ULaw = "g711_ulaw"
	FormatPCM16    = "pcm16"
)

// SessionConfig is the one-time configuration sent when a session opens.
type SessionConfig struct {
	// Voice selects the engine voice (e.g., "alloy").
	Voice string

	// Instructions is the system prompt for the whole call.
	Instructions string

	// AudioFormat is used for both input and output audio. Defaults to
	// FormatG711ULaw, the native telephone encoding.
	AudioFormat string

	// ServerVAD enables the engine's own silence detection. When false the
	// engine responds only to explicit Commit + CreateResponse calls.
	ServerVAD bool
}

// ResponseRequest asks the engine to generate one response.
type ResponseRequest struct {
	// Modalities lists the output kinds ("audio", "text"). Empty means both.
	Modalities []string

	// Instructions, if set, overrides the session instructions for this
	// response only (used for the scripted opening line).
	Instructions string
}

// EventType discriminates engine events.
type EventType int

const (
	// EventResponseStarted marks the beginning of a response.
	EventResponseStarted EventType = iota + 1

	// EventAudioDelta carries a chunk of response audio.
	EventAudioDelta

	// EventTextDelta carries a chunk of the response's text.
	EventTextDelta

	// EventResponseDone marks a response as complete.
	EventResponseDone

	// EventError reports an engine-side error. It is terminal for any
	// response in progress.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventResponseStarted:
		return "response_started"
	case EventAudioDelta:
		return "audio_delta"
	case EventTextDelta:
		return "text_delta"
	case EventResponseDone:
		return "response_done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one message from the engine.
type Event struct {
	Type EventType

	// ResponseID identifies the response the event belongs to, if the engine
	// reports one.
	ResponseID string

	// Audio is the base64 payload of an EventAudioDelta exactly as the engine
	// sent it, in the session's AudioFormat. It can be relayed to a media
	// transport without re-encoding.
	Audio string

	// Text is the payload of an EventTextDelta.
	Text string

	// Status is the terminal status of an EventResponseDone ("completed",
	// "cancelled", "failed", ...).
	Status string

	// Err is set for EventError.
	Err error
}

// SessionHandle represents an open engine session. All methods must be safe
// for concurrent use. Callers must call Close when the session is no longer
// needed.
type SessionHandle interface {
	// AppendAudio adds caller audio (in the session's AudioFormat) to the
	// engine's input buffer.
	AppendAudio(ctx context.Context, chunk []byte) error

	// Commit closes the engine's input buffer as one user turn.
	Commit(ctx context.Context) error

	// CreateResponse requests a response.
	CreateResponse(ctx context.Context, req ResponseRequest) error

	// Events returns the ordered stream of engine events. The channel is
	// closed when the session ends for any reason.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it was
	// closed normally or is still open.
	Err() error

	// Close terminates the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider opens engine sessions.
type Provider interface {
	// Connect opens a session and applies cfg. The returned handle is ready
	// for audio immediately.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
