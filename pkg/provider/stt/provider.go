// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// A Transcriber accepts one complete recording (a caller turn or an entire
// call) and returns its text, optionally with per-segment timing and
// confidence metadata. Callers decide how to filter and clean that output;
// providers return what the service produced.
//
// Implementations must be safe for concurrent use. The call relay issues one
// request per materialised caller turn plus one full-call request at hang-up,
// so several requests for the same call may be in flight at once.
package stt

import (
	"context"
	"errors"
)

// ErrNoAudio is returned by Transcribe when the request carries no samples.
var ErrNoAudio = errors.New("stt: no audio")

// Audio is one recording to transcribe.
type Audio struct {
	// Samples is mono 16-bit linear PCM.
	Samples []int16

	// SampleRate is the rate of Samples in Hz. Telephone audio is 8000.
	SampleRate int

	// Language is an optional ISO-639-1 hint ("en", "de"). Empty lets the
	// service detect the language.
	Language string
}

// Segment is one timed span of a verbose transcription result.
type Segment struct {
	Text string

	// Start and End are offsets in seconds from the start of the recording.
	Start float64
	End   float64

	// AvgLogprob is the mean token log-probability. Values near 0 are
	// confident; values below -1 are usually noise.
	AvgLogprob float64

	// NoSpeechProb is the service's probability that the segment contains no
	// speech at all.
	NoSpeechProb float64
}

// Duration returns End - Start in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Result is the outcome of a single transcription request.
type Result struct {
	// Text is the full transcription as returned by the service.
	Text string

	// Segments is populated when the service returned verbose output. It is
	// nil for plain-text responses.
	Segments []Segment
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe converts a recording to text. It returns ErrNoAudio for an
	// empty recording and a wrapped transport or service error otherwise.
	Transcribe(ctx context.Context, audio Audio) (Result, error)
}
