package session

import "fmt"

// State is a call's lifecycle position.
type State int

const (
	// StateNew is a session that has not seen its start event yet.
	StateNew State = iota

	// StateStarting is a started session whose engine connection is still
	// being established. Caller audio is already accepted.
	StateStarting

	// StateActive is a session relaying audio, with or without an engine.
	StateActive

	// StateEnding is a session running its end-of-call pipeline.
	StateEnding

	// StateClosed is a finished session. No audio is accepted and no engine
	// requests are issued.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// engineState tracks the conversational engine connection.
type engineState int

const (
	engineNone engineState = iota
	engineConnecting
	engineReady
	engineFailed
)

func (e engineState) String() string {
	switch e {
	case engineNone:
		return "none"
	case engineConnecting:
		return "connecting"
	case engineReady:
		return "ready"
	case engineFailed:
		return "failed"
	default:
		return fmt.Sprintf("engineState(%d)", int(e))
	}
}
