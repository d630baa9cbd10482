package media

import (
	"encoding/json"
	"strconv"
)

// Inbound event names of the media stream protocol.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// Custom parameter keys read from the start event.
const (
	ParamPrompt = "prompt"
	ParamEcho   = "echo"
)

// inbound is any message the telephony provider sends. Only the block
// matching Event is populated.
type inbound struct {
	Event          string     `json:"event"`
	SequenceNumber string     `json:"sequenceNumber,omitempty"`
	StreamSid      string     `json:"streamSid,omitempty"`
	Start          *startInfo `json:"start,omitempty"`
	Media          *mediaInfo `json:"media,omitempty"`
	Stop           *stopInfo  `json:"stop,omitempty"`
}

type startInfo struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      mediaFormat       `json:"mediaFormat"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type mediaInfo struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type stopInfo struct {
	CallSid string `json:"callSid,omitempty"`
}

// prompt returns the opening prompt parameter.
func (s *startInfo) prompt() string {
	return s.CustomParameters[ParamPrompt]
}

// echo reports whether the echo parameter is set to a true value.
func (s *startInfo) echo() bool {
	v, err := strconv.ParseBool(s.CustomParameters[ParamEcho])
	return err == nil && v
}

// outbound is an agent audio frame sent back to the caller.
type outbound struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     outboundData `json:"media"`
}

type outboundData struct {
	Payload string `json:"payload"`
}

func encodeMedia(streamSid, payload string) ([]byte, error) {
	return json.Marshal(outbound{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     outboundData{Payload: payload},
	})
}
