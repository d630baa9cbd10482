// Package openai provides a batch STT provider backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/phonebridge/pkg/audio"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client oai.Client
	model  oai.AudioModel
}

var _ stt.Transcriber = (*Transcriber)(nil)

type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the transcription model. Defaults to "whisper-1", the
// only model that returns segment confidence metadata.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI Transcriber.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	model := defaultModel
	if cfg.model != "" {
		model = oai.AudioModel(cfg.model)
	}
	return &Transcriber{client: oai.NewClient(reqOpts...), model: model}, nil
}

// verboseBody mirrors the verbose_json response shape.
type verboseBody struct {
	Text     string `json:"text"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// Transcribe implements stt.Transcriber. The recording is uploaded as a WAV
// file at its native rate; the service resamples internally.
func (t *Transcriber) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	if len(a.Samples) == 0 {
		return stt.Result{}, stt.ErrNoAudio
	}
	rate := a.SampleRate
	if rate <= 0 {
		rate = audio.TelephonyRate
	}
	wav := audio.PCM16ToWAV(a.Samples, rate, 1)

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          t.model,
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
		Temperature:    param.NewOpt(0.0),
	}
	if a.Language != "" {
		params.Language = param.NewOpt(a.Language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	res := stt.Result{Text: strings.TrimSpace(resp.Text)}
	if raw := resp.RawJSON(); raw != "" {
		segs, err := parseSegments(raw)
		if err != nil {
			return stt.Result{}, fmt.Errorf("openai stt: %w", err)
		}
		res.Segments = segs
	}
	return res, nil
}

func parseSegments(raw string) ([]stt.Segment, error) {
	var body verboseBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("parse verbose response: %w", err)
	}
	var out []stt.Segment
	for _, s := range body.Segments {
		out = append(out, stt.Segment{
			Text:         strings.TrimSpace(s.Text),
			Start:        s.Start,
			End:          s.End,
			AvgLogprob:   s.AvgLogprob,
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	return out, nil
}
