// Package whisper provides a batch STT provider backed by a whisper.cpp
// server.
//
// It talks to a running whisper-server binary, which exposes a REST API at
// POST /inference. Telephone audio arrives at 8 kHz; whisper.cpp models are
// trained on 16 kHz input, so recordings are resampled before upload.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	res, err := t.Transcribe(ctx, stt.Audio{Samples: pcm, SampleRate: 8000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/phonebridge/pkg/audio"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

const (
	defaultLanguage    = "en"
	defaultModelRate   = 16000
	defaultHTTPTimeout = 60 * time.Second
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language code sent when the request carries none.
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithModelRate sets the sample rate audio is resampled to before upload.
// Defaults to 16000.
func WithModelRate(rate int) Option {
	return func(t *Transcriber) {
		t.modelRate = rate
	}
}

// WithHTTPClient replaces the default HTTP client (60 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements stt.Transcriber backed by a whisper.cpp HTTP server.
// It holds no per-request state and is safe for concurrent use.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	modelRate  int
	httpClient *http.Client
}

// New creates a Transcriber for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		modelRate:  defaultModelRate,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// inferenceResponse is the verbose_json body returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// Transcribe resamples the recording, encodes it as WAV and POSTs it to the
// /inference endpoint as multipart/form-data.
func (t *Transcriber) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	if len(a.Samples) == 0 {
		return stt.Result{}, stt.ErrNoAudio
	}

	rate := a.SampleRate
	if rate <= 0 {
		rate = audio.TelephonyRate
	}
	samples := a.Samples
	if t.modelRate > 0 && rate != t.modelRate && len(samples) >= 2 {
		samples = audio.ResampleMono16(samples, rate, t.modelRate)
		rate = t.modelRate
	}
	wav := audio.PCM16ToWAV(samples, rate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := a.Language
	if lang == "" {
		lang = t.language
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
	}
	if lang != "" {
		fields["language"] = lang
	}
	if t.model != "" {
		fields["model"] = t.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	res := stt.Result{Text: strings.TrimSpace(parsed.Text)}
	for _, s := range parsed.Segments {
		res.Segments = append(res.Segments, stt.Segment{
			Text:         strings.TrimSpace(s.Text),
			Start:        s.Start,
			End:          s.End,
			AvgLogprob:   s.AvgLogprob,
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	return res, nil
}
