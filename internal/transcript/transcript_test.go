package transcript_test

import (
	"testing"
	"time"

	"github.com/MrWong99/phonebridge/internal/transcript"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		want     transcript.Mode
		wantErr  bool
		live     bool
		postCall bool
	}{
		{"", transcript.ModeHybrid, false, true, true},
		{"hybrid", transcript.ModeHybrid, false, true, true},
		{"LIVE", transcript.ModeLive, false, true, false},
		{" post_call ", transcript.ModePostCall, false, false, true},
		{"batch", "", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := transcript.ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err == nil && (got.Live() != tt.live || got.PostCall() != tt.postCall) {
				t.Errorf("%q: Live=%v PostCall=%v, want %v %v", got, got.Live(), got.PostCall(), tt.live, tt.postCall)
			}
		})
	}
}

func TestSort_IgnoresWallClock(t *testing.T) {
	t.Parallel()

	now := time.Now()
	entries := []transcript.Entry{
		{Speaker: transcript.SpeakerCaller, Text: "c", Ordinal: 2, Seq: 1, Timestamp: now},
		{Speaker: transcript.SpeakerAgent, Text: "b2", Ordinal: 1, Position: 0, Seq: 5, Timestamp: now.Add(-time.Hour)},
		{Speaker: transcript.SpeakerAgent, Text: "b1", Ordinal: 1, Position: 0, Seq: 3, Timestamp: now.Add(time.Hour)},
		{Speaker: transcript.SpeakerAgent, Text: "a", Ordinal: 0, Seq: 9},
		{Speaker: transcript.SpeakerCaller, Text: "b0", Ordinal: 1, Position: -1, Seq: 7},
	}
	transcript.Sort(entries)

	want := []string{"a", "b0", "b1", "b2", "c"}
	for i, w := range want {
		if entries[i].Text != w {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Text, w)
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	got := transcript.Format([]transcript.Entry{
		{Speaker: transcript.SpeakerAgent, Text: "Hello, this is the clinic."},
		{Speaker: transcript.SpeakerCaller, Text: "Hi."},
	})
	want := "Agent: Hello, this is the clinic.\nCaller: Hi."
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
