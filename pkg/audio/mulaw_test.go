package audio_test

import (
	"testing"

	"github.com/MrWong99/phonebridge/pkg/audio"
)

func TestMuLawRoundTrip(t *testing.T) {
	t.Parallel()

	for i := range 256 {
		b := byte(i)
		got := audio.EncodeMuLaw(audio.DecodeMuLaw(b))
		if b == 0x7F {
			// Negative zero decodes to 0 and re-encodes as positive zero.
			if got != 0xFF {
				t.Errorf("EncodeMuLaw(DecodeMuLaw(0x7F)) = %#x, want 0xff", got)
			}
			continue
		}
		if got != b {
			t.Errorf("EncodeMuLaw(DecodeMuLaw(%#x)) = %#x, want %#x", b, got, b)
		}
	}
}

func TestDecodeMuLaw_KnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},
		{0x7F, 0},
		{0x80, 32124},
		{0x00, -32124},
		{0xFE, 8},
		{0x7E, -8},
	}
	for _, tt := range tests {
		if got := audio.DecodeMuLaw(tt.in); got != tt.want {
			t.Errorf("DecodeMuLaw(%#x) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeMuLaw_Clamps(t *testing.T) {
	t.Parallel()

	if got := audio.EncodeMuLaw(32767); got != 0x80 {
		t.Errorf("EncodeMuLaw(32767) = %#x, want 0x80", got)
	}
	if got := audio.EncodeMuLaw(-32768); got != 0x00 {
		t.Errorf("EncodeMuLaw(-32768) = %#x, want 0x00", got)
	}
}

func TestEncodeMuLaw_Monotonic(t *testing.T) {
	t.Parallel()

	prev := audio.DecodeMuLaw(audio.EncodeMuLaw(-32768))
	for s := -32768; s <= 32767; s += 7 {
		got := audio.DecodeMuLaw(audio.EncodeMuLaw(int16(s)))
		if got < prev {
			t.Fatalf("quantised value decreased at %d: %d < %d", s, got, prev)
		}
		prev = got
	}
}

func TestMuLawBuffers(t *testing.T) {
	t.Parallel()

	in := []byte{0xFF, 0x80, 0x00, 0x7E, 0xAB}
	pcm := audio.MuLawToPCM16(in)
	if len(pcm) != len(in) {
		t.Fatalf("len(pcm) = %d, want %d", len(pcm), len(in))
	}
	for i, b := range in {
		if pcm[i] != audio.DecodeMuLaw(b) {
			t.Errorf("pcm[%d] = %d, want %d", i, pcm[i], audio.DecodeMuLaw(b))
		}
	}
	back := audio.PCM16ToMuLaw(pcm)
	for i := range in {
		if back[i] != in[i] {
			t.Errorf("back[%d] = %#x, want %#x", i, back[i], in[i])
		}
	}
}

func TestMuLawDuration(t *testing.T) {
	t.Parallel()

	if got := audio.MuLawDuration(2000, audio.TelephonyRate); got != 0.25 {
		t.Errorf("MuLawDuration(2000) = %v, want 0.25", got)
	}
	if got := audio.MuLawDuration(100, 0); got != 0 {
		t.Errorf("MuLawDuration with zero rate = %v, want 0", got)
	}
}
