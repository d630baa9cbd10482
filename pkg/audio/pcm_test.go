package audio_test

import (
	"testing"

	"github.com/MrWong99/phonebridge/pkg/audio"
)

func TestPCM16Bytes(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768}
	b := audio.PCM16ToBytes(in)
	if len(b) != 10 {
		t.Fatalf("len = %d, want 10", len(b))
	}
	if b[2] != 0x01 || b[3] != 0x00 {
		t.Errorf("sample 1 not little-endian: % x", b[2:4])
	}
	got := audio.BytesToPCM16(append(b, 0x7F))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []int16
		src     int
		dst     int
		wantLen int
	}{
		{"same rate", []int16{1, 2, 3}, 8000, 8000, 3},
		{"upsample", []int16{0, 100, 200, 300}, 8000, 16000, 8},
		{"downsample", []int16{0, 100, 200, 300}, 16000, 8000, 2},
		{"invalid rate", []int16{1, 2}, 0, 8000, 2},
		{"single sample", []int16{5}, 8000, 16000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.ResampleMono16(tt.in, tt.src, tt.dst)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestResampleMono16_Interpolates(t *testing.T) {
	t.Parallel()

	got := audio.ResampleMono16([]int16{0, 100}, 8000, 16000)
	want := []int16{0, 50, 100, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
