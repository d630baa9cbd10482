// Package audio holds the telephony audio primitives used by the call relay:
// G.711 mu-law companding, 16-bit PCM helpers, a minimal WAV writer and a
// linear resampler.
//
// All functions in this package are pure and total over their inputs. They
// hold no state between calls and are safe for concurrent use.
package audio

// G.711 mu-law constants.
const (
	muLawBias = 0x84
	muLawClip = 32635
)

// TelephonyRate is the native sample rate of a mu-law telephone stream.
const TelephonyRate = 8000

var muLawDecodeTable [256]int16

func init() {
	for i := range 256 {
		muLawDecodeTable[i] = decodeMuLaw(byte(i))
	}
}

func decodeMuLaw(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

// DecodeMuLaw expands a single mu-law byte to a 16-bit linear sample.
func DecodeMuLaw(b byte) int16 {
	return muLawDecodeTable[b]
}

// EncodeMuLaw compresses a 16-bit linear sample to a mu-law byte. Magnitudes
// above the G.711 clip level are clamped.
//
// Every byte except 0x7F survives a DecodeMuLaw/EncodeMuLaw round trip
// unchanged. 0x7F is the negative-zero code and comes back as 0xFF.
func EncodeMuLaw(s int16) byte {
	sample := int32(s)
	var sign byte
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > muLawClip {
		sample = muLawClip
	}
	sample += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); sample&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(sample>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// MuLawToPCM16 decodes a mu-law buffer sample by sample.
func MuLawToPCM16(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = muLawDecodeTable[b]
	}
	return out
}

// PCM16ToMuLaw encodes linear samples sample by sample.
func PCM16ToMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeMuLaw(s)
	}
	return out
}

// MuLawDuration returns the play time, in seconds, of n mu-law bytes at rate.
func MuLawDuration(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate)
}
