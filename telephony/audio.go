// Package telephony carries the carrier-facing pieces: outbound call
// placement, TwiML generation, audio transcoding and the duplex media bridge.
//
// Carrier media streams speak mu-law 8 kHz mono, base64-encoded; the
// conversational agent speaks PCM 16-bit 16 kHz mono, base64-encoded. Both
// directions need transcoding:
//
//	mulaw 8k  -> pcm16 16k   (carrier inbound  -> agent input)
//	pcm16 16k -> mulaw 8k    (agent output    -> carrier outbound)
package telephony

import "encoding/base64"

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// EncodeMulawSample compresses one 16-bit linear sample to G.711 mu-law.
func EncodeMulawSample(sample int16) byte {
	value := int32(sample)
	var sign byte
	if value < 0 {
		value = -value
		sign = 0x80
	}
	if value > mulawClip {
		value = mulawClip
	}
	value += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); value&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((value >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulawSample expands one G.711 mu-law byte to a 16-bit linear sample.
func DecodeMulawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	value := (int32(mantissa)<<3 + mulawBias) << exponent
	value -= mulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// MulawToPCM16k decodes mu-law 8 kHz bytes and upsamples to 16 kHz linear
// PCM. Upsampling inserts the midpoint between adjacent samples so the output
// is exactly twice as long: total duration is preserved.
func MulawToPCM16k(mulaw []byte) []int16 {
	if len(mulaw) == 0 {
		return nil
	}
	pcm8k := make([]int16, len(mulaw))
	for i, b := range mulaw {
		pcm8k[i] = DecodeMulawSample(b)
	}

	pcm16k := make([]int16, 2*len(pcm8k))
	for i, s := range pcm8k {
		pcm16k[2*i] = s
		if i+1 < len(pcm8k) {
			pcm16k[2*i+1] = int16((int32(s) + int32(pcm8k[i+1])) / 2)
		} else {
			pcm16k[2*i+1] = s
		}
	}
	return pcm16k
}

// PCM16kToMulaw downsamples 16 kHz linear PCM to 8 kHz by averaging sample
// pairs, then compresses to mu-law. Output length is half the input (rounded
// down): total duration is preserved.
func PCM16kToMulaw(pcm []int16) []byte {
	n := len(pcm) / 2
	mulaw := make([]byte, n)
	for i := 0; i < n; i++ {
		avg := (int32(pcm[2*i]) + int32(pcm[2*i+1])) / 2
		mulaw[i] = EncodeMulawSample(int16(avg))
	}
	return mulaw
}

// PCMToBytes serializes samples as little-endian 16-bit, the agent wire
// format.
func PCMToBytes(pcm []int16) []byte {
	out := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BytesToPCM parses little-endian 16-bit samples. A trailing odd byte is
// dropped.
func BytesToPCM(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return out
}

// DecodePayload decodes a base64 media payload.
func DecodePayload(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

// EncodePayload encodes bytes for a base64 media payload.
func EncodePayload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
