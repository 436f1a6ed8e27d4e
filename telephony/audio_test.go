package telephony

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulawSampleRoundTrip(t *testing.T) {
	for _, sample := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000} {
		decoded := DecodeMulawSample(EncodeMulawSample(sample))
		// mu-law is lossy; error grows with amplitude but stays small in
		// relative terms.
		limit := math.Max(math.Abs(float64(sample))*0.05, 64)
		assert.InDelta(t, float64(sample), float64(decoded), limit,
			"sample %d decoded to %d", sample, decoded)
	}
}

func TestMulawEncodeClipsExtremes(t *testing.T) {
	top := DecodeMulawSample(EncodeMulawSample(32767))
	clipped := DecodeMulawSample(EncodeMulawSample(32635))
	assert.Equal(t, clipped, top)
}

func TestUpsampleDoublesLength(t *testing.T) {
	in := make([]byte, 160) // 20ms at 8kHz
	for i := range in {
		in[i] = EncodeMulawSample(int16(i * 50))
	}
	out := MulawToPCM16k(in)
	assert.Len(t, out, 320)
}

func TestDownsampleHalvesLength(t *testing.T) {
	in := make([]int16, 320) // 20ms at 16kHz
	out := PCM16kToMulaw(in)
	assert.Len(t, out, 160)
}

func TestToneSurvivesRoundTrip(t *testing.T) {
	// 20ms of a 440Hz tone at 16kHz.
	const n = 320
	tone := make([]int16, n)
	for i := range tone {
		tone[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	back := MulawToPCM16k(PCM16kToMulaw(tone))
	require.Len(t, back, n)

	var sumErr float64
	for i := range tone {
		sumErr += math.Abs(float64(tone[i]) - float64(back[i]))
	}
	meanErr := sumErr / n
	// Resampling plus companding distorts, but the signal must remain close:
	// mean error well under 10% of the tone amplitude.
	assert.Less(t, meanErr, 800.0)
}

func TestPCMBytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234, -4321}
	assert.Equal(t, samples, BytesToPCM(PCMToBytes(samples)))
}

func TestBytesToPCMDropsTrailingOddByte(t *testing.T) {
	out := BytesToPCM([]byte{0x01, 0x02, 0x03})
	assert.Len(t, out, 1)
}

func TestPayloadRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x7f, 0xff, 0x10}
	decoded, err := DecodePayload(EncodePayload(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)

	_, err = DecodePayload("not base64 ###")
	assert.Error(t, err)
}

func TestEmptyFrames(t *testing.T) {
	assert.Nil(t, MulawToPCM16k(nil))
	assert.Empty(t, PCM16kToMulaw(nil))
}
