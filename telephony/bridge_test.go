package telephony

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeCarrierToAgentTranscodes(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	mulaw := make([]byte, 160)
	for i := range mulaw {
		mulaw[i] = EncodeMulawSample(int16(i * 100))
	}

	require.NoError(t, b.PushCarrierAudio(context.Background(), mulaw))

	select {
	case frame := <-b.ToAgent():
		// 160 mu-law samples become 320 PCM16 samples, 2 bytes each.
		assert.Len(t, frame, 640)
	case <-time.After(time.Second):
		t.Fatal("no frame arrived on the agent direction")
	}
}

func TestBridgeAgentToCarrierTranscodes(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	pcm := PCMToBytes(make([]int16, 320))
	require.NoError(t, b.PushAgentAudio(context.Background(), pcm))

	select {
	case frame := <-b.ToCarrier():
		assert.Len(t, frame, 160)
	case <-time.After(time.Second):
		t.Fatal("no frame arrived on the carrier direction")
	}
}

func TestBridgeDirectionsAreIndependent(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	// Saturate the agent direction with nobody draining it.
	ctx := context.Background()
	for i := 0; i < framesPerDirection; i++ {
		require.NoError(t, b.PushCarrierAudio(ctx, []byte{0x7f}))
	}

	// The carrier direction still accepts and delivers.
	done := make(chan error, 1)
	go func() {
		done <- b.PushAgentAudio(ctx, PCMToBytes([]int16{0, 0}))
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("carrier direction blocked by a full agent direction")
	}
}

func TestBridgePushAfterCloseFails(t *testing.T) {
	b := NewBridge()
	b.Close()
	b.Close() // idempotent

	err := b.PushCarrierAudio(context.Background(), []byte{0x00})
	assert.ErrorIs(t, err, ErrBridgeClosed)
	err = b.PushAgentAudio(context.Background(), []byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrBridgeClosed)

	select {
	case <-b.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestBridgePushHonorsContext(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < framesPerDirection; i++ {
		require.NoError(t, b.PushCarrierAudio(ctx, []byte{0x00}))
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := b.PushCarrierAudio(cancelCtx, []byte{0x00})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
