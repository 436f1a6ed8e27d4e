package telephony

import (
	"context"
	"errors"
	"sync"
)

// ErrBridgeClosed is returned by Push calls after the bridge has shut down.
var ErrBridgeClosed = errors.New("audio bridge closed")

// framesPerDirection bounds each directional queue. Frames are tens of
// milliseconds each, so the queue holds roughly a second of audio; a consumer
// slower than that backpressures its own direction only.
const framesPerDirection = 32

// Bridge is the duplex, codec-translating relay between the carrier media
// stream and the conversational-agent transport. Each direction is a bounded
// channel between a reader and a writer goroutine; transcoding happens on the
// producing side. Neither direction can block the other.
type Bridge struct {
	toAgent   chan []byte // PCM16 little-endian @ 16 kHz
	toCarrier chan []byte // mu-law @ 8 kHz

	done      chan struct{}
	closeOnce sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		toAgent:   make(chan []byte, framesPerDirection),
		toCarrier: make(chan []byte, framesPerDirection),
		done:      make(chan struct{}),
	}
}

// PushCarrierAudio transcodes a mu-law 8 kHz frame from the carrier and
// queues it for the agent. Blocks when the agent direction is full until the
// consumer drains, the context is cancelled, or the bridge closes.
func (b *Bridge) PushCarrierAudio(ctx context.Context, mulaw []byte) error {
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}
	frame := PCMToBytes(MulawToPCM16k(mulaw))
	select {
	case b.toAgent <- frame:
		return nil
	case <-b.done:
		return ErrBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushAgentAudio transcodes a PCM 16 kHz frame from the agent and queues it
// for the carrier. Blocks only within the carrier direction.
func (b *Bridge) PushAgentAudio(ctx context.Context, pcmBytes []byte) error {
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}
	frame := PCM16kToMulaw(BytesToPCM(pcmBytes))
	select {
	case b.toCarrier <- frame:
		return nil
	case <-b.done:
		return ErrBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToAgent is the agent-bound frame queue consumed by the agent writer pump.
func (b *Bridge) ToAgent() <-chan []byte {
	return b.toAgent
}

// ToCarrier is the carrier-bound frame queue consumed by the carrier writer
// pump.
func (b *Bridge) ToCarrier() <-chan []byte {
	return b.toCarrier
}

// Close terminates both directions. Safe to call from any goroutine, any
// number of times; pending Push calls return ErrBridgeClosed.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// Done is closed when the bridge has shut down.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}
