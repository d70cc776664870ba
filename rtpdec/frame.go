// Package rtpdec turns the raw RTP/RTCP datagrams arriving on a track's
// UDP sockets into decoded frames, dispatched to whichever sink is
// currently registered for that track's kind.
package rtpdec

import "github.com/RekadzeAV/rtspcam/track"

// Frame is one decoded RTP payload handed to a FrameSink. It carries the
// encoded bytes exactly as assembled from the datagram's payload,
// without codec-specific depacketization: turning this into decoded
// pixels or samples is the caller's job, not this library's.
type Frame struct {
	Kind        track.Kind
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	Marker      bool
	Payload     []byte

	Width  int
	Height int
	FPS    int
	Codec  string
}

// Release is a no-op. It exists so bindings that wrap Frame behind a
// reference-counted handle (the camera FFI layer this client mirrors)
// have a symmetric call to make; Go's garbage collector owns Payload.
func (f Frame) Release() {}

// Sink receives one Frame at a time, in the order its track's socket
// produced them. A Sink must not block for long: it is called directly
// from the goroutine reading that track's socket, so a slow sink stalls
// reception for its own track (never for other tracks).
type Sink func(Frame)

// SinkLookup resolves the Sink currently registered for a track kind.
// It returns nil when no sink is registered, in which case the
// Receiver discards the frame without decoding its payload further.
type SinkLookup func(kind track.Kind) Sink
