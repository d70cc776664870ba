package rtpdec

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/RekadzeAV/rtspcam/track"
)

// maxDatagramSize is large enough for any RTP or RTCP datagram a camera
// is realistically going to send over UDP; anything larger than this
// would have been fragmented by IP anyway.
const maxDatagramSize = 65536

// readQuantum bounds how long a socket read blocks before the receiver
// re-checks whether it has been asked to stop. It trades a small,
// constant shutdown latency for not needing a separate cancellation
// primitive per platform.
const readQuantum = 500 * time.Millisecond

// ErrorFunc is called when a track's socket fails for a reason other
// than the receiver being stopped. The receiver does not retry or
// tear down other tracks on its own; it reports and lets the caller
// (the session controller) decide.
type ErrorFunc func(trackIndex int, kind track.Kind, err error)

// PanicFunc is called when a Sink panics while handling a frame. The
// receiver recovers the panic so one misbehaving sink cannot take down
// the whole process, and keeps reading that track's socket afterward.
type PanicFunc func(kind track.Kind, recovered any)

// Receiver reads the RTP and RTCP sockets of a set of tracks and
// dispatches decoded frames to whatever Sink is currently registered
// for each track's kind. It runs one pair of goroutines (RTP, RTCP)
// per track rather than multiplexing every socket through a single
// select loop: Go has no portable way to select across an arbitrary
// number of net.Conns, and one goroutine per socket gives the same
// per-track delivery ordering a single dispatch loop would.
type Receiver struct {
	tracks  []*track.Track
	lookup  SinkLookup
	onError ErrorFunc
	onPanic PanicFunc

	stopping atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewReceiver builds a Receiver for tracks. lookup, onError and onPanic
// must be non-nil; onError and onPanic may be called concurrently from
// different track goroutines.
func NewReceiver(tracks []*track.Track, lookup SinkLookup, onError ErrorFunc, onPanic PanicFunc) *Receiver {
	return &Receiver{
		tracks:  tracks,
		lookup:  lookup,
		onError: onError,
		onPanic: onPanic,
		done:    make(chan struct{}),
	}
}

// Start launches the per-track read goroutines. It must be called at
// most once.
func (r *Receiver) Start() {
	for i, t := range r.tracks {
		if t.RTPConn != nil {
			r.wg.Add(1)
			go r.readRTP(i, t)
		}
		if t.RTCPConn != nil {
			r.wg.Add(1)
			go r.readRTCP(i, t)
		}
	}

	go func() {
		r.wg.Wait()
		close(r.done)
	}()
}

// Stop asks every track goroutine to exit and returns immediately: it
// never blocks waiting for them. Blocking here would deadlock a caller
// that invokes Stop from inside a Sink, since that call runs on one of
// the very goroutines being stopped. Callers that need a synchronous
// shutdown should wait on Done() themselves, from a goroutine other
// than the one calling Stop.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		now := time.Now()
		for _, t := range r.tracks {
			if t.RTPConn != nil {
				_ = t.RTPConn.SetReadDeadline(now)
			}
			if t.RTCPConn != nil {
				_ = t.RTCPConn.SetReadDeadline(now)
			}
		}
	})
}

// Done returns a channel that closes once every track goroutine has
// returned. Do not wait on it from inside a Sink or from ErrorFunc /
// PanicFunc — those run on the goroutines Done is waiting for.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

func (r *Receiver) readRTP(idx int, t *track.Track) {
	defer r.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		if r.stopping.Load() {
			return
		}

		_ = t.RTPConn.SetReadDeadline(time.Now().Add(readQuantum))
		n, err := t.RTPConn.Read(buf)
		if err != nil {
			if r.stopping.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			r.onError(idx, t.Kind, err)
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if pkt.Version != 2 {
			continue
		}

		if ssrc, seen := t.SSRC(); !seen || ssrc != pkt.SSRC {
			t.RecordSSRC(pkt.SSRC)
		}
		t.ObserveSequence(pkt.SequenceNumber, pkt.Timestamp)

		sink := r.lookup(t.Kind)
		if sink == nil {
			continue
		}

		// buf is reused by the next Read, so each frame gets its own copy
		// of the payload.
		payload := make([]byte, len(pkt.Payload))
		copy(payload, pkt.Payload)

		width, height, fps, codec := t.Info()
		r.dispatch(sink, Frame{
			Kind:        t.Kind,
			PayloadType: pkt.PayloadType,
			Sequence:    pkt.SequenceNumber,
			Timestamp:   pkt.Timestamp,
			Marker:      pkt.Marker,
			Payload:     payload,
			Width:       width,
			Height:      height,
			FPS:         fps,
			Codec:       codec,
		})
	}
}

func (r *Receiver) dispatch(sink Sink, frame Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onPanic(frame.Kind, rec)
		}
	}()
	sink(frame)
}

func (r *Receiver) readRTCP(idx int, t *track.Track) {
	defer r.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		if r.stopping.Load() {
			return
		}

		_ = t.RTCPConn.SetReadDeadline(time.Now().Add(readQuantum))
		n, err := t.RTCPConn.Read(buf)
		if err != nil {
			if r.stopping.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			r.onError(idx, t.Kind, err)
			return
		}

		if _, err := rtcp.Unmarshal(buf[:n]); err != nil {
			continue
		}

		t.RecordRTCPReceived()
	}
}
