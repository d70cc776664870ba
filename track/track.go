// Package track manages the per-session collection of negotiated media
// tracks: the UDP socket pairs, the ports negotiated with SETUP, and the
// small amount of reception state the RTP receiver updates as packets
// arrive.
package track

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/RekadzeAV/rtspcam/base"
	"github.com/RekadzeAV/rtspcam/readbuffer"
	"github.com/RekadzeAV/rtspcam/sdp"
)

// Kind is the media kind of a track. Unlike sdp.TrackKind, it also
// admits KindMetadata for a future non-SDP-negotiated track source; the
// SDP parser itself never produces a metadata draft.
type Kind string

// track kinds.
const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindMetadata Kind = "metadata"
)

func kindFromSDP(k sdp.TrackKind) Kind {
	switch k {
	case sdp.KindVideo:
		return KindVideo
	case sdp.KindAudio:
		return KindAudio
	default:
		return KindMetadata
	}
}

// udpReadBufferSize is the size this client asks the OS for on each RTP
// socket, large enough to absorb a burst of datagrams between receiver
// wakeups without the kernel dropping them.
const udpReadBufferSize = 2 * 1024 * 1024

// Track is one negotiated media track: its codec identity, its UDP
// socket pair, and the reception state the RTP receiver maintains.
//
// SSRC, sequence and timestamp are updated by exactly one goroutine (the
// RTP receiver, while the session is Playing) and read by others (the
// application, via SSRC() and Stats()); they are therefore accessed through atomics
// rather than a mutex.
type Track struct {
	Kind        Kind
	Codec       string
	ClockRate   int
	PayloadType uint8
	FMTP        string

	ControlURL *base.URL

	ClientRTPPort  int
	ClientRTCPPort int
	ServerRTPPort  int
	ServerRTCPPort int

	RTPConn  *net.UDPConn
	RTCPConn *net.UDPConn

	Width  int
	Height int
	FPS    int

	ssrc           atomic.Uint32
	ssrcSeen       atomic.Bool
	lastSeq        atomic.Uint32
	lastTimestamp  atomic.Uint32
	seqGaps        atomic.Uint64
	rtcpReceived   atomic.Uint64
	rtpPacketCount atomic.Uint64
}

// New builds a Track from an SDP draft and controlURL (already resolved
// against the DESCRIBE request's base URL), allocating the two UDP
// sockets the SETUP request will advertise. The track is not usable for
// RTP until ApplyServerPorts has recorded the server's response.
func New(draft sdp.Draft, controlURL *base.URL) (*Track, error) {
	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("binding RTP socket: %w", err)
	}

	rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		rtpConn.Close() //nolint:errcheck
		return nil, fmt.Errorf("binding RTCP socket: %w", err)
	}

	if err := readbuffer.Set(rtpConn, udpReadBufferSize); err != nil {
		// a failure to tune the buffer is not fatal: the OS default
		// still works, just with a higher chance of drops under load.
		_ = err
	}

	t := &Track{
		Kind:           kindFromSDP(draft.Kind),
		Codec:          draft.Codec,
		ClockRate:      draft.ClockRate,
		PayloadType:    draft.PayloadType,
		FMTP:           draft.FMTP,
		ControlURL:     controlURL,
		ClientRTPPort:  rtpConn.LocalAddr().(*net.UDPAddr).Port,
		ClientRTCPPort: rtcpConn.LocalAddr().(*net.UDPAddr).Port,
		RTPConn:        rtpConn,
		RTCPConn:       rtcpConn,
	}

	return t, nil
}

// ApplyServerPorts records the server_port pair SETUP's 200 OK response
// carried.
func (t *Track) ApplyServerPorts(rtp, rtcp int) {
	t.ServerRTPPort = rtp
	t.ServerRTCPPort = rtcp
}

// Close releases both UDP sockets. Safe to call more than once.
func (t *Track) Close() {
	if t.RTPConn != nil {
		t.RTPConn.Close() //nolint:errcheck
	}
	if t.RTCPConn != nil {
		t.RTCPConn.Close() //nolint:errcheck
	}
}

// SSRC returns the most recently observed synchronization source, or
// (0, false) if no RTP packet has arrived yet.
func (t *Track) SSRC() (uint32, bool) {
	return t.ssrc.Load(), t.ssrcSeen.Load()
}

// RecordSSRC stores the SSRC carried by the most recent datagram. A
// camera may legally re-key mid-session, so later values simply
// overwrite earlier ones.
func (t *Track) RecordSSRC(v uint32) {
	t.ssrc.Store(v)
	t.ssrcSeen.Store(true)
}

// ObserveSequence updates last-seen sequence/timestamp and returns
// whether this datagram represents a gap. The gap is advisory only: it
// never causes the datagram to be dropped.
func (t *Track) ObserveSequence(seq uint16, timestamp uint32) (gap bool) {
	prev := uint16(t.lastSeq.Load())
	hadPrev := t.rtpPacketCount.Load() > 0

	if hadPrev && seq != prev+1 {
		gap = true
		t.seqGaps.Add(1)
	}

	t.lastSeq.Store(uint32(seq))
	t.lastTimestamp.Store(timestamp)
	t.rtpPacketCount.Add(1)

	return gap
}

// Stats returns the packet/gap/RTCP counters accumulated since the track
// was created, for status-sink diagnostics.
func (t *Track) Stats() (rtpPackets, sequenceGaps, rtcpPackets uint64) {
	return t.rtpPacketCount.Load(), t.seqGaps.Load(), t.rtcpReceived.Load()
}

// RecordRTCPReceived increments the RTCP-drain counter.
func (t *Track) RecordRTCPReceived() {
	t.rtcpReceived.Add(1)
}

// Info returns the declared dimensions/fps/codec, for track_info().
func (t *Track) Info() (width, height, fps int, codec string) {
	return t.Width, t.Height, t.FPS, t.Codec
}
