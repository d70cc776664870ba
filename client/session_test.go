package client

import (
	"bufio"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/RekadzeAV/rtspcam/base"
	"github.com/RekadzeAV/rtspcam/headers"
	"github.com/RekadzeAV/rtspcam/rtpdec"
	"github.com/RekadzeAV/rtspcam/track"
)

const testSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=stream\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=control:trackID=0\r\n"

const testSDPWithUnknownAttributes = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=stream\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=recvonly\r\n" +
	"a=range:npt=0-\r\n" +
	"a=framerate:25\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=control:trackID=0\r\n"

// sessionServer is a minimal fake RTSP server handling the OPTIONS,
// DESCRIBE, SETUP, PLAY and TEARDOWN sequence one real camera would, so
// Session.Connect/Play/Disconnect can be exercised end to end without a
// network double for every method.
type sessionServer struct {
	t        *testing.T
	listener net.Listener
	addr     string
	sdp      string

	rtpDst atomic.Pointer[net.UDPAddr]

	teardownCount atomic.Int32
}

func newSessionServer(t *testing.T) *sessionServer {
	t.Helper()
	return newSessionServerWithSDP(t, testSDP)
}

func newSessionServerWithSDP(t *testing.T, sdp string) *sessionServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck

	srv := &sessionServer{t: t, listener: l, addr: l.Addr().String(), sdp: sdp}
	go srv.serve()
	return srv
}

func (srv *sessionServer) serve() {
	nconn, err := srv.listener.Accept()
	if err != nil {
		return
	}
	defer nconn.Close() //nolint:errcheck

	rb := bufio.NewReader(nconn)
	wb := bufio.NewWriter(nconn)

	for {
		var req base.Request
		if err := req.Read(rb); err != nil {
			return
		}

		h := base.Header{}
		h.Set("Session", "12345678")
		res := base.Response{StatusCode: base.StatusOK, Header: h}

		switch req.Method {
		case base.Options:
			// nothing extra to add

		case base.Describe:
			res.Header.Set("Content-Type", "application/sdp")
			res.Body = []byte(srv.sdp)

		case base.Setup:
			v, _ := req.Header.Get("Transport") //nolint:errcheck
			tr, err := headers.ReadTransport(v)
			require.NoError(srv.t, err)

			serverRTP, serverRTCP := 6970, 6971
			res.Header.Set("Transport", fmt.Sprintf(
				"RTP/AVP/UDP;unicast;client_port=%d-%d;server_port=%d-%d",
				tr.ClientPorts[0], tr.ClientPorts[1], serverRTP, serverRTCP))

			host, _, _ := net.SplitHostPort(nconn.RemoteAddr().String()) //nolint:errcheck
			dst, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, tr.ClientPorts[0]))
			require.NoError(srv.t, err)
			srv.rtpDst.Store(dst)

		case base.Play, base.Pause:
			// nothing extra to add

		case base.Teardown:
			srv.teardownCount.Add(1)
		}

		require.NoError(srv.t, res.Write(wb))
	}
}

func (srv *sessionServer) sendRTP(t *testing.T, seq uint16, ts uint32, payload []byte) {
	t.Helper()
	dst := srv.rtpDst.Load()
	require.NotNil(t, dst)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0xCAFEBABE,
		},
		Payload: payload,
	}
	buf, err := pkt.Marshal()
	require.NoError(t, err)

	conn, err := net.DialUDP("udp", nil, dst)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

func rtspURLFor(addr string) string {
	return "rtsp://" + addr + "/stream"
}

func TestSessionConnectPlayDisconnectHappyPath(t *testing.T) {
	srv := newSessionServer(t)

	s := New()
	s.DisconnectGrace = 200 * time.Millisecond

	ok, err := s.Connect(rtspURLFor(srv.addr), "", "", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateConnected, s.State())
	require.Equal(t, 1, s.TrackCount())
	require.Equal(t, track.KindVideo, s.TrackKind(0))

	ok, err = s.Play()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatePlaying, s.State())

	s.Disconnect()
	require.Equal(t, StateDisconnected, s.State())
	require.EqualValues(t, 1, srv.teardownCount.Load())
}

func TestSessionDispatchesRTPFrameToRegisteredSink(t *testing.T) {
	srv := newSessionServer(t)

	s := New()
	s.DisconnectGrace = 200 * time.Millisecond

	frames := make(chan []byte, 1)
	s.SetFrameSink(track.KindVideo, func(f rtpdec.Frame) {
		frames <- f.Payload
	})

	_, err := s.Connect(rtspURLFor(srv.addr), "", "", time.Second)
	require.NoError(t, err)
	_, err = s.Play()
	require.NoError(t, err)

	srv.sendRTP(t, 1, 1000, []byte("hello"))

	select {
	case payload := <-frames:
		require.Equal(t, []byte("hello"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}

	s.Disconnect()
}

func TestSessionDisconnectIsIdempotentAcrossConcurrentCallers(t *testing.T) {
	srv := newSessionServer(t)

	s := New()
	s.DisconnectGrace = 200 * time.Millisecond

	_, err := s.Connect(rtspURLFor(srv.addr), "", "", time.Second)
	require.NoError(t, err)
	_, err = s.Play()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() { s.Disconnect(); close(done) }()
	s.Disconnect()
	<-done

	require.Equal(t, StateDisconnected, s.State())
	require.EqualValues(t, 1, srv.teardownCount.Load())
}

func TestSessionRejectsOperationsInWrongState(t *testing.T) {
	s := New()

	_, err := s.Play()
	require.Error(t, err)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StateDisconnected, stateErr.From)
}

func TestSessionReconnectsWithExponentialBackoffAfterInitialFailure(t *testing.T) {
	// no listener bound on this address: every connect attempt fails fast
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := New()
	s.SetReconnectParams(ReconnectPolicy{
		Enabled:           true,
		MaxRetries:        2,
		InitialDelay:      20 * time.Millisecond,
		MaxDelay:          200 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	var attempts atomic.Int32
	s.SetStatusSink(func(ev StatusEvent) {
		if ev.Kind == StatusStateChanged && ev.State == StateConnecting {
			attempts.Add(1)
		}
	})

	ok, err := s.Connect(rtspURLFor(addr), "", "", 50*time.Millisecond)
	require.False(t, ok)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return attempts.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionSDPWithUnknownAttributesYieldsOneTrack(t *testing.T) {
	srv := newSessionServerWithSDP(t, testSDPWithUnknownAttributes)

	s := New()
	s.DisconnectGrace = 200 * time.Millisecond

	_, err := s.Connect(rtspURLFor(srv.addr), "", "", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, s.TrackCount())

	s.Disconnect()
}
