// Package client drives the session lifecycle: it owns the control
// channel, the track set and the RTP receiver, and exposes the
// CONNECT/PLAY/PAUSE/STOP/DISCONNECT state machine to the application.
package client

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RekadzeAV/rtspcam/base"
	"github.com/RekadzeAV/rtspcam/headers"
	"github.com/RekadzeAV/rtspcam/rtpdec"
	"github.com/RekadzeAV/rtspcam/sdp"
	"github.com/RekadzeAV/rtspcam/track"
)

const defaultDisconnectGrace = 2 * time.Second

type sinkTable struct {
	video, audio, metadata rtpdec.Sink
}

// Session is one RTSP client session: one URL, one control channel, one
// set of negotiated tracks. It may be connected, disconnected and
// reconnected repeatedly over its lifetime.
type Session struct {
	// ID is a random identifier assigned by New. StatusEvent does not
	// carry it, and the session writes no log lines of its own.
	ID uuid.UUID

	mu    sync.Mutex
	state State
	cc    *ControlChannel
	url   *base.URL
	tracks []*track.Track
	receiver *rtpdec.Receiver

	teardownOnce    *sync.Once
	closedCh        chan struct{}
	reconnectCancel chan struct{}
	tearingDown     atomic.Bool

	sinks      atomic.Pointer[sinkTable]
	statusSink atomic.Pointer[StatusSink]
	sinkMu     sync.Mutex

	reconnectPolicy ReconnectPolicy

	lastRawURL           string
	savedUser, savedPass string
	savedTimeout         time.Duration

	// DisconnectGrace bounds how long Disconnect waits for the RTP
	// receiver's goroutines to exit before returning. Zero selects a
	// default of 2 seconds. It exists so the reentrant-from-sink case
	// (where the goroutines cannot possibly have exited yet) returns
	// promptly instead of appearing to hang.
	DisconnectGrace time.Duration
}

// New creates a disconnected Session.
func New() *Session {
	return &Session{ID: uuid.New(), state: StateDisconnected}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetFrameSink registers fn as the sink for kind, replacing whatever
// was previously registered. Passing a nil fn unregisters it.
func (s *Session) SetFrameSink(kind track.Kind, fn rtpdec.Sink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	prev := s.sinks.Load()
	next := sinkTable{}
	if prev != nil {
		next = *prev
	}
	switch kind {
	case track.KindVideo:
		next.video = fn
	case track.KindAudio:
		next.audio = fn
	case track.KindMetadata:
		next.metadata = fn
	}
	s.sinks.Store(&next)
}

func (s *Session) lookupSink(kind track.Kind) rtpdec.Sink {
	t := s.sinks.Load()
	if t == nil {
		return nil
	}
	switch kind {
	case track.KindVideo:
		return t.video
	case track.KindAudio:
		return t.audio
	case track.KindMetadata:
		return t.metadata
	default:
		return nil
	}
}

// SetStatusSink registers fn as the sink for lifecycle and error events,
// replacing whatever was previously registered.
func (s *Session) SetStatusSink(fn StatusSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if fn == nil {
		s.statusSink.Store(nil)
		return
	}
	s.statusSink.Store(&fn)
}

func (s *Session) emitStatus(kind StatusKind, state State, message string, err error) {
	sink := s.statusSink.Load()
	if sink == nil {
		return
	}
	(*sink)(StatusEvent{Kind: kind, State: state, Message: message, Err: err})
}

// SetReconnectParams configures the automatic-reconnection wrapper.
func (s *Session) SetReconnectParams(p ReconnectPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectPolicy = p
}

// TrackCount returns the number of tracks negotiated by the last
// successful CONNECT.
func (s *Session) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// TrackKind returns the kind of track i, or "" if i is out of range.
func (s *Session) TrackKind(i int) track.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.tracks) {
		return ""
	}
	return s.tracks[i].Kind
}

// TrackInfo returns the declared width, height, fps and codec of track i.
func (s *Session) TrackInfo(i int) (width, height, fps int, codec string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.tracks) {
		return 0, 0, 0, ""
	}
	return s.tracks[i].Info()
}

// Connect runs the CONNECT sequence: parse the URL, open the control
// channel, OPTIONS, DESCRIBE, parse SDP, SETUP every track. On success
// the session is Connected and ready for Play. On failure, if automatic
// reconnection is enabled, retries are scheduled in the background and
// Connect still returns this attempt's own result.
func (s *Session) Connect(rawURL, user, pass string, timeout time.Duration) (bool, error) {
	ok, err := s.attemptConnect(rawURL, user, pass, timeout)

	s.mu.Lock()
	policy := s.reconnectPolicy
	s.mu.Unlock()

	if !ok && policy.Enabled {
		go s.reconnectLoop(policy, false)
	}

	return ok, err
}

func (s *Session) attemptConnect(rawURL, user, pass string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	if s.state != StateDisconnected {
		err := &StateError{Op: "connect", From: s.state}
		s.mu.Unlock()
		return false, err
	}
	s.state = StateConnecting
	s.teardownOnce = &sync.Once{}
	s.closedCh = make(chan struct{})
	s.reconnectCancel = make(chan struct{})
	s.tearingDown.Store(false)
	s.lastRawURL = rawURL
	s.savedUser, s.savedPass, s.savedTimeout = user, pass, timeout
	s.mu.Unlock()
	s.emitStatus(StatusStateChanged, StateConnecting, "connecting", nil)

	url, err := base.ParseURL(rawURL)
	if err != nil {
		return s.failConnect(&ConfigError{Field: "url", Err: err})
	}

	cc, err := OpenControlChannel(url.Host, url.Port, timeout)
	if err != nil {
		return s.failConnect(err)
	}
	if user != "" {
		cc.SetCredentials(user, pass)
	}

	if _, err := cc.Request(base.Options, url, nil, nil); err != nil {
		cc.Close() //nolint:errcheck
		return s.failConnect(err)
	}

	descHeader := base.Header{}
	descHeader.Set("Accept", "application/sdp")
	descRes, err := cc.Request(base.Describe, url, descHeader, nil)
	if err != nil {
		cc.Close() //nolint:errcheck
		return s.failConnect(err)
	}
	if !descRes.StatusCode.IsSuccess() {
		cc.Close() //nolint:errcheck
		return s.failConnect(&ServerError{Code: int(descRes.StatusCode), Message: descRes.StatusCode.String()})
	}
	if len(descRes.Body) == 0 {
		cc.Close() //nolint:errcheck
		return s.failConnect(&ProtocolError{Detail: "DESCRIBE returned no SDP body"})
	}

	drafts, err := sdp.Parse(descRes.Body)
	if err != nil {
		cc.Close() //nolint:errcheck
		return s.failConnect(&ProtocolError{Detail: "invalid SDP", Err: err})
	}

	tracks := make([]*track.Track, 0, len(drafts))
	for _, d := range drafts {
		controlURL := url
		if d.Control != "" {
			resolved, err := url.Resolve(d.Control)
			if err != nil {
				continue
			}
			controlURL = resolved
		}

		t, err := track.New(d, controlURL)
		if err != nil {
			continue
		}

		transportHeader := base.Header{}
		transportHeader.Set("Transport", headers.WriteUnicastUDP(t.ClientRTPPort, t.ClientRTCPPort))

		setupRes, err := cc.Request(base.Setup, controlURL, transportHeader, nil)
		if err != nil || !setupRes.StatusCode.IsSuccess() {
			t.Close()
			continue
		}

		v, ok := setupRes.Header.Get("Transport")
		if !ok {
			t.Close()
			continue
		}
		tr, err := headers.ReadTransport(v)
		if err != nil || tr.ServerPorts == nil {
			t.Close()
			continue
		}
		t.ApplyServerPorts(tr.ServerPorts[0], tr.ServerPorts[1])

		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		cc.Close() //nolint:errcheck
		return s.failConnect(&ProtocolError{Detail: "no track survived SETUP"})
	}

	s.mu.Lock()
	s.cc = cc
	s.url = url
	s.tracks = tracks
	s.state = StateConnected
	s.mu.Unlock()
	s.emitStatus(StatusStateChanged, StateConnected, fmt.Sprintf("connected, %d track(s)", len(tracks)), nil)

	return true, nil
}

func (s *Session) failConnect(err error) (bool, error) {
	s.mu.Lock()
	s.state = StateErrored
	s.mu.Unlock()
	s.emitStatus(StatusError, StateErrored, err.Error(), err)

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.emitStatus(StatusStateChanged, StateDisconnected, "disconnected", nil)

	return false, err
}

// Play sends PLAY and, on success, starts the RTP receiver.
func (s *Session) Play() (bool, error) {
	s.mu.Lock()
	if s.state != StateConnected && s.state != StatePaused {
		from := s.state
		s.mu.Unlock()
		if s.tearingDown.Load() {
			return false, &CancelledError{Op: "play"}
		}
		return false, &StateError{Op: "play", From: from}
	}
	cc, url, tracks := s.cc, s.url, s.tracks
	s.mu.Unlock()

	header := base.Header{}
	header.Set("Range", "npt=0.000-")
	res, err := cc.Request(base.Play, url, header, nil)
	if err != nil {
		return false, err
	}
	if !res.StatusCode.IsSuccess() {
		return false, &ServerError{Code: int(res.StatusCode), Message: res.StatusCode.String()}
	}

	recv := rtpdec.NewReceiver(tracks, s.lookupSink, s.onReceiverError, s.onSinkPanic)
	recv.Start()

	s.mu.Lock()
	s.receiver = recv
	s.state = StatePlaying
	s.mu.Unlock()
	s.emitStatus(StatusStateChanged, StatePlaying, "playing", nil)

	return true, nil
}

// Pause sends PAUSE and, on success, quiesces the RTP receiver.
func (s *Session) Pause() (bool, error) {
	s.mu.Lock()
	if s.state != StatePlaying {
		from := s.state
		s.mu.Unlock()
		if s.tearingDown.Load() {
			return false, &CancelledError{Op: "pause"}
		}
		return false, &StateError{Op: "pause", From: from}
	}
	cc, url, recv := s.cc, s.url, s.receiver
	s.mu.Unlock()

	res, err := cc.Request(base.Pause, url, nil, nil)
	if err != nil {
		return false, err
	}
	if !res.StatusCode.IsSuccess() {
		return false, &ServerError{Code: int(res.StatusCode), Message: res.StatusCode.String()}
	}

	if recv != nil {
		recv.Stop()
	}

	s.mu.Lock()
	s.receiver = nil
	s.state = StatePaused
	s.mu.Unlock()
	s.emitStatus(StatusStateChanged, StatePaused, "paused", nil)

	return true, nil
}

// Stop is PAUSE that remains in Connected rather than Paused.
func (s *Session) Stop() (bool, error) {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StatePaused {
		from := s.state
		s.mu.Unlock()
		if s.tearingDown.Load() {
			return false, &CancelledError{Op: "stop"}
		}
		return false, &StateError{Op: "stop", From: from}
	}
	wasPlaying := s.state == StatePlaying
	cc, url, recv := s.cc, s.url, s.receiver
	s.mu.Unlock()

	if wasPlaying {
		res, err := cc.Request(base.Pause, url, nil, nil)
		if err != nil {
			return false, err
		}
		if !res.StatusCode.IsSuccess() {
			return false, &ServerError{Code: int(res.StatusCode), Message: res.StatusCode.String()}
		}
		if recv != nil {
			recv.Stop()
		}
	}

	s.mu.Lock()
	s.receiver = nil
	s.state = StateConnected
	s.mu.Unlock()
	s.emitStatus(StatusStateChanged, StateConnected, "stopped", nil)

	return true, nil
}

// Disconnect tears down the session: best-effort TEARDOWN, receiver
// shutdown, socket closure. It is idempotent — concurrent calls all
// complete without error and exactly one TEARDOWN is sent — and safe to
// call from within a frame or status sink. Called from a frame sink, it
// cannot wait for its own goroutine to exit, so it returns once
// DisconnectGrace has elapsed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancelCh := s.reconnectCancel
	s.mu.Unlock()

	// Closing this aborts any reconnect schedule a prior Error
	// transition may have started: an explicit Disconnect means the
	// caller wants the session to stay down, not come back on its own.
	if cancelCh != nil {
		select {
		case <-cancelCh:
		default:
			close(cancelCh)
		}
	}

	s.runTeardown()
}

// runTeardown executes the idempotent teardown sequence without
// touching reconnectCancel, so the internal Error-triggered path can
// tear down a dead connection while leaving its own reconnect schedule
// intact.
func (s *Session) runTeardown() {
	s.mu.Lock()
	once := s.teardownOnce
	closedCh := s.closedCh
	s.mu.Unlock()

	if once == nil {
		return
	}

	// The Disconnected event is emitted only after closedCh is closed, so
	// a status sink that calls Disconnect again does not re-enter once.
	emitted := false
	once.Do(func() {
		emitted = s.teardown()
		close(closedCh)
	})
	<-closedCh

	if emitted {
		s.emitStatus(StatusStateChanged, StateDisconnected, "disconnected", nil)
	}
}

// teardown reports whether the session was active and has now been
// moved to Disconnected.
func (s *Session) teardown() bool {
	s.tearingDown.Store(true)

	s.mu.Lock()
	cc, url, tracks, recv := s.cc, s.url, s.tracks, s.receiver
	active := s.state != StateDisconnected
	s.mu.Unlock()

	if !active {
		return false
	}

	if cc != nil {
		_, _ = cc.Request(base.Teardown, url, nil, nil)
	}

	if recv != nil {
		recv.Stop()
	}

	for _, t := range tracks {
		t.Close()
	}

	if cc != nil {
		cc.Close() //nolint:errcheck
	}

	if recv != nil {
		grace := s.DisconnectGrace
		if grace <= 0 {
			grace = defaultDisconnectGrace
		}
		select {
		case <-recv.Done():
		case <-time.After(grace):
		}
	}

	s.mu.Lock()
	s.cc = nil
	s.tracks = nil
	s.receiver = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	return true
}

func (s *Session) onReceiverError(trackIndex int, kind track.Kind, err error) {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.state = StateErrored
	policy := s.reconnectPolicy
	s.mu.Unlock()

	s.emitStatus(StatusError, StateErrored, fmt.Sprintf("track %d (%s) receive error: %v", trackIndex, kind, err), err)

	s.runTeardown()

	if policy.Enabled {
		go s.reconnectLoop(policy, true)
	}
}

func (s *Session) onSinkPanic(kind track.Kind, recovered any) {
	s.emitStatus(StatusSinkError, s.State(), fmt.Sprintf("%s sink panicked", kind), &SinkError{Recovered: recovered})
}

func (s *Session) reconnectLoop(policy ReconnectPolicy, resumePlay bool) {
	s.mu.Lock()
	rawURL, user, pass, timeout := s.lastRawURL, s.savedUser, s.savedPass, s.savedTimeout
	s.mu.Unlock()

	delay := policy.InitialDelay
	for attempt := 1; policy.MaxRetries < 0 || attempt <= policy.MaxRetries; attempt++ {
		// reconnectCancel is reallocated by every attemptConnect call, so
		// the channel to wait on must be read fresh each iteration rather
		// than captured once: waiting on a stale channel would miss a
		// Disconnect issued after the first retry already ran.
		s.mu.Lock()
		cancel := s.reconnectCancel
		s.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-cancel:
			return
		}

		ok, _ := s.attemptConnect(rawURL, user, pass, timeout)
		if ok {
			if resumePlay {
				_, _ = s.Play()
			}
			return
		}

		delay = policy.nextDelay(delay)
	}
}
