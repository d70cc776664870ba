package client

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/RekadzeAV/rtspcam/auth"
	"github.com/RekadzeAV/rtspcam/base"
	"github.com/RekadzeAV/rtspcam/headers"
)

// userAgent is the fixed User-Agent string sent with every request.
const userAgent = "rtspcam"

// ControlChannel owns the single TCP connection carrying RTSP requests
// and responses for one session: the CSeq counter, the session
// identifier once SETUP has returned one, and credential retry.
type ControlChannel struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	cseq    int
	session string

	user, pass string
	authClient *auth.Client

	timeout time.Duration

	// OnRequest and OnResponse, when non-nil, are called with every
	// request before it is written and every response after it is
	// parsed, so a caller can log the wire traffic.
	OnRequest  func(*base.Request)
	OnResponse func(*base.Response)
}

// OpenControlChannel dials host:port and returns a ControlChannel ready
// to send requests. timeout bounds both the dial and every subsequent
// read/write.
func OpenControlChannel(host string, port int, timeout time.Duration) (*ControlChannel, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &NetworkError{Op: "connect", Err: err}
	}

	return &ControlChannel{
		conn:    conn,
		br:      bufio.NewReader(conn),
		bw:      bufio.NewWriter(conn),
		timeout: timeout,
	}, nil
}

// SetCredentials records credentials to use if the server challenges a
// request with 401. It must be called before the first Request that
// should be retried with authentication.
func (c *ControlChannel) SetCredentials(user, pass string) {
	c.user = user
	c.pass = pass
}

// Session returns the session identifier captured from the first SETUP
// response, or "" if none has arrived yet.
func (c *ControlChannel) Session() string {
	return c.session
}

// Request sends one RTSP request and returns its response. CSeq is
// assigned automatically and is always strictly greater than every
// previous CSeq sent on this channel. The Session header, once
// captured, is attached to every subsequent request unless extra
// already supplies one. On a 401 response, if credentials have been set
// and this request has not yet carried an Authorization header, the
// request is retried exactly once with one computed from the
// challenge.
func (c *ControlChannel) Request(method base.Method, url *base.URL, extra base.Header, body []byte) (*base.Response, error) {
	return c.request(method, url, extra, body, false)
}

func (c *ControlChannel) request(method base.Method, url *base.URL, extra base.Header, body []byte, retried bool) (*base.Response, error) {
	header := make(base.Header, len(extra)+3)
	for k, v := range extra {
		header[k] = v
	}

	c.cseq++
	header.Set("CSeq", fmt.Sprintf("%d", c.cseq))
	header.Set("User-Agent", userAgent)

	if c.session != "" {
		if _, ok := header.Get("Session"); !ok {
			header.Set("Session", c.session)
		}
	}

	if c.authClient != nil {
		authz, err := c.authClient.Header(method, url)
		if err != nil {
			return nil, &ConfigError{Field: "credentials", Err: err}
		}
		header.Set("Authorization", authz)
	}

	req := &base.Request{Method: method, URL: url, Header: header, Body: body}

	if c.OnRequest != nil {
		c.OnRequest(req)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, &NetworkError{Op: "write " + string(method), Err: err}
	}
	if _, err := c.bw.Write(req.Marshal()); err != nil {
		return nil, &NetworkError{Op: "write " + string(method), Err: err}
	}
	if err := c.bw.Flush(); err != nil {
		return nil, &NetworkError{Op: "write " + string(method), Err: err}
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, &NetworkError{Op: "read " + string(method), Err: err}
	}
	var res base.Response
	if err := res.Read(c.br); err != nil {
		return nil, &NetworkError{Op: "read " + string(method), Err: err}
	}

	if c.OnResponse != nil {
		c.OnResponse(&res)
	}

	if v, ok := res.Header.Get("Session"); ok && (method == base.Setup || c.session != "") {
		sess, err := headers.ReadSession(v)
		if err != nil {
			return nil, &ProtocolError{Detail: "invalid Session header", Err: err}
		}
		if c.session != "" && c.session != sess.ID {
			return nil, &ProtocolError{Detail: fmt.Sprintf("session identifier diverged: had %q, got %q", c.session, sess.ID)}
		}
		c.session = sess.ID
	}

	if res.StatusCode == base.StatusUnauthorized {
		if retried || c.user == "" {
			return nil, &AuthError{Realm: authRealm(res)}
		}

		challenge, err := headers.ReadAuthenticate(res.Header["WWW-Authenticate"])
		if err != nil {
			return nil, &ProtocolError{Detail: "invalid WWW-Authenticate header", Err: err}
		}
		c.authClient = auth.NewClient(challenge, c.user, c.pass)

		return c.request(method, url, extra, body, true)
	}

	return &res, nil
}

func authRealm(res base.Response) string {
	challenge, err := headers.ReadAuthenticate(res.Header["WWW-Authenticate"])
	if err != nil {
		return ""
	}
	return challenge.Realm
}

// Close closes the TCP connection. Safe to call more than once.
func (c *ControlChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
