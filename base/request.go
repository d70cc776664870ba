package base

import (
	"bufio"
	"fmt"
	"strconv"
)

const (
	rtspVersion              = "RTSP/1.0"
	requestMaxMethodLength   = 64
	requestMaxURLLength      = 2048
	requestMaxProtocolLength = 64
)

// Request is an RTSP request.
type Request struct {
	Method Method
	URL    *URL
	Header Header
	Body   []byte
}

// Read parses a Request off the wire. It is used by client-side tests
// that stand up a fake RTSP server.
func (req *Request) Read(rb *bufio.Reader) error {
	byts, err := readBytesLimited(rb, ' ', requestMaxMethodLength)
	if err != nil {
		return err
	}
	req.Method = Method(byts[:len(byts)-1])
	if req.Method == "" {
		return fmt.Errorf("empty method")
	}

	byts, err = readBytesLimited(rb, ' ', requestMaxURLLength)
	if err != nil {
		return err
	}
	rawURL := string(byts[:len(byts)-1])
	ur, err := ParseURL(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL (%v): %w", rawURL, err)
	}
	req.URL = ur

	byts, err = readBytesLimited(rb, '\r', requestMaxProtocolLength)
	if err != nil {
		return err
	}
	if string(byts[:len(byts)-1]) != rtspVersion {
		return fmt.Errorf("unsupported RTSP version %q", byts[:len(byts)-1])
	}

	if err := readByteEqual(rb, '\n'); err != nil {
		return err
	}

	if err := req.Header.read(rb); err != nil {
		return err
	}

	b, err := readBody(rb, req.Header)
	if err != nil {
		return err
	}
	req.Body = b

	return nil
}

// MarshalSize returns the encoded size of req.
func (req Request) MarshalSize() int {
	n := 0
	urStr := req.URL.WithoutCredentials()
	n += len(string(req.Method)) + len(" ") + len(urStr) + len(" ") + len(rtspVersion) + len("\r\n")

	if len(req.Body) != 0 {
		req.Header["Content-Length"] = HeaderValue{strconv.Itoa(len(req.Body))}
	}

	n += req.Header.marshalSize()
	n += body(req.Body).marshalSize()
	return n
}

// MarshalTo encodes req into buf, which must be at least MarshalSize() long.
func (req Request) MarshalTo(buf []byte) int {
	pos := 0
	urStr := req.URL.WithoutCredentials()
	pos += copy(buf[pos:], string(req.Method)+" "+urStr+" "+rtspVersion+"\r\n")

	if len(req.Body) != 0 {
		req.Header["Content-Length"] = HeaderValue{strconv.Itoa(len(req.Body))}
	}

	pos += req.Header.marshalTo(buf[pos:])
	pos += body(req.Body).marshalTo(buf[pos:])
	return pos
}

// Marshal encodes req as a byte slice ready to be written to the wire.
func (req Request) Marshal() []byte {
	buf := make([]byte, req.MarshalSize())
	req.MarshalTo(buf)
	return buf
}

// String implements fmt.Stringer.
func (req Request) String() string {
	return string(req.Marshal())
}
