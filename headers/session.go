// Package headers decodes and encodes the RTSP headers this client cares
// about: Session, Transport and the WWW-Authenticate/Authorization pair.
package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// Session is a parsed Session header. The client strips any ";timeout="
// parameter before comparing session identifiers.
type Session struct {
	ID      string
	Timeout *uint
}

// ReadSession parses a Session header value.
func ReadSession(v string) (*Session, error) {
	if v == "" {
		return nil, fmt.Errorf("empty Session header")
	}

	parts := strings.Split(v, ";")
	hs := &Session{ID: strings.TrimSpace(parts[0])}
	if hs.ID == "" {
		return nil, fmt.Errorf("empty session identifier")
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] != "timeout" {
			continue
		}

		n, err := strconv.ParseUint(kv[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid session timeout: %w", err)
		}
		u := uint(n)
		hs.Timeout = &u
	}

	return hs, nil
}

// Write encodes the Session header.
func (hs *Session) Write() string {
	v := hs.ID
	if hs.Timeout != nil {
		v += ";timeout=" + strconv.FormatUint(uint64(*hs.Timeout), 10)
	}
	return v
}
