// Package base contains the wire-level primitives of the RTSP protocol:
// the URL form, methods, status codes, headers, and request/response
// framing. Nothing in this package understands sessions or tracks.
package base

import (
	"bufio"
	"fmt"
)

func readByteEqual(rb *bufio.Reader, cmp byte) error {
	byt, err := rb.ReadByte()
	if err != nil {
		return err
	}

	if byt != cmp {
		return fmt.Errorf("expected '%c', got '%c'", cmp, byt)
	}

	return nil
}

// readBytesLimited reads from rb until delim is found, refusing to read
// more than n bytes, so a server that never terminates a line cannot make
// the client buffer unbounded memory.
func readBytesLimited(rb *bufio.Reader, delim byte, n int) ([]byte, error) {
	for i := 1; i <= n; i++ {
		byts, err := rb.Peek(i)
		if err != nil {
			return nil, err
		}

		if byts[len(byts)-1] == delim {
			rb.Discard(len(byts)) //nolint:errcheck
			return byts, nil
		}
	}
	return nil, fmt.Errorf("buffer length exceeds %d", n)
}
