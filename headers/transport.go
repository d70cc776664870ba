package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// Transport is a parsed Transport header, restricted to the fields a
// unicast-UDP-only client needs.
type Transport struct {
	Interleaved bool
	ClientPorts *[2]int
	ServerPorts *[2]int
}

func parsePortPair(val string) (*[2]int, error) {
	parts := strings.Split(val, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid port pair %q", val)
	}

	p1, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid port pair %q", val)
	}
	p2, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid port pair %q", val)
	}

	return &[2]int{p1, p2}, nil
}

// ReadTransport parses a Transport header value.
func ReadTransport(v string) (*Transport, error) {
	if v == "" {
		return nil, fmt.Errorf("empty Transport header")
	}

	h := &Transport{}

	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)

		switch {
		case part == "RTP/AVP", part == "RTP/AVP/UDP", part == "unicast", part == "multicast":
			// protocol / delivery tokens: nothing to record for this profile

		case strings.HasPrefix(part, "client_port="):
			ports, err := parsePortPair(part[len("client_port="):])
			if err != nil {
				return nil, err
			}
			h.ClientPorts = ports

		case strings.HasPrefix(part, "server_port="):
			ports, err := parsePortPair(part[len("server_port="):])
			if err != nil {
				return nil, err
			}
			h.ServerPorts = ports

		case strings.HasPrefix(part, "interleaved="):
			h.Interleaved = true
		}
		// other keys (ssrc, mode, ttl, destination...) are ignored
	}

	return h, nil
}

// WriteUnicastUDP encodes the client-side Transport header sent with
// SETUP for a unicast UDP pair of ports.
func WriteUnicastUDP(clientRTPPort, clientRTCPPort int) string {
	return fmt.Sprintf("RTP/AVP/UDP;unicast;client_port=%d-%d", clientRTPPort, clientRTCPPort)
}
