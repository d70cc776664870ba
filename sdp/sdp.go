// Package sdp turns a DESCRIBE response body into the list of track
// drafts the session controller turns into Tracks during SETUP. It is a
// thin layer over pion/sdp/v3: parsing follows RFC 4566 via
// psdp.SessionDescription.Unmarshal, but only m=/a=rtpmap/a=control/
// a=fmtp are interpreted — everything else is tolerated and ignored,
// matching real-world camera firmware that emits attributes beyond the
// RFC.
package sdp

import (
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

// TrackKind is the media kind of an SDP m= line that matters to this
// client. Anything else (application, text, ...) is skipped during
// parsing.
type TrackKind string

// track kinds.
const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// Draft is one media description accepted from an SDP body: enough to
// build a Track during SETUP, but with no sockets or negotiated server
// ports yet.
type Draft struct {
	Kind        TrackKind
	PayloadType uint8
	Codec       string
	ClockRate   int
	Channels    int
	Control     string // verbatim a=control value, resolved later against the request URL
	FMTP        string // opaque a=fmtp value, passed through to a downstream decoder
}

// Parse decodes an SDP body into an ordered list of track drafts. An
// empty result (no video or audio media description survives filtering)
// is a hard error.
func Parse(body []byte) ([]Draft, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("invalid SDP: %w", err)
	}

	var drafts []Draft

	for _, md := range sd.MediaDescriptions {
		kind := TrackKind(md.MediaName.Media)
		if kind != KindVideo && kind != KindAudio {
			continue
		}

		if len(md.MediaName.Formats) == 0 {
			continue
		}

		ptVal, err := strconv.ParseUint(md.MediaName.Formats[0], 10, 8)
		if err != nil {
			continue
		}
		pt := uint8(ptVal)

		draft := Draft{
			Kind:        kind,
			PayloadType: pt,
			ClockRate:   rtpmapDefaultClockRate(pt),
		}

		for _, attr := range md.Attributes {
			switch attr.Key {
			case "rtpmap":
				if codec, rate, channels, ok := parseRTPMap(attr.Value, pt); ok {
					draft.Codec = codec
					draft.ClockRate = rate
					draft.Channels = channels
				}

			case "control":
				draft.Control = attr.Value

			case "fmtp":
				if fmtp, ok := parseFMTP(attr.Value, pt); ok {
					draft.FMTP = fmtp
				}
			}
			// any other a= line (recvonly, range, framerate, ...) is ignored
		}

		drafts = append(drafts, draft)
	}

	if len(drafts) == 0 {
		return nil, fmt.Errorf("SDP contains no usable video or audio media")
	}

	return drafts, nil
}

// rtpmapDefaultClockRate returns the fixed clock rate of the RTP/AVP
// static payload types that predate rtpmap (RFC 3551), so a track is
// still usable when a server omits an explicit rtpmap line.
func rtpmapDefaultClockRate(pt uint8) int {
	switch pt {
	case 0, 8: // PCMU, PCMA
		return 8000
	case 26: // MJPEG
		return 90000
	case 32: // MPV
		return 90000
	case 33: // MP2T
		return 90000
	default:
		return 0
	}
}

// parseRTPMap parses "a=rtpmap:<pt> <codec>/<rate>[/<channels>]" and
// reports whether it applies to pt.
func parseRTPMap(value string, pt uint8) (codec string, rate int, channels int, ok bool) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return "", 0, 0, false
	}

	mapPT, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || uint8(mapPT) != pt {
		return "", 0, 0, false
	}

	fields := strings.Split(parts[1], "/")
	codec = fields[0]
	if len(fields) > 1 {
		if r, err := strconv.Atoi(fields[1]); err == nil {
			rate = r
		}
	}
	if len(fields) > 2 {
		if c, err := strconv.Atoi(fields[2]); err == nil {
			channels = c
		}
	}

	return codec, rate, channels, true
}

// parseFMTP parses "a=fmtp:<pt> <params>" and reports whether it applies
// to pt. The params themselves are kept opaque, for a downstream decoder
// to interpret.
func parseFMTP(value string, pt uint8) (string, bool) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	fmtpPT, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || uint8(fmtpPT) != pt {
		return "", false
	}

	return parts[1], true
}
