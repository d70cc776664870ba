package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RekadzeAV/rtspcam/base"
	"github.com/RekadzeAV/rtspcam/headers"
)

func TestBasicHeaderMatchesRFC(t *testing.T) {
	c := NewClient(&headers.Authenticate{Method: headers.AuthBasic, Realm: "x"}, "alice", "secret")

	u, err := base.ParseURL("rtsp://192.168.1.1/cam/1")
	require.NoError(t, err)

	h, err := c.Header(base.Describe, u)
	require.NoError(t, err)
	require.Equal(t, "Basic YWxpY2U6c2VjcmV0", h)
}

func TestDigestHeaderWithoutQOP(t *testing.T) {
	c := NewClient(&headers.Authenticate{
		Method: headers.AuthDigest,
		Realm:  "IP Camera",
		Nonce:  "abc123",
	}, "admin", "pass")

	u, err := base.ParseURL("rtsp://192.168.1.1/cam/1")
	require.NoError(t, err)

	h, err := c.Header(base.Setup, u)
	require.NoError(t, err)
	require.Contains(t, h, "Digest username=\"admin\"")
	require.Contains(t, h, `realm="IP Camera"`)
	require.Contains(t, h, `nonce="abc123"`)
	require.NotContains(t, h, "qop=")
}

func TestDigestHeaderWithQOPIncludesCNonce(t *testing.T) {
	c := NewClient(&headers.Authenticate{
		Method: headers.AuthDigest,
		Realm:  "IP Camera",
		Nonce:  "abc123",
		QOP:    "auth",
	}, "admin", "pass")

	u, err := base.ParseURL("rtsp://192.168.1.1/cam/1")
	require.NoError(t, err)

	h, err := c.Header(base.Setup, u)
	require.NoError(t, err)
	require.Contains(t, h, "qop=auth")
	require.Contains(t, h, "nc=00000001")
	require.Contains(t, h, "cnonce=")
}
