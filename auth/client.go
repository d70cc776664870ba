// Package auth implements the client side of RTSP authentication: it
// turns a WWW-Authenticate challenge plus a set of credentials into the
// Authorization header value for a retried request.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/RekadzeAV/rtspcam/base"
	"github.com/RekadzeAV/rtspcam/headers"
)

// Client authenticates requests on a single control channel once a
// challenge has been seen. It is immutable after construction; a new
// Client is built from each 401 response.
type Client struct {
	user string
	pass string

	method headers.AuthMethod
	realm  string
	nonce  string
	qop    string
	opaque string
}

// NewClient builds a Client from a WWW-Authenticate challenge and a set
// of credentials.
func NewClient(challenge *headers.Authenticate, user, pass string) *Client {
	return &Client{
		user:   user,
		pass:   pass,
		method: challenge.Method,
		realm:  challenge.Realm,
		nonce:  challenge.Nonce,
		qop:    challenge.QOP,
		opaque: challenge.Opaque,
	}
}

func md5Hex(in string) string {
	sum := md5.Sum([]byte(in))
	return hex.EncodeToString(sum[:])
}

func randomCNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Header computes the Authorization header value for the given request
// method and target URL. For Digest with qop=auth it generates a fresh
// cnonce on every call and always sends nc "00000001"; the nonce count
// does not advance when the same Client signs several requests.
func (c *Client) Header(method base.Method, url *base.URL) (string, error) {
	uri := url.WithoutCredentials()

	switch c.method {
	case headers.AuthBasic:
		enc := base64.StdEncoding.EncodeToString([]byte(c.user + ":" + c.pass))
		return (headers.Authorization{Method: headers.AuthBasic, Response: enc}).Write(), nil

	case headers.AuthDigest:
		ha1 := md5Hex(c.user + ":" + c.realm + ":" + c.pass)
		ha2 := md5Hex(string(method) + ":" + uri)

		out := headers.Authorization{
			Method:   headers.AuthDigest,
			Username: c.user,
			Realm:    c.realm,
			Nonce:    c.nonce,
			URI:      uri,
			Opaque:   c.opaque,
		}

		if c.qop == "auth" {
			cnonce, err := randomCNonce()
			if err != nil {
				return "", fmt.Errorf("generating cnonce: %w", err)
			}

			const nc = "00000001"
			out.QOP = "auth"
			out.NC = nc
			out.CNonce = cnonce
			out.Response = md5Hex(ha1 + ":" + c.nonce + ":" + nc + ":" + cnonce + ":auth:" + ha2)
		} else {
			out.Response = md5Hex(ha1 + ":" + c.nonce + ":" + ha2)
		}

		return out.Write(), nil
	}

	return "", fmt.Errorf("unsupported authentication method")
}
