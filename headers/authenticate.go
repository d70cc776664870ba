package headers

import (
	"fmt"
	"strings"
)

// AuthMethod is the authentication scheme offered by a server or used by
// a client.
type AuthMethod int

// supported methods: Basic, and Digest (RFC 2617) with qop=auth.
const (
	AuthBasic AuthMethod = iota
	AuthDigest
)

// Authenticate is a parsed WWW-Authenticate header.
type Authenticate struct {
	Method AuthMethod
	Realm  string
	Nonce  string
	QOP    string // "auth" when the server offers qop=auth, else empty
	Opaque string
}

// ReadAuthenticate parses the (possibly multi-valued, Basic-and-Digest)
// WWW-Authenticate header of a 401 response, preferring Digest when both
// are offered.
func ReadAuthenticate(values []string) (*Authenticate, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	var digestLine, basicLine string
	for _, v := range values {
		switch {
		case strings.HasPrefix(v, "Digest "):
			digestLine = v
		case strings.HasPrefix(v, "Basic "):
			basicLine = v
		}
	}

	if digestLine != "" {
		kvs, err := keyValParse(strings.TrimPrefix(digestLine, "Digest "), ',')
		if err != nil {
			return nil, err
		}

		realm, ok := kvs["realm"]
		if !ok {
			return nil, fmt.Errorf("realm not provided")
		}
		nonce, ok := kvs["nonce"]
		if !ok {
			return nil, fmt.Errorf("nonce not provided")
		}

		return &Authenticate{
			Method: AuthDigest,
			Realm:  realm,
			Nonce:  nonce,
			QOP:    kvs["qop"],
			Opaque: kvs["opaque"],
		}, nil
	}

	if basicLine != "" {
		kvs, err := keyValParse(strings.TrimPrefix(basicLine, "Basic "), ',')
		if err != nil {
			return nil, err
		}

		realm, ok := kvs["realm"]
		if !ok {
			return nil, fmt.Errorf("realm not provided")
		}

		return &Authenticate{Method: AuthBasic, Realm: realm}, nil
	}

	return nil, fmt.Errorf("no supported authentication method offered")
}
