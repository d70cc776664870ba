package headers

import "fmt"

// Authorization encodes an outgoing Authorization header. Digest fields
// are populated only when Method is AuthDigest.
type Authorization struct {
	Method   AuthMethod
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
	QOP      string
	NC       string
	CNonce   string
	Opaque   string
}

// Write encodes the Authorization header value.
func (a Authorization) Write() string {
	if a.Method == AuthBasic {
		return "Basic " + a.Response
	}

	v := fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		a.Username, a.Realm, a.Nonce, a.URI, a.Response)

	if a.Opaque != "" {
		v += fmt.Sprintf(`, opaque="%s"`, a.Opaque)
	}
	if a.QOP != "" {
		v += fmt.Sprintf(`, qop=%s, nc=%s, cnonce="%s"`, a.QOP, a.NC, a.CNonce)
	}

	return v
}
