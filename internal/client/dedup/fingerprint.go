package dedup

import (
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Descriptor describes one HTTP operation. Header does not take part in
// the fingerprint.
type Descriptor struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (d Descriptor) method() string {
	if d.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(d.Method)
}

// Fingerprint returns "METHOD:URL:DIGEST" where DIGEST is the hex BLAKE2b-256
// of the body, or empty for an empty body.
func Fingerprint(d Descriptor) string {
	digest := ""
	if len(d.Body) > 0 {
		sum := blake2b.Sum256(d.Body)
		digest = hex.EncodeToString(sum[:])
	}
	return d.method() + ":" + d.URL + ":" + digest
}
