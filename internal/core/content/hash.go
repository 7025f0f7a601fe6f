// Package content computes the content-addressed identity of document text.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// EmptyDigest is the SHA-224 digest of the empty byte string. Missing or
// unencodable text hashes to this value.
const EmptyDigest = "d14a028c2a3a2bc9476102bb288234c415a2b01f828ea62ac5b3e42f"

// Digest returns the lowercase hex SHA-224 digest of b.
func Digest(b []byte) string {
	sum := sha256.Sum224(b)
	return hex.EncodeToString(sum[:])
}

type Hasher struct {
	Logger logrus.FieldLogger
}

func NewHasher(logger logrus.FieldLogger) *Hasher {
	return &Hasher{Logger: logger}
}

// Hash returns the digest of the UTF-8 encoding of raw. A nil raw or text
// that is not valid UTF-8 is replaced by the empty byte string and logged;
// ok is false when that substitution happened.
func (h *Hasher) Hash(raw *string) (digest string, ok bool) {
	if raw == nil {
		h.warn("missing text, hashing empty content")
		return EmptyDigest, false
	}
	if !utf8.ValidString(*raw) {
		h.warn("unable to encode text as UTF-8, hashing empty content")
		return EmptyDigest, false
	}
	return Digest([]byte(*raw)), true
}

func (h *Hasher) warn(msg string) {
	if h.Logger == nil {
		return
	}
	h.Logger.WithField("action", "hash_content").Warn(msg)
}
