package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// nonce returns an unpadded base64 SHA-256 digest over fresh random bytes, the
// shape the identity provider expects for the nonce and state parameters.
func nonce() (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}
	sum := sha256.Sum256(seed)
	return base64.RawStdEncoding.EncodeToString(sum[:]), nil
}
