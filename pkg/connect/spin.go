package connect

import (
	"crypto/sha512"
	"encoding/hex"
)

// SPINAction identifies a privileged operation that requires a security-PIN
// challenge before the backend accepts it.
type SPINAction string

const (
	SPINLock    SPINAction = "lock"
	SPINUnlock  SPINAction = "unlock"
	SPINHeating SPINAction = "heating"
	SPINTimer   SPINAction = "timer"
	SPINClimate SPINAction = "rclima"
)

// HashPIN derives the challenge response for the security-PIN exchange: the
// SHA-512 digest over the PIN bytes followed by the challenge bytes, both
// interpreted as hex strings, returned hex-encoded. The backend issues a fresh
// challenge per exchange, so equal PINs never produce reusable hashes across
// requests.
func HashPIN(spin, challenge string) (string, error) {
	if spin == "" {
		return "", ErrInvalidPIN
	}
	pinBytes, err := hex.DecodeString(spin)
	if err != nil {
		return "", ErrInvalidPIN
	}
	challengeBytes, err := hex.DecodeString(challenge)
	if err != nil {
		return "", &SecurityTokenExchangeError{Message: "challenge is not a hex string"}
	}
	sum := sha512.Sum512(append(pinBytes, challengeBytes...))
	return hex.EncodeToString(sum[:]), nil
}
