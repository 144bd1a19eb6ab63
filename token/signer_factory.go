package token

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACKeyLength is the shortest secret accepted for HMAC signing.
const MinHMACKeyLength = 32

// NewSigner builds the signer for the configured algorithm. HMAC algorithms use
// secret; RS256 and ES256 use the PEM-encoded private key.
func NewSigner(algorithm, secret, privateKeyPEM string) (Signer, error) {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "", "HS512":
		return newHMAC(secret, jwt.SigningMethodHS512)
	case "HS256":
		return newHMAC(secret, jwt.SigningMethodHS256)
	case "RS256", "ES256":
		if strings.TrimSpace(privateKeyPEM) == "" {
			return nil, fmt.Errorf("%s requires a private key", algorithm)
		}
		keyPair, err := LoadKeyPairFromPEM("default", privateKeyPEM, strings.ToUpper(algorithm))
		if err != nil {
			return nil, err
		}
		return NewKeyPairSigner(keyPair), nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", algorithm)
	}
}

func newHMAC(secret string, method *jwt.SigningMethodHMAC) (Signer, error) {
	if len(secret) < MinHMACKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakKey, MinHMACKeyLength)
	}
	return NewHMACSigner(secret, method), nil
}
