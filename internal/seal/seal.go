package seal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	gojose "github.com/go-jose/go-jose/v4"
)

// ErrMalformed is returned when a sealed value cannot be opened.
var ErrMalformed = errors.New("seal: malformed value")

// Sealer encrypts short cookie values as compact JWE (dir + A256GCM).
// A Sealer with no key passes values through unchanged.
type Sealer struct {
	key []byte
}

// NewSealer derives a 256-bit content key from secret. An empty secret
// yields a pass-through sealer.
func NewSealer(secret string) *Sealer {
	if strings.TrimSpace(secret) == "" {
		return &Sealer{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &Sealer{key: sum[:]}
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Seal encrypts value and returns the compact serialization.
func (s *Sealer) Seal(value string) (string, error) {
	if !s.Enabled() {
		return value, nil
	}
	enc, err := gojose.NewEncrypter(
		gojose.A256GCM,
		gojose.Recipient{Algorithm: gojose.DIRECT, Key: s.key},
		(&gojose.EncrypterOptions{}).WithContentType("text/plain"),
	)
	if err != nil {
		return "", fmt.Errorf("new encrypter: %w", err)
	}
	obj, err := enc.Encrypt([]byte(value))
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	out, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwe: %w", err)
	}
	return out, nil
}

// Open reverses Seal. Tampered or foreign values yield ErrMalformed.
func (s *Sealer) Open(sealed string) (string, error) {
	if !s.Enabled() {
		return sealed, nil
	}
	obj, err := gojose.ParseEncrypted(sealed,
		[]gojose.KeyAlgorithm{gojose.DIRECT},
		[]gojose.ContentEncryption{gojose.A256GCM},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	plain, err := obj.Decrypt(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plain), nil
}
