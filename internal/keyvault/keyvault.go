package keyvault

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrInvalidCiphertext = errors.New("keyvault: invalid ciphertext")

// Sealer encrypts license key payloads at rest. Keys are only opened when composing
// the delivery email after a paid order.
type Sealer struct {
	aeadKey []byte
}

// NewSealer expects a hex-encoded 256-bit key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("keyvault: key must be hex encoded: %w", err)
	}

	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("keyvault: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	return &Sealer{aeadKey: key}, nil
}

func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.aeadKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	_, err = rand.Read(nonce)
	if err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (s *Sealer) Open(ciphertext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(s.aeadKey)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	return string(plaintext), nil
}
