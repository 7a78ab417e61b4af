package common

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealedPrefix = "v1."
	sealerInfo   = "classmeet calendar credential"
)

var ErrSealedValueInvalid = errors.New("sealed value invalid")

// CalculateHash returns the hex HMAC-SHA256 of the inputs under key, each
// input length-prefixed so ("ab","c") and ("a","bc") differ.
func CalculateHash(key string, inputs ...string) string {
	if len(inputs) == 0 {
		return ""
	}
	h := hmac.New(sha256.New, []byte(key))
	for _, val := range inputs {
		fmt.Fprintf(h, "%d:", len(val))
		h.Write([]byte(val))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func GenerateSecret(n int) (string, error) {
	// each 3 bytes → 4 Base64 chars
	rawSize := (n*3 + 3) / 4
	raw := make([]byte, rawSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	return secret[:n], nil
}

// TokenFingerprint returns a short keyed digest that identifies a token in
// logs without revealing it. Without the key, fingerprints of guessed tokens
// cannot be matched against the logs.
func TokenFingerprint(key, token string) string {
	if token == "" {
		return ""
	}
	return CalculateHash(key, token)[:12]
}

// Sealer encrypts credential fields at rest with XChaCha20-Poly1305 using a
// key derived from the master key. A Sealer without a key passes values through.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(masterKey string) (*Sealer, error) {
	if masterKey == "" {
		return &Sealer{}, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.Enabled() || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is so
// rows written before sealing was enabled stay readable.
func (s *Sealer) Open(value string) (string, error) {
	if !s.Enabled() || !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedValueInvalid, err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize+s.aead.Overhead() {
		return "", ErrSealedValueInvalid
	}
	plaintext, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealedValueInvalid, err)
	}
	return string(plaintext), nil
}
