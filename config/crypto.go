package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeyEnv names the environment variable holding the base64 config key.
const KeyEnv = "CONFIG_KEY"

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrMissingKey = errors.New("config key not set; export " + KeyEnv)
	ErrInvalidKey = errors.New("config key must be 32 bytes of standard base64")
	ErrDecrypt    = errors.New("config decryption failed")
)

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

func ParseKey(s string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

func KeyFromEnv() (*[keySize]byte, error) {
	v := os.Getenv(KeyEnv)
	if v == "" {
		return nil, ErrMissingKey
	}
	return ParseKey(v)
}

// Encrypt seals plaintext and returns base64(nonce || box).
func Encrypt(plaintext []byte, key *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, key)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func Decrypt(data []byte, key *[keySize]byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: wrong key or corrupted file", ErrDecrypt)
	}
	return plain, nil
}

// EncryptFile writes the sealed contents of src to dst.
func EncryptFile(src, dst string, key *[keySize]byte) error {
	plain, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	sealed, err := Encrypt(plain, key)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, sealed, 0o600)
}
