// Package crypto implements the one-shot encrypt/decrypt contract used by the
// encryption storage layer. Keys are derived from a caller secret via PBKDF2
// and payloads are sealed under an authenticated cipher, either AES-GCM
// (default) or XSalsa20-Poly1305.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifies the cipher used to seal a payload.
type Algorithm string

const (
	// AlgorithmAESGCM seals with AES-256 in Galois/Counter mode.
	AlgorithmAESGCM Algorithm = "AES-GCM"
	// AlgorithmXSalsa20 seals with XSalsa20-Poly1305 (nacl secretbox).
	AlgorithmXSalsa20 Algorithm = "XSalsa20"
)

const (
	// DefaultIterations is the PBKDF2 work factor.
	DefaultIterations = 10000

	keySize          = 32
	saltSize         = 16
	secretboxIVSize  = 24
	secretboxKeySize = 32
)

var (
	// ErrEmptySecret is returned when the caller supplies no secret. This is
	// a configuration error and fails fast on both encrypt and decrypt.
	ErrEmptySecret = errors.New("crypto: secret is required")
	// ErrAlgorithmMismatch is returned when the stored envelope names a
	// different cipher than the one the caller expects.
	ErrAlgorithmMismatch = errors.New("crypto: envelope algorithm mismatch")
	// ErrDecrypt is the single opaque failure for wrong-key, corrupted
	// ciphertext and malformed envelopes. The caller cannot act differently
	// in any of those cases, so no distinction is surfaced.
	ErrDecrypt = errors.New("crypto: failed to decrypt: check secret")
)

// Envelope is the serialized form of an encrypted blob. It exists only
// transiently around a transport write/read and is never partially persisted.
type Envelope struct {
	Salt       string    `json:"salt"`
	IV         string    `json:"iv"`
	Ciphertext string    `json:"ciphertext"`
	Algorithm  Algorithm `json:"algorithm"`
}

// Options tune a single encrypt or decrypt call.
type Options struct {
	// Algorithm selects the cipher; AES-GCM when empty.
	Algorithm Algorithm
	// Iterations overrides the PBKDF2 work factor; DefaultIterations when 0.
	Iterations int
	// Salt pins the key-derivation salt. A fresh random salt is generated
	// per call when nil.
	Salt []byte
	// IV pins the cipher nonce. A fresh random nonce is generated per call
	// when nil.
	IV []byte
}

// Option amends call options.
type Option func(*Options)

// WithAlgorithm selects the cipher for encrypt, or the expected cipher for decrypt.
func WithAlgorithm(alg Algorithm) Option {
	return func(o *Options) { o.Algorithm = alg }
}

// WithIterations overrides the PBKDF2 work factor.
func WithIterations(n int) Option {
	return func(o *Options) { o.Iterations = n }
}

// WithSalt pins the key-derivation salt instead of generating one.
func WithSalt(salt []byte) Option {
	return func(o *Options) { o.Salt = salt }
}

// WithIV pins the cipher nonce instead of generating one.
func WithIV(iv []byte) Option {
	return func(o *Options) { o.IV = iv }
}

func buildOptions(opts []Option) Options {
	settings := Options{}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Algorithm == "" {
		settings.Algorithm = AlgorithmAESGCM
	}
	if settings.Iterations <= 0 {
		settings.Iterations = DefaultIterations
	}
	return settings
}

// Encrypt seals plaintext under a key derived from secret and returns the
// JSON envelope as the stored blob. Salt and IV are regenerated on every call
// unless pinned through options, so two encryptions of the same plaintext
// produce different blobs.
func Encrypt(plaintext, secret string, opts ...Option) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	settings := buildOptions(opts)

	salt := settings.Salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return "", fmt.Errorf("crypto: salt: %w", err)
		}
	}
	key := deriveKey(secret, salt, settings.Iterations)

	var sealed []byte
	var iv []byte
	var err error
	switch settings.Algorithm {
	case AlgorithmAESGCM:
		sealed, iv, err = sealGCM(key, settings.IV, []byte(plaintext))
	case AlgorithmXSalsa20:
		sealed, iv, err = sealSecretbox(key, settings.IV, []byte(plaintext))
	default:
		return "", fmt.Errorf("crypto: unsupported algorithm %q", settings.Algorithm)
	}
	if err != nil {
		return "", err
	}

	envelope := Envelope{
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Algorithm:  settings.Algorithm,
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("crypto: marshal envelope: %w", err)
	}
	return string(blob), nil
}

// Decrypt opens a blob produced by Encrypt. The secret must be non-empty and
// the envelope's algorithm must match the expected one (AES-GCM unless
// overridden). All other failures collapse into ErrDecrypt.
func Decrypt(blob, secret string, opts ...Option) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	settings := buildOptions(opts)

	var envelope Envelope
	if err := json.Unmarshal([]byte(blob), &envelope); err != nil {
		return "", ErrDecrypt
	}
	if envelope.Algorithm != settings.Algorithm {
		return "", ErrAlgorithmMismatch
	}

	salt, err := hex.DecodeString(envelope.Salt)
	if err != nil {
		return "", ErrDecrypt
	}
	iv, err := hex.DecodeString(envelope.IV)
	if err != nil {
		return "", ErrDecrypt
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}

	key := deriveKey(secret, salt, settings.Iterations)

	var plain []byte
	switch envelope.Algorithm {
	case AlgorithmAESGCM:
		plain, err = openGCM(key, iv, sealed)
	case AlgorithmXSalsa20:
		plain, err = openSecretbox(key, iv, sealed)
	default:
		return "", ErrDecrypt
	}
	if err != nil {
		return "", ErrDecrypt
	}
	// A wrong key under some cipher configurations yields an empty string
	// instead of an open failure, so empty output is treated as failure.
	if len(plain) == 0 {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func deriveKey(secret string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), salt, iterations, keySize, sha256.New)
}

func sealGCM(key, iv, plaintext []byte) (sealed, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	nonce = iv
	if nonce == nil {
		nonce = make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, nil, fmt.Errorf("crypto: nonce: %w", err)
		}
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, nil, fmt.Errorf("crypto: nonce must be %d bytes", gcm.NonceSize())
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func openGCM(key, iv, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, errors.New("bad nonce size")
	}
	return gcm.Open(nil, iv, sealed, nil)
}

func sealSecretbox(key, iv, plaintext []byte) (sealed, nonce []byte, err error) {
	nonce = iv
	if nonce == nil {
		nonce = make([]byte, secretboxIVSize)
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, nil, fmt.Errorf("crypto: nonce: %w", err)
		}
	}
	if len(nonce) != secretboxIVSize {
		return nil, nil, fmt.Errorf("crypto: nonce must be %d bytes", secretboxIVSize)
	}
	var nonceArr [secretboxIVSize]byte
	var keyArr [secretboxKeySize]byte
	copy(nonceArr[:], nonce)
	copy(keyArr[:], key)
	return secretbox.Seal(nil, plaintext, &nonceArr, &keyArr), nonce, nil
}

func openSecretbox(key, iv, sealed []byte) ([]byte, error) {
	if len(iv) != secretboxIVSize {
		return nil, errors.New("bad nonce size")
	}
	var nonceArr [secretboxIVSize]byte
	var keyArr [secretboxKeySize]byte
	copy(nonceArr[:], iv)
	copy(keyArr[:], key)
	plain, ok := secretbox.Open(nil, sealed, &nonceArr, &keyArr)
	if !ok {
		return nil, errors.New("secretbox open failed")
	}
	return plain, nil
}
