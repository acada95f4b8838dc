package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the length of every key in the hierarchy.
	KeySize = 32

	// MinIterations is the hard PBKDF2 floor. Requests below it are
	// rejected outright; there is no configuration override.
	MinIterations = 10_000

	// DefaultIterations is what callers should use absent a stronger
	// requirement.
	DefaultIterations = 100_000
)

var (
	ErrIterationFloor = errors.New("cryptox: iteration count below security floor")
	ErrEmptyPassword  = errors.New("cryptox: empty password")
	ErrEmptySalt      = errors.New("cryptox: empty salt")
	ErrBadKeySize     = errors.New("cryptox: key must be 32 bytes")
	ErrCiphertext     = errors.New("cryptox: ciphertext too short or corrupted")
)

// verifierMarker is the fixed plaintext sealed into a Verifier. Decrypting
// it successfully is the proof-of-password; its content carries no secret.
var verifierMarker = []byte("docsafe-key-verifier-v1")

// DeriveMasterKey stretches a password into a 32-byte master key with
// PBKDF2-HMAC-SHA256. It is deterministic: the same password, salt and
// iteration count always produce the same key, which is how a client
// re-derives the key the server never stored.
func DeriveMasterKey(password, salt []byte, iterations int) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d < %d", ErrIterationFloor, iterations, MinIterations)
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}

// DeriveSessionKey ratchets the master key into a per-session key via
// HKDF-SHA256, with the session id as context. One-way: the session key
// cannot recover the master key.
func DeriveSessionKey(masterKey []byte, sessionID string) ([]byte, error) {
	return ratchet(masterKey, "session", sessionID)
}

// DeriveDocumentKey ratchets a session key into a per-document key.
func DeriveDocumentKey(sessionKey []byte, documentID string) ([]byte, error) {
	return ratchet(sessionKey, "document", documentID)
}

func ratchet(parent []byte, level, id string) ([]byte, error) {
	if len(parent) != KeySize {
		return nil, ErrBadKeySize
	}
	if id == "" {
		return nil, fmt.Errorf("cryptox: empty %s id", level)
	}
	r := hkdf.New(sha256.New, parent, []byte(id), []byte("docsafe/"+level))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cryptox: hkdf expand: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM under key, prefixing the random
// nonce to the returned ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptox: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Any tampering or wrong key fails authentication.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return plaintext, nil
}

// Verifier is the persisted proof-of-password payload: the fixed marker
// sealed under a derived master key. Storing it reveals nothing about the
// key.
type Verifier struct {
	Payload []byte `json:"payload"`
}

// SealVerifier produces a Verifier for the given master key. Each call
// yields a distinct payload (fresh nonce); all of them open under the same
// key.
func SealVerifier(masterKey []byte) (Verifier, error) {
	sealed, err := Seal(masterKey, verifierMarker)
	if err != nil {
		return Verifier{}, err
	}
	return Verifier{Payload: sealed}, nil
}

// OpenVerifier reports whether masterKey is the key v was sealed under.
func OpenVerifier(masterKey []byte, v Verifier) bool {
	plaintext, err := Open(masterKey, v.Payload)
	if err != nil {
		return false
	}
	return bytes.Equal(plaintext, verifierMarker)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrBadKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
