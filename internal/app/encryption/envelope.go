// Package encryption is the Encryption Collaborator: it derives a per-record
// key from a master key plus a subject (a credential ID) via HKDF and seals
// plaintext with AES-256-GCM. Only ciphertext is ever persisted.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const envelopeVersionPrefix = "v1:"

// Collaborator seals and opens Credential plaintext fields under a single
// master key loaded at startup (from config or an environment secret).
type Collaborator struct {
	masterKey []byte
}

// New returns a Collaborator bound to masterKey, which must be 32 bytes.
func New(masterKey []byte) (*Collaborator, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("encryption: master key must be 32 bytes, got %d", len(masterKey))
	}
	return &Collaborator{masterKey: masterKey}, nil
}

func (c *Collaborator) deriveKey(subject []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, c.masterKey, subject, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func envelopeAAD(subject []byte, info string) []byte {
	aad := make([]byte, 0, len(info)+1+len(subject))
	aad = append(aad, info...)
	aad = append(aad, 0)
	aad = append(aad, subject...)
	return aad
}

// Seal encrypts plaintext under a key derived from subject+info. The output
// is ASCII-safe: "v1:" + base64url(nonce|ciphertext). Empty plaintext yields
// an empty string rather than an envelope, so an empty secret and "no secret
// captured" are stored the same way.
func (c *Collaborator) Seal(subject []byte, info string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	key, err := c.deriveKey(subject, info)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	aad := envelopeAAD(subject, info)
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)

	return envelopeVersionPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Open decrypts an envelope previously produced by Seal.
func (c *Collaborator) Open(subject []byte, info string, envelope string) ([]byte, error) {
	envelope = strings.TrimSpace(envelope)
	if envelope == "" {
		return nil, nil
	}
	encoded := strings.TrimPrefix(envelope, envelopeVersionPrefix)

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	key, err := c.deriveKey(subject, info)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("envelope too short")
	}

	nonce := raw[:aead.NonceSize()]
	body := raw[aead.NonceSize():]
	aad := envelopeAAD(subject, info)

	plaintext, err := aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plaintext, nil
}
