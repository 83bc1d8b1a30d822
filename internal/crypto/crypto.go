// Package crypto seals vendor credentials at rest with AES-256-GCM.
//
// Sealed values carry the id of the key that produced them ("k2:BASE64"),
// so keys can be rotated without re-encrypting every row at once.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidKey is returned when a key is not 32 bytes
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes for AES-256")
	// ErrUnknownKey is returned when a sealed value names a key the keyring lacks
	ErrUnknownKey = errors.New("sealed with unknown key id")
	// ErrMalformed is returned for values that are not "<id>:<base64>"
	ErrMalformed = errors.New("malformed sealed value")
	// ErrDecryptionFailed is returned when decryption fails (tampered, wrong key or wrong binding)
	ErrDecryptionFailed = errors.New("decryption failed: data may be tampered or wrong key")
)

// Keyring holds every key that may have sealed a stored value and the one
// new values are sealed with.
type Keyring struct {
	primary string
	aeads   map[string]cipher.AEAD
}

// NewKeyring builds a keyring. primary must be one of keys.
func NewKeyring(primary string, keys map[string][]byte) (*Keyring, error) {
	if _, ok := keys[primary]; !ok {
		return nil, fmt.Errorf("primary key %q not in keyring", primary)
	}
	k := &Keyring{primary: primary, aeads: make(map[string]cipher.AEAD, len(keys))}
	for id, key := range keys {
		if id == "" || strings.Contains(id, ":") {
			return nil, fmt.Errorf("invalid key id %q", id)
		}
		aead, err := newAEAD(key)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		k.aeads[id] = aead
	}
	return k, nil
}

// NewSingleKey is a keyring with one key named "k1"
func NewSingleKey(key []byte) (*Keyring, error) {
	return NewKeyring("k1", map[string][]byte{"k1": key})
}

// ParseKeys reads "id=base64key,id2=base64key" as found in CREDENTIAL_KEYS.
func ParseKeys(s string) (map[string][]byte, error) {
	keys := make(map[string][]byte)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, b64, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("key entry %q: want id=base64", part)
		}
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("key %s: %w", id, ErrInvalidKey)
		}
		keys[strings.TrimSpace(id)] = raw
	}
	if len(keys) == 0 {
		return nil, errors.New("no keys configured")
	}
	return keys, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with the primary key. binding is authenticated but
// not stored; the same binding must be passed to Open. Credentials use
// "office/vendor" so a ciphertext copied to another row fails to open.
func (k *Keyring) Seal(plaintext, binding string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead := k.aeads[k.primary]

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(binding))
	return k.primary + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal using whichever key the value names
func (k *Keyring) Open(sealed, binding string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	id, b64, ok := strings.Cut(sealed, ":")
	if !ok {
		return "", ErrMalformed
	}
	aead, ok := k.aeads[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, id)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(binding))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// NeedsRotation reports whether sealed was produced by a non-primary key
func (k *Keyring) NeedsRotation(sealed string) bool {
	if sealed == "" {
		return false
	}
	id, _, _ := strings.Cut(sealed, ":")
	return id != k.primary
}

// Reseal opens sealed and seals it again under the primary key
func (k *Keyring) Reseal(sealed, binding string) (string, error) {
	plaintext, err := k.Open(sealed, binding)
	if err != nil {
		return "", err
	}
	return k.Seal(plaintext, binding)
}
