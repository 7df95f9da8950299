// Package cryptox seals vault payloads on the client side. The server only
// ever sees the ciphertext and nonce produced here.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length used throughout.
const KeySize = 32

var ErrKeySize = errors.New("cryptox: key must be 32 bytes")

// DeriveKey stretches a password into a vault key with Argon2id.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-GCM under a fresh random nonce.
func Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open reverses Seal.
func Open(ciphertext, nonce, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

// SealJSON serializes v to JSON and seals it.
func SealJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return Seal(plaintext, key)
}

// OpenJSON opens ciphertext and unmarshals the JSON inside into v.
func OpenJSON(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Open(ciphertext, nonce, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// SealedBlob is an attachment sealed under its own random key. The key and
// nonce travel inside the owning record's encrypted payload.
type SealedBlob struct {
	Ciphertext []byte `json:"-"`
	Key        []byte `json:"key"`
	Nonce      []byte `json:"nonce"`
}

// SealBlob encrypts an attachment under a freshly generated key.
func SealBlob(plaintext []byte) (*SealedBlob, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	ciphertext, nonce, err := Seal(plaintext, key)
	if err != nil {
		return nil, err
	}
	return &SealedBlob{Ciphertext: ciphertext, Key: key, Nonce: nonce}, nil
}
