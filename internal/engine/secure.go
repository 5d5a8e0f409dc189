package engine

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const secretSalt = "mango-runner/secure-store/v1"

// SecretBox encrypts values of the secure store kind.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives the store key from passphrase.
func NewSecretBox(passphrase string) (*SecretBox, error) {
	key := argon2.IDKey([]byte(passphrase), []byte(secretSalt), 2, 19*1024, 1, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal encrypts plaintext bound to the slot named by ad.
func (s *SecretBox) Seal(plaintext []byte, ad string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(ad)), nil
}

// Open decrypts a value produced by Seal for the same slot.
func (s *SecretBox) Open(ciphertext []byte, ad string) ([]byte, error) {
	if len(ciphertext) < s.aead.NonceSize() {
		return nil, errors.New("secure value is truncated")
	}
	nonce, data := ciphertext[:s.aead.NonceSize()], ciphertext[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, data, []byte(ad))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secure value: %w", err)
	}
	return plaintext, nil
}
