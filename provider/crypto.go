package provider

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// TokenEncryptor provides AES-GCM encryption for tokens at rest. Every
// encryption uses a fresh random nonce, so encrypting the same token twice
// yields different ciphertext; decryption recovers the original string.
type TokenEncryptor struct {
	secretKey string
}

// NewTokenEncryptor creates a token encryptor keyed by the given secret
func NewTokenEncryptor(secretKey string) *TokenEncryptor {
	return &TokenEncryptor{secretKey: secretKey}
}

// Encrypt encrypts a token using AES-GCM and returns the nonce-prefixed
// ciphertext base64-encoded
func (e *TokenEncryptor) Encrypt(token string) (string, error) {
	key := e.deriveEncryptionKey()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// Fresh nonce per call
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(token), nil)

	combined := append(nonce, ciphertext...)
	return base64.URLEncoding.EncodeToString(combined), nil
}

// Decrypt recovers the original token from an encrypted representation.
// Any malformed input resolves to a token decryption error so a rotated or
// wrong key is diagnosable, distinct from ordinary gateway failures.
func (e *TokenEncryptor) Decrypt(encrypted string) (string, error) {
	key := e.deriveEncryptionKey()

	combined, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", NewTokenDecryptionError("encrypted token is not valid base64", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(combined) < gcm.NonceSize() {
		return "", NewTokenDecryptionError("encrypted token too short", nil)
	}

	nonce := combined[:gcm.NonceSize()]
	ciphertext := combined[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", NewTokenDecryptionError("failed to decrypt token", err)
	}

	return string(plaintext), nil
}

// deriveEncryptionKey derives a 32-byte encryption key from the secret
func (e *TokenEncryptor) deriveEncryptionKey() []byte {
	hash := sha256.Sum256([]byte(e.secretKey + "-token-encryption-v1"))
	return hash[:]
}

// EncryptedTokenStore decorates a TokenStore with at-rest encryption.
// Tokens are encrypted before the inner store sees them and decrypted on
// the way out; a ciphertext the key cannot open surfaces as a token
// decryption error rather than a silent miss.
type EncryptedTokenStore struct {
	inner     TokenStore
	encryptor *TokenEncryptor
}

// NewEncryptedTokenStore wraps store so values rest encrypted under the
// encryptor's key
func NewEncryptedTokenStore(store TokenStore, encryptor *TokenEncryptor) *EncryptedTokenStore {
	return &EncryptedTokenStore{inner: store, encryptor: encryptor}
}

// Get retrieves and decrypts a stored token
func (s *EncryptedTokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	encrypted, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}

	token, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Set encrypts and stores a token
func (s *EncryptedTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	encrypted, err := s.encryptor.Encrypt(token)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, encrypted, ttl)
}

// Delete removes a token
func (s *EncryptedTokenStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Clear removes all tokens
func (s *EncryptedTokenStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// Stats returns the inner store's statistics
func (s *EncryptedTokenStore) Stats() CacheStats {
	return s.inner.Stats()
}
