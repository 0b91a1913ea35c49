package provider

import (
	"context"
	"testing"
	"time"
)

func TestTokenEncryptorRoundTrip(t *testing.T) {
	encryptor := NewTokenEncryptor("test-secret-key")

	token := "eyJhbGciOiJIUzI1NiJ9.bearer-token-payload"
	encrypted, err := encryptor.Encrypt(token)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if encrypted == token {
		t.Error("Encrypted value must differ from the plaintext")
	}

	decrypted, err := encryptor.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != token {
		t.Errorf("Round trip mismatch: got %q, want %q", decrypted, token)
	}
}

func TestTokenEncryptorFreshNoncePerCall(t *testing.T) {
	encryptor := NewTokenEncryptor("test-secret-key")

	first, err := encryptor.Encrypt("same-token")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := encryptor.Encrypt("same-token")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if first == second {
		t.Error("Encrypting the same token twice must produce different ciphertexts")
	}
}

func TestTokenEncryptorWrongKey(t *testing.T) {
	encryptor := NewTokenEncryptor("correct-key")
	other := NewTokenEncryptor("wrong-key")

	encrypted, err := encryptor.Encrypt("token")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = other.Decrypt(encrypted)
	if err == nil {
		t.Fatal("Decrypting with the wrong key should fail")
	}
	if !IsKind(err, ErrKindTokenDecryption) {
		t.Errorf("Expected a token decryption error, got %v", err)
	}
}

func TestTokenEncryptorMalformedInput(t *testing.T) {
	encryptor := NewTokenEncryptor("test-secret-key")

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "this is not base64!!!"},
		{"too short", "YWJj"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encryptor.Decrypt(tt.input)
			if err == nil {
				t.Fatal("Expected decryption to fail")
			}
			if !IsKind(err, ErrKindTokenDecryption) {
				t.Errorf("Expected a token decryption error, got %v", err)
			}
		})
	}
}

func TestEncryptedTokenStoreRoundTrip(t *testing.T) {
	inner := NewInMemoryTokenStore(10)
	store := NewEncryptedTokenStore(inner, NewTokenEncryptor("test-secret-key"))
	ctx := context.Background()

	if err := store.Set(ctx, "key", "bearer-token", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// The inner store must only ever see ciphertext
	raw, found, _ := inner.Get(ctx, "key")
	if !found {
		t.Fatal("Inner store should hold the entry")
	}
	if raw == "bearer-token" {
		t.Error("Inner store holds the token in plaintext")
	}

	token, found, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || token != "bearer-token" {
		t.Errorf("Expected decrypted token, got %q (found=%v)", token, found)
	}
}

func TestEncryptedTokenStoreCorruptedEntry(t *testing.T) {
	inner := NewInMemoryTokenStore(10)
	store := NewEncryptedTokenStore(inner, NewTokenEncryptor("test-secret-key"))
	ctx := context.Background()

	// Simulate a corrupted or foreign value written behind our back
	inner.Set(ctx, "key", "garbage-value", time.Minute)

	_, found, err := store.Get(ctx, "key")
	if err == nil {
		t.Fatal("Expected an error for an undecryptable entry")
	}
	if found {
		t.Error("A corrupted entry must not be reported as found")
	}
	if !IsKind(err, ErrKindTokenDecryption) {
		t.Errorf("Expected a token decryption error, got %v", err)
	}
}

func TestEncryptedTokenStorePassthrough(t *testing.T) {
	inner := NewInMemoryTokenStore(10)
	store := NewEncryptedTokenStore(inner, NewTokenEncryptor("test-secret-key"))
	ctx := context.Background()

	store.Set(ctx, "key-1", "token", time.Minute)
	store.Set(ctx, "key-2", "token", time.Minute)

	if err := store.Delete(ctx, "key-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "key-1"); found {
		t.Error("Deleted entry should not be found")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if stats := store.Stats(); stats.Size != 0 {
		t.Errorf("Expected empty store after Clear, size is %d", stats.Size)
	}
}
