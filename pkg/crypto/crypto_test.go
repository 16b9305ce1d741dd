package crypto

import (
	"encoding/hex"
	"testing"
)

func TestGenerateTokenLengthAndEncoding(t *testing.T) {
	token, err := GenerateToken(TokenBytes)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	raw, err := hex.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not valid hex: %v", err)
	}
	if len(raw) != TokenBytes {
		t.Fatalf("expected %d bytes of entropy, got %d", TokenBytes, len(raw))
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	a, err := GenerateToken(TokenBytes)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	b, err := GenerateToken(TokenBytes)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if a == b {
		t.Fatal("expected two generated tokens to differ")
	}
}

func TestGenerateTokenRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestTokensEqual(t *testing.T) {
	if !TokensEqual("abc123", "abc123") {
		t.Fatal("expected equal tokens to compare true")
	}
	if TokensEqual("abc123", "abc124") {
		t.Fatal("expected different tokens to compare false")
	}
}
