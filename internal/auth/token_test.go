package auth

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken("prod")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if !strings.HasPrefix(token, "chat-prod-") {
		t.Errorf("token should start with 'chat-prod-', got: %s", token)
	}

	// chat-prod- is 10 chars, plus 32 random
	if len(token) != 42 {
		t.Errorf("expected token length 42, got %d: %s", len(token), token)
	}

	token2, _ := GenerateToken("prod")
	if token == token2 {
		t.Error("two generated tokens should not be identical")
	}
}

func TestHashToken(t *testing.T) {
	token := "chat-prod-abcdefghijklmnopqrstuvwxyz012345"
	hash := HashToken(token)

	if len(hash) != 64 {
		t.Errorf("expected hash length 64, got %d", len(hash))
	}
	if hash != HashToken(token) {
		t.Error("same token should produce same hash")
	}
	if hash == HashToken("chat-prod-different") {
		t.Error("different tokens should produce different hashes")
	}
}

func TestTokenPrefix(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"chat-prod-abcdefghijklmnopqrstuvwxyz012345", "chat-prod-abcdefgh"},
		{"chat-dev-12345678901234567890123456789012", "chat-dev-12345678"},
		{"short", "short"},
	}

	for _, tt := range tests {
		if got := TokenPrefix(tt.token); got != tt.expected {
			t.Errorf("TokenPrefix(%q) = %q, want %q", tt.token, got, tt.expected)
		}
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername("  Ryo "); got != "ryo" {
		t.Errorf("NormalizeUsername = %q, want ryo", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
		hours   float64
	}{
		{"90d", false, 90 * 24},
		{"30d", false, 30 * 24},
		{"24h", false, 24},
		{"", true, 0},
		{"xd", true, 0},
	}

	for _, tt := range tests {
		dur, err := ParseDuration(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDuration(%q) should have errored", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if dur.Hours() != tt.hours {
			t.Errorf("ParseDuration(%q) = %v hours, want %v", tt.input, dur.Hours(), tt.hours)
		}
	}
}
