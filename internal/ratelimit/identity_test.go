package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/types"
)

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name string
		id   auth.Identity
		ip   string
		want string
	}{
		{"authenticated", auth.Identity{Username: "ryo", Authenticated: true}, "203.0.113.7", "ryo"},
		{"anonymous ipv4", auth.Identity{}, "203.0.113.7", "anon:203.0.113.7"},
		{"anonymous with port", auth.Identity{}, "203.0.113.7:51234", "anon:203.0.113.7"},
		{"anonymous ipv6", auth.Identity{}, "[2001:db8::1]:443", "anon:2001:db8::1"},
		{"mapped ipv4", auth.Identity{}, "::ffff:203.0.113.7", "anon:203.0.113.7"},
		{"loopback", auth.Identity{}, "127.0.0.1:3000", "anon:localhost-dev"},
		{"ipv6 loopback", auth.Identity{}, "::1", "anon:localhost-dev"},
		{"unknown", auth.Identity{}, "", "anon:localhost-dev"},
		{"garbage", auth.Identity{}, "not-an-ip", "anon:localhost-dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentityKey(tt.id, tt.ip, "localhost-dev"); got != tt.want {
				t.Errorf("IdentityKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewUserTurns(t *testing.T) {
	msg := func(role string) types.Message { return types.Message{Role: role} }

	tests := []struct {
		name     string
		messages []types.Message
		want     int
	}{
		{"single user", []types.Message{msg("user")}, 1},
		{"conversation", []types.Message{msg("system"), msg("user"), msg("assistant"), msg("user")}, 1},
		{"two queued user messages", []types.Message{msg("assistant"), msg("user"), msg("user")}, 2},
		{"ends with assistant", []types.Message{msg("user"), msg("assistant")}, 0},
		{"system only", []types.Message{msg("system")}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewUserTurns(tt.messages); got != tt.want {
				t.Errorf("NewUserTurns() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHeaders(w, LimitResult{Checked: true, Limit: 25, Remaining: 20, ResetAfter: 2 * time.Hour})

	if h := w.Header().Get(headerRateLimitLimit); h != "25" {
		t.Errorf("expected limit 25, got %s", h)
	}
	if h := w.Header().Get(headerRateLimitRemaining); h != "20" {
		t.Errorf("expected remaining 20, got %s", h)
	}
	if h := w.Header().Get(headerRateLimitReset); h != "7200" {
		t.Errorf("expected reset 7200, got %s", h)
	}

	w = httptest.NewRecorder()
	WriteHeaders(w, LimitResult{})
	if h := w.Header().Get(headerRateLimitLimit); h != "" {
		t.Errorf("expected no headers for unchecked result, got %s", h)
	}
}
