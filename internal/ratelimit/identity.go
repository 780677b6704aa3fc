package ratelimit

import (
	"net"
	"net/netip"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/types"
)

// IdentityKey is the counter key for a caller: the normalized username when
// authenticated, otherwise "anon:<ip>". Loopback and unparseable addresses
// collapse onto a single development identity.
func IdentityKey(id auth.Identity, clientIP, devIdentity string) string {
	if id.Authenticated && id.Username != "" {
		return id.Username
	}
	addr, ok := parseAddr(clientIP)
	if !ok || addr.IsLoopback() || addr.IsUnspecified() {
		return "anon:" + devIdentity
	}
	return "anon:" + addr.String()
}

func parseAddr(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// NewUserTurns counts the user messages after the last non-user message.
// Only these are new in this request; earlier turns were charged when they
// were first sent.
func NewUserTurns(messages []types.Message) int {
	n := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != types.RoleUser {
			break
		}
		n++
	}
	return n
}
