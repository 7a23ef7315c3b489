package netutil

import (
	"net/netip"
	"strings"
	"unicode/utf8"
)

// MaxUserAgentLength caps what gets stored on a session row; browsers and
// bots both ship absurdly long UA strings.
const MaxUserAgentLength = 512

// NormalizeIP reduces whatever the transport hands over (with or without a
// port, brackets, or a zone) to canonical IP text. The boolean reports
// whether an IP was recognized; on failure the input comes back unchanged so
// callers can still log it.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return canonical(addrPort.Addr())
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return canonical(addr)
	}
	// ParseAddrPort rejects non-numeric ports ("[::1]:port"), so peel the
	// port section off manually and try the host alone.
	if host, ok := stripPort(raw); ok {
		if addr, err := netip.ParseAddr(host); err == nil {
			return canonical(addr)
		}
	}
	return raw, false
}

func canonical(addr netip.Addr) (string, bool) {
	addr = addr.WithZone("")
	if !addr.IsValid() {
		return "", false
	}
	return addr.String(), true
}

func stripPort(raw string) (string, bool) {
	if strings.HasPrefix(raw, "[") {
		end := strings.LastIndex(raw, "]")
		if end < 0 {
			return "", false
		}
		return raw[1:end], true
	}
	idx := strings.LastIndex(raw, ":")
	if idx <= 0 {
		return "", false
	}
	return raw[:idx], true
}

// TruncateUserAgent cuts ua down to MaxUserAgentLength runes, never mid-rune.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	seen := 0
	for i := range ua {
		if seen == MaxUserAgentLength {
			return ua[:i]
		}
		seen++
	}
	return ua
}
