package netutil

import "strings"

// DeviceInfo is the coarse device description shown in the sessions UI.
type DeviceInfo struct {
	Type    string // desktop, mobile, tablet, unknown
	Browser string
	OS      string
}

// ParseUserAgent extracts a display-grade device description from a raw
// User-Agent header. The sessions UI needs "Chrome on Windows", not a full
// UA taxonomy, so simple substring checks are enough.
func ParseUserAgent(ua string) DeviceInfo {
	info := DeviceInfo{Type: "unknown", Browser: "Unknown", OS: "Unknown"}
	if ua == "" {
		return info
	}
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		info.Type = "tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		info.Type = "mobile"
	default:
		info.Type = "desktop"
	}

	switch {
	case strings.Contains(lower, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		info.Browser = "Opera"
	case strings.Contains(lower, "chrome/"):
		info.Browser = "Chrome"
	case strings.Contains(lower, "firefox/"):
		info.Browser = "Firefox"
	case strings.Contains(lower, "safari/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(lower, "windows"):
		info.OS = "Windows"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ios"):
		info.OS = "iOS"
	case strings.Contains(lower, "mac os"):
		info.OS = "macOS"
	case strings.Contains(lower, "linux"):
		info.OS = "Linux"
	}

	return info
}
