package nostr

import (
	"net/url"
	"strings"

	"github.com/SnowCait/user-notes-search/internal/util"
)

// NormalizeRelayURL validates and normalizes a relay URL.
// Returns empty string if URL is invalid/malformed.
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick reject for obviously bad URLs (no colon = no protocol)
	if !strings.Contains(relayURL, "://") {
		return ""
	}

	// Reject URL-encoded spaces (indicates garbage text as URL)
	if strings.Contains(relayURL, "%20") || strings.Contains(relayURL, "+") {
		return ""
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	if len(host) < 3 || strings.Contains(host, " ") {
		return ""
	}
	if !strings.Contains(host, ".") && host != "localhost" {
		return ""
	}
	// Block internal/unreachable hosts (.onion, .local, .internal)
	if util.IsInternalHost(host) {
		return ""
	}
	// Plain ws:// is only for local development relays
	if scheme == "ws" && !util.IsLoopbackHost(host) {
		return ""
	}

	// Normalize: strip trailing slash, lowercase scheme and host
	result := scheme + "://" + host
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += strings.TrimSuffix(parsed.Path, "/")
	}
	return result
}

// IsSecureRelayURL reports whether relayURL normalizes to a wss:// endpoint
func IsSecureRelayURL(relayURL string) bool {
	return strings.HasPrefix(NormalizeRelayURL(relayURL), "wss://")
}

// NormalizeRelayURLs normalizes each URL, dropping invalid entries and
// duplicates while keeping first-seen order
func NormalizeRelayURLs(relays []string) []string {
	seen := make(map[string]bool, len(relays))
	result := make([]string, 0, len(relays))
	for _, r := range relays {
		n := NormalizeRelayURL(r)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	return result
}
