package util

import (
	"sort"
	"strings"
)

// Host name suffixes that never belong to a public relay
var internalSuffixes = []string{".local", ".internal", ".onion", ".localhost"}

// IsInternalHost reports whether host names a private or non-routable
// network. Relay connections to such hosts are refused.
func IsInternalHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range internalSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// IsLoopbackHost reports whether host is this machine
func IsLoopbackHost(host string) bool {
	switch host = strings.ToLower(host); host {
	case "localhost", "::1", "[::1]":
		return true
	}
	return strings.HasPrefix(host, "127.")
}

// SortedCopy returns the elements of list in order, leaving list as is.
// nil for an empty list.
func SortedCopy(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}

// AppendUnique returns base followed by the values not seen before. Order
// is kept and base is not modified.
func AppendUnique(base []string, values ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(values))
	out := make([]string, 0, len(base)+len(values))
	for _, list := range [][]string{base, values} {
		for _, v := range list {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// TruncateStringRunes cuts s to at most maxLen runes, ending in "..." when
// it had to cut. maxLen of 3 or less leaves s alone.
func TruncateStringRunes(s string, maxLen int) string {
	if maxLen <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
