package utils

import "strings"

const (
	minTokenLength = 8
	maxTokenLength = 2048
)

// ParseTokenLines splits raw upload text into candidate values: trimmed,
// empty lines dropped, in-batch duplicates removed with order preserved.
func ParseTokenLines(text string) []string {
	seen := make(map[string]struct{})
	var values []string

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		values = append(values, line)
	}
	return values
}

// ValidTokenFormat bounds value length; long enough to matter, short enough
// to store. JWTs and base64 blobs fit within the upper bound.
func ValidTokenFormat(value string) bool {
	return len(value) >= minTokenLength && len(value) <= maxTokenLength
}

// MaskKey hides the middle of a credential for display, keeping the first
// and last four characters.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}

	middle := len(key) - 8
	if middle < 4 {
		middle = 4
	}
	return key[:4] + strings.Repeat("*", middle) + key[len(key)-4:]
}
