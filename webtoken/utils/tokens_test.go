package utils

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseTokenLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain lines",
			text: "alpha-token\nbeta-token",
			want: []string{"alpha-token", "beta-token"},
		},
		{
			name: "windows line endings and padding",
			text: "  alpha-token  \r\n\r\nbeta-token\r\n",
			want: []string{"alpha-token", "beta-token"},
		},
		{
			name: "duplicates keep first occurrence",
			text: "alpha-token\nbeta-token\nalpha-token",
			want: []string{"alpha-token", "beta-token"},
		},
		{
			name: "empty input",
			text: "\n\n  \n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseTokenLines(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTokenLines() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidTokenFormat(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"short", false},
		{"12345678", true},
		{strings.Repeat("x", 2048), true},
		{strings.Repeat("x", 2049), false},
	}

	for _, tt := range tests {
		if got := ValidTokenFormat(tt.value); got != tt.want {
			t.Errorf("ValidTokenFormat(%d chars) = %v, want %v", len(tt.value), got, tt.want)
		}
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"abcd", "****"},
		{"abcdefgh", "********"},
		{"abcdefghi", "abcd****fghi"},
		{"ABCD-1234-EFGH-5678", "ABCD***********5678"},
	}

	for _, tt := range tests {
		if got := MaskKey(tt.key); got != tt.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
