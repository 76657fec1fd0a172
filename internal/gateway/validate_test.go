package gateway

import (
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"simple", "hello", false},
		{"unicode", "héllo wörld 你好", false},
		{"at char limit", strings.Repeat("x", MaxMessageChars), false},
		{"at byte limit", strings.Repeat("\U0001D11E", MaxMessageBytes/4), false},
		{"empty", "", true},
		{"over byte limit", strings.Repeat("x", MaxMessageBytes+1), true},
		{"over char limit", strings.Repeat("é", MaxMessageChars+1), true},
		{"invalid utf8", "bad\xff\xfe", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateContent(tc.text)
			if tc.wantErr && err == nil {
				t.Errorf("expected error for %q", tc.name)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
