package history

import (
	"strings"
	"testing"
)

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain text", "hello there", false},
		{"unicode text", "héllo wörld 你好", false},
		{"exactly max chars", strings.Repeat("a", MaxTextChars), false},
		{"empty", "", true},
		{"over char limit", strings.Repeat("a", MaxTextChars+1), true},
		{"over byte limit", strings.Repeat("你", MaxMessageBytes/3+1), true},
		{"invalid utf-8", "hello \xff\xfe world", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.text)
			if tt.wantErr && err == nil {
				t.Errorf("expected error for %q-style text, got nil", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
