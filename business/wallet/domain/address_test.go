package domain

import "testing"

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		chars int
		want  string
	}{
		{"standard", "0x1234567890abcdef1234567890abcdef12345678", 4, "0x1234...5678"},
		{"wider window", "0x1234567890abcdef1234567890abcdef12345678", 6, "0x123456...345678"},
		{"default chars", "0x1234567890abcdef1234567890abcdef12345678", 0, "0x1234...5678"},
		{"empty", "", 4, ""},
		{"shorter than window", "0x12345", 4, "0x12345"},
		{"exactly window", "0x12345678", 4, "0x1234...5678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAddress(tt.addr, tt.chars); got != tt.want {
				t.Errorf("FormatAddress(%q, %d) = %q, want %q", tt.addr, tt.chars, got, tt.want)
			}
		})
	}
}
