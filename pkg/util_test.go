package hashledger

import "testing"

func TestParseHumanSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"80K", 81920, false},
		{"80k", 81920, false},
		{"512", 512, false},
		{"1M", 1024 * 1024, false},
		{"2MB", 2 * 1024 * 1024, false},
		{"1.5K", 1536, false},
		{" 4 KB ", 4096, false},
		{"1G", 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"K", 0, true},
		{"10X", 0, true},
		{"0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHumanSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseHumanSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHumanSize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseHumanSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}
