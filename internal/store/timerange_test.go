package store

import "testing"

func TestParseTimeRange_Suffixes(t *testing.T) {
	cases := map[string]int{
		"24h": 24,
		"2d":  48,
		"1w":  168,
		"3":   3,
	}
	for input, want := range cases {
		got, err := ParseTimeRange(input)
		if err != nil {
			t.Fatalf("ParseTimeRange(%q): unexpected error: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseTimeRange(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseTimeRange_InvalidReturnsError(t *testing.T) {
	if _, err := ParseTimeRange("not-a-range"); err == nil {
		t.Fatal("expected error for malformed time range")
	}
}
