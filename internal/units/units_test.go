package units

import (
	"errors"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		raw      uint64
		decimals uint8
		want     string
		trimmed  string
	}{
		{1, 2, "0.01", "0.01"},
		{150, 2, "1.50", "1.5"},
		{150_000_000_000_000_000, 9, "150000000.000000000", "150000000"},
		{0, 0, "0", "0"},
		{^uint64(0), 0, "18446744073709551615", "18446744073709551615"},
	}
	for _, tt := range tests {
		if got := Format(tt.raw, tt.decimals); got != tt.want {
			t.Errorf("Format(%d, %d): got %s, want %s", tt.raw, tt.decimals, got, tt.want)
		}
		if got := FormatTrimmed(tt.raw, tt.decimals); got != tt.trimmed {
			t.Errorf("FormatTrimmed(%d, %d): got %s, want %s", tt.raw, tt.decimals, got, tt.trimmed)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
	}{
		{"0.01", 2, 1},
		{"150", 2, 15000},
		{"150000000", 9, 150_000_000_000_000_000},
		{"1.50", 1, 15},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in, tt.decimals)
		if err != nil {
			t.Fatalf("Parse(%q, %d): %v", tt.in, tt.decimals, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q, %d): got %d, want %d", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"abc", "-1", "1.005", "18446744073709551616"} {
		decimals := uint8(2)
		if in == "18446744073709551616" {
			decimals = 0
		}
		if _, err := Parse(in, decimals); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Parse(%q): expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(1, 3, 4).String(); got != "0.3333" {
		t.Errorf("Ratio(1, 3): got %s", got)
	}
	if !Ratio(5, 0, 2).IsZero() {
		t.Error("Ratio with zero denominator must be zero")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		a, b uint64
		want string
	}{
		{1, 3, "33.33"},
		{0, 10, "0.00"},
		{5, 0, "0.00"},
		{1_000_000_000_000_000_000, 1_000_000_000_000_000_000, "100.00"},
	}
	for _, tt := range tests {
		if got := Percent(tt.a, tt.b, 2).StringFixed(2); got != tt.want {
			t.Errorf("Percent(%d, %d) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}
