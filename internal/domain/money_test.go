package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"100", "100", false},
		{"100.5", "100.5", false},
		{"100.25", "100.25", false},
		{"100.250", "100.25", false},
		{"0.001", "", true},
		{"12.345", "", true},
		{"abc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMoney(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMoney(%q) expected error, got %s", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMoney(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseMoney(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNotional(t *testing.T) {
	got := Notional(decimal.RequireFromString("100.25"), 4)
	if !got.Equal(decimal.RequireFromString("401")) {
		t.Errorf("Notional() = %s, want 401", got)
	}
}
