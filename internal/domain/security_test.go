package domain

import "testing"

func TestParseSecurityID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SecurityID
		wantErr bool
	}{
		{"code and board", "AAPL@NASDAQ", SecurityID{Code: "AAPL", Board: "NASDAQ"}, false},
		{"cash", "MONEY@CASH", CashSecurity, false},
		{"missing board", "AAPL@", SecurityID{}, true},
		{"missing code", "@NASDAQ", SecurityID{}, true},
		{"no separator", "AAPL", SecurityID{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSecurityID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseSecurityID(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSecurityID(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSecurityID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSecurityID_TextRoundTrip(t *testing.T) {
	id := NewSecurityID("SBER", "TQBR")
	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var back SecurityID
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != id {
		t.Errorf("round-trip = %v, want %v", back, id)
	}
	if !CashSecurity.IsCash() || id.IsCash() {
		t.Error("IsCash() misreports")
	}
}
