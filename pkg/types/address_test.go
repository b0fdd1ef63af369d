package types

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func TestAddress_String(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Error("zero-value Address should be zero")
	}
	a := Address{0xab}
	if a.IsZero() {
		t.Error("non-zero Address reported zero")
	}
	if s := a.String(); !strings.HasPrefix(s, AddressHRP+"1") || s != strings.ToLower(s) {
		t.Errorf("String() = %s", s)
	}
}

func TestAddress_AccountID(t *testing.T) {
	a := Address{0x01, 0x02}
	id := a.AccountID()
	if err := id.Validate(); err != nil {
		t.Fatalf("implicit account id %q should be valid: %v", id, err)
	}
	got, ok := id.ImplicitAddress()
	if !ok || got != a {
		t.Errorf("ImplicitAddress() = %x, %v", got, ok)
	}
	if _, ok := AccountID("alice.near").ImplicitAddress(); ok {
		t.Error("named account reported as implicit")
	}
}

func TestParseAddress(t *testing.T) {
	rawHex := "0123456789abcdef0123456789abcdef01234567"
	var a Address
	raw, _ := hex.DecodeString(rawHex)
	copy(a[:], raw)

	otherHRP, _ := encodeBech32("tintent", a[:])
	short, _ := encodeBech32(AddressHRP, a[:10])

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"raw hex", rawHex, false},
		{"raw hex upper", strings.ToUpper(rawHex), false},
		{"bech32", a.String(), false},
		{"bech32 upper", strings.ToUpper(a.String()), false},
		{"other hrp", otherHRP, true},
		{"short payload", short, true},
		{"bad checksum", AddressHRP + "1" + strings.Repeat("q", 32), true},
		{"invalid bech32", "intent1invalid!!!", true},
		{"wrong length hex", "abcd", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if got.Hex() != rawHex {
				t.Errorf("ParseAddress(%q) hex = %s, want %s", tt.input, got.Hex(), rawHex)
			}
		})
	}
}

func TestAddress_JSON(t *testing.T) {
	original := Address{0xab, 0xcd, 0xef}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"`+original.String()+`"` {
		t.Errorf("Marshal = %s", data)
	}
	var decoded Address
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if original != decoded {
		t.Errorf("roundtrip mismatch: %x != %x", original, decoded)
	}
	if err := json.Unmarshal([]byte(`""`), &decoded); err != nil || !decoded.IsZero() {
		t.Errorf("empty string = %x, %v", decoded, err)
	}
}
