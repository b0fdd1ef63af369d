package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseHash(t *testing.T) {
	valid := "ab" + strings.Repeat("00", 30) + "cd"

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"upper case", strings.ToUpper(valid), false},
		{"too short", "abcd", true},
		{"too long", valid + "00", true},
		{"not hex", strings.Repeat("zz", HashSize), true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHash(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHash(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && (h[0] != 0xab || h[31] != 0xcd) {
				t.Errorf("ParseHash(%q) = %s", tt.input, h)
			}
		})
	}
}

func TestHash_StringShort(t *testing.T) {
	var h Hash
	if !h.IsZero() || h.String() != strings.Repeat("0", 64) {
		t.Errorf("zero hash = %s", h)
	}
	h[0], h[7], h[8] = 0x01, 0xff, 0xee
	if !strings.HasPrefix(h.String(), "01000000000000ffee") {
		t.Errorf("String() = %s", h)
	}
	if h.Short() != "01000000000000ff" {
		t.Errorf("Short() = %s", h.Short())
	}
	if h.IsZero() {
		t.Error("non-zero hash reported as zero")
	}
}

func TestHash_JSON(t *testing.T) {
	h := Hash{0xde, 0xad}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"`+h.String()+`"` {
		t.Errorf("Marshal = %s", data)
	}
	var got Hash
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != h {
		t.Errorf("round trip = %s, want %s", got, h)
	}

	// Map keys use the text form too.
	m := map[Hash]int{h: 1}
	data, err = json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal map: %v", err)
	}
	if !strings.Contains(string(data), h.String()) {
		t.Errorf("map key not hex: %s", data)
	}

	if err := json.Unmarshal([]byte(`""`), &got); err != nil || !got.IsZero() {
		t.Errorf("empty string = %s, %v", got, err)
	}
	if err := json.Unmarshal([]byte(`"abcd"`), &got); err == nil {
		t.Error("short hash should fail to decode")
	}
}
