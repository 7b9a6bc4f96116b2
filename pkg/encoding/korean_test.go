package encoding

import "testing"

func TestEUCKRRoundTrip(t *testing.T) {
	tests := []string{"", "tree.rsm", "나무", "data\\model\\프론테라\\분수.rsm"}

	for _, s := range tests {
		enc := UTF8ToEUCKR(s)
		if got := EUCKRToUTF8(enc); got != s {
			t.Errorf("round trip %q = %q", s, got)
		}
	}
}

func TestEUCKRBytes(t *testing.T) {
	// 나 is 0xB3 0xAA in EUC-KR.
	if got := EUCKRToUTF8([]byte{0xB3, 0xAA}); got != "나" {
		t.Errorf("EUCKRToUTF8 = %q, want 나", got)
	}
	if got := UTF8ToEUCKR("나"); string(got) != "\xB3\xAA" {
		t.Errorf("UTF8ToEUCKR = % x", got)
	}
}

func TestFixedString(t *testing.T) {
	field := UTF8ToFixedString("나무", 40)
	if len(field) != 40 {
		t.Fatalf("len = %d, want 40", len(field))
	}
	if field[4] != 0 || field[39] != 0 {
		t.Error("field not NUL padded")
	}
	if got := FixedStringToUTF8(field); got != "나무" {
		t.Errorf("FixedStringToUTF8 = %q", got)
	}

	full := []byte("abcd")
	if got := FixedStringToUTF8(full); got != "abcd" {
		t.Errorf("unterminated field = %q", got)
	}
	if got := UTF8ToFixedString("abcdef", 3); string(got) != "abc" {
		t.Errorf("truncated field = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"data\\Model\\Tree.RSM", "data/model/tree.rsm"},
		{"data/model/tree.rsm", "data/model/tree.rsm"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
