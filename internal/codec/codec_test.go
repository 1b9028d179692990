package codec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("a"),
		[]byte("hello world"),
		[]byte(""),
		{0x00, 0xff, 0x10, 0x7f},
		[]byte("éè weird/name?*"),
	}
	for _, c := range cases {
		encoded := EncodeChild(c)
		decoded, err := DecodeChild(encoded)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", encoded, err)
		}
		if !bytes.Equal(decoded, c) {
			t.Fatalf("round trip mismatch: got %q want %q", decoded, c)
		}
	}
}

func TestEncodedNameNeverContainsDot(t *testing.T) {
	// Pack names always contain '.', so encoded child names must never
	// produce one, guaranteeing the two namespaces can't collide.
	for i := 0; i < 256; i++ {
		encoded := EncodeChild([]byte{byte(i)})
		for _, r := range encoded {
			if r == '.' {
				t.Fatalf("encoded byte %d produced a '.': %q", i, encoded)
			}
		}
	}
}

func TestValidReservedPrefix(t *testing.T) {
	valid := []string{"", "_METARCLONE_", "ABC123_", "0"}
	invalid := []string{"abc", "foo-bar", "FOO.BAR", "foo bar"}
	for _, p := range valid {
		if !ValidReservedPrefix(p) {
			t.Errorf("expected %q to be valid", p)
		}
	}
	for _, p := range invalid {
		if ValidReservedPrefix(p) {
			t.Errorf("expected %q to be invalid", p)
		}
	}
}

func TestValidCompressionSuffix(t *testing.T) {
	if !ValidCompressionSuffix(".gz") {
		t.Error("expected .gz to be valid")
	}
	if ValidCompressionSuffix(".g/z") {
		t.Error("expected .g/z to be invalid")
	}
}
